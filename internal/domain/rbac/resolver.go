package rbac

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Resolver answers authorization questions for a user. Every method fails
// closed: an unauthenticated caller or a storage failure yields the deny
// value, never an error. Failures are logged and counted so they can be told
// apart from real denials.
type Resolver struct {
	grants  GrantReader
	cache   *PermissionCache
	metrics *Metrics
	logger  zerolog.Logger
	loads   singleflight.Group
}

// loadTimeout bounds a shared permission load, which runs detached from the
// requests waiting on it.
const loadTimeout = 10 * time.Second

func NewResolver(grants GrantReader, cache *PermissionCache, metrics *Metrics, logger zerolog.Logger) *Resolver {
	return &Resolver{grants: grants, cache: cache, metrics: metrics, logger: logger}
}

func (r *Resolver) fail(check, userID string, err error) {
	r.metrics.failure(check)
	r.logger.Error().Err(err).
		Str("check", check).
		Str("user_id", userID).
		Msg("permission check failed, denying")
}

// GetUserPermissions returns the user's operations per component, merged
// across all of the user's roles.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID string) Permissions {
	if userID == "" {
		r.metrics.decision("permissions", false)
		return Permissions{}
	}
	perms, err := r.loadPermissions(ctx, userID)
	if err != nil {
		r.fail("permissions", userID, err)
		return Permissions{}
	}
	r.metrics.decision("permissions", len(perms) > 0)
	return perms
}

func (r *Resolver) loadPermissions(ctx context.Context, userID string) (Permissions, error) {
	cached, gen, ok := r.cache.Get(ctx, userID)
	if ok {
		return cached, nil
	}

	key := strconv.FormatInt(gen, 10) + ":" + userID
	ch := r.loads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		grants, err := r.grants.UserGrants(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		perms := foldGrants(grants)
		r.cache.Put(loadCtx, gen, userID, perms)
		return perms, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Permissions).clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// foldGrants merges grants into a component map, keeping the first
// occurrence of each operation.
func foldGrants(grants []Check) Permissions {
	perms := Permissions{}
	for _, g := range grants {
		ops := perms[g.Component]
		dup := false
		for _, op := range ops {
			if op == g.Operation {
				dup = true
				break
			}
		}
		if !dup {
			perms[g.Component] = append(ops, g.Operation)
		}
	}
	return perms
}

func (p Permissions) clone() Permissions {
	out := make(Permissions, len(p))
	for k, v := range p {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// HasPermission reports whether any of the user's roles grants operation on
// component. Unknown components and operations are simply not granted.
func (r *Resolver) HasPermission(ctx context.Context, userID, component, operation string) bool {
	if userID == "" || component == "" || operation == "" {
		r.metrics.decision("one", false)
		return false
	}
	ok, err := r.grants.HasPermission(ctx, userID, component, operation)
	if err != nil {
		r.fail("one", userID, err)
		return false
	}
	r.metrics.decision("one", ok)
	return ok
}

// HasAnyPermission reports whether at least one check is granted. An empty
// list is never satisfied.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID string, checks []Check) bool {
	if userID == "" || len(checks) == 0 {
		r.metrics.decision("any", false)
		return false
	}
	ok, err := r.grants.HasAnyPermission(ctx, userID, checks)
	if err != nil {
		r.fail("any", userID, err)
		return false
	}
	r.metrics.decision("any", ok)
	return ok
}

// HasAllPermissions reports whether every check is granted. An empty list is
// vacuously satisfied, even for an unauthenticated caller. Evaluation stops at
// the first check that is not.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID string, checks []Check) bool {
	if len(checks) == 0 {
		r.metrics.decision("all", true)
		return true
	}
	if userID == "" {
		r.metrics.decision("all", false)
		return false
	}
	for _, c := range checks {
		ok, err := r.grants.HasPermission(ctx, userID, c.Component, c.Operation)
		if err != nil {
			r.fail("all", userID, err)
			return false
		}
		if !ok {
			r.metrics.decision("all", false)
			return false
		}
	}
	r.metrics.decision("all", true)
	return true
}

func (r *Resolver) HasRole(ctx context.Context, userID, role string) bool {
	if userID == "" || role == "" {
		r.metrics.decision("role", false)
		return false
	}
	ok, err := r.grants.HasRole(ctx, userID, role)
	if err != nil {
		r.fail("role", userID, err)
		return false
	}
	r.metrics.decision("role", ok)
	return ok
}

// GetUserRoles returns the names of the user's roles, sorted.
func (r *Resolver) GetUserRoles(ctx context.Context, userID string) []string {
	if userID == "" {
		r.metrics.decision("roles", false)
		return []string{}
	}
	roles, err := r.grants.UserRoles(ctx, userID)
	if err != nil {
		r.fail("roles", userID, err)
		return []string{}
	}
	if roles == nil {
		roles = []string{}
	}
	r.metrics.decision("roles", len(roles) > 0)
	return roles
}

// InvalidateCache drops all cached permission sets.
func (r *Resolver) InvalidateCache(ctx context.Context) error {
	return r.cache.Invalidate(ctx)
}
