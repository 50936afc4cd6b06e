//go:build integration

package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/db/dbtest"
	"github.com/clinic/clinic/internal/platform/kv"
)

func TestRBACPostgres(t *testing.T) {
	pool := dbtest.Start(t)
	ctx := actorCtx()

	roles := NewRoleRepo(pool)
	comps := NewComponentRepo(pool)
	ops := NewOperationRepo(pool)
	perms := NewPermissionRepo(pool)
	assigns := NewAssignmentRepo(pool)
	grants := NewGrantReader(pool)
	cache := NewPermissionCache(kv.NewMemory(64, time.Minute), time.Minute, zerolog.Nop(), nil)
	svc := NewService(roles, comps, ops, perms, assigns, cache, zerolog.Nop())
	resolver := NewResolver(grants, cache, nil, zerolog.Nop())

	reset := func(t *testing.T) {
		dbtest.Truncate(t, pool, "role_assignments", "role_permissions", "roles", "components", "role_operations")
	}

	t.Run("UniqueNames", func(t *testing.T) {
		reset(t)
		require.NoError(t, roles.Create(ctx, &Role{Name: "doctor"}))
		err := roles.Create(ctx, &Role{Name: "doctor"})
		assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

		require.NoError(t, comps.Create(ctx, &Component{Name: "visits"}))
		assert.ErrorIs(t, comps.Create(ctx, &Component{Name: "visits"}), apperr.ErrConflict)

		require.NoError(t, ops.Create(ctx, &Operation{Name: "read"}))
		assert.ErrorIs(t, ops.Create(ctx, &Operation{Name: "read"}), apperr.ErrConflict)
	})

	t.Run("UniqueGrantAndAssignment", func(t *testing.T) {
		reset(t)
		r, c, o := seedGrant(t, svc, "u1", "doctor", "visits", "read")

		err := perms.Create(ctx, &RolePermission{RoleID: r.ID, ComponentID: c.ID, OperationID: o.ID})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		err = assigns.Create(ctx, &RoleAssignment{UserID: "u1", RoleID: r.ID})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("ForeignKeys", func(t *testing.T) {
		reset(t)
		err := assigns.Create(ctx, &RoleAssignment{UserID: "u1", RoleID: 424242})
		assert.ErrorIs(t, err, apperr.ErrInvalidReference)
	})

	t.Run("RestrictDelete", func(t *testing.T) {
		reset(t)
		r, c, o := seedGrant(t, svc, "u1", "doctor", "visits", "read")

		assert.ErrorIs(t, roles.Delete(ctx, r.ID), apperr.ErrInUse)
		assert.ErrorIs(t, comps.Delete(ctx, c.ID), apperr.ErrInUse)
		assert.ErrorIs(t, ops.Delete(ctx, o.ID), apperr.ErrInUse)

		_, err := roles.GetByID(ctx, r.ID)
		assert.NoError(t, err)
		assert.ErrorIs(t, roles.Delete(ctx, 999999), apperr.ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		reset(t)
		a := &Role{Name: "doctor"}
		b := &Role{Name: "nurse"}
		require.NoError(t, roles.Create(ctx, a))
		require.NoError(t, roles.Create(ctx, b))

		a.Name = "nurse"
		assert.ErrorIs(t, roles.Update(ctx, a), apperr.ErrConflict)
		assert.ErrorIs(t, roles.Update(ctx, &Role{ID: 999999, Name: "x"}), apperr.ErrNotFound)
	})

	t.Run("ListPermissions", func(t *testing.T) {
		reset(t)
		doc, _, _ := seedGrant(t, svc, "u1", "doctor", "visits", "read")
		seedGrant(t, svc, "u1", "doctor", "visits", "write")
		seedGrant(t, svc, "u2", "nurse", "pharmacy", "read")

		all, total, err := perms.List(ctx, 0, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, all, 3)

		mine, total, err := perms.List(ctx, doc.ID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, p := range mine {
			assert.Equal(t, "doctor", p.Role)
			assert.Equal(t, "visits", p.Component)
		}
	})

	t.Run("Resolver", func(t *testing.T) {
		reset(t)
		seedGrant(t, svc, "u1", "doctor", "visits", "read")
		seedGrant(t, svc, "u1", "doctor", "visits", "write")
		seedGrant(t, svc, "u1", "nurse", "visits", "read")
		seedGrant(t, svc, "u2", "billing", "invoices", "read")
		bg := context.Background()

		assert.Equal(t, Permissions{"visits": {"read", "write"}}, resolver.GetUserPermissions(bg, "u1"))
		assert.True(t, resolver.HasPermission(bg, "u1", "visits", "write"))
		assert.False(t, resolver.HasPermission(bg, "u1", "invoices", "read"))
		assert.False(t, resolver.HasPermission(bg, "u1", "nonexistent", "read"))

		assert.True(t, resolver.HasAnyPermission(bg, "u1", []Check{
			{Component: "invoices", Operation: "read"},
			{Component: "visits", Operation: "write"},
		}))
		assert.False(t, resolver.HasAnyPermission(bg, "u1", []Check{
			{Component: "invoices", Operation: "read"},
			{Component: "visits", Operation: "delete"},
		}))
		assert.False(t, resolver.HasAllPermissions(bg, "u1", []Check{
			{Component: "visits", Operation: "read"},
			{Component: "invoices", Operation: "read"},
		}))

		assert.True(t, resolver.HasRole(bg, "u1", "nurse"))
		assert.Equal(t, []string{"doctor", "nurse"}, resolver.GetUserRoles(bg, "u1"))
		assert.Equal(t, []string{}, resolver.GetUserRoles(bg, "nobody"))
	})

	t.Run("Transaction", func(t *testing.T) {
		reset(t)
		boom := errors.New("boom")
		err := db.WithTx(ctx, pool, func(ctx context.Context) error {
			if err := roles.Create(ctx, &Role{Name: "temp"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = roles.GetByName(ctx, "temp")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
