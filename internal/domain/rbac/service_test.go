package rbac

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/kv"
)

func newTestService() (*Service, *memStore, *PermissionCache) {
	m := newMemStore()
	cache := NewPermissionCache(kv.NewMemory(128, time.Minute), time.Minute, zerolog.Nop(), nil)
	roles, comps, ops, perms, assigns := m.repos()
	return NewService(roles, comps, ops, perms, assigns, cache, zerolog.Nop()), m, cache
}

func actorCtx() context.Context {
	return auth.WithUserID(context.Background(), "admin-1")
}

// seedGrant creates role/component/operation, grants it and assigns it to user.
func seedGrant(t *testing.T, svc *Service, user, role, comp, op string) (*Role, *Component, *Operation) {
	t.Helper()
	ctx := actorCtx()
	r, err := svc.roles.GetByName(ctx, role)
	if err != nil {
		r = &Role{Name: role}
		if err := svc.CreateRole(ctx, r); err != nil {
			t.Fatalf("create role: %v", err)
		}
	}
	c, err := svc.components.GetByName(ctx, comp)
	if err != nil {
		c = &Component{Name: comp}
		if err := svc.CreateComponent(ctx, c); err != nil {
			t.Fatalf("create component: %v", err)
		}
	}
	o, err := svc.operations.GetByName(ctx, op)
	if err != nil {
		o = &Operation{Name: op}
		if err := svc.CreateOperation(ctx, o); err != nil {
			t.Fatalf("create operation: %v", err)
		}
	}
	if _, err := svc.permissions.Find(ctx, r.ID, c.ID, o.ID); err != nil {
		if err := svc.CreatePermission(ctx, &RolePermission{RoleID: r.ID, ComponentID: c.ID, OperationID: o.ID}); err != nil {
			t.Fatalf("create permission: %v", err)
		}
	}
	if user != "" {
		if _, err := svc.assignments.Find(ctx, user, r.ID); err != nil {
			if err := svc.AssignRole(ctx, &RoleAssignment{UserID: user, RoleID: r.ID}); err != nil {
				t.Fatalf("assign role: %v", err)
			}
		}
	}
	return r, c, o
}

func TestCreateRole(t *testing.T) {
	svc, _, _ := newTestService()
	r := &Role{Name: "  doctor "}
	if err := svc.CreateRole(actorCtx(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID == 0 {
		t.Error("expected ID to be set")
	}
	if r.Name != "doctor" {
		t.Errorf("expected trimmed name 'doctor', got %q", r.Name)
	}
}

func TestCreateRole_Validation(t *testing.T) {
	svc, m, _ := newTestService()
	for _, name := range []string{"", "   ", strings.Repeat("x", maxNameLength+1)} {
		err := svc.CreateRole(actorCtx(), &Role{Name: name})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("name %q: expected validation error, got %v", name, err)
		}
	}
	if len(m.roles) != 0 {
		t.Errorf("expected no roles stored, got %d", len(m.roles))
	}
}

func TestCreateRole_Duplicate(t *testing.T) {
	svc, m, _ := newTestService()
	if err := svc.CreateRole(actorCtx(), &Role{Name: "doctor"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.CreateRole(actorCtx(), &Role{Name: "doctor"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(m.roles) != 1 {
		t.Errorf("expected 1 role, got %d", len(m.roles))
	}
}

// racingRoles hides existing rows from the pre-check, as a concurrent writer
// would, so only the constraint can report the duplicate.
type racingRoles struct{ RoleRepository }

func (racingRoles) GetByName(_ context.Context, name string) (*Role, error) {
	return nil, apperr.NotFound("role", name)
}

func TestCreateRole_ConstraintIsAuthoritative(t *testing.T) {
	m := newMemStore()
	roles, comps, ops, perms, assigns := m.repos()
	svc := NewService(racingRoles{roles}, comps, ops, perms, assigns, nil, zerolog.Nop())

	if err := svc.CreateRole(actorCtx(), &Role{Name: "nurse"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.CreateRole(actorCtx(), &Role{Name: "nurse"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict from constraint, got %v", err)
	}
}

func TestMutationsRequireActor(t *testing.T) {
	svc, m, _ := newTestService()
	ctx := context.Background()

	checks := map[string]error{
		"CreateRole":      svc.CreateRole(ctx, &Role{Name: "x"}),
		"UpdateRole":      svc.UpdateRole(ctx, &Role{ID: 1, Name: "x"}),
		"DeleteRole":      svc.DeleteRole(ctx, 1),
		"CreateComponent": svc.CreateComponent(ctx, &Component{Name: "x"}),
		"DeleteComponent": svc.DeleteComponent(ctx, 1),
		"CreateOperation": svc.CreateOperation(ctx, &Operation{Name: "x"}),
		"DeleteOperation": svc.DeleteOperation(ctx, 1),
		"CreatePerm":      svc.CreatePermission(ctx, &RolePermission{RoleID: 1, ComponentID: 1, OperationID: 1}),
		"DeletePerm":      svc.DeletePermission(ctx, 1),
		"AssignRole":      svc.AssignRole(ctx, &RoleAssignment{UserID: "u", RoleID: 1}),
		"UnassignRole":    svc.UnassignRole(ctx, 1),
	}
	for name, err := range checks {
		if !errors.Is(err, apperr.ErrUnauthenticated) {
			t.Errorf("%s: expected unauthenticated, got %v", name, err)
		}
	}
	if m.calls != 0 {
		t.Errorf("expected storage untouched, got %d calls", m.calls)
	}
}

func TestUpdateRole(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := actorCtx()
	a := &Role{Name: "doctor"}
	b := &Role{Name: "nurse"}
	_ = svc.CreateRole(ctx, a)
	_ = svc.CreateRole(ctx, b)

	// Keeping its own name is not a conflict.
	if err := svc.UpdateRole(ctx, &Role{ID: a.ID, Name: "doctor"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.UpdateRole(ctx, &Role{ID: a.ID, Name: "nurse"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if err := svc.UpdateRole(ctx, &Role{ID: 999, Name: "pharmacist"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := svc.UpdateRole(ctx, &Role{ID: a.ID, Name: "physician"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.GetRole(ctx, a.ID)
	if got.Name != "physician" {
		t.Errorf("expected 'physician', got %q", got.Name)
	}
}

func TestDeleteRole_InUse(t *testing.T) {
	svc, m, _ := newTestService()
	r, _, _ := seedGrant(t, svc, "", "doctor", "visits", "read")

	err := svc.DeleteRole(actorCtx(), r.ID)
	if !errors.Is(err, apperr.ErrInUse) {
		t.Fatalf("expected in use, got %v", err)
	}
	if _, ok := m.roles[r.ID]; !ok {
		t.Error("expected role to survive")
	}
}

func TestDeleteComponentAndOperation_InUse(t *testing.T) {
	svc, _, _ := newTestService()
	_, c, o := seedGrant(t, svc, "", "doctor", "visits", "read")

	if err := svc.DeleteComponent(actorCtx(), c.ID); !errors.Is(err, apperr.ErrInUse) {
		t.Errorf("component: expected in use, got %v", err)
	}
	if err := svc.DeleteOperation(actorCtx(), o.ID); !errors.Is(err, apperr.ErrInUse) {
		t.Errorf("operation: expected in use, got %v", err)
	}
}

func TestDeleteRole_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.DeleteRole(actorCtx(), 42); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteRole_AfterDependentsRemoved(t *testing.T) {
	svc, m, _ := newTestService()
	ctx := actorCtx()
	r, _, _ := seedGrant(t, svc, "u1", "doctor", "visits", "read")

	for id := range m.permissions {
		if err := svc.DeletePermission(ctx, id); err != nil {
			t.Fatalf("delete permission: %v", err)
		}
	}
	for id := range m.assignments {
		if err := svc.UnassignRole(ctx, id); err != nil {
			t.Fatalf("unassign: %v", err)
		}
	}
	if err := svc.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreatePermission(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := actorCtx()
	r, c, o := seedGrant(t, svc, "", "doctor", "visits", "read")

	dup := &RolePermission{RoleID: r.ID, ComponentID: c.ID, OperationID: o.ID}
	if err := svc.CreatePermission(ctx, dup); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	bad := &RolePermission{RoleID: r.ID, ComponentID: 999, OperationID: o.ID}
	if err := svc.CreatePermission(ctx, bad); !errors.Is(err, apperr.ErrInvalidReference) {
		t.Errorf("expected invalid reference, got %v", err)
	}

	missing := &RolePermission{RoleID: r.ID}
	if err := svc.CreatePermission(ctx, missing); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdatePermission(t *testing.T) {
	svc, m, _ := newTestService()
	ctx := actorCtx()
	r, c, _ := seedGrant(t, svc, "", "doctor", "visits", "read")
	_, _, write := seedGrant(t, svc, "", "doctor", "visits", "write")

	var readID int64
	for id, p := range m.permissions {
		if p.OperationID != write.ID {
			readID = id
		}
	}

	// Moving the read grant onto the existing write grant collides.
	err := svc.UpdatePermission(ctx, &RolePermission{ID: readID, RoleID: r.ID, ComponentID: c.ID, OperationID: write.ID})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	if err := svc.UpdatePermission(ctx, &RolePermission{ID: 999, RoleID: r.ID, ComponentID: c.ID, OperationID: write.ID}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAssignRole(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := actorCtx()
	r := &Role{Name: "doctor"}
	_ = svc.CreateRole(ctx, r)

	a := &RoleAssignment{UserID: " u1 ", RoleID: r.ID}
	if err := svc.AssignRole(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.UserID != "u1" {
		t.Errorf("expected trimmed user id, got %q", a.UserID)
	}
	if err := svc.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: r.ID}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if err := svc.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: 999}); !errors.Is(err, apperr.ErrInvalidReference) {
		t.Errorf("expected invalid reference, got %v", err)
	}
	if err := svc.AssignRole(ctx, &RoleAssignment{RoleID: r.ID}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	list, err := svc.ListUserAssignments(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Role != "doctor" {
		t.Errorf("expected one doctor assignment, got %+v", list)
	}
}

func TestUnassignRole_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.UnassignRole(actorCtx(), 7); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStorageFailurePropagates(t *testing.T) {
	svc, m, _ := newTestService()
	m.fail = errDown
	if err := svc.CreateRole(actorCtx(), &Role{Name: "doctor"}); !errors.Is(err, errDown) {
		t.Errorf("expected storage error, got %v", err)
	}
	if _, _, err := svc.ListRoles(actorCtx(), 10, 0); !errors.Is(err, errDown) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestMutationInvalidatesCache(t *testing.T) {
	svc, _, cache := newTestService()
	ctx := context.Background()

	_, before, _ := cache.Get(ctx, "u1")
	if err := svc.CreateRole(actorCtx(), &Role{Name: "doctor"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, after, _ := cache.Get(ctx, "u1")
	if after <= before {
		t.Errorf("expected generation to advance, got %d -> %d", before, after)
	}

	// A failed mutation leaves the generation alone.
	_ = svc.CreateRole(actorCtx(), &Role{Name: "doctor"})
	_, again, _ := cache.Get(ctx, "u1")
	if again != after {
		t.Errorf("expected generation %d, got %d", after, again)
	}
}

func TestBootstrap(t *testing.T) {
	svc, m, _ := newTestService()
	ctx := context.Background()

	if err := svc.Bootstrap(ctx, "root"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Bootstrap(ctx, "root"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(m.roles) != 1 || len(m.components) != 1 || len(m.operations) != 2 {
		t.Errorf("expected 1 role, 1 component, 2 operations, got %d/%d/%d",
			len(m.roles), len(m.components), len(m.operations))
	}
	if len(m.permissions) != 2 {
		t.Errorf("expected 2 grants, got %d", len(m.permissions))
	}
	if len(m.assignments) != 1 {
		t.Errorf("expected 1 assignment, got %d", len(m.assignments))
	}

	ok, _ := m.HasPermission(ctx, "root", auth.AdminComponent, auth.OpWrite)
	if !ok {
		t.Error("expected root to hold administration:write")
	}

	if err := svc.Bootstrap(ctx, "second"); err != nil {
		t.Fatalf("second user: %v", err)
	}
	if len(m.assignments) != 2 {
		t.Errorf("expected 2 assignments, got %d", len(m.assignments))
	}
	if err := svc.Bootstrap(ctx, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
