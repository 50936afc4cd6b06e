package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// AdminRole is the role created by Bootstrap.
const AdminRole = "admin"

// Bootstrap makes userID an administrator: it ensures the admin role, the
// administration component, the read and write operations, the two grants
// and the assignment all exist. Running it again changes nothing.
func (s *Service) Bootstrap(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.Validation("user id is required")
	}
	if auth.UserIDFromContext(ctx) == "" {
		ctx = auth.WithUserID(ctx, "system:bootstrap")
	}

	role, err := s.roles.GetByName(ctx, AdminRole)
	if errors.Is(err, apperr.ErrNotFound) {
		role = &Role{Name: AdminRole}
		err = s.CreateRole(ctx, role)
	}
	if err != nil {
		return fmt.Errorf("ensure role: %w", err)
	}

	comp, err := s.components.GetByName(ctx, auth.AdminComponent)
	if errors.Is(err, apperr.ErrNotFound) {
		comp = &Component{Name: auth.AdminComponent}
		err = s.CreateComponent(ctx, comp)
	}
	if err != nil {
		return fmt.Errorf("ensure component: %w", err)
	}

	for _, name := range []string{auth.OpRead, auth.OpWrite} {
		op, err := s.operations.GetByName(ctx, name)
		if errors.Is(err, apperr.ErrNotFound) {
			op = &Operation{Name: name}
			err = s.CreateOperation(ctx, op)
		}
		if err != nil {
			return fmt.Errorf("ensure operation %s: %w", name, err)
		}

		_, err = s.permissions.Find(ctx, role.ID, comp.ID, op.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			err = s.CreatePermission(ctx, &RolePermission{RoleID: role.ID, ComponentID: comp.ID, OperationID: op.ID})
		}
		if err != nil {
			return fmt.Errorf("ensure grant %s: %w", name, err)
		}
	}

	_, err = s.assignments.Find(ctx, userID, role.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		err = s.AssignRole(ctx, &RoleAssignment{UserID: userID, RoleID: role.ID})
	}
	if err != nil {
		return fmt.Errorf("ensure assignment: %w", err)
	}
	return nil
}
