package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const maxNameLength = 100

// Service administers the RBAC graph. Every mutation requires an
// authenticated actor and invalidates the permission cache once it succeeds.
type Service struct {
	roles       RoleRepository
	components  ComponentRepository
	operations  OperationRepository
	permissions PermissionRepository
	assignments AssignmentRepository
	cache       *PermissionCache
	logger      zerolog.Logger
}

func NewService(
	roles RoleRepository,
	components ComponentRepository,
	operations OperationRepository,
	permissions PermissionRepository,
	assignments AssignmentRepository,
	cache *PermissionCache,
	logger zerolog.Logger,
) *Service {
	return &Service{
		roles:       roles,
		components:  components,
		operations:  operations,
		permissions: permissions,
		assignments: assignments,
		cache:       cache,
		logger:      logger,
	}
}

func requireActor(ctx context.Context) (string, error) {
	actor := auth.UserIDFromContext(ctx)
	if actor == "" {
		return "", apperr.ErrUnauthenticated
	}
	return actor, nil
}

func (s *Service) changed(ctx context.Context, actor, what string) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Error().Err(err).Str("change", what).Msg("permission cache invalidation failed, cached permissions stale until TTL")
	}
	s.logger.Info().Str("actor", actor).Str("change", what).Msg("rbac changed")
}

func cleanName(entity, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("%s name is required", entity)
	}
	if len(name) > maxNameLength {
		return "", apperr.Validation("%s name must be at most %d characters", entity, maxNameLength)
	}
	return name, nil
}

// nameFree is the fast-path duplicate check. The unique constraint remains
// authoritative when two writers race past it.
func nameFree(entity string, existingID int64, err error, selfID int64) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existingID != selfID {
		return apperr.Conflict(entity)
	}
	return nil
}

// referenced turns a missing referenced row into ErrInvalidReference.
func referenced(what string, id int64, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%s %d does not exist: %w", what, id, apperr.ErrInvalidReference)
	}
	return err
}

// -- Role --

func (s *Service) CreateRole(ctx context.Context, r *Role) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if r.Name, err = cleanName("role", r.Name); err != nil {
		return err
	}
	existing, err := s.roles.GetByName(ctx, r.Name)
	if err := nameFree("role", idOf(existing), err, 0); err != nil {
		return err
	}
	if err := s.roles.Create(ctx, r); err != nil {
		return err
	}
	s.changed(ctx, actor, "create role")
	return nil
}

func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.roles.GetByID(ctx, id)
}

func (s *Service) UpdateRole(ctx context.Context, r *Role) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if r.Name, err = cleanName("role", r.Name); err != nil {
		return err
	}
	if _, err := s.roles.GetByID(ctx, r.ID); err != nil {
		return err
	}
	existing, err := s.roles.GetByName(ctx, r.Name)
	if err := nameFree("role", idOf(existing), err, r.ID); err != nil {
		return err
	}
	if err := s.roles.Update(ctx, r); err != nil {
		return err
	}
	s.changed(ctx, actor, "update role")
	return nil
}

func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, actor, "delete role")
	return nil
}

func (s *Service) ListRoles(ctx context.Context, limit, offset int) ([]*Role, int, error) {
	return s.roles.List(ctx, limit, offset)
}

// -- Component --

func (s *Service) CreateComponent(ctx context.Context, c *Component) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if c.Name, err = cleanName("component", c.Name); err != nil {
		return err
	}
	existing, err := s.components.GetByName(ctx, c.Name)
	if err := nameFree("component", idOf(existing), err, 0); err != nil {
		return err
	}
	if err := s.components.Create(ctx, c); err != nil {
		return err
	}
	s.changed(ctx, actor, "create component")
	return nil
}

func (s *Service) GetComponent(ctx context.Context, id int64) (*Component, error) {
	return s.components.GetByID(ctx, id)
}

func (s *Service) UpdateComponent(ctx context.Context, c *Component) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if c.Name, err = cleanName("component", c.Name); err != nil {
		return err
	}
	if _, err := s.components.GetByID(ctx, c.ID); err != nil {
		return err
	}
	existing, err := s.components.GetByName(ctx, c.Name)
	if err := nameFree("component", idOf(existing), err, c.ID); err != nil {
		return err
	}
	if err := s.components.Update(ctx, c); err != nil {
		return err
	}
	s.changed(ctx, actor, "update component")
	return nil
}

func (s *Service) DeleteComponent(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.components.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, actor, "delete component")
	return nil
}

func (s *Service) ListComponents(ctx context.Context, limit, offset int) ([]*Component, int, error) {
	return s.components.List(ctx, limit, offset)
}

// -- Operation --

func (s *Service) CreateOperation(ctx context.Context, o *Operation) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if o.Name, err = cleanName("operation", o.Name); err != nil {
		return err
	}
	existing, err := s.operations.GetByName(ctx, o.Name)
	if err := nameFree("operation", idOf(existing), err, 0); err != nil {
		return err
	}
	if err := s.operations.Create(ctx, o); err != nil {
		return err
	}
	s.changed(ctx, actor, "create operation")
	return nil
}

func (s *Service) GetOperation(ctx context.Context, id int64) (*Operation, error) {
	return s.operations.GetByID(ctx, id)
}

func (s *Service) UpdateOperation(ctx context.Context, o *Operation) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if o.Name, err = cleanName("operation", o.Name); err != nil {
		return err
	}
	if _, err := s.operations.GetByID(ctx, o.ID); err != nil {
		return err
	}
	existing, err := s.operations.GetByName(ctx, o.Name)
	if err := nameFree("operation", idOf(existing), err, o.ID); err != nil {
		return err
	}
	if err := s.operations.Update(ctx, o); err != nil {
		return err
	}
	s.changed(ctx, actor, "update operation")
	return nil
}

func (s *Service) DeleteOperation(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.operations.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, actor, "delete operation")
	return nil
}

func (s *Service) ListOperations(ctx context.Context, limit, offset int) ([]*Operation, int, error) {
	return s.operations.List(ctx, limit, offset)
}

// -- Role Permission --

func (s *Service) validatePermission(ctx context.Context, p *RolePermission) error {
	if p.RoleID <= 0 || p.ComponentID <= 0 || p.OperationID <= 0 {
		return apperr.Validation("role_id, component_id and operation_id are required")
	}
	if _, err := s.roles.GetByID(ctx, p.RoleID); err != nil {
		return referenced("role", p.RoleID, err)
	}
	if _, err := s.components.GetByID(ctx, p.ComponentID); err != nil {
		return referenced("component", p.ComponentID, err)
	}
	if _, err := s.operations.GetByID(ctx, p.OperationID); err != nil {
		return referenced("operation", p.OperationID, err)
	}
	existing, err := s.permissions.Find(ctx, p.RoleID, p.ComponentID, p.OperationID)
	var existingID int64
	if existing != nil {
		existingID = existing.ID
	}
	return nameFree("role permission", existingID, err, p.ID)
}

func (s *Service) CreatePermission(ctx context.Context, p *RolePermission) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	p.ID = 0
	if err := s.validatePermission(ctx, p); err != nil {
		return err
	}
	if err := s.permissions.Create(ctx, p); err != nil {
		return err
	}
	s.changed(ctx, actor, "create role permission")
	return nil
}

func (s *Service) GetPermission(ctx context.Context, id int64) (*RolePermission, error) {
	return s.permissions.GetByID(ctx, id)
}

func (s *Service) UpdatePermission(ctx context.Context, p *RolePermission) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.permissions.GetByID(ctx, p.ID); err != nil {
		return err
	}
	if err := s.validatePermission(ctx, p); err != nil {
		return err
	}
	if err := s.permissions.Update(ctx, p); err != nil {
		return err
	}
	s.changed(ctx, actor, "update role permission")
	return nil
}

func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.permissions.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, actor, "delete role permission")
	return nil
}

func (s *Service) ListPermissions(ctx context.Context, roleID int64, limit, offset int) ([]*RolePermissionView, int, error) {
	return s.permissions.List(ctx, roleID, limit, offset)
}

// -- Role Assignment --

func (s *Service) validateAssignment(ctx context.Context, a *RoleAssignment) error {
	a.UserID = strings.TrimSpace(a.UserID)
	if a.UserID == "" {
		return apperr.Validation("user_id is required")
	}
	if a.RoleID <= 0 {
		return apperr.Validation("role_id is required")
	}
	if _, err := s.roles.GetByID(ctx, a.RoleID); err != nil {
		return referenced("role", a.RoleID, err)
	}
	existing, err := s.assignments.Find(ctx, a.UserID, a.RoleID)
	var existingID int64
	if existing != nil {
		existingID = existing.ID
	}
	return nameFree("role assignment", existingID, err, a.ID)
}

// AssignRole gives userID the role. Assigning a role the user already holds
// is a conflict.
func (s *Service) AssignRole(ctx context.Context, a *RoleAssignment) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	a.ID = 0
	if err := s.validateAssignment(ctx, a); err != nil {
		return err
	}
	if err := s.assignments.Create(ctx, a); err != nil {
		return err
	}
	s.changed(ctx, actor, "assign role")
	return nil
}

func (s *Service) GetAssignment(ctx context.Context, id int64) (*RoleAssignment, error) {
	return s.assignments.GetByID(ctx, id)
}

func (s *Service) UpdateAssignment(ctx context.Context, a *RoleAssignment) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.assignments.GetByID(ctx, a.ID); err != nil {
		return err
	}
	if err := s.validateAssignment(ctx, a); err != nil {
		return err
	}
	if err := s.assignments.Update(ctx, a); err != nil {
		return err
	}
	s.changed(ctx, actor, "update role assignment")
	return nil
}

func (s *Service) UnassignRole(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.assignments.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, actor, "unassign role")
	return nil
}

func (s *Service) ListUserAssignments(ctx context.Context, userID string) ([]*RoleAssignmentView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id is required")
	}
	return s.assignments.ListByUser(ctx, userID)
}

// idOf returns the id of a looked-up named entity, or 0 when there is none.
func idOf(v interface{}) int64 {
	switch e := v.(type) {
	case *Role:
		if e != nil {
			return e.ID
		}
	case *Component:
		if e != nil {
			return e.ID
		}
	case *Operation:
		if e != nil {
			return e.ID
		}
	}
	return 0
}
