package locality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const maxNameLength = 200

// Service manages the locality hierarchy and user assignments.
type Service struct {
	orgs        OrganizationRepository
	depts       DepartmentRepository
	rooms       RoomRepository
	locals      LocalRepository
	assignments AssignmentRepository
	logger      zerolog.Logger
}

func NewService(
	orgs OrganizationRepository,
	depts DepartmentRepository,
	rooms RoomRepository,
	locals LocalRepository,
	assignments AssignmentRepository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		orgs:        orgs,
		depts:       depts,
		rooms:       rooms,
		locals:      locals,
		assignments: assignments,
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

func (s *Service) changed(actor, what string, id int64) {
	s.logger.Info().Str("actor", actor).Str("change", what).Int64("id", id).Msg("locality changed")
}

func requiredName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("%s is required", field)
	}
	if len(name) > maxNameLength {
		return "", apperr.Validation("%s must be at most %d characters", field, maxNameLength)
	}
	return name, nil
}

// optionalName trims name and turns blank into nil.
func optionalName(field string, name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*name)
	if v == "" {
		return nil, nil
	}
	if len(v) > maxNameLength {
		return nil, apperr.Validation("%s must be at most %d characters", field, maxNameLength)
	}
	return &v, nil
}

// referenced turns a missing referenced row into ErrInvalidReference.
func referenced(what string, id int64, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%s %d does not exist: %w", what, id, apperr.ErrInvalidReference)
	}
	return err
}

// -- Organization --

func (s *Service) CreateOrganization(ctx context.Context, o *Organization) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if o.Name, err = requiredName("organization_name", o.Name); err != nil {
		return err
	}
	if err := s.orgs.Create(ctx, o); err != nil {
		return err
	}
	s.changed(actor, "create organization", o.ID)
	return nil
}

func (s *Service) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

func (s *Service) UpdateOrganization(ctx context.Context, o *Organization) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if o.Name, err = requiredName("organization_name", o.Name); err != nil {
		return err
	}
	if err := s.orgs.Update(ctx, o); err != nil {
		return err
	}
	s.changed(actor, "update organization", o.ID)
	return nil
}

func (s *Service) DeleteOrganization(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.orgs.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(actor, "delete organization", id)
	return nil
}

func (s *Service) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	return s.orgs.List(ctx, limit, offset)
}

// -- Department --

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if d.Name, err = optionalName("department_name", d.Name); err != nil {
		return err
	}
	if err := s.depts.Create(ctx, d); err != nil {
		return err
	}
	s.changed(actor, "create department", d.ID)
	return nil
}

func (s *Service) GetDepartment(ctx context.Context, id int64) (*Department, error) {
	return s.depts.GetByID(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, d *Department) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if d.Name, err = optionalName("department_name", d.Name); err != nil {
		return err
	}
	if err := s.depts.Update(ctx, d); err != nil {
		return err
	}
	s.changed(actor, "update department", d.ID)
	return nil
}

func (s *Service) DeleteDepartment(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.depts.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(actor, "delete department", id)
	return nil
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.depts.List(ctx, limit, offset)
}

// -- Room --

func (s *Service) CreateRoom(ctx context.Context, r *Room) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if r.Name, err = requiredName("room_name", r.Name); err != nil {
		return err
	}
	if err := s.rooms.Create(ctx, r); err != nil {
		return err
	}
	s.changed(actor, "create room", r.ID)
	return nil
}

func (s *Service) GetRoom(ctx context.Context, id int64) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) UpdateRoom(ctx context.Context, r *Room) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if r.Name, err = requiredName("room_name", r.Name); err != nil {
		return err
	}
	if err := s.rooms.Update(ctx, r); err != nil {
		return err
	}
	s.changed(actor, "update room", r.ID)
	return nil
}

func (s *Service) DeleteRoom(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.rooms.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(actor, "delete room", id)
	return nil
}

func (s *Service) ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return s.rooms.List(ctx, limit, offset)
}

// -- Local --

func (s *Service) validateLocal(ctx context.Context, l *Local) error {
	if l.OrganizationID <= 0 {
		return apperr.Validation("organization_id is required")
	}
	if _, err := s.orgs.GetByID(ctx, l.OrganizationID); err != nil {
		return referenced("organization", l.OrganizationID, err)
	}
	if l.DepartmentID != nil {
		if _, err := s.depts.GetByID(ctx, *l.DepartmentID); err != nil {
			return referenced("department", *l.DepartmentID, err)
		}
	}
	if l.RoomID != nil {
		if _, err := s.rooms.GetByID(ctx, *l.RoomID); err != nil {
			return referenced("room", *l.RoomID, err)
		}
	}
	return nil
}

func (s *Service) CreateLocal(ctx context.Context, l *Local) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.validateLocal(ctx, l); err != nil {
		return err
	}
	if err := s.locals.Create(ctx, l); err != nil {
		return err
	}
	s.changed(actor, "create local", l.ID)
	return nil
}

func (s *Service) GetLocal(ctx context.Context, id int64) (*LocalView, error) {
	return s.locals.GetByID(ctx, id)
}

func (s *Service) UpdateLocal(ctx context.Context, l *Local) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.validateLocal(ctx, l); err != nil {
		return err
	}
	if err := s.locals.Update(ctx, l); err != nil {
		return err
	}
	s.changed(actor, "update local", l.ID)
	return nil
}

func (s *Service) DeleteLocal(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.locals.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(actor, "delete local", id)
	return nil
}

func (s *Service) ListLocals(ctx context.Context, organizationID int64, limit, offset int) ([]*LocalView, int, error) {
	return s.locals.List(ctx, organizationID, limit, offset)
}

// -- Assignment --

func (s *Service) validateAssignment(ctx context.Context, a *Assignment) error {
	a.UserID = strings.TrimSpace(a.UserID)
	if a.UserID == "" {
		return apperr.Validation("user_id is required")
	}
	if a.LocalsID <= 0 {
		return apperr.Validation("locals_id is required")
	}
	if _, err := s.locals.GetByID(ctx, a.LocalsID); err != nil {
		return referenced("local", a.LocalsID, err)
	}
	// Fast path only; the unique constraint decides when writers race.
	existing, err := s.assignments.Find(ctx, a.UserID, a.LocalsID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != a.ID:
		return fmt.Errorf("user %s is already assigned to local %d: %w", a.UserID, a.LocalsID, apperr.ErrConflict)
	}
	return nil
}

// CreateAssignment assigns a user to a local. A second assignment of the
// same pair is a conflict.
func (s *Service) CreateAssignment(ctx context.Context, a *Assignment) error {
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
	s.changed(actor, "create assignment", a.ID)
	return nil
}

func (s *Service) GetAssignment(ctx context.Context, id int64) (*Assignment, error) {
	return s.assignments.GetByID(ctx, id)
}

func (s *Service) UpdateAssignment(ctx context.Context, a *Assignment) error {
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
	s.changed(actor, "update assignment", a.ID)
	return nil
}

func (s *Service) DeleteAssignment(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.assignments.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(actor, "delete assignment", id)
	return nil
}

func (s *Service) ListAssignments(ctx context.Context, localsID int64, limit, offset int) ([]*Assignment, int, error) {
	return s.assignments.List(ctx, localsID, limit, offset)
}

// ListAssignmentsForUser returns the user's assignments with their locals
// joined in.
func (s *Service) ListAssignmentsForUser(ctx context.Context, userID string) ([]*AssignmentView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("user_id is required")
	}
	list, err := s.assignments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*AssignmentView{}
	}
	return list, nil
}
