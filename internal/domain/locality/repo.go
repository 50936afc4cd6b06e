package locality

import "context"

type OrganizationRepository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id int64) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id int64) (*Department, error)
	Update(ctx context.Context, d *Department) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Department, int, error)
}

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id int64) (*Room, error)
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Room, int, error)
}

type LocalRepository interface {
	Create(ctx context.Context, l *Local) error
	GetByID(ctx context.Context, id int64) (*LocalView, error)
	Update(ctx context.Context, l *Local) error
	Delete(ctx context.Context, id int64) error
	// List filters by organization when organizationID is non-zero.
	List(ctx context.Context, organizationID int64, limit, offset int) ([]*LocalView, int, error)
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id int64) (*Assignment, error)
	// Find returns the assignment of userID to localsID, or ErrNotFound.
	Find(ctx context.Context, userID string, localsID int64) (*Assignment, error)
	Update(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, id int64) error
	// ListByUser orders by organization, department and room name with
	// missing names last, then by id.
	ListByUser(ctx context.Context, userID string) ([]*AssignmentView, error)
	// List filters by local when localsID is non-zero.
	List(ctx context.Context, localsID int64, limit, offset int) ([]*Assignment, int, error)
}
