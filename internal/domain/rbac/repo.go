package rbac

import "context"

type RoleRepository interface {
	Create(ctx context.Context, r *Role) error
	GetByID(ctx context.Context, id int64) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Role, int, error)
}

type ComponentRepository interface {
	Create(ctx context.Context, c *Component) error
	GetByID(ctx context.Context, id int64) (*Component, error)
	GetByName(ctx context.Context, name string) (*Component, error)
	Update(ctx context.Context, c *Component) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Component, int, error)
}

type OperationRepository interface {
	Create(ctx context.Context, o *Operation) error
	GetByID(ctx context.Context, id int64) (*Operation, error)
	GetByName(ctx context.Context, name string) (*Operation, error)
	Update(ctx context.Context, o *Operation) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Operation, int, error)
}

type PermissionRepository interface {
	Create(ctx context.Context, p *RolePermission) error
	GetByID(ctx context.Context, id int64) (*RolePermission, error)
	// Find returns the grant with the given triple, or ErrNotFound.
	Find(ctx context.Context, roleID, componentID, operationID int64) (*RolePermission, error)
	Update(ctx context.Context, p *RolePermission) error
	Delete(ctx context.Context, id int64) error
	// List returns grants, restricted to one role when roleID is non-zero.
	List(ctx context.Context, roleID int64, limit, offset int) ([]*RolePermissionView, int, error)
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *RoleAssignment) error
	GetByID(ctx context.Context, id int64) (*RoleAssignment, error)
	// Find returns the assignment of roleID to userID, or ErrNotFound.
	Find(ctx context.Context, userID string, roleID int64) (*RoleAssignment, error)
	Update(ctx context.Context, a *RoleAssignment) error
	Delete(ctx context.Context, id int64) error
	ListByUser(ctx context.Context, userID string) ([]*RoleAssignmentView, error)
}

// GrantReader answers the resolver's questions straight from storage.
type GrantReader interface {
	// UserGrants returns every (component, operation) pair reachable from
	// the user's roles. Duplicates are allowed.
	UserGrants(ctx context.Context, userID string) ([]Check, error)
	HasPermission(ctx context.Context, userID, component, operation string) (bool, error)
	// HasAnyPermission answers with one query; checks is never empty.
	HasAnyPermission(ctx context.Context, userID string, checks []Check) (bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	UserRoles(ctx context.Context, userID string) ([]string, error)
}
