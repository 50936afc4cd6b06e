package rbac

import (
	"time"

	"github.com/clinic/clinic/internal/platform/auth"
)

type Role struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"role" json:"role"`
}

// Component is a protected functional area, e.g. "pharmacy".
type Component struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"component_name" json:"component_name"`
}

// Operation is a verb applicable to a component, e.g. "read".
type Operation struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"operations" json:"operations"`
}

// RolePermission grants a role one operation on one component.
type RolePermission struct {
	ID          int64 `db:"id" json:"id"`
	RoleID      int64 `db:"role_id" json:"role_id"`
	ComponentID int64 `db:"component_id" json:"component_id"`
	OperationID int64 `db:"operation_id" json:"operation_id"`
}

// RolePermissionView is a RolePermission with the referenced names joined in.
type RolePermissionView struct {
	RolePermission
	Role      string `json:"role"`
	Component string `json:"component_name"`
	Operation string `json:"operations"`
}

type RoleAssignment struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	RoleID    int64     `db:"role_id" json:"role_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RoleAssignmentView struct {
	RoleAssignment
	Role string `json:"role"`
}

// Check is a (component, operation) pair asked of the resolver.
type Check = auth.Grant

// Permissions maps a component name to the operations the user holds on it.
type Permissions map[string][]string
