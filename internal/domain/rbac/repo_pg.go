package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// nameTable implements the storage shared by roles, components and
// operations: an id and a unique name column.
type nameTable struct {
	pool   *pgxpool.Pool
	table  string
	column string
	entity string
}

func (t nameTable) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, t.pool)
}

func (t nameTable) create(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1) RETURNING id`, t.table, t.column), name,
	).Scan(&id)
	return id, db.MapWriteError(t.entity, err)
}

func (t nameTable) getBy(ctx context.Context, field string, arg interface{}) (int64, string, error) {
	var id int64
	var name string
	err := t.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT id, %s FROM %s WHERE %s = $1`, t.column, t.table, field), arg,
	).Scan(&id, &name)
	return id, name, db.MapReadError(t.entity, arg, err)
}

func (t nameTable) update(ctx context.Context, id int64, name string) error {
	tag, err := t.conn(ctx).Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE id = $1`, t.table, t.column), id, name)
	if err != nil {
		return db.MapWriteError(t.entity, err)
	}
	return db.ExpectOne(tag, t.entity, id)
}

func (t nameTable) delete(ctx context.Context, id int64) error {
	tag, err := t.conn(ctx).Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.table), id)
	if err != nil {
		return db.MapDeleteError(t.entity, id, err)
	}
	return db.ExpectOne(tag, t.entity, id)
}

func (t nameTable) list(ctx context.Context, limit, offset int, each func(id int64, name string)) (int, error) {
	var total int
	if err := t.conn(ctx).QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.table)).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.table, err)
	}

	rows, err := t.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT id, %s FROM %s ORDER BY %s, id LIMIT $1 OFFSET $2`, t.column, t.table, t.column),
		limit, offset)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return 0, fmt.Errorf("scan %s: %w", t.entity, err)
		}
		each(id, name)
	}
	return total, rows.Err()
}

// -- Role Repository --

type roleRepoPG struct{ t nameTable }

func NewRoleRepo(pool *pgxpool.Pool) RoleRepository {
	return &roleRepoPG{t: nameTable{pool: pool, table: "roles", column: "role", entity: "role"}}
}

func (r *roleRepoPG) Create(ctx context.Context, role *Role) (err error) {
	role.ID, err = r.t.create(ctx, role.Name)
	return err
}

func (r *roleRepoPG) GetByID(ctx context.Context, id int64) (*Role, error) {
	rid, name, err := r.t.getBy(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	return &Role{ID: rid, Name: name}, nil
}

func (r *roleRepoPG) GetByName(ctx context.Context, name string) (*Role, error) {
	rid, n, err := r.t.getBy(ctx, r.t.column, name)
	if err != nil {
		return nil, err
	}
	return &Role{ID: rid, Name: n}, nil
}

func (r *roleRepoPG) Update(ctx context.Context, role *Role) error {
	return r.t.update(ctx, role.ID, role.Name)
}

func (r *roleRepoPG) Delete(ctx context.Context, id int64) error {
	return r.t.delete(ctx, id)
}

func (r *roleRepoPG) List(ctx context.Context, limit, offset int) ([]*Role, int, error) {
	var out []*Role
	total, err := r.t.list(ctx, limit, offset, func(id int64, name string) {
		out = append(out, &Role{ID: id, Name: name})
	})
	return out, total, err
}

// -- Component Repository --

type componentRepoPG struct{ t nameTable }

func NewComponentRepo(pool *pgxpool.Pool) ComponentRepository {
	return &componentRepoPG{t: nameTable{pool: pool, table: "components", column: "component_name", entity: "component"}}
}

func (r *componentRepoPG) Create(ctx context.Context, c *Component) (err error) {
	c.ID, err = r.t.create(ctx, c.Name)
	return err
}

func (r *componentRepoPG) GetByID(ctx context.Context, id int64) (*Component, error) {
	cid, name, err := r.t.getBy(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	return &Component{ID: cid, Name: name}, nil
}

func (r *componentRepoPG) GetByName(ctx context.Context, name string) (*Component, error) {
	cid, n, err := r.t.getBy(ctx, r.t.column, name)
	if err != nil {
		return nil, err
	}
	return &Component{ID: cid, Name: n}, nil
}

func (r *componentRepoPG) Update(ctx context.Context, c *Component) error {
	return r.t.update(ctx, c.ID, c.Name)
}

func (r *componentRepoPG) Delete(ctx context.Context, id int64) error {
	return r.t.delete(ctx, id)
}

func (r *componentRepoPG) List(ctx context.Context, limit, offset int) ([]*Component, int, error) {
	var out []*Component
	total, err := r.t.list(ctx, limit, offset, func(id int64, name string) {
		out = append(out, &Component{ID: id, Name: name})
	})
	return out, total, err
}

// -- Operation Repository --

type operationRepoPG struct{ t nameTable }

func NewOperationRepo(pool *pgxpool.Pool) OperationRepository {
	return &operationRepoPG{t: nameTable{pool: pool, table: "role_operations", column: "operations", entity: "operation"}}
}

func (r *operationRepoPG) Create(ctx context.Context, o *Operation) (err error) {
	o.ID, err = r.t.create(ctx, o.Name)
	return err
}

func (r *operationRepoPG) GetByID(ctx context.Context, id int64) (*Operation, error) {
	oid, name, err := r.t.getBy(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	return &Operation{ID: oid, Name: name}, nil
}

func (r *operationRepoPG) GetByName(ctx context.Context, name string) (*Operation, error) {
	oid, n, err := r.t.getBy(ctx, r.t.column, name)
	if err != nil {
		return nil, err
	}
	return &Operation{ID: oid, Name: n}, nil
}

func (r *operationRepoPG) Update(ctx context.Context, o *Operation) error {
	return r.t.update(ctx, o.ID, o.Name)
}

func (r *operationRepoPG) Delete(ctx context.Context, id int64) error {
	return r.t.delete(ctx, id)
}

func (r *operationRepoPG) List(ctx context.Context, limit, offset int) ([]*Operation, int, error) {
	var out []*Operation
	total, err := r.t.list(ctx, limit, offset, func(id int64, name string) {
		out = append(out, &Operation{ID: id, Name: name})
	})
	return out, total, err
}

// -- Role Permission Repository --

type permissionRepoPG struct {
	pool *pgxpool.Pool
}

func NewPermissionRepo(pool *pgxpool.Pool) PermissionRepository {
	return &permissionRepoPG{pool: pool}
}

func (r *permissionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const permissionColumns = `id, role_id, component_id, operation_id`

func (r *permissionRepoPG) scan(row pgx.Row) (*RolePermission, error) {
	var p RolePermission
	err := row.Scan(&p.ID, &p.RoleID, &p.ComponentID, &p.OperationID)
	return &p, err
}

func (r *permissionRepoPG) Create(ctx context.Context, p *RolePermission) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO role_permissions (role_id, component_id, operation_id)
		VALUES ($1, $2, $3) RETURNING id`,
		p.RoleID, p.ComponentID, p.OperationID,
	).Scan(&p.ID)
	return db.MapWriteError("role permission", err)
}

func (r *permissionRepoPG) GetByID(ctx context.Context, id int64) (*RolePermission, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+permissionColumns+` FROM role_permissions WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapReadError("role permission", id, err)
	}
	return p, nil
}

func (r *permissionRepoPG) Find(ctx context.Context, roleID, componentID, operationID int64) (*RolePermission, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+permissionColumns+` FROM role_permissions
		WHERE role_id = $1 AND component_id = $2 AND operation_id = $3`,
		roleID, componentID, operationID))
	if err != nil {
		key := fmt.Sprintf("(%d, %d, %d)", roleID, componentID, operationID)
		return nil, db.MapReadError("role permission", key, err)
	}
	return p, nil
}

func (r *permissionRepoPG) Update(ctx context.Context, p *RolePermission) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE role_permissions SET role_id = $2, component_id = $3, operation_id = $4
		WHERE id = $1`,
		p.ID, p.RoleID, p.ComponentID, p.OperationID)
	if err != nil {
		return db.MapWriteError("role permission", err)
	}
	return db.ExpectOne(tag, "role permission", p.ID)
}

func (r *permissionRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM role_permissions WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("role permission", id, err)
	}
	return db.ExpectOne(tag, "role permission", id)
}

func (r *permissionRepoPG) List(ctx context.Context, roleID int64, limit, offset int) ([]*RolePermissionView, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE ($1::bigint = 0 OR role_id = $1)`, roleID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count role permissions: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT rp.id, rp.role_id, rp.component_id, rp.operation_id,
		       r.role, c.component_name, o.operations
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN components c ON c.id = rp.component_id
		JOIN role_operations o ON o.id = rp.operation_id
		WHERE ($1::bigint = 0 OR rp.role_id = $1)
		ORDER BY r.role, c.component_name, o.operations, rp.id
		LIMIT $2 OFFSET $3`, roleID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	var out []*RolePermissionView
	for rows.Next() {
		var v RolePermissionView
		if err := rows.Scan(&v.ID, &v.RoleID, &v.ComponentID, &v.OperationID,
			&v.Role, &v.Component, &v.Operation); err != nil {
			return nil, 0, fmt.Errorf("scan role permission: %w", err)
		}
		out = append(out, &v)
	}
	return out, total, rows.Err()
}

// -- Role Assignment Repository --

type assignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const assignmentColumns = `id, user_id, role_id, created_at`

func (r *assignmentRepoPG) scan(row pgx.Row) (*RoleAssignment, error) {
	var a RoleAssignment
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.CreatedAt)
	return &a, err
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *RoleAssignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO role_assignments (user_id, role_id) VALUES ($1, $2)
		RETURNING id, created_at`,
		a.UserID, a.RoleID,
	).Scan(&a.ID, &a.CreatedAt)
	return db.MapWriteError("role assignment", err)
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id int64) (*RoleAssignment, error) {
	a, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapReadError("role assignment", id, err)
	}
	return a, nil
}

func (r *assignmentRepoPG) Find(ctx context.Context, userID string, roleID int64) (*RoleAssignment, error) {
	a, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE user_id = $1 AND role_id = $2`,
		userID, roleID))
	if err != nil {
		return nil, db.MapReadError("role assignment", fmt.Sprintf("(%s, %d)", userID, roleID), err)
	}
	return a, nil
}

func (r *assignmentRepoPG) Update(ctx context.Context, a *RoleAssignment) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE role_assignments SET user_id = $2, role_id = $3 WHERE id = $1`,
		a.ID, a.UserID, a.RoleID)
	if err != nil {
		return db.MapWriteError("role assignment", err)
	}
	return db.ExpectOne(tag, "role assignment", a.ID)
}

func (r *assignmentRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM role_assignments WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("role assignment", id, err)
	}
	return db.ExpectOne(tag, "role assignment", id)
}

func (r *assignmentRepoPG) ListByUser(ctx context.Context, userID string) ([]*RoleAssignmentView, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT ra.id, ra.user_id, ra.role_id, ra.created_at, r.role
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.user_id = $1
		ORDER BY r.role, ra.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	defer rows.Close()

	var out []*RoleAssignmentView
	for rows.Next() {
		var v RoleAssignmentView
		if err := rows.Scan(&v.ID, &v.UserID, &v.RoleID, &v.CreatedAt, &v.Role); err != nil {
			return nil, fmt.Errorf("scan role assignment: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// -- Grant Reader --

type grantReaderPG struct {
	pool *pgxpool.Pool
}

func NewGrantReader(pool *pgxpool.Pool) GrantReader {
	return &grantReaderPG{pool: pool}
}

func (r *grantReaderPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const grantJoin = `
	FROM role_assignments ra
	JOIN role_permissions rp ON rp.role_id = ra.role_id
	JOIN components c ON c.id = rp.component_id
	JOIN role_operations o ON o.id = rp.operation_id
	WHERE ra.user_id = $1`

func (r *grantReaderPG) UserGrants(ctx context.Context, userID string) ([]Check, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT c.component_name, o.operations`+grantJoin+` ORDER BY c.component_name, o.operations`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user grants: %w", err)
	}
	defer rows.Close()

	var out []Check
	for rows.Next() {
		var g Check
		if err := rows.Scan(&g.Component, &g.Operation); err != nil {
			return nil, fmt.Errorf("scan user grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *grantReaderPG) HasPermission(ctx context.Context, userID, component, operation string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1`+grantJoin+` AND c.component_name = $2 AND o.operations = $3)`,
		userID, component, operation,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return ok, nil
}

func (r *grantReaderPG) HasAnyPermission(ctx context.Context, userID string, checks []Check) (bool, error) {
	components := make([]string, len(checks))
	operations := make([]string, len(checks))
	for i, c := range checks {
		components[i] = c.Component
		operations[i] = c.Operation
	}

	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1`+grantJoin+`
			AND (c.component_name, o.operations) IN (
				SELECT * FROM unnest($2::text[], $3::text[])
			))`,
		userID, components, operations,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check any permission: %w", err)
	}
	return ok, nil
}

func (r *grantReaderPG) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_assignments ra
			JOIN roles r ON r.id = ra.role_id
			WHERE ra.user_id = $1 AND r.role = $2
		)`, userID, role,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return ok, nil
}

func (r *grantReaderPG) UserRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.role FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.user_id = $1
		ORDER BY r.role`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
