package locality

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type queryable = db.Querier

// -- Organization Repository --

type orgRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrganizationRepo(pool *pgxpool.Pool) OrganizationRepository {
	return &orgRepoPG{pool: pool}
}

func (r *orgRepoPG) conn(ctx context.Context) queryable {
	return db.Conn(ctx, r.pool)
}

func (r *orgRepoPG) Create(ctx context.Context, o *Organization) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO organizations (organization_name) VALUES ($1) RETURNING id`, o.Name,
	).Scan(&o.ID)
	return db.MapWriteError("organization", err)
}

func (r *orgRepoPG) GetByID(ctx context.Context, id int64) (*Organization, error) {
	var o Organization
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, organization_name FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name)
	if err != nil {
		return nil, db.MapReadError("organization", id, err)
	}
	return &o, nil
}

func (r *orgRepoPG) Update(ctx context.Context, o *Organization) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE organizations SET organization_name = $2 WHERE id = $1`, o.ID, o.Name)
	if err != nil {
		return db.MapWriteError("organization", err)
	}
	return db.ExpectOne(tag, "organization", o.ID)
}

func (r *orgRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("organization", id, err)
	}
	return db.ExpectOne(tag, "organization", id)
}

func (r *orgRepoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, organization_name FROM organizations
		ORDER BY organization_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, 0, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, &o)
	}
	return out, total, rows.Err()
}

// -- Department Repository --

type deptRepoPG struct {
	pool *pgxpool.Pool
}

func NewDepartmentRepo(pool *pgxpool.Pool) DepartmentRepository {
	return &deptRepoPG{pool: pool}
}

func (r *deptRepoPG) conn(ctx context.Context) queryable {
	return db.Conn(ctx, r.pool)
}

func (r *deptRepoPG) Create(ctx context.Context, d *Department) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO departments (department_name) VALUES ($1) RETURNING id`, d.Name,
	).Scan(&d.ID)
	return db.MapWriteError("department", err)
}

func (r *deptRepoPG) GetByID(ctx context.Context, id int64) (*Department, error) {
	var d Department
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, department_name FROM departments WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name)
	if err != nil {
		return nil, db.MapReadError("department", id, err)
	}
	return &d, nil
}

func (r *deptRepoPG) Update(ctx context.Context, d *Department) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE departments SET department_name = $2 WHERE id = $1`, d.ID, d.Name)
	if err != nil {
		return db.MapWriteError("department", err)
	}
	return db.ExpectOne(tag, "department", d.ID)
}

func (r *deptRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("department", id, err)
	}
	return db.ExpectOne(tag, "department", id)
}

func (r *deptRepoPG) List(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM departments`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count departments: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, department_name FROM departments
		ORDER BY department_name NULLS LAST, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []*Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, 0, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, &d)
	}
	return out, total, rows.Err()
}

// -- Room Repository --

type roomRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) RoomRepository {
	return &roomRepoPG{pool: pool}
}

func (r *roomRepoPG) conn(ctx context.Context) queryable {
	return db.Conn(ctx, r.pool)
}

func (r *roomRepoPG) Create(ctx context.Context, rm *Room) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO rooms (room_name) VALUES ($1) RETURNING id`, rm.Name,
	).Scan(&rm.ID)
	return db.MapWriteError("room", err)
}

func (r *roomRepoPG) GetByID(ctx context.Context, id int64) (*Room, error) {
	var rm Room
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, room_name FROM rooms WHERE id = $1`, id,
	).Scan(&rm.ID, &rm.Name)
	if err != nil {
		return nil, db.MapReadError("room", id, err)
	}
	return &rm, nil
}

func (r *roomRepoPG) Update(ctx context.Context, rm *Room) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE rooms SET room_name = $2 WHERE id = $1`, rm.ID, rm.Name)
	if err != nil {
		return db.MapWriteError("room", err)
	}
	return db.ExpectOne(tag, "room", rm.ID)
}

func (r *roomRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("room", id, err)
	}
	return db.ExpectOne(tag, "room", id)
}

func (r *roomRepoPG) List(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, room_name FROM rooms
		ORDER BY room_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []*Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.Name); err != nil {
			return nil, 0, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, &rm)
	}
	return out, total, rows.Err()
}

// -- Local Repository --

type localRepoPG struct {
	pool *pgxpool.Pool
}

func NewLocalRepo(pool *pgxpool.Pool) LocalRepository {
	return &localRepoPG{pool: pool}
}

func (r *localRepoPG) conn(ctx context.Context) queryable {
	return db.Conn(ctx, r.pool)
}

// localViewColumns and localViewJoin select a LocalView in the column order
// scanLocalView expects. The join aliases are l, o, d and rm.
const localViewColumns = `
	l.id, l.organization_id, l.department_id, l.room_id,
	o.organization_name, d.department_name, rm.room_name`

const localViewJoin = `
	JOIN organizations o ON o.id = l.organization_id
	LEFT JOIN departments d ON d.id = l.department_id
	LEFT JOIN rooms rm ON rm.id = l.room_id`

const localViewOrder = `o.organization_name, d.department_name NULLS LAST, rm.room_name NULLS LAST`

// scanLocalView reads localViewColumns, preceded by any extra destinations.
func scanLocalView(row pgx.Row, v *LocalView, extra ...interface{}) error {
	var deptName, roomName *string
	dest := append(extra,
		&v.ID, &v.OrganizationID, &v.DepartmentID, &v.RoomID,
		&v.Organization.Name, &deptName, &roomName,
	)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	v.Organization.ID = v.OrganizationID
	if v.DepartmentID != nil {
		v.Department = &Department{ID: *v.DepartmentID, Name: deptName}
	}
	if v.RoomID != nil && roomName != nil {
		v.Room = &Room{ID: *v.RoomID, Name: *roomName}
	}
	return nil
}

func (r *localRepoPG) Create(ctx context.Context, l *Local) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO locals (organization_id, department_id, room_id)
		VALUES ($1, $2, $3) RETURNING id`,
		l.OrganizationID, l.DepartmentID, l.RoomID,
	).Scan(&l.ID)
	return db.MapWriteError("local", err)
}

func (r *localRepoPG) GetByID(ctx context.Context, id int64) (*LocalView, error) {
	var v LocalView
	err := scanLocalView(r.conn(ctx).QueryRow(ctx,
		`SELECT `+localViewColumns+` FROM locals l`+localViewJoin+` WHERE l.id = $1`, id), &v)
	if err != nil {
		return nil, db.MapReadError("local", id, err)
	}
	return &v, nil
}

func (r *localRepoPG) Update(ctx context.Context, l *Local) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE locals SET organization_id = $2, department_id = $3, room_id = $4
		WHERE id = $1`,
		l.ID, l.OrganizationID, l.DepartmentID, l.RoomID)
	if err != nil {
		return db.MapWriteError("local", err)
	}
	return db.ExpectOne(tag, "local", l.ID)
}

func (r *localRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM locals WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("local", id, err)
	}
	return db.ExpectOne(tag, "local", id)
}

func (r *localRepoPG) List(ctx context.Context, organizationID int64, limit, offset int) ([]*LocalView, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM locals WHERE ($1::bigint = 0 OR organization_id = $1)`, organizationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count locals: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+localViewColumns+` FROM locals l`+localViewJoin+`
		WHERE ($1::bigint = 0 OR l.organization_id = $1)
		ORDER BY `+localViewOrder+`, l.id
		LIMIT $2 OFFSET $3`, organizationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list locals: %w", err)
	}
	defer rows.Close()

	var out []*LocalView
	for rows.Next() {
		var v LocalView
		if err := scanLocalView(rows, &v); err != nil {
			return nil, 0, fmt.Errorf("scan local: %w", err)
		}
		out = append(out, &v)
	}
	return out, total, rows.Err()
}

// -- Assignment Repository --

type assignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) queryable {
	return db.Conn(ctx, r.pool)
}

const assignmentColumns = `id, user_id, locals_id, created_at`

func (r *assignmentRepoPG) scan(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.UserID, &a.LocalsID, &a.CreatedAt)
	return &a, err
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO local_assignments (user_id, locals_id) VALUES ($1, $2)
		RETURNING id, created_at`,
		a.UserID, a.LocalsID,
	).Scan(&a.ID, &a.CreatedAt)
	return db.MapWriteError("assignment", err)
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id int64) (*Assignment, error) {
	a, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM local_assignments WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapReadError("assignment", id, err)
	}
	return a, nil
}

func (r *assignmentRepoPG) Find(ctx context.Context, userID string, localsID int64) (*Assignment, error) {
	a, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM local_assignments WHERE user_id = $1 AND locals_id = $2`,
		userID, localsID))
	if err != nil {
		return nil, db.MapReadError("assignment", fmt.Sprintf("(%s, %d)", userID, localsID), err)
	}
	return a, nil
}

func (r *assignmentRepoPG) Update(ctx context.Context, a *Assignment) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE local_assignments SET user_id = $2, locals_id = $3 WHERE id = $1`,
		a.ID, a.UserID, a.LocalsID)
	if err != nil {
		return db.MapWriteError("assignment", err)
	}
	return db.ExpectOne(tag, "assignment", a.ID)
}

func (r *assignmentRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM local_assignments WHERE id = $1`, id)
	if err != nil {
		return db.MapDeleteError("assignment", id, err)
	}
	return db.ExpectOne(tag, "assignment", id)
}

func (r *assignmentRepoPG) ListByUser(ctx context.Context, userID string) ([]*AssignmentView, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT la.id, la.user_id, la.locals_id, la.created_at,`+localViewColumns+`
		FROM local_assignments la
		JOIN locals l ON l.id = la.locals_id`+localViewJoin+`
		WHERE la.user_id = $1
		ORDER BY `+localViewOrder+`, la.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*AssignmentView
	for rows.Next() {
		var v AssignmentView
		if err := scanLocalView(rows, &v.Local, &v.ID, &v.UserID, &v.LocalsID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (r *assignmentRepoPG) List(ctx context.Context, localsID int64, limit, offset int) ([]*Assignment, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM local_assignments WHERE ($1::bigint = 0 OR locals_id = $1)`, localsID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+assignmentColumns+` FROM local_assignments
		WHERE ($1::bigint = 0 OR locals_id = $1)
		ORDER BY user_id, id LIMIT $2 OFFSET $3`, localsID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
