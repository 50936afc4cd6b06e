package rbac

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// memStore is an in-memory RBAC database. It enforces the same unique and
// restrict rules as the schema so service tests see the same errors.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	roles       map[int64]*Role
	components  map[int64]*Component
	operations  map[int64]*Operation
	permissions map[int64]*RolePermission
	assignments map[int64]*RoleAssignment

	// fail makes every call return this error when set.
	fail error
	// calls counts storage calls.
	calls int
}

func newMemStore() *memStore {
	return &memStore{
		roles:       make(map[int64]*Role),
		components:  make(map[int64]*Component),
		operations:  make(map[int64]*Operation),
		permissions: make(map[int64]*RolePermission),
		assignments: make(map[int64]*RoleAssignment),
	}
}

func (m *memStore) enter() error {
	m.mu.Lock()
	m.calls++
	return m.fail
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) repos() (RoleRepository, ComponentRepository, OperationRepository, PermissionRepository, AssignmentRepository) {
	return &memRoles{m}, &memComponents{m}, &memOperations{m}, &memPermissions{m}, &memAssignments{m}
}

var errDown = errors.New("connection refused")

// -- roles --

type memRoles struct{ m *memStore }

func (r *memRoles) Create(_ context.Context, role *Role) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	for _, o := range m.roles {
		if o.Name == role.Name {
			return apperr.Conflict("role")
		}
	}
	role.ID = m.id()
	c := *role
	m.roles[role.ID] = &c
	return nil
}

func (r *memRoles) GetByID(_ context.Context, id int64) (*Role, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	if v, ok := m.roles[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("role", id)
}

func (r *memRoles) GetByName(_ context.Context, name string) (*Role, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, v := range m.roles {
		if v.Name == name {
			c := *v
			return &c, nil
		}
	}
	return nil, apperr.NotFound("role", name)
}

func (r *memRoles) Update(_ context.Context, role *Role) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.roles[role.ID]; !ok {
		return apperr.NotFound("role", role.ID)
	}
	for _, o := range m.roles {
		if o.Name == role.Name && o.ID != role.ID {
			return apperr.Conflict("role")
		}
	}
	c := *role
	m.roles[role.ID] = &c
	return nil
}

func (r *memRoles) Delete(_ context.Context, id int64) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.roles[id]; !ok {
		return apperr.NotFound("role", id)
	}
	for _, p := range m.permissions {
		if p.RoleID == id {
			return apperr.ErrInUse
		}
	}
	for _, a := range m.assignments {
		if a.RoleID == id {
			return apperr.ErrInUse
		}
	}
	delete(m.roles, id)
	return nil
}

func (r *memRoles) List(_ context.Context, limit, offset int) ([]*Role, int, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Role
	for _, v := range m.roles {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

// -- components --

type memComponents struct{ m *memStore }

func (r *memComponents) Create(_ context.Context, comp *Component) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	for _, o := range m.components {
		if o.Name == comp.Name {
			return apperr.Conflict("component")
		}
	}
	comp.ID = m.id()
	c := *comp
	m.components[comp.ID] = &c
	return nil
}

func (r *memComponents) GetByID(_ context.Context, id int64) (*Component, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	if v, ok := m.components[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("component", id)
}

func (r *memComponents) GetByName(_ context.Context, name string) (*Component, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, v := range m.components {
		if v.Name == name {
			c := *v
			return &c, nil
		}
	}
	return nil, apperr.NotFound("component", name)
}

func (r *memComponents) Update(_ context.Context, comp *Component) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.components[comp.ID]; !ok {
		return apperr.NotFound("component", comp.ID)
	}
	c := *comp
	m.components[comp.ID] = &c
	return nil
}

func (r *memComponents) Delete(_ context.Context, id int64) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.components[id]; !ok {
		return apperr.NotFound("component", id)
	}
	for _, p := range m.permissions {
		if p.ComponentID == id {
			return apperr.ErrInUse
		}
	}
	delete(m.components, id)
	return nil
}

func (r *memComponents) List(_ context.Context, limit, offset int) ([]*Component, int, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Component
	for _, v := range m.components {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

// -- operations --

type memOperations struct{ m *memStore }

func (r *memOperations) Create(_ context.Context, op *Operation) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	for _, o := range m.operations {
		if o.Name == op.Name {
			return apperr.Conflict("operation")
		}
	}
	op.ID = m.id()
	c := *op
	m.operations[op.ID] = &c
	return nil
}

func (r *memOperations) GetByID(_ context.Context, id int64) (*Operation, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	if v, ok := m.operations[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("operation", id)
}

func (r *memOperations) GetByName(_ context.Context, name string) (*Operation, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, v := range m.operations {
		if v.Name == name {
			c := *v
			return &c, nil
		}
	}
	return nil, apperr.NotFound("operation", name)
}

func (r *memOperations) Update(_ context.Context, op *Operation) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.operations[op.ID]; !ok {
		return apperr.NotFound("operation", op.ID)
	}
	c := *op
	m.operations[op.ID] = &c
	return nil
}

func (r *memOperations) Delete(_ context.Context, id int64) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.operations[id]; !ok {
		return apperr.NotFound("operation", id)
	}
	for _, p := range m.permissions {
		if p.OperationID == id {
			return apperr.ErrInUse
		}
	}
	delete(m.operations, id)
	return nil
}

func (r *memOperations) List(_ context.Context, limit, offset int) ([]*Operation, int, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Operation
	for _, v := range m.operations {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

// -- role permissions --

type memPermissions struct{ m *memStore }

func (r *memPermissions) Create(_ context.Context, p *RolePermission) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	for _, o := range m.permissions {
		if o.RoleID == p.RoleID && o.ComponentID == p.ComponentID && o.OperationID == p.OperationID {
			return apperr.Conflict("role permission")
		}
	}
	p.ID = m.id()
	c := *p
	m.permissions[p.ID] = &c
	return nil
}

func (r *memPermissions) GetByID(_ context.Context, id int64) (*RolePermission, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	if v, ok := m.permissions[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("role permission", id)
}

func (r *memPermissions) Find(_ context.Context, roleID, componentID, operationID int64) (*RolePermission, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, v := range m.permissions {
		if v.RoleID == roleID && v.ComponentID == componentID && v.OperationID == operationID {
			c := *v
			return &c, nil
		}
	}
	return nil, apperr.NotFound("role permission", roleID)
}

func (r *memPermissions) Update(_ context.Context, p *RolePermission) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.permissions[p.ID]; !ok {
		return apperr.NotFound("role permission", p.ID)
	}
	c := *p
	m.permissions[p.ID] = &c
	return nil
}

func (r *memPermissions) Delete(_ context.Context, id int64) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.permissions[id]; !ok {
		return apperr.NotFound("role permission", id)
	}
	delete(m.permissions, id)
	return nil
}

func (r *memPermissions) List(_ context.Context, roleID int64, limit, offset int) ([]*RolePermissionView, int, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*RolePermissionView
	for _, p := range m.permissions {
		if roleID != 0 && p.RoleID != roleID {
			continue
		}
		out = append(out, &RolePermissionView{
			RolePermission: *p,
			Role:           m.roles[p.RoleID].Name,
			Component:      m.components[p.ComponentID].Name,
			Operation:      m.operations[p.OperationID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), len(out), nil
}

// -- role assignments --

type memAssignments struct{ m *memStore }

func (r *memAssignments) Create(_ context.Context, a *RoleAssignment) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	for _, o := range m.assignments {
		if o.UserID == a.UserID && o.RoleID == a.RoleID {
			return apperr.Conflict("role assignment")
		}
	}
	a.ID = m.id()
	a.CreatedAt = time.Now().UTC()
	c := *a
	m.assignments[a.ID] = &c
	return nil
}

func (r *memAssignments) GetByID(_ context.Context, id int64) (*RoleAssignment, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	if v, ok := m.assignments[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("role assignment", id)
}

func (r *memAssignments) Find(_ context.Context, userID string, roleID int64) (*RoleAssignment, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, v := range m.assignments {
		if v.UserID == userID && v.RoleID == roleID {
			c := *v
			return &c, nil
		}
	}
	return nil, apperr.NotFound("role assignment", userID)
}

func (r *memAssignments) Update(_ context.Context, a *RoleAssignment) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.assignments[a.ID]; !ok {
		return apperr.NotFound("role assignment", a.ID)
	}
	c := *a
	m.assignments[a.ID] = &c
	return nil
}

func (r *memAssignments) Delete(_ context.Context, id int64) error {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.assignments[id]; !ok {
		return apperr.NotFound("role assignment", id)
	}
	delete(m.assignments, id)
	return nil
}

func (r *memAssignments) ListByUser(_ context.Context, userID string) ([]*RoleAssignmentView, error) {
	m := r.m
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	var out []*RoleAssignmentView
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, &RoleAssignmentView{RoleAssignment: *a, Role: m.roles[a.RoleID].Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

// -- grant reader --

func (m *memStore) UserGrants(_ context.Context, userID string) ([]Check, error) {
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	return m.grantsLocked(userID), nil
}

func (m *memStore) grantsLocked(userID string) []Check {
	var out []Check
	for _, a := range m.assignments {
		if a.UserID != userID {
			continue
		}
		for _, p := range m.permissions {
			if p.RoleID == a.RoleID {
				out = append(out, Check{
					Component: m.components[p.ComponentID].Name,
					Operation: m.operations[p.OperationID].Name,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

func (m *memStore) HasPermission(_ context.Context, userID, component, operation string) (bool, error) {
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return false, err
	}
	for _, g := range m.grantsLocked(userID) {
		if g.Component == component && g.Operation == operation {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasAnyPermission(_ context.Context, userID string, checks []Check) (bool, error) {
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return false, err
	}
	for _, g := range m.grantsLocked(userID) {
		for _, c := range checks {
			if g == c {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) HasRole(_ context.Context, userID, role string) (bool, error) {
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return false, err
	}
	for _, a := range m.assignments {
		if a.UserID == userID && m.roles[a.RoleID].Name == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UserRoles(_ context.Context, userID string) ([]string, error) {
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	roles := []string{}
	for _, a := range m.assignments {
		if a.UserID == userID {
			roles = append(roles, m.roles[a.RoleID].Name)
		}
	}
	sort.Strings(roles)
	return roles, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
