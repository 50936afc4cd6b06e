package locality

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var errDown = errors.New("connection refused")

// memStore is an in-memory locality database with the schema's unique and
// restrict rules.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	orgs        map[int64]*Organization
	depts       map[int64]*Department
	rooms       map[int64]*Room
	locals      map[int64]*Local
	assignments map[int64]*Assignment

	fail  error
	calls int
}

func newMemStore() *memStore {
	return &memStore{
		orgs:        make(map[int64]*Organization),
		depts:       make(map[int64]*Department),
		rooms:       make(map[int64]*Room),
		locals:      make(map[int64]*Local),
		assignments: make(map[int64]*Assignment),
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

func (m *memStore) repos() (OrganizationRepository, DepartmentRepository, RoomRepository, LocalRepository, AssignmentRepository) {
	return &memOrgs{m}, &memDepts{m}, &memRooms{m}, &memLocals{m}, &memAssignments{m}
}

func (m *memStore) view(l *Local) LocalView {
	v := LocalView{Local: *l, Organization: *m.orgs[l.OrganizationID]}
	if l.DepartmentID != nil {
		d := *m.depts[*l.DepartmentID]
		v.Department = &d
	}
	if l.RoomID != nil {
		r := *m.rooms[*l.RoomID]
		v.Room = &r
	}
	return v
}

// -- organizations --

type memOrgs struct{ m *memStore }

func (r *memOrgs) Create(_ context.Context, o *Organization) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	o.ID = r.m.id()
	c := *o
	r.m.orgs[o.ID] = &c
	return nil
}

func (r *memOrgs) GetByID(_ context.Context, id int64) (*Organization, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	if v, ok := r.m.orgs[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("organization", id)
}

func (r *memOrgs) Update(_ context.Context, o *Organization) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.orgs[o.ID]; !ok {
		return apperr.NotFound("organization", o.ID)
	}
	c := *o
	r.m.orgs[o.ID] = &c
	return nil
}

func (r *memOrgs) Delete(_ context.Context, id int64) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.orgs[id]; !ok {
		return apperr.NotFound("organization", id)
	}
	for _, l := range r.m.locals {
		if l.OrganizationID == id {
			return apperr.ErrInUse
		}
	}
	delete(r.m.orgs, id)
	return nil
}

func (r *memOrgs) List(_ context.Context, limit, offset int) ([]*Organization, int, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Organization
	for _, v := range r.m.orgs {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

// -- departments --

type memDepts struct{ m *memStore }

func (r *memDepts) Create(_ context.Context, d *Department) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	d.ID = r.m.id()
	c := *d
	r.m.depts[d.ID] = &c
	return nil
}

func (r *memDepts) GetByID(_ context.Context, id int64) (*Department, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	if v, ok := r.m.depts[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("department", id)
}

func (r *memDepts) Update(_ context.Context, d *Department) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.depts[d.ID]; !ok {
		return apperr.NotFound("department", d.ID)
	}
	c := *d
	r.m.depts[d.ID] = &c
	return nil
}

func (r *memDepts) Delete(_ context.Context, id int64) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.depts[id]; !ok {
		return apperr.NotFound("department", id)
	}
	for _, l := range r.m.locals {
		if l.DepartmentID != nil && *l.DepartmentID == id {
			return apperr.ErrInUse
		}
	}
	delete(r.m.depts, id)
	return nil
}

func (r *memDepts) List(_ context.Context, limit, offset int) ([]*Department, int, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Department
	for _, v := range r.m.depts {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), len(out), nil
}

// -- rooms --

type memRooms struct{ m *memStore }

func (r *memRooms) Create(_ context.Context, rm *Room) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	rm.ID = r.m.id()
	c := *rm
	r.m.rooms[rm.ID] = &c
	return nil
}

func (r *memRooms) GetByID(_ context.Context, id int64) (*Room, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	if v, ok := r.m.rooms[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("room", id)
}

func (r *memRooms) Update(_ context.Context, rm *Room) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.rooms[rm.ID]; !ok {
		return apperr.NotFound("room", rm.ID)
	}
	c := *rm
	r.m.rooms[rm.ID] = &c
	return nil
}

func (r *memRooms) Delete(_ context.Context, id int64) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.rooms[id]; !ok {
		return apperr.NotFound("room", id)
	}
	for _, l := range r.m.locals {
		if l.RoomID != nil && *l.RoomID == id {
			return apperr.ErrInUse
		}
	}
	delete(r.m.rooms, id)
	return nil
}

func (r *memRooms) List(_ context.Context, limit, offset int) ([]*Room, int, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Room
	for _, v := range r.m.rooms {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

// -- locals --

type memLocals struct{ m *memStore }

func (r *memLocals) Create(_ context.Context, l *Local) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.orgs[l.OrganizationID]; !ok {
		return apperr.ErrInvalidReference
	}
	l.ID = r.m.id()
	c := *l
	r.m.locals[l.ID] = &c
	return nil
}

func (r *memLocals) GetByID(_ context.Context, id int64) (*LocalView, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	if v, ok := r.m.locals[id]; ok {
		view := r.m.view(v)
		return &view, nil
	}
	return nil, apperr.NotFound("local", id)
}

func (r *memLocals) Update(_ context.Context, l *Local) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.locals[l.ID]; !ok {
		return apperr.NotFound("local", l.ID)
	}
	c := *l
	r.m.locals[l.ID] = &c
	return nil
}

func (r *memLocals) Delete(_ context.Context, id int64) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.locals[id]; !ok {
		return apperr.NotFound("local", id)
	}
	for _, a := range r.m.assignments {
		if a.LocalsID == id {
			return apperr.ErrInUse
		}
	}
	delete(r.m.locals, id)
	return nil
}

func (r *memLocals) List(_ context.Context, organizationID int64, limit, offset int) ([]*LocalView, int, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*LocalView
	for _, l := range r.m.locals {
		if organizationID != 0 && l.OrganizationID != organizationID {
			continue
		}
		v := r.m.view(l)
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), len(out), nil
}

// -- assignments --

type memAssignments struct{ m *memStore }

func (r *memAssignments) Create(_ context.Context, a *Assignment) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	for _, o := range r.m.assignments {
		if o.UserID == a.UserID && o.LocalsID == a.LocalsID {
			return apperr.Conflict("assignment")
		}
	}
	a.ID = r.m.id()
	a.CreatedAt = time.Now().UTC()
	c := *a
	r.m.assignments[a.ID] = &c
	return nil
}

func (r *memAssignments) GetByID(_ context.Context, id int64) (*Assignment, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	if v, ok := r.m.assignments[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, apperr.NotFound("assignment", id)
}

func (r *memAssignments) Find(_ context.Context, userID string, localsID int64) (*Assignment, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	for _, v := range r.m.assignments {
		if v.UserID == userID && v.LocalsID == localsID {
			c := *v
			return &c, nil
		}
	}
	return nil, apperr.NotFound("assignment", userID)
}

func (r *memAssignments) Update(_ context.Context, a *Assignment) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.assignments[a.ID]; !ok {
		return apperr.NotFound("assignment", a.ID)
	}
	c := *a
	r.m.assignments[a.ID] = &c
	return nil
}

func (r *memAssignments) Delete(_ context.Context, id int64) error {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return err
	}
	if _, ok := r.m.assignments[id]; !ok {
		return apperr.NotFound("assignment", id)
	}
	delete(r.m.assignments, id)
	return nil
}

func (r *memAssignments) ListByUser(_ context.Context, userID string) ([]*AssignmentView, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, err
	}
	var out []*AssignmentView
	for _, a := range r.m.assignments {
		if a.UserID == userID {
			out = append(out, &AssignmentView{Assignment: *a, Local: r.m.view(r.m.locals[a.LocalsID])})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAssignments) List(_ context.Context, localsID int64, limit, offset int) ([]*Assignment, int, error) {
	defer r.m.mu.Unlock()
	if err := r.m.enter(); err != nil {
		return nil, 0, err
	}
	var out []*Assignment
	for _, a := range r.m.assignments {
		if localsID == 0 || a.LocalsID == localsID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), len(out), nil
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
