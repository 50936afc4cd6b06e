package locality

import "time"

// Organization is the root of the locality tree.
type Organization struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"organization_name" json:"organization_name"`
}

// Department is independent of any organization; the pairing happens in Local.
type Department struct {
	ID   int64   `db:"id" json:"id"`
	Name *string `db:"department_name" json:"department_name"`
}

type Room struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"room_name" json:"room_name"`
}

// Local is one concrete (organization, department?, room?) place a user can
// be assigned to. Identical triples may exist more than once.
type Local struct {
	ID             int64  `db:"id" json:"id"`
	OrganizationID int64  `db:"organization_id" json:"organization_id"`
	DepartmentID   *int64 `db:"department_id" json:"department_id"`
	RoomID         *int64 `db:"room_id" json:"room_id"`
}

// LocalView is a Local with its parts joined in. Department and Room are nil
// when the Local has none.
type LocalView struct {
	Local
	Organization Organization `json:"organization"`
	Department   *Department  `json:"department"`
	Room         *Room        `json:"room"`
}

// Assignment places a user at a Local.
type Assignment struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	LocalsID  int64     `db:"locals_id" json:"locals_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type AssignmentView struct {
	Assignment
	Local LocalView `json:"local"`
}

// State tells a caller what to do with a CurrentContext.
type State string

const (
	// StateUnassigned means the user has no assignments; an administrator
	// must create one.
	StateUnassigned State = "unassigned"
	// StateSelected means Current holds the active assignment.
	StateSelected State = "selected"
	// StateSelectionRequired means the user has several assignments and has
	// not picked one for this session.
	StateSelectionRequired State = "selection_required"
)

// CurrentContext is the active assignment of a user for one session together
// with everything the user could switch to.
type CurrentContext struct {
	State       State             `json:"state"`
	Current     *AssignmentView   `json:"current"`
	Assignments []*AssignmentView `json:"assignments"`
}

// LocalsID returns the active locals id, or 0 when nothing is selected.
func (c *CurrentContext) LocalsID() int64 {
	if c == nil || c.Current == nil {
		return 0
	}
	return c.Current.LocalsID
}
