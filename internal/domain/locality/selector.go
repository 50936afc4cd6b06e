package locality

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/session"
)

// SelectionStore keeps the locals id a user picked for the session carried
// in ctx.
type SelectionStore interface {
	Get(ctx context.Context, userID string) (localsID int64, ok bool, err error)
	Set(ctx context.Context, userID string, localsID int64) error
	Clear(ctx context.Context, userID string) error
}

// Selector resolves which of a user's assignments is active for the current
// session.
type Selector struct {
	assignments AssignmentRepository
	selections  SelectionStore
	logger      zerolog.Logger
}

func NewSelector(assignments AssignmentRepository, selections SelectionStore, logger zerolog.Logger) *Selector {
	return &Selector{assignments: assignments, selections: selections, logger: logger}
}

func (s *Selector) load(ctx context.Context, userID string) ([]*AssignmentView, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthenticated
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

func find(list []*AssignmentView, localsID int64) *AssignmentView {
	for _, a := range list {
		if a.LocalsID == localsID {
			return a
		}
	}
	return nil
}

// ResolveCurrentContext returns the user's active assignment for this
// session. With no valid selection, a single assignment is selected
// automatically; several assignments require the user to choose.
func (s *Selector) ResolveCurrentContext(ctx context.Context, userID string) (*CurrentContext, error) {
	list, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	stored, ok, err := s.selections.Get(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("reading locality selection failed")
		ok = false
	}
	if ok {
		if cur := find(list, stored); cur != nil {
			return &CurrentContext{State: StateSelected, Current: cur, Assignments: list}, nil
		}
		// The assignment was removed since it was selected.
		if err := s.selections.Clear(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("clearing stale locality selection failed")
		}
	}

	switch len(list) {
	case 0:
		return &CurrentContext{State: StateUnassigned, Assignments: list}, nil
	case 1:
		cur := list[0]
		if err := s.selections.Set(ctx, userID, cur.LocalsID); err != nil && !errors.Is(err, session.ErrNoSession) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("storing automatic locality selection failed")
		}
		return &CurrentContext{State: StateSelected, Current: cur, Assignments: list}, nil
	default:
		return &CurrentContext{State: StateSelectionRequired, Assignments: list}, nil
	}
}

// SetCurrentContext makes localsID the user's active locality for this
// session. It must be one of the user's own assignments; otherwise
// ErrForbidden is returned and the stored selection is left alone.
func (s *Selector) SetCurrentContext(ctx context.Context, userID string, localsID int64) (*CurrentContext, error) {
	list, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cur := find(list, localsID)
	if cur == nil {
		return nil, fmt.Errorf("local %d is not assigned to you: %w", localsID, apperr.ErrForbidden)
	}
	if err := s.selections.Set(ctx, userID, localsID); err != nil {
		return nil, err
	}
	return &CurrentContext{State: StateSelected, Current: cur, Assignments: list}, nil
}

// ClearCurrentContext forgets the user's selection for this session.
func (s *Selector) ClearCurrentContext(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.ErrUnauthenticated
	}
	return s.selections.Clear(ctx, userID)
}
