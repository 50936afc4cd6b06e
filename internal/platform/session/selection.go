package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/kv"
)

// ErrNoSession is returned when a selection is written outside a session.
var ErrNoSession = fmt.Errorf("%w: no session", apperr.ErrValidation)

// Selections stores the locality a user picked for a session, keyed by
// (session id, user id).
type Selections struct {
	store kv.Store
	ttl   time.Duration
}

func NewSelections(store kv.Store, ttl time.Duration) *Selections {
	return &Selections{store: store, ttl: ttl}
}

func selectionKey(sessionID, userID string) string {
	return "session:" + sessionID + ":user:" + userID + ":locals"
}

// Get returns the stored locals id. ok is false when nothing is stored or the
// request has no session.
func (s *Selections) Get(ctx context.Context, userID string) (localsID int64, ok bool, err error) {
	sess, found := FromContext(ctx)
	if !found {
		return 0, false, nil
	}
	v, err := s.store.Get(ctx, selectionKey(sess.ID, userID))
	if errors.Is(err, kv.ErrMiss) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read selection: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

func (s *Selections) Set(ctx context.Context, userID string, localsID int64) error {
	sess, found := FromContext(ctx)
	if !found {
		return ErrNoSession
	}
	if err := s.store.Set(ctx, selectionKey(sess.ID, userID), strconv.FormatInt(localsID, 10), s.ttl); err != nil {
		return fmt.Errorf("store selection: %w", err)
	}
	return nil
}

func (s *Selections) Clear(ctx context.Context, userID string) error {
	sess, found := FromContext(ctx)
	if !found {
		return nil
	}
	if err := s.store.Delete(ctx, selectionKey(sess.ID, userID)); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}
