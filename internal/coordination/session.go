package coordination

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Session is an ephemeral lock holder. Every lock a Store grants through a
// Session is tracked so Close can release all of them at once, standing in
// for a ZooKeeper client session's automatic ephemeral-node cleanup on
// disconnect (spec.md §4.8) — there is no equivalent "the process died"
// signal available in-process, so callers must Close explicitly (typically
// via defer immediately after NewSession).
type Session struct {
	ID string

	mu    sync.Mutex
	store Store
	held  []heldLock
}

type lockKind int

const (
	lockExecute lockKind = iota
	lockAdd
)

type heldLock struct {
	kind  lockKind
	app   string
	jobID string
}

func newSession(store Store) *Session {
	return &Session{ID: uuid.NewString(), store: store}
}

func (s *Session) track(kind lockKind, app, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = append(s.held, heldLock{kind: kind, app: app, jobID: jobID})
}

func (s *Session) untrack(kind lockKind, app, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.held {
		if h.kind == kind && h.app == app && h.jobID == jobID {
			s.held = append(s.held[:i], s.held[i+1:]...)
			return
		}
	}
}

// ReleaseAddLocks releases only the add-locks this session holds, leaving
// any execute-lock untouched — used by ensure_parents_completed's caller to
// release parent add-locks without prematurely dropping the child's own
// execute-lock (spec.md §4.6 step 5).
func (s *Session) ReleaseAddLocks(ctx context.Context) error {
	s.mu.Lock()
	var toRelease []heldLock
	for _, h := range s.held {
		if h.kind == lockAdd {
			toRelease = append(toRelease, h)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, h := range toRelease {
		if err := s.store.ReleaseAddLock(ctx, h.app, h.jobID, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases every lock this session holds.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	held := make([]heldLock, len(s.held))
	copy(held, s.held)
	s.held = nil
	s.mu.Unlock()

	var firstErr error
	for _, h := range held {
		var err error
		switch h.kind {
		case lockExecute:
			err = s.store.ReleaseExecuteLock(ctx, h.app, h.jobID, s)
		case lockAdd:
			err = s.store.ReleaseAddLock(ctx, h.app, h.jobID, s)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
