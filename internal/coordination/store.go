// Package coordination implements the persistent per-(app, job_id) state
// machine (spec.md §4.6) on top of a linearizable key-value store, and the
// locking-queue primitive (§1, §6) that sequences worker access to it.
package coordination

import (
	"context"
	"time"
)

// Status is a (app, job_id) pair's lifecycle state (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// State is the persistent record for one (app, job_id) pair.
type State struct {
	App        string
	JobID      string
	Status     Status
	RetryCount int
	InQueue    bool
}

// Store is the coordination-store abstraction the core consumes (spec.md
// §1): create/get/set of per-(app,jid) state, a FIFO-with-priority locking
// queue, and ephemeral exclusive locks. It is modeled after a ZooKeeper-like
// store rather than tied to one; BadgerStore is the concrete binding used in
// this repository (spec.md §4.8 `[EXPANSION]`).
type Store interface {
	// EnsureState returns the current state for (app, jid), creating it in
	// StatusPending with RetryCount 0 if it does not already exist.
	EnsureState(ctx context.Context, app, jobID string) (*State, error)
	// GetState returns the current state, or ok=false if the pair has never
	// been touched by the state machine (spec.md §3 invariant).
	GetState(ctx context.Context, app, jobID string) (state *State, ok bool, err error)
	// SetStatus transitions (app, jid) to status.
	SetStatus(ctx context.Context, app, jobID string, status Status) error
	// SetInQueue records queue membership on the state record.
	SetInQueue(ctx context.Context, app, jobID string, inQueue bool) error
	// ResetForReadd atomically resets (app, jid) back to pending with
	// retry_count 0, clearing any completed/failed/skipped marker
	// (spec.md §4.6 readd_subtask).
	ResetForReadd(ctx context.Context, app, jobID string) error
	// IncrementRetryCount increments and returns the new retry_count.
	IncrementRetryCount(ctx context.Context, app, jobID string) (int, error)

	// Enqueue pushes jid onto app's FIFO-with-priority queue (lower
	// priority values are dequeued first).
	Enqueue(ctx context.Context, app, jobID string, priority int) error
	// Dequeue blocks up to timeout for an entry to become available,
	// removing and returning it. ok is false on timeout.
	Dequeue(ctx context.Context, app string, timeout time.Duration) (jobID string, ok bool, err error)
	// RemoveFromQueue removes every queued entry for (app, jid), if any.
	// Used when a dequeued entry is consumed without going through Dequeue
	// again (e.g. a stale entry invalidated by a cascade).
	RemoveFromQueue(ctx context.Context, app, jobID string) error
	// QueueDepth returns the number of entries currently queued for app,
	// for introspection and tests.
	QueueDepth(ctx context.Context, app string) (int, error)

	// NewSession returns a handle whose Close releases every ephemeral
	// lock acquired through it — the moral equivalent of a ZooKeeper
	// session's automatic ephemeral-node cleanup (spec.md §4.8).
	NewSession() *Session

	// TryAcquireExecuteLock attempts a non-blocking exclusive execute-lock
	// acquisition for (app, jid). ok is false if another session holds it.
	TryAcquireExecuteLock(ctx context.Context, app, jobID string, sess *Session) (ok bool, err error)
	// ReleaseExecuteLock releases sess's execute-lock on (app, jid), if
	// held. Safe to call even if the lock was never acquired.
	ReleaseExecuteLock(ctx context.Context, app, jobID string, sess *Session) error
	// IsExecuteLocked reports whether any session currently holds the
	// execute-lock for (app, jid) (used by ensure_parents_completed to
	// distinguish "pending" from "pending and executing").
	IsExecuteLocked(ctx context.Context, app, jobID string) (bool, error)

	// TryAcquireAddLock attempts a non-blocking exclusive add-lock
	// acquisition for (app, jid).
	TryAcquireAddLock(ctx context.Context, app, jobID string, sess *Session) (ok bool, err error)
	// ReleaseAddLock releases sess's add-lock on (app, jid), if held.
	ReleaseAddLock(ctx context.Context, app, jobID string, sess *Session) error
}
