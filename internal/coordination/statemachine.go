package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/isabella232/stolos/internal/dag"
	"github.com/isabella232/stolos/internal/stolerr"
)

// addLockAcquireTimeout bounds how long MaybeAddSubtask/ReaddSubtask retry
// a contended add-lock before giving up — these operations are logically
// "under the add-lock" (spec.md §4.6) but the lock acquisition primitive
// itself is non-blocking try-once (§5), so callers loop with backoff.
const addLockAcquireTimeout = 2 * time.Second

// MaybeAddSubtask idempotently enqueues (app, jid) (spec.md §4.6). Two
// successive calls leave exactly one queue entry and state=pending (P1).
func MaybeAddSubtask(ctx context.Context, store Store, app, jobID string, priority int) error {
	return withAddLock(ctx, store, app, jobID, func() error {
		return maybeAddSubtaskBody(ctx, store, app, jobID, priority)
	})
}

func maybeAddSubtaskBody(ctx context.Context, store Store, app, jobID string, priority int) error {
	st, err := store.EnsureState(ctx, app, jobID)
	if err != nil {
		return err
	}
	if st.InQueue {
		return nil
	}
	if err := store.Enqueue(ctx, app, jobID, priority); err != nil {
		return err
	}
	return store.SetInQueue(ctx, app, jobID, true)
}

// satisfiesDependency reports whether status lets dependents proceed:
// completed jobs obviously do, and a job skipped by valid_if_or is
// "completed for dependency purposes" (spec.md P10, §3 state glossary).
func satisfiesDependency(status Status) bool {
	return status == StatusCompleted || status == StatusSkipped
}

// EnqueueSpecificJob queues (app, jid) for immediate execution on behalf of
// a caller naming a specific job_id directly (spec.md §6), failing with
// JobAlreadyQueued if the pair is already pending and queued. Unlike
// MaybeAddSubtask's intentional idempotent silent no-op (used by
// bubble-up/bubble-down, where a second arrival is routine), a direct
// single-job_id invocation is expected to report the conflict to its
// caller, mirroring ReaddSubtask's own already-queued guard.
func EnqueueSpecificJob(ctx context.Context, store Store, app, jobID string, priority int) error {
	return withAddLock(ctx, store, app, jobID, func() error {
		st, err := store.EnsureState(ctx, app, jobID)
		if err != nil {
			return err
		}
		if st.InQueue && st.Status == StatusPending {
			return stolerr.JobAlreadyQueued(app, jobID)
		}
		return maybeAddSubtaskBody(ctx, store, app, jobID, priority)
	})
}

// ReaddSubtask resets (app, jid) to pending and re-queues it, cascading the
// invalidation to every completed or skipped descendant reachable through
// dag.GetChildren's transitive closure (spec.md §4.6, property P7). It
// fails with JobAlreadyQueued if the pair is already pending and queued.
//
// The cascade is not synchronized against in-flight executors of
// descendants (spec.md §5, §9 open question): a descendant that is
// currently executing is left untouched here — its own executor will
// detect the parent's regression on its next parent-gate check.
func ReaddSubtask(ctx context.Context, store Store, g *dag.Graph, app, jobID string) error {
	return withAddLock(ctx, store, app, jobID, func() error {
		st, err := store.EnsureState(ctx, app, jobID)
		if err != nil {
			return err
		}
		if st.InQueue && st.Status == StatusPending {
			return stolerr.JobAlreadyQueued(app, jobID)
		}

		if err := store.ResetForReadd(ctx, app, jobID); err != nil {
			return err
		}
		if err := store.Enqueue(ctx, app, jobID, 0); err != nil {
			return err
		}
		if err := store.SetInQueue(ctx, app, jobID, true); err != nil {
			return err
		}
		return cascadeReadd(ctx, store, g, app, jobID)
	})
}

func cascadeReadd(ctx context.Context, store Store, g *dag.Graph, app, jobID string) error {
	visited := map[string]bool{}
	pending := []dag.AppJob{{App: app, JobID: jobID}}

	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]

		children, err := dag.GetChildren(g, cur.App, cur.JobID)
		if err != nil {
			return err
		}
		for _, c := range children {
			key := c.App + "\x00" + c.JobID
			if visited[key] {
				continue
			}
			visited[key] = true

			st, ok, err := store.GetState(ctx, c.App, c.JobID)
			if err != nil {
				return err
			}
			if !ok || !satisfiesDependency(st.Status) {
				continue
			}

			if err := store.RemoveFromQueue(ctx, c.App, c.JobID); err != nil {
				return err
			}
			if err := store.ResetForReadd(ctx, c.App, c.JobID); err != nil {
				return err
			}
			if err := store.SetInQueue(ctx, c.App, c.JobID, false); err != nil {
				return err
			}
			pending = append(pending, dag.AppJob{App: c.App, JobID: c.JobID})
		}
	}
	return nil
}

// EnsureParentsCompleted implements the parent gate (spec.md §4.6): it
// enumerates (app, jid)'s parents and, for every one not yet completed,
// either bubbles it up (non-blocking add-lock + MaybeAddSubtask, keeping
// the lock in sess for the caller to release after dequeuing itself) or,
// if that parent is currently executing, signals that the child must not
// be removed from its queue (consumeQueue=false) so it will be re-checked
// later rather than lost.
func EnsureParentsCompleted(ctx context.Context, store Store, g *dag.Graph, app, jobID string, sess *Session) (allCompleted bool, consumeQueue bool, err error) {
	parents, err := dag.GetParents(g, app, jobID, nil, nil)
	if err != nil {
		return false, false, err
	}
	if len(parents) == 0 {
		return true, false, nil
	}

	allCompleted = true
	consumeQueue = true

	for _, p := range parents {
		st, ok, err := store.GetState(ctx, p.App, p.JobID)
		if err != nil {
			return false, false, err
		}
		if ok && satisfiesDependency(st.Status) {
			continue
		}
		allCompleted = false

		executing, err := store.IsExecuteLocked(ctx, p.App, p.JobID)
		if err != nil {
			return false, false, err
		}
		if executing {
			consumeQueue = false
			continue
		}

		acquired, err := store.TryAcquireAddLock(ctx, p.App, p.JobID, sess)
		if err != nil {
			return false, false, err
		}
		if !acquired {
			// Another worker's ensure_parents_completed already owns
			// scheduling this parent; nothing more to do here.
			continue
		}
		if err := maybeAddSubtaskBody(ctx, store, p.App, p.JobID, 0); err != nil {
			return false, false, err
		}
	}

	if allCompleted {
		return true, false, nil
	}
	return false, consumeQueue, nil
}

// MaybeQueueChildren propagates a parent's completion to its children
// (spec.md §4.6 `_maybe_queue_children`, property P5): every child all of
// whose parents are now completed is enqueued.
func MaybeQueueChildren(ctx context.Context, store Store, g *dag.Graph, parentApp, parentJobID string) error {
	children, err := dag.GetChildren(g, parentApp, parentJobID)
	if err != nil {
		return err
	}

	for _, c := range children {
		parents, err := dag.GetParents(g, c.App, c.JobID, nil, nil)
		if err != nil {
			return err
		}

		allDone := true
		for _, p := range parents {
			st, ok, err := store.GetState(ctx, p.App, p.JobID)
			if err != nil {
				return err
			}
			if !ok || !satisfiesDependency(st.Status) {
				allDone = false
				break
			}
		}

		if allDone {
			if err := MaybeAddSubtask(ctx, store, c.App, c.JobID, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func withAddLock(ctx context.Context, store Store, app, jobID string, fn func() error) error {
	sess := store.NewSession()
	defer sess.Close(ctx)

	deadline := time.Now().Add(addLockAcquireTimeout)
	for {
		ok, err := store.TryAcquireAddLock(ctx, app, jobID, sess)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return stolerr.StoreUnavailable(fmt.Sprintf("timed out acquiring add-lock for %s/%s", app, jobID), nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	defer store.ReleaseAddLock(ctx, app, jobID, sess)
	return fn()
}
