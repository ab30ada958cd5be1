package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badgerv4 "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/isabella232/stolos/internal/stolerr"
	storagebadger "github.com/isabella232/stolos/internal/storage/badger"
)

// lockTTL bounds how long an ephemeral lock key survives without an
// explicit Session.Close, as a backstop against a crashed holder — the
// scoped-acquisition discipline design note §9 asks for ("guaranteed
// release on all exit paths, including panics/aborts").
const lockTTL = 1 * time.Hour

// BadgerStore is the Store implementation backing Stolos's coordination
// state on BadgerDB (spec.md §4.8 `[EXPANSION]`). Per-(app,jid) state
// documents go through badgerhold, generalizing teacher
// internal/storage/badger/kv_storage.go's Get/Upsert pattern. The queue and
// lock namespaces are raw *badger.DB prefix scans instead: badgerhold's
// Find/Where models document queries, not a hierarchical znode-style
// keyspace, so "children of a path" (queue entries, lock holders) drops to
// the raw driver obtained via BadgerDB.Raw().
type BadgerStore struct {
	db     *storagebadger.BadgerDB
	logger arbor.ILogger
	seq    uint64
}

// NewBadgerStore wraps an already-open BadgerDB connection.
func NewBadgerStore(db *storagebadger.BadgerDB, logger arbor.ILogger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger}
}

func stateKey(app, jobID string) string { return app + "\x00" + jobID }

func (s *BadgerStore) EnsureState(ctx context.Context, app, jobID string) (*State, error) {
	var st State
	err := s.db.Store().Get(stateKey(app, jobID), &st)
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, stolerr.StoreUnavailable("failed to read state", err)
	}

	st = State{App: app, JobID: jobID, Status: StatusPending, RetryCount: 0}
	if err := s.db.Store().Insert(stateKey(app, jobID), &st); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			// Lost a race with a concurrent EnsureState; re-read.
			if err := s.db.Store().Get(stateKey(app, jobID), &st); err != nil {
				return nil, stolerr.StoreUnavailable("failed to read state after race", err)
			}
			return &st, nil
		}
		return nil, stolerr.StoreUnavailable("failed to create state", err)
	}
	return &st, nil
}

func (s *BadgerStore) GetState(ctx context.Context, app, jobID string) (*State, bool, error) {
	var st State
	err := s.db.Store().Get(stateKey(app, jobID), &st)
	if err == nil {
		return &st, true, nil
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, false, nil
	}
	return nil, false, stolerr.StoreUnavailable("failed to read state", err)
}

func (s *BadgerStore) SetStatus(ctx context.Context, app, jobID string, status Status) error {
	st, err := s.EnsureState(ctx, app, jobID)
	if err != nil {
		return err
	}
	st.Status = status
	return s.upsertState(st)
}

func (s *BadgerStore) SetInQueue(ctx context.Context, app, jobID string, inQueue bool) error {
	st, err := s.EnsureState(ctx, app, jobID)
	if err != nil {
		return err
	}
	st.InQueue = inQueue
	return s.upsertState(st)
}

func (s *BadgerStore) ResetForReadd(ctx context.Context, app, jobID string) error {
	st, err := s.EnsureState(ctx, app, jobID)
	if err != nil {
		return err
	}
	st.Status = StatusPending
	st.RetryCount = 0
	return s.upsertState(st)
}

func (s *BadgerStore) IncrementRetryCount(ctx context.Context, app, jobID string) (int, error) {
	st, err := s.EnsureState(ctx, app, jobID)
	if err != nil {
		return 0, err
	}
	st.RetryCount++
	if err := s.upsertState(st); err != nil {
		return 0, err
	}
	return st.RetryCount, nil
}

func (s *BadgerStore) upsertState(st *State) error {
	if err := s.db.Store().Upsert(stateKey(st.App, st.JobID), st); err != nil {
		return stolerr.StoreUnavailable("failed to write state", err)
	}
	return nil
}

// --- Queue: raw key namespace "q/<app>/<priority>/<seq>" -> job id bytes.
// Lexicographic key order gives priority-then-FIFO ordering directly.

func queuePrefix(app string) []byte {
	return []byte(fmt.Sprintf("q/%s/", app))
}

func queueKey(app string, priority int, seq uint64) []byte {
	// priority is shifted so negative priorities still sort correctly
	// ahead of positive ones in the zero-padded decimal encoding.
	return []byte(fmt.Sprintf("q/%s/%020d/%020d", app, int64(priority)+1<<62, seq))
}

func (s *BadgerStore) nextSeq() uint64 {
	return atomic.AddUint64(&s.seq, 1)
}

func (s *BadgerStore) Enqueue(ctx context.Context, app, jobID string, priority int) error {
	key := queueKey(app, priority, s.nextSeq())
	err := s.db.Raw().Update(func(txn *badgerv4.Txn) error {
		return txn.Set(key, []byte(jobID))
	})
	if err != nil {
		return stolerr.StoreUnavailable("failed to enqueue", err)
	}
	return nil
}

func (s *BadgerStore) Dequeue(ctx context.Context, app string, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 20 * time.Millisecond

	for {
		jobID, ok, err := s.tryDequeueOnce(app)
		if err != nil {
			return "", false, err
		}
		if ok {
			return jobID, true, nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *BadgerStore) tryDequeueOnce(app string) (string, bool, error) {
	var jobID string
	var found bool

	err := s.db.Raw().Update(func(txn *badgerv4.Txn) error {
		opts := badgerv4.DefaultIteratorOptions
		opts.Prefix = queuePrefix(app)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(opts.Prefix)
		if !it.ValidForPrefix(opts.Prefix) {
			return nil
		}
		item := it.Item()
		key := append([]byte{}, item.Key()...)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		jobID = string(val)
		found = true
		return nil
	})
	if err != nil {
		return "", false, stolerr.StoreUnavailable("failed to dequeue", err)
	}
	return jobID, found, nil
}

func (s *BadgerStore) RemoveFromQueue(ctx context.Context, app, jobID string) error {
	err := s.db.Raw().Update(func(txn *badgerv4.Txn) error {
		opts := badgerv4.DefaultIteratorOptions
		opts.Prefix = queuePrefix(app)
		it := txn.NewIterator(opts)
		defer it.Close()

		var toDelete [][]byte
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(val) == jobID {
				toDelete = append(toDelete, append([]byte{}, item.Key()...))
			}
		}
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stolerr.StoreUnavailable("failed to remove queue entry", err)
	}
	return nil
}

func (s *BadgerStore) QueueDepth(ctx context.Context, app string) (int, error) {
	count := 0
	err := s.db.Raw().View(func(txn *badgerv4.Txn) error {
		opts := badgerv4.DefaultIteratorOptions
		opts.Prefix = queuePrefix(app)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, stolerr.StoreUnavailable("failed to count queue", err)
	}
	return count, nil
}

// --- Locks: raw key namespaces "lock/execute/<app>/<jid>" and
// "lock/add/<app>/<jid>" -> session id bytes, with a TTL backstop.

func executeLockKey(app, jobID string) []byte {
	return []byte(fmt.Sprintf("lock/execute/%s/%s", app, jobID))
}

func addLockKey(app, jobID string) []byte {
	return []byte(fmt.Sprintf("lock/add/%s/%s", app, jobID))
}

func (s *BadgerStore) NewSession() *Session {
	return newSession(s)
}

func (s *BadgerStore) tryAcquire(key []byte, sess *Session) (bool, error) {
	var acquired bool
	err := s.db.Raw().Update(func(txn *badgerv4.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // already held
		}
		if !errors.Is(err, badgerv4.ErrKeyNotFound) {
			return err
		}
		entry := badgerv4.NewEntry(key, []byte(sess.ID)).WithTTL(lockTTL)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, stolerr.StoreUnavailable("failed to acquire lock", err)
	}
	return acquired, nil
}

func (s *BadgerStore) release(key []byte, sess *Session) error {
	err := s.db.Raw().Update(func(txn *badgerv4.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerv4.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(val) != sess.ID {
			return nil // held by someone else; not ours to release
		}
		return txn.Delete(key)
	})
	if err != nil {
		return stolerr.StoreUnavailable("failed to release lock", err)
	}
	return nil
}

func (s *BadgerStore) TryAcquireExecuteLock(ctx context.Context, app, jobID string, sess *Session) (bool, error) {
	ok, err := s.tryAcquire(executeLockKey(app, jobID), sess)
	if err != nil || !ok {
		return ok, err
	}
	sess.track(lockExecute, app, jobID)
	return true, nil
}

func (s *BadgerStore) ReleaseExecuteLock(ctx context.Context, app, jobID string, sess *Session) error {
	if err := s.release(executeLockKey(app, jobID), sess); err != nil {
		return err
	}
	sess.untrack(lockExecute, app, jobID)
	return nil
}

func (s *BadgerStore) IsExecuteLocked(ctx context.Context, app, jobID string) (bool, error) {
	var locked bool
	err := s.db.Raw().View(func(txn *badgerv4.Txn) error {
		_, err := txn.Get(executeLockKey(app, jobID))
		if errors.Is(err, badgerv4.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		locked = true
		return nil
	})
	if err != nil {
		return false, stolerr.StoreUnavailable("failed to check execute lock", err)
	}
	return locked, nil
}

func (s *BadgerStore) TryAcquireAddLock(ctx context.Context, app, jobID string, sess *Session) (bool, error) {
	ok, err := s.tryAcquire(addLockKey(app, jobID), sess)
	if err != nil || !ok {
		return ok, err
	}
	sess.track(lockAdd, app, jobID)
	return true, nil
}

func (s *BadgerStore) ReleaseAddLock(ctx context.Context, app, jobID string, sess *Session) error {
	if err := s.release(addLockKey(app, jobID), sess); err != nil {
		return err
	}
	sess.untrack(lockAdd, app, jobID)
	return nil
}

var _ Store = (*BadgerStore)(nil)
