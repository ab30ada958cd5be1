package coordination

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/isabella232/stolos/internal/common"
	"github.com/isabella232/stolos/internal/dag"
	storagebadger "github.com/isabella232/stolos/internal/storage/badger"
	"github.com/isabella232/stolos/internal/taskconfig"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "stolos-coord-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storagebadger.NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewBadgerStore(db, arbor.NewLogger())
}

func TestMaybeAddSubtaskIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, MaybeAddSubtask(ctx, store, "a", "j1", 0))
	require.NoError(t, MaybeAddSubtask(ctx, store, "a", "j1", 0))

	depth, err := store.QueueDepth(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	st, ok, err := store.GetState(ctx, "a", "j1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusPending, st.Status)
}

func TestPriorityFIFO(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, MaybeAddSubtask(ctx, store, "a", "j1", 10))
	require.NoError(t, MaybeAddSubtask(ctx, store, "a", "j2", 20))

	first, ok, err := store.Dequeue(ctx, "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "j1", first)

	second, ok, err := store.Dequeue(ctx, "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "j2", second)
}

func TestDequeueTimesOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Dequeue(ctx, "empty", 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecuteLockIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s1 := store.NewSession()
	s2 := store.NewSession()

	ok, err := store.TryAcquireExecuteLock(ctx, "a", "j1", s1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TryAcquireExecuteLock(ctx, "a", "j1", s2)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s1.Close(ctx))

	ok, err = store.TryAcquireExecuteLock(ctx, "a", "j1", s2)
	require.NoError(t, err)
	require.True(t, ok)
}

func mustGraph(t *testing.T, doc string) *dag.Graph {
	t.Helper()
	view, err := taskconfig.Decode([]byte(doc))
	require.NoError(t, err)
	g, err := dag.Build(view)
	require.NoError(t, err)
	return g
}

const abDoc = `{
  "a": {"job_type": "bash", "job_id": "{date}"},
  "b": {
    "job_type": "bash",
    "job_id": "{date}",
    "depends_on": {"app_name": ["a"]}
  }
}`

// First step of scenario 3 from spec.md §8 (Pull): after add(B,J1), B's
// parent gate reports its parent incomplete and queues A.
func TestEnsureParentsCompletedBubblesUpParent(t *testing.T) {
	store := newTestStore(t)
	g := mustGraph(t, abDoc)
	ctx := context.Background()

	require.NoError(t, MaybeAddSubtask(ctx, store, "b", "2024-01-01", 0))

	sess := store.NewSession()
	defer sess.Close(ctx)

	allDone, consume, err := EnsureParentsCompleted(ctx, store, g, "b", "2024-01-01", sess)
	require.NoError(t, err)
	require.False(t, allDone)
	require.True(t, consume)

	depth, err := store.QueueDepth(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, depth)
}

func TestEnsureParentsCompletedLeavesChildQueuedWhenParentExecuting(t *testing.T) {
	store := newTestStore(t)
	g := mustGraph(t, abDoc)
	ctx := context.Background()

	require.NoError(t, MaybeAddSubtask(ctx, store, "a", "2024-01-01", 0))
	parentSess := store.NewSession()
	defer parentSess.Close(ctx)
	ok, err := store.TryAcquireExecuteLock(ctx, "a", "2024-01-01", parentSess)
	require.NoError(t, err)
	require.True(t, ok)

	childSess := store.NewSession()
	defer childSess.Close(ctx)
	allDone, consume, err := EnsureParentsCompleted(ctx, store, g, "b", "2024-01-01", childSess)
	require.NoError(t, err)
	require.False(t, allDone)
	require.False(t, consume, "child must not be dequeued while its parent is executing")
}

func TestMaybeQueueChildrenPropagatesOnCompletion(t *testing.T) {
	store := newTestStore(t)
	g := mustGraph(t, abDoc)
	ctx := context.Background()

	require.NoError(t, store.SetStatus(ctx, "a", "2024-01-01", StatusCompleted))
	require.NoError(t, MaybeQueueChildren(ctx, store, g, "a", "2024-01-01"))

	depth, err := store.QueueDepth(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 1, depth)
}

func TestReaddSubtaskFailsWhenAlreadyQueued(t *testing.T) {
	store := newTestStore(t)
	g := mustGraph(t, abDoc)
	ctx := context.Background()

	require.NoError(t, MaybeAddSubtask(ctx, store, "a", "2024-01-01", 0))
	err := ReaddSubtask(ctx, store, g, "a", "2024-01-01")
	require.Error(t, err)
}

// Scenario 6 from spec.md §8: Readd cascade.
func TestReaddSubtaskCascadesToCompletedDescendants(t *testing.T) {
	store := newTestStore(t)
	g := mustGraph(t, abDoc)
	ctx := context.Background()

	require.NoError(t, store.SetStatus(ctx, "a", "2024-01-01", StatusCompleted))
	require.NoError(t, store.SetStatus(ctx, "b", "2024-01-01", StatusCompleted))

	require.NoError(t, ReaddSubtask(ctx, store, g, "a", "2024-01-01"))

	aState, _, err := store.GetState(ctx, "a", "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, StatusPending, aState.Status)

	bState, _, err := store.GetState(ctx, "b", "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, StatusPending, bState.Status)
}
