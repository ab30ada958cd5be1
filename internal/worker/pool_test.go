package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/isabella232/stolos/internal/common"
	"github.com/isabella232/stolos/internal/coordination"
	"github.com/isabella232/stolos/internal/dag"
	"github.com/isabella232/stolos/internal/executor"
	"github.com/isabella232/stolos/internal/plugin"
	storagebadger "github.com/isabella232/stolos/internal/storage/badger"
	"github.com/isabella232/stolos/internal/taskconfig"
	"github.com/isabella232/stolos/internal/validate"
)

const poolTestDoc = `{
  "a": {"job_type": "bash", "job_id": "{date}"}
}`

func newTestGate(t *testing.T, doc string) (*executor.Gate, coordination.Store) {
	t.Helper()

	dir, err := os.MkdirTemp("", "stolos-worker-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storagebadger.NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := coordination.NewBadgerStore(db, arbor.NewLogger())

	view, err := taskconfig.Decode([]byte(doc))
	require.NoError(t, err)
	g, err := dag.Build(view)
	require.NoError(t, err)

	plugins := plugin.NewRegistry()
	plugins.Register("bash", plugin.NewBashExecutor())

	return &executor.Gate{
		Store:     store,
		Graph:     g,
		Config:    view,
		Validator: validate.NewRegistry(),
		Plugins:   plugins,
		Logger:    arbor.NewLogger(),
	}, store
}

func TestPoolProcessesQueuedJobAndStops(t *testing.T) {
	gate, store := newTestGate(t, poolTestDoc)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, "a", "2026-07-30", 0))

	p := &Pool{
		Gate:         gate,
		Apps:         []string{"a"},
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		DequeueWait:  10 * time.Millisecond,
		Payload:      func(app string) map[string]any { return map[string]any{"command": "true"} },
		Logger:       arbor.NewLogger(),
	}
	p.Start(ctx)

	require.Eventually(t, func() bool {
		st, ok, err := store.GetState(ctx, "a", "2026-07-30")
		return err == nil && ok && st.Status == coordination.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	p.Stop()
}

func TestPoolSurvivesPanickingExecutor(t *testing.T) {
	gate, store := newTestGate(t, poolTestDoc)
	ctx := context.Background()

	panicker := plugin.NewRegistry()
	panicker.Register("bash", panicExecutor{})
	gate.Plugins = panicker

	require.NoError(t, store.Enqueue(ctx, "a", "2026-07-30", 0))

	p := &Pool{
		Gate:         gate,
		Apps:         []string{"a"},
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		DequeueWait:  5 * time.Millisecond,
		Logger:       arbor.NewLogger(),
	}
	p.Start(ctx)
	defer p.Stop()

	// A panicking executor must not take the worker goroutine's process down;
	// give it time to have panicked and confirm the test itself is still alive.
	time.Sleep(50 * time.Millisecond)
}

type panicExecutor struct{}

func (panicExecutor) Execute(ctx context.Context, job plugin.Job) error {
	panic("boom")
}
