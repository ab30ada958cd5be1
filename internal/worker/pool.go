// Package worker implements the worker pool that drives the Executor Gate
// continuously (spec.md §5 "The runner runs a worker pool that polls each
// app's queue and processes jobs through the Executor Gate"). This is the
// daemon counterpart to cmd/stolos's single-shot CLI invocation: the same
// Gate.Run sequencing, called in a loop by a fixed number of goroutines
// instead of once per process.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/isabella232/stolos/internal/common"
	"github.com/isabella232/stolos/internal/executor"
)

// PayloadSource supplies the opaque plugin payload for an app's next
// dequeued job (e.g. the configured bash command for that app). Returning
// nil is valid; not every job_type needs invocation parameters.
type PayloadSource func(app string) map[string]any

// Pool runs Concurrency goroutines, each round-robining over apps and
// driving executor.Gate.Run once per app per cycle. Grounded on teacher
// internal/worker/pool.go's WorkerPool: Start spawns numWorkers goroutines
// tracked by a sync.WaitGroup, Stop cancels a context and waits for them,
// each worker loops until that context is done. The job_type -> Executor
// registry and per-message receive/execute/delete sequence the teacher's
// pool does itself are delegated here to executor.Gate, since the gate
// already owns the dequeue/lock/validate/invoke/complete sequence
// (spec.md §4.6) end to end.
type Pool struct {
	Gate         *executor.Gate
	Apps         []string
	Concurrency  int
	PollInterval time.Duration
	DequeueWait  time.Duration
	Payload      PayloadSource
	Logger       arbor.ILogger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Start launches Concurrency worker goroutines, each recovered via
// common.SafeGoWithContext so a panicking executor plugin or a bug in one
// worker's loop iteration cannot take the rest of the pool down with it.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	n := p.Concurrency
	if n <= 0 {
		n = 1
	}

	if p.Logger != nil {
		p.Logger.Info().Int("workers", n).Int("apps", len(p.Apps)).Msg("starting worker pool")
	}

	for i := 0; i < n; i++ {
		workerID := i
		p.wg.Add(1)
		common.SafeGoWithContext(ctx, p.Logger, workerName(workerID), func() {
			defer p.wg.Done()
			p.loop(ctx, workerID)
		})
	}
}

// Stop cancels every worker's context and blocks until all of them have
// returned.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if p.Logger != nil {
		p.Logger.Info().Msg("worker pool stopped")
	}
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	if len(p.Apps) == 0 {
		return
	}

	dequeueWait := p.DequeueWait
	if dequeueWait <= 0 {
		dequeueWait = 200 * time.Millisecond
	}
	pollInterval := p.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	idx := workerID % len(p.Apps)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		app := p.Apps[idx]
		idx = (idx + 1) % len(p.Apps)

		var payload map[string]any
		if p.Payload != nil {
			payload = p.Payload(app)
		}

		res := p.Gate.Run(ctx, app, dequeueWait, payload)
		p.logResult(workerID, res)

		if res.Outcome == executor.OutcomeEmpty {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
		}
	}
}

func (p *Pool) logResult(workerID int, res executor.Result) {
	if p.Logger == nil || res.Outcome == executor.OutcomeEmpty {
		return
	}
	event := p.Logger.Info()
	if res.Err != nil {
		event = p.Logger.Error().Err(res.Err)
	}
	event.
		Int("worker_id", workerID).
		Str("app", res.App).
		Str("job_id", res.JobID).
		Str("outcome", string(res.Outcome)).
		Msg("worker processed queue entry")
}

func workerName(id int) string {
	return fmt.Sprintf("stolos-worker-%d", id)
}
