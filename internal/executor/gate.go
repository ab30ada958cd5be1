// Package executor implements the Executor Gate (spec.md §4.6 "Executor
// Gate — the full sequence a worker follows", component 7): the public
// sequencing primitive a worker loop calls once per queue entry.
package executor

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/isabella232/stolos/internal/coordination"
	"github.com/isabella232/stolos/internal/dag"
	"github.com/isabella232/stolos/internal/plugin"
	"github.com/isabella232/stolos/internal/stolerr"
	"github.com/isabella232/stolos/internal/taskconfig"
	"github.com/isabella232/stolos/internal/validate"
)

// Outcome classifies how one Gate.Run call concluded, for the CLI runner's
// exit-code mapping (spec.md §6) and for worker-loop logging.
type Outcome string

const (
	OutcomeEmpty          Outcome = "empty"          // queue had nothing within timeout
	OutcomeLockDenied     Outcome = "lock_denied"     // execute-lock was already held
	OutcomeWaitingParents Outcome = "waiting_parents" // parents incomplete; entry consumed or put back
	OutcomeInvalidJobID   Outcome = "invalid_job_id"  // jid failed template validation
	OutcomeSkipped        Outcome = "skipped"         // valid_if_or rejected the job
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"   // retries exhausted
	OutcomeRetrying       Outcome = "retrying" // plugin failed, retry budget remains
)

// Result reports what Gate.Run did with the dequeued (or absent) entry.
type Result struct {
	Outcome Outcome
	App     string
	JobID   string
	Err     error
}

// Gate wires together every collaborator the sequence in spec.md §4.6
// needs: the coordination store, the compiled DAG (for parent/child
// traversal and job-id templates), the task config (for valid_if_or and
// max_retry), the named-predicate registry, and the plugin dispatcher.
type Gate struct {
	Store     coordination.Store
	Graph     *dag.Graph
	Config    *taskconfig.View
	Validator *validate.Registry
	Plugins   *plugin.Registry
	Logger    arbor.ILogger
}

// Run executes one iteration of the worker loop against app's queue,
// blocking up to timeout to dequeue an entry. payload carries the job_type
// executor's opaque invocation parameters (e.g. the bash command), supplied
// by the caller since they are "opaque to the core" (spec.md §3).
func (g *Gate) Run(ctx context.Context, app string, timeout time.Duration, payload map[string]any) Result {
	// Step 1.
	jobID, ok, err := g.Store.Dequeue(ctx, app, timeout)
	if err != nil {
		return Result{Outcome: OutcomeEmpty, App: app, Err: err}
	}
	if !ok {
		return Result{Outcome: OutcomeEmpty, App: app}
	}

	desc, err := g.Config.MustGet(app)
	if err != nil {
		return Result{Outcome: OutcomeInvalidJobID, App: app, JobID: jobID, Err: err}
	}

	// Step 2.
	tmpl, hasTmpl := g.Graph.Template(app)
	var fields map[string]string
	if hasTmpl {
		fields, err = tmpl.Parse(app, jobID)
		if err != nil {
			g.markTerminal(ctx, app, jobID, coordination.StatusFailed)
			return Result{Outcome: OutcomeInvalidJobID, App: app, JobID: jobID, Err: err}
		}
	}

	// Step 3.
	sess := g.Store.NewSession()
	defer sess.Close(ctx)

	acquired, err := g.Store.TryAcquireExecuteLock(ctx, app, jobID, sess)
	if err != nil {
		return Result{Outcome: OutcomeLockDenied, App: app, JobID: jobID, Err: err}
	}
	if !acquired {
		if reErr := g.Store.Enqueue(ctx, app, jobID, 0); reErr != nil {
			return Result{Outcome: OutcomeLockDenied, App: app, JobID: jobID, Err: reErr}
		}
		return Result{Outcome: OutcomeLockDenied, App: app, JobID: jobID}
	}

	// Step 4.
	if g.Validator != nil && desc.ValidIfOr != nil {
		passed, err := g.Validator.Evaluate(desc, jobID, fields)
		if err != nil {
			return Result{Outcome: OutcomeInvalidJobID, App: app, JobID: jobID, Err: err}
		}
		if !passed {
			if err := g.Store.SetStatus(ctx, app, jobID, coordination.StatusSkipped); err != nil {
				return Result{Outcome: OutcomeSkipped, App: app, JobID: jobID, Err: err}
			}
			if err := g.Store.SetInQueue(ctx, app, jobID, false); err != nil {
				return Result{Outcome: OutcomeSkipped, App: app, JobID: jobID, Err: err}
			}
			if err := coordination.MaybeQueueChildren(ctx, g.Store, g.Graph, app, jobID); err != nil {
				return Result{Outcome: OutcomeSkipped, App: app, JobID: jobID, Err: err}
			}
			return Result{Outcome: OutcomeSkipped, App: app, JobID: jobID}
		}
	}

	// Step 5.
	allCompleted, consumeQueue, err := coordination.EnsureParentsCompleted(ctx, g.Store, g.Graph, app, jobID, sess)
	if err != nil {
		return Result{Outcome: OutcomeWaitingParents, App: app, JobID: jobID, Err: err}
	}
	if !allCompleted {
		if consumeQueue {
			// The dequeued entry stays consumed; clearing InQueue lets the
			// parents' completion re-enqueue this job.
			if err := g.Store.SetInQueue(ctx, app, jobID, false); err != nil {
				return Result{Outcome: OutcomeWaitingParents, App: app, JobID: jobID, Err: err}
			}
		} else {
			if reErr := g.Store.Enqueue(ctx, app, jobID, 0); reErr != nil {
				return Result{Outcome: OutcomeWaitingParents, App: app, JobID: jobID, Err: reErr}
			}
		}
		if relErr := sess.ReleaseAddLocks(ctx); relErr != nil {
			return Result{Outcome: OutcomeWaitingParents, App: app, JobID: jobID, Err: relErr}
		}
		return Result{Outcome: OutcomeWaitingParents, App: app, JobID: jobID}
	}

	// Step 6.
	executor, ok := g.lookupExecutor(desc.JobType)
	if !ok {
		return Result{
			Outcome: OutcomeFailed, App: app, JobID: jobID,
			Err: stolerr.PluginFailure(app, jobID, "no executor registered for job_type "+desc.JobType, nil),
		}
	}

	execErr := executor.Execute(ctx, plugin.Job{App: app, JobID: jobID, Fields: fields, Payload: payload})

	// Step 7.
	if execErr == nil {
		if err := g.Store.SetStatus(ctx, app, jobID, coordination.StatusCompleted); err != nil {
			return Result{Outcome: OutcomeCompleted, App: app, JobID: jobID, Err: err}
		}
		if err := g.Store.SetInQueue(ctx, app, jobID, false); err != nil {
			return Result{Outcome: OutcomeCompleted, App: app, JobID: jobID, Err: err}
		}
		if err := coordination.MaybeQueueChildren(ctx, g.Store, g.Graph, app, jobID); err != nil {
			return Result{Outcome: OutcomeCompleted, App: app, JobID: jobID, Err: err}
		}
		return Result{Outcome: OutcomeCompleted, App: app, JobID: jobID}
	}

	// Step 8.
	retryCount, err := g.Store.IncrementRetryCount(ctx, app, jobID)
	if err != nil {
		return Result{Outcome: OutcomeFailed, App: app, JobID: jobID, Err: err}
	}
	if desc.MaxRetry != nil && retryCount > *desc.MaxRetry {
		if err := g.Store.SetStatus(ctx, app, jobID, coordination.StatusFailed); err != nil {
			return Result{Outcome: OutcomeFailed, App: app, JobID: jobID, Err: err}
		}
		if err := g.Store.SetInQueue(ctx, app, jobID, false); err != nil {
			return Result{Outcome: OutcomeFailed, App: app, JobID: jobID, Err: err}
		}
		return Result{Outcome: OutcomeFailed, App: app, JobID: jobID, Err: execErr}
	}

	if err := g.Store.Enqueue(ctx, app, jobID, 0); err != nil {
		return Result{Outcome: OutcomeRetrying, App: app, JobID: jobID, Err: err}
	}
	return Result{Outcome: OutcomeRetrying, App: app, JobID: jobID, Err: execErr}
}

func (g *Gate) markTerminal(ctx context.Context, app, jobID string, status coordination.Status) {
	if err := g.Store.SetStatus(ctx, app, jobID, status); err != nil && g.Logger != nil {
		g.Logger.Error().Err(err).Str("app", app).Str("job_id", jobID).Msg("failed to set terminal status")
	}
	if err := g.Store.SetInQueue(ctx, app, jobID, false); err != nil && g.Logger != nil {
		g.Logger.Error().Err(err).Str("app", app).Str("job_id", jobID).Msg("failed to clear queue membership")
	}
}

func (g *Gate) lookupExecutor(jobType string) (plugin.Executor, bool) {
	if g.Plugins == nil {
		return nil, false
	}
	return g.Plugins.Lookup(jobType)
}
