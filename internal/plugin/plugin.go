// Package plugin dispatches a completed parent gate check to the job_type's
// registered executor (spec.md §1(iii), `[EXPANSION]` §4.9), mirroring
// teacher internal/worker/pool.go's Executor interface and job-type registry
// without the HTTP-job-manager bookkeeping that package also carries.
package plugin

import "context"

// Job is everything an Executor needs to run one (app, job_id) pair: its own
// identity, job_type-opaque parsed fields, and the job_type's free-form
// config payload from the task descriptor.
type Job struct {
	App     string
	JobID   string
	Fields  map[string]string
	Payload map[string]any
}

// Executor runs one job synchronously (spec.md §4.6 step 6: "invoke the
// plugin executor synchronously"). A non-nil error is treated as job
// failure and feeds the retry counter.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// Registry maps job_type to its Executor, populated at process start
// (`[EXPANSION]` component 10).
type Registry struct {
	executors map[string]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: map[string]Executor{}}
}

// Register binds jobType to executor, overwriting any prior binding.
func (r *Registry) Register(jobType string, executor Executor) {
	r.executors[jobType] = executor
}

// Lookup returns the executor registered for jobType, if any.
func (r *Registry) Lookup(jobType string) (Executor, bool) {
	e, ok := r.executors[jobType]
	return e, ok
}
