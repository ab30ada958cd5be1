package dag

// AppJob identifies one (app, job_id) pair — the unit of scheduling state
// throughout Stolos.
type AppJob struct {
	App   string
	JobID string
}

// WithGroup augments an AppJob with the dependency group name that produced
// it, used when callers ask for include_group semantics (spec.md §4.3/4.4).
type WithGroup struct {
	AppJob
	Group string
}
