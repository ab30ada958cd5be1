// Package stolerr defines the sentinel error taxonomy shared across Stolos.
package stolerr

import "fmt"

// Kind classifies a Stolos error so callers can branch with errors.Is
// without parsing messages.
type Kind string

const (
	// KindDAGMisconfigured marks structural config errors: filter-group
	// mismatches, cycles, impossible parent-id synthesis.
	KindDAGMisconfigured Kind = "dag_misconfigured"
	// KindInvalidJobId marks a job id that does not parse against its
	// app's template, or references an unknown template field.
	KindInvalidJobId Kind = "invalid_job_id"
	// KindJobAlreadyQueued marks an attempt to re-add a job that is
	// already pending and in queue.
	KindJobAlreadyQueued Kind = "job_already_queued"
	// KindPluginFailure marks a job_type executor returning a non-nil
	// error during the Executor Gate's invocation step.
	KindPluginFailure Kind = "plugin_failure"
	// KindStoreUnavailable marks a coordination-store error that
	// survived the store client's own retry budget.
	KindStoreUnavailable Kind = "store_unavailable"
)

// Error is the concrete error type carrying a Kind plus context.
type Error struct {
	Kind    Kind
	App     string
	JobID   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.App != "" {
		return fmt.Sprintf("%s: %s (app=%s job_id=%s)", e.Kind, e.Message, e.App, e.JobID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, stolerr.DAGMisconfigured) work against a bare Kind
// sentinel by comparing Kind fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, app, jobID, msg string, err error) *Error {
	return &Error{Kind: kind, App: app, JobID: jobID, Message: msg, Err: err}
}

// DAGMisconfigured builds a KindDAGMisconfigured error.
func DAGMisconfigured(app, jobID, msg string, err error) *Error {
	return newErr(KindDAGMisconfigured, app, jobID, msg, err)
}

// InvalidJobId builds a KindInvalidJobId error.
func InvalidJobId(app, jobID, msg string, err error) *Error {
	return newErr(KindInvalidJobId, app, jobID, msg, err)
}

// JobAlreadyQueued builds a KindJobAlreadyQueued error.
func JobAlreadyQueued(app, jobID string) *Error {
	return newErr(KindJobAlreadyQueued, app, jobID, "job is already queued and pending", nil)
}

// PluginFailure builds a KindPluginFailure error.
func PluginFailure(app, jobID, msg string, err error) *Error {
	return newErr(KindPluginFailure, app, jobID, msg, err)
}

// StoreUnavailable builds a KindStoreUnavailable error.
func StoreUnavailable(msg string, err error) *Error {
	return newErr(KindStoreUnavailable, "", "", msg, err)
}

// Sentinels usable with errors.Is(err, stolerr.ErrDAGMisconfigured).
var (
	ErrDAGMisconfigured = &Error{Kind: KindDAGMisconfigured}
	ErrInvalidJobId     = &Error{Kind: KindInvalidJobId}
	ErrJobAlreadyQueued = &Error{Kind: KindJobAlreadyQueued}
	ErrPluginFailure    = &Error{Kind: KindPluginFailure}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)
