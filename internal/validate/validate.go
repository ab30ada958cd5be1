// Package validate evaluates an app's valid_if_or predicate against a
// parsed job id to decide auto-skip (spec.md §4.6 step 4, component 6).
package validate

import (
	"fmt"

	"github.com/isabella232/stolos/internal/stolerr"
	"github.com/isabella232/stolos/internal/taskconfig"
)

// Predicate is a named, caller-supplied valid_if_or function (spec.md §9:
// "expose a registry of named predicates populated at startup rather than
// dynamic import").
type Predicate func(app, jobID string, fields map[string]string) bool

// Registry resolves valid_if_or._func names to Predicates. The zero value is
// usable and holds no predicates.
type Registry struct {
	predicates map[string]Predicate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{predicates: map[string]Predicate{}}
}

// Register binds name to fn, overwriting any prior binding.
func (r *Registry) Register(name string, fn Predicate) {
	r.predicates[name] = fn
}

// Evaluate reports whether (app, jobID) with parsed fields satisfies the
// descriptor's valid_if_or, per spec.md §4.6 step 4. A descriptor with no
// valid_if_or always passes. A field-set predicate passes if every listed
// field's current value is among its accepted values (fields absent from
// valid_if_or are unconstrained). A _func predicate defers to the named
// Predicate; an unregistered name is a DAGMisconfigured error rather than a
// silent pass or fail.
func (r *Registry) Evaluate(desc *taskconfig.Descriptor, jobID string, fields map[string]string) (bool, error) {
	vio := desc.ValidIfOr
	if vio == nil {
		return true, nil
	}

	if vio.Func != "" {
		fn, ok := r.predicates[vio.Func]
		if !ok {
			return false, stolerr.DAGMisconfigured(desc.App, jobID, fmt.Sprintf("valid_if_or references unregistered predicate %q", vio.Func), nil)
		}
		return fn(desc.App, jobID, fields), nil
	}

	for field, accepted := range vio.Fields {
		val, ok := fields[field]
		if !ok {
			continue
		}
		if !contains(accepted, val) {
			return false, nil
		}
	}
	return true, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
