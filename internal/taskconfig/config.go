// Package taskconfig loads the task configuration document (spec.md §6)
// into an immutable in-memory projection: a mapping from app name to its
// TaskDescriptor, duck-typed at the edges (Value) but strongly typed once
// decoded (Descriptor).
package taskconfig

import (
	"fmt"
	"os"

	"github.com/isabella232/stolos/internal/stolerr"
)

// View is an immutable, in-memory projection of the task configuration
// (spec.md §2 "Config View"). It is safe for concurrent read-only use by
// every goroutine sharing it; building a new View never mutates an existing
// one (design note §9: "Global cached DAG... an explicitly-owned immutable
// snapshot with a refresh entry point").
type View struct {
	apps map[string]*Descriptor
}

// Load reads and decodes a task configuration document from path.
func Load(path string) (*View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stolerr.DAGMisconfigured("", "", "failed to read task config", err)
	}
	return Decode(data)
}

// LoadFromEnv reads the task configuration document named by the
// TASKS_JSON environment variable (spec.md §6).
func LoadFromEnv() (*View, error) {
	path := os.Getenv("TASKS_JSON")
	if path == "" {
		return nil, stolerr.DAGMisconfigured("", "", "TASKS_JSON is not set", nil)
	}
	return Load(path)
}

// Decode decodes a task configuration document from raw JSON bytes.
func Decode(data []byte) (*View, error) {
	root, err := ParseValue(data)
	if err != nil {
		return nil, stolerr.DAGMisconfigured("", "", "task config is not valid JSON", err)
	}
	if !root.IsObject() {
		return nil, stolerr.DAGMisconfigured("", "", "task config must be a JSON object mapping app -> descriptor", nil)
	}

	apps := make(map[string]*Descriptor, len(root.Keys()))
	for _, app := range root.Keys() {
		d, err := buildDescriptor(app, root.Get(app))
		if err != nil {
			return nil, err
		}
		apps[app] = d
	}
	return &View{apps: apps}, nil
}

// Get returns the descriptor for app and whether it is declared.
func (v *View) Get(app string) (*Descriptor, bool) {
	d, ok := v.apps[app]
	return d, ok
}

// MustGet returns the descriptor for app or a DAGMisconfigured error.
func (v *View) MustGet(app string) (*Descriptor, error) {
	d, ok := v.apps[app]
	if !ok {
		return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("no such app %q in task config", app), nil)
	}
	return d, nil
}

// Apps returns every declared app name, in no particular order.
func (v *View) Apps() []string {
	out := make([]string, 0, len(v.apps))
	for app := range v.apps {
		out = append(out, app)
	}
	return out
}

// Len returns the number of declared apps.
func (v *View) Len() int { return len(v.apps) }
