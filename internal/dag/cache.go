package dag

import (
	"sync"

	"github.com/isabella232/stolos/internal/taskconfig"
)

// Cache holds the most recently built Graph for a given taskconfig.View.
// It is an explicitly-owned snapshot, not a process-wide singleton (design
// note §9): callers pass the Cache through, and Reset is the only way to
// invalidate it — there is no implicit filesystem watch.
type Cache struct {
	mu    sync.Mutex
	view  *taskconfig.View
	graph *Graph
}

// NewCache returns an empty Cache.
func NewCache() *Cache { return &Cache{} }

// Build returns the cached Graph for view if the view pointer is unchanged
// since the last Build call, otherwise it rebuilds (and revalidates) the
// graph and caches the new result.
func (c *Cache) Build(view *taskconfig.View) (*Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view == view && c.graph != nil {
		return c.graph, nil
	}

	g, err := Build(view)
	if err != nil {
		return nil, err
	}
	c.view = view
	c.graph = g
	return g, nil
}

// Reset clears the cache, forcing the next Build to recompute the graph
// even if the view pointer has not changed.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = nil
	c.graph = nil
}
