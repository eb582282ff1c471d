package workflow

import (
	"sync"
	"time"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
)

// Registry maps workflow IDs to their runners. Terminated runners stay
// registered until pruned so that late stop requests remain cheap no-ops.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]*Runner)}
}

// Register adds a runner. Safe to call concurrently.
func (g *Registry) Register(r *Runner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runners[r.ID()] = r
}

// Get returns the runner for the given workflow ID.
// Returns WorkflowNotFoundError if unknown.
func (g *Registry) Get(id string) (*Runner, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runners[id]
	if !ok {
		return nil, &domain.WorkflowNotFoundError{WorkflowID: id}
	}
	return r, nil
}

// Remove drops a runner from the registry.
func (g *Registry) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.runners, id)
}

// Len returns the number of registered runners.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runners)
}

// Prune removes runners that terminated before now-retention and returns
// how many were dropped. Running workflows are never touched.
func (g *Registry) Prune(retention time.Duration, now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	pruned := 0
	for id, r := range g.runners {
		result, _ := r.Result()
		if result == nil || result.CompletedAt == nil {
			continue
		}
		if now.Sub(*result.CompletedAt) >= retention {
			delete(g.runners, id)
			pruned++
		}
	}
	return pruned
}
