package operations

import (
	"fmt"
	"sync"
)

// Registry holds the registered pipeline steps and resolves their
// dependency order. Registration order breaks ties between independent
// steps so runs stay deterministic.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step. IDs must be unique and non-empty.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.steps[id]; dup {
		return fmt.Errorf("step with ID %s already registered", id)
	}
	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Has reports whether a step with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.steps[id]
	return ok
}

// Count returns the number of registered steps.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// ListIDs returns the registered step IDs in registration order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// GetDependencyOrder returns all steps topologically sorted by their
// declared dependencies (Kahn's algorithm). An unknown dependency or a
// cycle is an error.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos := make(map[string]int, len(r.order))
	for i, id := range r.order {
		pos[id] = i
	}

	dependents := make(map[string][]string, len(r.steps))
	pending := make(map[string]int, len(r.steps))
	for id, step := range r.steps {
		for _, dep := range step.GetDependencies() {
			if _, ok := r.steps[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on non-existent step %s", id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			pending[id]++
		}
	}

	var ready []string
	for _, id := range r.order {
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]Step, 0, len(r.steps))
	for len(ready) > 0 {
		// Pick the ready step registered earliest.
		next := 0
		for i := 1; i < len(ready); i++ {
			if pos[ready[i]] < pos[ready[next]] {
				next = i
			}
		}
		id := ready[next]
		ready = append(ready[:next], ready[next+1:]...)

		ordered = append(ordered, r.steps[id])
		for _, dep := range dependents[id] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(r.steps) {
		return nil, fmt.Errorf("dependency cycle detected")
	}
	return ordered, nil
}

// ValidateDependencies checks that every declared dependency exists and the
// graph is acyclic.
func (r *Registry) ValidateDependencies() error {
	_, err := r.GetDependencyOrder()
	return err
}
