package registry

import (
	"fmt"
	"sync"
	"time"
)

// Registry wraps a Store with per-task exclusive locks, giving every task
// single-writer semantics without a global lock. Unrelated tasks never
// contend.
type Registry struct {
	store    Store
	maxTasks int // 0 = unlimited

	// createMu serializes cap check and insert so concurrent Creates
	// cannot overshoot maxTasks.
	createMu sync.Mutex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Registry over the given store. maxTasks bounds the number
// of live (non-evicted) tasks; zero means unlimited.
func New(store Store, maxTasks int) *Registry {
	return &Registry{
		store:    store,
		maxTasks: maxTasks,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-task mutex, creating it on first use.
func (r *Registry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Create allocates a new task in the planning state. It fails only when
// the task cap is reached.
func (r *Registry) Create(objective string) (*Task, error) {
	r.createMu.Lock()
	defer r.createMu.Unlock()

	if r.maxTasks > 0 {
		all, err := r.store.List(ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("count tasks: %w", err)
		}
		if len(all) >= r.maxTasks {
			return nil, fmt.Errorf("%w: %d tasks", ErrResourceExhausted, r.maxTasks)
		}
	}

	t := &Task{
		ID:        GenerateTaskID(),
		Objective: objective,
		State:     StatePlanning,
	}
	if err := r.store.Create(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get retrieves a task by id.
func (r *Registry) Get(id string) (*Task, error) {
	return r.store.Get(id)
}

// Update applies mutate to the task under its exclusive lock. The mutator
// is responsible for state machine correctness (Task.Transition enforces
// it); the registry only guarantees atomicity. A mutator error aborts the
// update without persisting anything.
func (r *Registry) Update(id string, mutate func(*Task) error) (*Task, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	t, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	if t.Cursor > len(t.Plan) {
		return nil, fmt.Errorf("cursor %d beyond plan length %d", t.Cursor, len(t.Plan))
	}
	t.UpdatedAt = time.Now()
	if err := r.store.Update(t); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns ids of tasks matching the filter. Re-querying reflects
// current state; no snapshot isolation is guaranteed across the result.
func (r *Registry) List(filter ListFilter) ([]*Task, error) {
	return r.store.List(filter)
}

// AppendOutcome records one step attempt in the task's history.
func (r *Registry) AppendOutcome(id string, o StepOutcome) error {
	return r.store.AppendOutcome(id, o)
}

// History returns the task's append-only outcome log.
func (r *Registry) History(id string) ([]StepOutcome, error) {
	return r.store.LoadHistory(id)
}

// Evict removes a task and its history. Only terminal tasks may be
// evicted; the engine never discards audit history on its own.
func (r *Registry) Evict(id string) error {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	t, err := r.store.Get(id)
	if err != nil {
		return err
	}
	if !t.State.Terminal() {
		return fmt.Errorf("%w: evict from %s", ErrInvalidTransition, t.State)
	}
	if err := r.store.Delete(id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.locks, id)
	r.mu.Unlock()
	return nil
}
