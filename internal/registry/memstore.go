package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and embedders that opt out
// of persistence.
type MemStore struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	history map[string][]StepOutcome
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:   make(map[string]*Task),
		history: make(map[string][]StepOutcome),
	}
}

// Create persists a new task.
func (m *MemStore) Create(t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

// Get retrieves a copy of a task by ID.
func (m *MemStore) Get(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

// Update saves changes to an existing task.
func (m *MemStore) Update(t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[t.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

// List returns tasks matching the filter, oldest first.
func (m *MemStore) List(filter ListFilter) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tasks []*Task
	for _, t := range m.tasks {
		if filter.State != "" && t.State != filter.State {
			continue
		}
		cp := *t
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Delete removes a task and its history.
func (m *MemStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.tasks, id)
	delete(m.history, id)
	return nil
}

// AppendOutcome records one step attempt.
func (m *MemStore) AppendOutcome(taskID string, o StepOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[taskID] = append(m.history[taskID], o)
	return nil
}

// LoadHistory returns the history in append order.
func (m *MemStore) LoadHistory(taskID string) ([]StepOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[taskID]
	out := make([]StepOutcome, len(h))
	copy(out, h)
	return out, nil
}
