package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a task id does not exist in the store.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a mutation would violate the
	// task state machine, including eviction of a non-terminal task.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrResourceExhausted is returned when the registry's task cap is reached.
	ErrResourceExhausted = errors.New("task capacity exhausted")
)

func invalidTransition(from, to TaskState) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

// ListFilter defines criteria for filtering task lists.
type ListFilter struct {
	State TaskState `json:"state,omitempty"`
}

// Store defines the persistence interface for tasks. Implementations must
// be safe for concurrent use; atomicity across Get+Update is provided by
// the Registry, not the store.
type Store interface {
	Create(t *Task) error
	Get(id string) (*Task, error)
	Update(t *Task) error
	List(filter ListFilter) ([]*Task, error)
	Delete(id string) error

	// AppendOutcome appends one step attempt to the task's history log.
	AppendOutcome(taskID string, o StepOutcome) error

	// LoadHistory returns the full append-only history in dispatch order.
	LoadHistory(taskID string) ([]StepOutcome, error)
}
