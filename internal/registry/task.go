// Package registry provides persistent task records with single-writer access.
package registry

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	StatePlanning  TaskState = "planning"
	StateRunning   TaskState = "running"
	StatePaused    TaskState = "paused"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCancelled TaskState = "cancelled"
)

// Terminal reports whether no transition may leave the state.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// transitions is the full task state machine. Terminal states absorb.
var transitions = map[TaskState][]TaskState{
	StatePlanning: {StateRunning, StateCancelled},
	StateRunning:  {StatePaused, StateCompleted, StateFailed, StateCancelled},
	StatePaused:   {StateRunning, StateCancelled},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RetryPolicy controls retries for a single step.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
}

// Backoff returns the delay before retrying after the given attempt
// (1-based): base_delay * 2^attempt, capped at max_delay. Large attempt
// counts saturate instead of overflowing the shift.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d <<= 1
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Step is one dispatch to a capability provider within a task's plan.
type Step struct {
	ID         string          `json:"id"` // position-stable, e.g. "1-fetch"
	Name       string          `json:"name"`
	Capability string          `json:"capability"`
	Input      json.RawMessage `json:"input,omitempty"`
	Rank       int             `json:"rank"` // steps sharing a rank run concurrently
	Retry      RetryPolicy     `json:"retry"`
}

// ResultKind classifies the outcome of a step attempt.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
	ResultSkipped ResultKind = "skipped"
)

// StepOutcome records one attempt at executing a step. Immutable once appended.
type StepOutcome struct {
	StepID     string     `json:"step_id"`
	Attempt    int        `json:"attempt"`
	Result     ResultKind `json:"result"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Checkpoint is the resumption point written at every step boundary.
type Checkpoint struct {
	Ts     time.Time `json:"ts"`
	Cursor int       `json:"cursor"`
	Reason string    `json:"reason"` // "step" | "pause" | "cancel" | "recovery"
}

// Task is a unit of orchestrated work decomposed into steps.
// The plan is fixed once planning completes; cursor points at the next
// step to execute and never exceeds len(plan).
type Task struct {
	ID         string      `json:"id"`
	Objective  string      `json:"objective"`
	State      TaskState   `json:"state"`
	Plan       []Step      `json:"plan,omitempty"`
	Cursor     int         `json:"cursor"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Transition moves the task to the given state, enforcing the state machine.
func (t *Task) Transition(to TaskState) error {
	if !CanTransition(t.State, to) {
		return invalidTransition(t.State, to)
	}
	t.State = to
	now := time.Now()
	switch to {
	case StateRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case StateCompleted, StateFailed, StateCancelled:
		t.FinishedAt = &now
	}
	return nil
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
