// Package progress derives read-only progress views from registry state.
package progress

import (
	"github.com/weftlabs/weft/internal/registry"
)

// View is a point-in-time snapshot of a task's progress. Calling Report
// twice with no intervening mutation yields identical views.
type View struct {
	TaskID          string                `json:"task_id"`
	State           registry.TaskState    `json:"state"`
	Cursor          int                   `json:"cursor"`
	TotalSteps      int                   `json:"total_steps"`
	PercentComplete int                   `json:"percent_complete"`
	LastOutcome     *registry.StepOutcome `json:"last_outcome,omitempty"`
}

// Reporter computes progress views. It never mutates registry state.
type Reporter struct {
	reg *registry.Registry
}

// NewReporter creates a Reporter over the registry.
func NewReporter(reg *registry.Registry) *Reporter {
	return &Reporter{reg: reg}
}

// Report returns the current progress view for a task.
func (r *Reporter) Report(taskID string) (View, error) {
	t, err := r.reg.Get(taskID)
	if err != nil {
		return View{}, err
	}

	v := View{
		TaskID:     t.ID,
		State:      t.State,
		Cursor:     t.Cursor,
		TotalSteps: len(t.Plan),
	}
	if len(t.Plan) > 0 {
		v.PercentComplete = t.Cursor * 100 / len(t.Plan)
	}

	history, err := r.reg.History(taskID)
	if err != nil {
		return View{}, err
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		v.LastOutcome = &last
	}
	return v, nil
}
