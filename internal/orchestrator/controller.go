package orchestrator

import (
	"fmt"
	"time"

	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/registry"
)

func checkpoint(cursor int, reason string) *registry.Checkpoint {
	return &registry.Checkpoint{Ts: time.Now(), Cursor: cursor, Reason: reason}
}

// Controller provides pause/resume/cancel for in-flight tasks. All
// interruption is cooperative: flags are observed by the drive loop at
// step boundaries, never mid-step. A step, once dispatched, runs to
// completion (or exhausts its retries) before an interruption takes
// effect — a provider that never returns is bounded only by the step
// timeout, which is a documented limitation.
type Controller struct {
	orch *Orchestrator
}

// NewController creates a Controller over an Orchestrator.
func NewController(orch *Orchestrator) *Controller {
	return &Controller{orch: orch}
}

// Pause requests that a running task stop at its next step boundary.
// The drive loop writes a checkpoint and transitions the task to paused
// once it observes the flag.
func (c *Controller) Pause(taskID string) error {
	t, err := c.orch.reg.Get(taskID)
	if err != nil {
		return err
	}
	if t.State != registry.StateRunning {
		return fmt.Errorf("%w: pause from %s", registry.ErrInvalidTransition, t.State)
	}

	if d := c.orch.driverFor(taskID); d != nil {
		d.requestPause()
		return nil
	}

	// Running in the store but no active driver (e.g. recovered but not
	// yet resumed): park it directly.
	return c.orch.finishPause(taskID)
}

// Resume restarts a paused task's drive loop from its cursor. Whole-step
// granularity: there is no mid-step resumption.
func (c *Controller) Resume(taskID string) error {
	t, err := c.orch.reg.Update(taskID, func(t *registry.Task) error {
		if t.State != registry.StatePaused {
			return fmt.Errorf("%w: resume from %s", registry.ErrInvalidTransition, t.State)
		}
		return t.Transition(registry.StateRunning)
	})
	if err != nil {
		return err
	}

	c.orch.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskResumedPayload{
		TaskID: taskID,
		Cursor: t.Cursor,
	}))

	c.orch.startDriver(taskID)
	return nil
}

// Cancel moves a task to cancelled. Honorable from any non-terminal
// state; a running task cancels at its next step boundary and in-flight
// attempts are recorded in history but never advance the cursor.
func (c *Controller) Cancel(taskID, reason string) error {
	t, err := c.orch.reg.Get(taskID)
	if err != nil {
		return err
	}
	if t.State.Terminal() {
		return fmt.Errorf("%w: cancel from %s", registry.ErrInvalidTransition, t.State)
	}

	if d := c.orch.driverFor(taskID); d != nil {
		d.requestCancel(reason)
		return nil
	}

	return c.orch.finishCancel(taskID, reason)
}
