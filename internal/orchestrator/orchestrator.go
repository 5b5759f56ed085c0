package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/executor"
	"github.com/weftlabs/weft/internal/registry"
)

// Config holds dependencies for building an Orchestrator.
type Config struct {
	Registry *registry.Registry
	Executor *executor.Executor
	Planner  Planner
	Bus      *events.Bus
}

// Orchestrator owns the task state machine. Each task has at most one
// active driver goroutine; distinct tasks run fully concurrently.
type Orchestrator struct {
	reg     *registry.Registry
	exec    *executor.Executor
	planner Planner
	bus     *events.Bus

	mu      sync.Mutex
	drivers map[string]*driver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// driver carries the interruption flags for one in-flight drive loop.
// Flags are observed only at step boundaries, never mid-step.
type driver struct {
	mu           sync.Mutex
	pauseReq     bool
	cancelReq    bool
	cancelReason string
}

func (d *driver) requestPause() {
	d.mu.Lock()
	d.pauseReq = true
	d.mu.Unlock()
}

func (d *driver) requestCancel(reason string) {
	d.mu.Lock()
	d.cancelReq = true
	d.cancelReason = reason
	d.mu.Unlock()
}

func (d *driver) paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pauseReq
}

func (d *driver) cancelled() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelReq, d.cancelReason
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		reg:     cfg.Registry,
		exec:    cfg.Executor,
		planner: cfg.Planner,
		bus:     cfg.Bus,
		drivers: make(map[string]*driver),
	}
}

// Start prepares the orchestrator for driving tasks.
func (o *Orchestrator) Start() {
	o.ctx, o.cancel = context.WithCancel(context.Background())
	slog.Info("orchestrator started")
}

// Stop signals all drive loops to stop at their next step boundary and
// waits for them to finish.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	slog.Info("orchestrator stopped")
}

// Submit creates a task, synchronously decomposes the objective into a
// plan, transitions it to running, and enqueues execution. The returned
// id always refers to a created task: on planner failure the task is
// parked cancelled (with a checkpoint explaining why) and
// ErrPlanningFailed is returned alongside it.
func (o *Orchestrator) Submit(ctx context.Context, objective string) (string, error) {
	t, err := o.reg.Create(objective)
	if err != nil {
		return "", err
	}
	o.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskCreatedPayload{
		TaskID:    t.ID,
		Objective: objective,
	}))

	plan, err := o.planner.Plan(ctx, objective)
	if err == nil && len(plan) == 0 {
		err = errors.New("planner returned empty plan")
	}
	if err == nil {
		plan, err = normalizePlan(plan)
	}
	if err != nil {
		planErr := err
		_, err = o.reg.Update(t.ID, func(t *registry.Task) error {
			if tErr := t.Transition(registry.StateCancelled); tErr != nil {
				return tErr
			}
			t.Checkpoint = checkpoint(0, "planning failed: "+planErr.Error())
			return nil
		})
		if err != nil {
			slog.Error("park unplannable task", "task_id", t.ID, "error", err)
		}
		return t.ID, fmt.Errorf("%w: %v", ErrPlanningFailed, planErr)
	}

	_, err = o.reg.Update(t.ID, func(t *registry.Task) error {
		t.Plan = plan
		return t.Transition(registry.StateRunning)
	})
	if err != nil {
		return t.ID, err
	}

	o.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskStartedPayload{
		TaskID:     t.ID,
		TotalSteps: len(plan),
	}))

	o.startDriver(t.ID)
	return t.ID, nil
}

// driverFor returns the active driver for a task, or nil.
func (o *Orchestrator) driverFor(taskID string) *driver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drivers[taskID]
}

// acquire claims the single driver slot for a task.
func (o *Orchestrator) acquire(taskID string) (*driver, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.drivers[taskID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, taskID)
	}
	d := &driver{}
	o.drivers[taskID] = d
	return d, nil
}

func (o *Orchestrator) release(taskID string) {
	o.mu.Lock()
	delete(o.drivers, taskID)
	o.mu.Unlock()
}

// startDriver launches the drive loop in its own goroutine. A previous
// driver may still hold the task's slot for a moment after its boundary
// state became visible (a resume racing the pausing driver's exit), so
// ErrAlreadyRunning here means "slot still releasing" and is retried
// rather than dropped.
func (o *Orchestrator) startDriver(taskID string) {
	ctx := o.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			err := o.Drive(ctx, taskID)
			if err != nil && !errors.Is(err, ErrAlreadyRunning) {
				slog.Error("drive loop failed", "task_id", taskID, "error", err)
			}
			if !errors.Is(err, ErrAlreadyRunning) {
				return
			}
			select {
			case <-time.After(5 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Drive runs the task's drive loop in the calling goroutine. A concurrent
// Drive for the same task is rejected with ErrAlreadyRunning rather than
// queued, so steps are never double-executed.
func (o *Orchestrator) Drive(ctx context.Context, taskID string) error {
	d, err := o.acquire(taskID)
	if err != nil {
		return err
	}
	defer o.release(taskID)
	return o.drive(ctx, taskID, d)
}

// drive executes steps until the task reaches a terminal state or an
// interruption flag is observed at a step boundary.
func (o *Orchestrator) drive(ctx context.Context, taskID string, d *driver) error {
	for {
		if cancelled, reason := d.cancelled(); cancelled {
			return o.finishCancel(taskID, reason)
		}
		if d.paused() {
			return o.finishPause(taskID)
		}
		if ctx.Err() != nil {
			// Engine shutdown: park at the boundary so resume picks up
			// from the checkpoint after restart.
			return o.finishPause(taskID)
		}

		t, err := o.reg.Get(taskID)
		if err != nil {
			return err
		}
		if t.State != registry.StateRunning {
			return nil
		}
		if t.Cursor >= len(t.Plan) {
			return o.finishComplete(taskID)
		}

		rank := rankAt(t.Plan, t.Cursor)
		outcomes, err := o.runRank(ctx, taskID, rank)
		if err != nil {
			// Unknown capability or another contract violation: the
			// task fails immediately, no retries.
			return o.finishFail(taskID, rank[0].ID, err.Error())
		}

		// Outcomes of a cancelled rank stay in history for audit but
		// never advance the cursor.
		if cancelled, reason := d.cancelled(); cancelled {
			return o.finishCancel(taskID, reason)
		}

		// Shutdown mid-rank aborts retries early, so a recorded failure
		// may still have attempts left. Park instead of failing: the
		// rank reruns in full after resume.
		if ctx.Err() != nil {
			return o.finishPause(taskID)
		}

		if failed := firstFailure(outcomes); failed != nil {
			return o.finishFail(taskID, failed.StepID, failed.Error)
		}

		_, err = o.reg.Update(taskID, func(t *registry.Task) error {
			t.Cursor += len(rank)
			t.Checkpoint = checkpoint(t.Cursor, "step")
			return nil
		})
		if err != nil {
			return err
		}
	}
}

// runRank executes one rank. A single step runs inline; siblings of a
// parallel rank run concurrently and are all joined before the rank is
// considered complete, so a failing sibling never interrupts one already
// in flight.
func (o *Orchestrator) runRank(ctx context.Context, taskID string, rank []registry.Step) ([]registry.StepOutcome, error) {
	if len(rank) == 1 {
		out, err := o.exec.Execute(ctx, taskID, rank[0])
		if err != nil {
			return nil, err
		}
		return []registry.StepOutcome{out}, nil
	}

	outcomes := make([]registry.StepOutcome, len(rank))
	errs := make([]error, len(rank))
	var wg sync.WaitGroup
	for i, step := range rank {
		wg.Add(1)
		go func(i int, step registry.Step) {
			defer wg.Done()
			outcomes[i], errs[i] = o.exec.Execute(ctx, taskID, step)
		}(i, step)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// firstFailure returns the first terminally failed outcome, if any.
func firstFailure(outcomes []registry.StepOutcome) *registry.StepOutcome {
	for i := range outcomes {
		if outcomes[i].Result == registry.ResultFailure {
			return &outcomes[i]
		}
	}
	return nil
}

func (o *Orchestrator) finishComplete(taskID string) error {
	t, err := o.reg.Update(taskID, func(t *registry.Task) error {
		return t.Transition(registry.StateCompleted)
	})
	if err != nil {
		return err
	}
	slog.Info("task completed", "task_id", taskID, "steps", len(t.Plan))
	o.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskCompletedPayload{
		TaskID: taskID,
		Steps:  len(t.Plan),
	}))
	return nil
}

func (o *Orchestrator) finishFail(taskID, stepID, errMsg string) error {
	_, err := o.reg.Update(taskID, func(t *registry.Task) error {
		t.Checkpoint = checkpoint(t.Cursor, "failed")
		return t.Transition(registry.StateFailed)
	})
	if err != nil {
		return err
	}
	slog.Warn("task failed", "task_id", taskID, "step_id", stepID, "error", errMsg)
	o.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskFailedPayload{
		TaskID: taskID,
		StepID: stepID,
		Error:  errMsg,
	}))
	return nil
}

func (o *Orchestrator) finishPause(taskID string) error {
	t, err := o.reg.Update(taskID, func(t *registry.Task) error {
		t.Checkpoint = checkpoint(t.Cursor, "pause")
		return t.Transition(registry.StatePaused)
	})
	if err != nil {
		return err
	}
	slog.Info("task paused", "task_id", taskID, "cursor", t.Cursor)
	o.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskPausedPayload{
		TaskID: taskID,
		Cursor: t.Cursor,
	}))
	return nil
}

func (o *Orchestrator) finishCancel(taskID, reason string) error {
	_, err := o.reg.Update(taskID, func(t *registry.Task) error {
		t.Checkpoint = checkpoint(t.Cursor, "cancel")
		return t.Transition(registry.StateCancelled)
	})
	if err != nil {
		return err
	}
	slog.Info("task cancelled", "task_id", taskID, "reason", reason)
	o.bus.Publish(events.NewEvent(events.SourceOrchestrator, events.TaskCancelledPayload{
		TaskID: taskID,
		Reason: reason,
	}))
	return nil
}
