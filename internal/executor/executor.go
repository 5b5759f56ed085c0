package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/registry"
)

// DefaultStepTimeout bounds a single provider invocation when the embedder
// does not configure one.
const DefaultStepTimeout = 5 * time.Minute

// Config holds dependencies for building an Executor.
type Config struct {
	Registry    *registry.Registry
	Providers   *Providers
	Bus         *events.Bus
	StepTimeout time.Duration // per-attempt; 0 = DefaultStepTimeout
}

// Executor runs exactly one step at a time against its capability
// provider and records every attempt in the task's history.
type Executor struct {
	reg         *registry.Registry
	providers   *Providers
	bus         *events.Bus
	stepTimeout time.Duration
}

// New creates an Executor.
func New(cfg Config) *Executor {
	timeout := cfg.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	return &Executor{
		reg:         cfg.Registry,
		providers:   cfg.Providers,
		bus:         cfg.Bus,
		stepTimeout: timeout,
	}
}

// Execute runs one step to completion, retrying transient provider
// failures per the step's retry policy with exponential backoff. Every
// attempt, success or failure, is appended to the task's history before
// Execute returns.
//
// Provider errors and timeouts become failure outcomes, never hard
// errors; the only hard error is an unregistered capability.
func (e *Executor) Execute(ctx context.Context, taskID string, step registry.Step) (registry.StepOutcome, error) {
	prov, err := e.providers.Lookup(step.Capability)
	if err != nil {
		return registry.StepOutcome{}, err
	}

	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last registry.StepOutcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.bus.Publish(events.NewEvent(events.SourceExecutor, events.StepStartedPayload{
			TaskID:     taskID,
			StepID:     step.ID,
			Capability: step.Capability,
			Attempt:    attempt,
		}))

		last = e.attempt(ctx, prov, step, attempt)
		if err := e.reg.AppendOutcome(taskID, last); err != nil {
			slog.Error("append outcome", "task_id", taskID, "step_id", step.ID, "error", err)
		}

		if last.Result == registry.ResultSuccess {
			e.bus.Publish(events.NewEvent(events.SourceExecutor, events.StepCompletedPayload{
				TaskID:  taskID,
				StepID:  step.ID,
				Attempt: attempt,
			}))
			return last, nil
		}

		e.bus.Publish(events.NewEvent(events.SourceExecutor, events.StepFailedPayload{
			TaskID:  taskID,
			StepID:  step.ID,
			Attempt: attempt,
			Error:   last.Error,
		}))

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(step.Retry.Backoff(attempt)):
		case <-ctx.Done():
			// Drive loop is shutting down; surface the last attempt
			// without burning the remaining retries.
			return last, nil
		}
	}

	return last, nil
}

// attempt performs a single provider invocation under the step timeout.
func (e *Executor) attempt(ctx context.Context, prov Provider, step registry.Step, attempt int) registry.StepOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	started := time.Now()
	output, err := prov.Invoke(attemptCtx, step.Input)
	finished := time.Now()

	outcome := registry.StepOutcome{
		StepID:     step.ID,
		Attempt:    attempt,
		StartedAt:  started,
		FinishedAt: finished,
	}

	if err != nil {
		// Timeouts are treated identically to provider failures.
		outcome.Result = registry.ResultFailure
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Result = registry.ResultSuccess
	outcome.Output = output
	return outcome
}
