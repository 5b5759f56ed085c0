// Package orchestrator drives tasks through their state machine: planning,
// step execution, interruption, and completion.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/weftlabs/weft/internal/registry"
)

var (
	// ErrPlanningFailed is returned by Submit when the planner errors or
	// produces an empty plan.
	ErrPlanningFailed = errors.New("planning failed")

	// ErrAlreadyRunning is returned when a second drive loop is requested
	// for a task that already has an active driver.
	ErrAlreadyRunning = errors.New("task already has an active driver")
)

// Planner decomposes an objective into an ordered plan of steps. The
// strategy is pluggable; the orchestrator only requires that the returned
// plan is non-empty.
type Planner interface {
	Plan(ctx context.Context, objective string) ([]registry.Step, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, objective string) ([]registry.Step, error)

func (f PlannerFunc) Plan(ctx context.Context, objective string) ([]registry.Step, error) {
	return f(ctx, objective)
}

// normalizePlan fills in missing step ids with position-stable names and
// rejects duplicate ids. A plan that never assigns ranks is sequential:
// each step gets its own rank. Parallelism is opted into by giving
// adjacent steps the same explicit rank.
func normalizePlan(plan []registry.Step) ([]registry.Step, error) {
	allZero := true
	for i := range plan {
		if plan[i].Rank != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		for i := range plan {
			plan[i].Rank = i + 1
		}
	}

	seen := make(map[string]bool, len(plan))
	for i := range plan {
		if plan[i].ID == "" {
			name := plan[i].Name
			if name == "" {
				name = plan[i].Capability
			}
			plan[i].ID = fmt.Sprintf("%d-%s", i+1, name)
		}
		if seen[plan[i].ID] {
			return nil, fmt.Errorf("duplicate step id %q", plan[i].ID)
		}
		seen[plan[i].ID] = true
	}
	return plan, nil
}

// rankAt returns the contiguous run of steps sharing plan[cursor]'s rank.
// Steps are grouped into parallel ranks explicitly by the planner, never
// inferred.
func rankAt(plan []registry.Step, cursor int) []registry.Step {
	if cursor >= len(plan) {
		return nil
	}
	rank := plan[cursor].Rank
	end := cursor + 1
	for end < len(plan) && plan[end].Rank == rank {
		end++
	}
	return plan[cursor:end]
}
