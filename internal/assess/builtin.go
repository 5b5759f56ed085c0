package assess

import (
	"context"
	"fmt"

	"github.com/weftlabs/weft/internal/registry"
)

// CompletionAssessor scores how much of the plan ran to a successful
// outcome: completed steps over planned steps.
func CompletionAssessor() Assessor {
	return AssessorFunc(func(_ context.Context, snap Snapshot) (Result, error) {
		total := len(snap.Task.Plan)
		if total == 0 {
			return Result{}, fmt.Errorf("task %s has no plan", snap.Task.ID)
		}

		succeeded := make(map[string]bool)
		for _, o := range snap.History {
			if o.Result == registry.ResultSuccess {
				succeeded[o.StepID] = true
			}
		}
		done := 0
		var findings []string
		for _, step := range snap.Task.Plan {
			if succeeded[step.ID] {
				done++
			} else {
				findings = append(findings, fmt.Sprintf("step %s did not complete", step.ID))
			}
		}

		return Result{
			Dimension: "completion",
			Score:     float64(done) / float64(total),
			Findings:  findings,
		}, nil
	})
}

// ReliabilityAssessor scores how many step attempts succeeded on the
// first try. Retries drag the score down even when the step eventually
// passed.
func ReliabilityAssessor() Assessor {
	return AssessorFunc(func(_ context.Context, snap Snapshot) (Result, error) {
		if len(snap.History) == 0 {
			return Result{}, fmt.Errorf("task %s has no recorded attempts", snap.Task.ID)
		}

		firstTry := 0
		steps := make(map[string]bool)
		var findings []string
		for _, o := range snap.History {
			if steps[o.StepID] {
				continue
			}
			steps[o.StepID] = true
			if o.Result == registry.ResultSuccess && o.Attempt == 1 {
				firstTry++
			} else if o.Result == registry.ResultFailure {
				findings = append(findings, fmt.Sprintf("step %s failed on attempt %d: %s", o.StepID, o.Attempt, o.Error))
			}
		}

		return Result{
			Dimension: "reliability",
			Score:     float64(firstTry) / float64(len(steps)),
			Findings:  findings,
		}, nil
	})
}
