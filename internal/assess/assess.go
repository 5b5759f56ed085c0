// Package assess combines scores from pluggable assessors into a single
// multi-dimensional report for a completed task.
package assess

import (
	"context"
	"errors"

	"github.com/weftlabs/weft/internal/registry"
)

// ErrNoAssessmentAvailable is returned when every registered assessor
// fails; individual failures are downgraded to warnings.
var ErrNoAssessmentAvailable = errors.New("no assessment available")

// Snapshot is the read-only view of a task handed to assessors.
type Snapshot struct {
	Task    registry.Task
	History []registry.StepOutcome
}

// Result is one assessor's contribution: a named dimension, a score in
// [0,1], and free-text findings backing it.
type Result struct {
	Dimension string   `json:"dimension"`
	Score     float64  `json:"score"`
	Findings  []string `json:"findings,omitempty"`
}

// Assessor scores one quality dimension of a finished task.
type Assessor interface {
	Assess(ctx context.Context, snap Snapshot) (Result, error)
}

// AssessorFunc adapts a function to the Assessor interface.
type AssessorFunc func(ctx context.Context, snap Snapshot) (Result, error)

func (f AssessorFunc) Assess(ctx context.Context, snap Snapshot) (Result, error) {
	return f(ctx, snap)
}

// Opportunity pairs a low-scoring dimension with its assessor's findings.
type Opportunity struct {
	Dimension string   `json:"dimension"`
	Score     float64  `json:"score"`
	Findings  []string `json:"findings,omitempty"`
}

// Report is the immutable aggregation result for one task.
type Report struct {
	TaskID          string             `json:"task_id"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	Overall         float64            `json:"overall"`
	Strengths       []string           `json:"strengths,omitempty"`
	Improvements    []Opportunity      `json:"improvements,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
}
