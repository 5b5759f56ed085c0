package assess

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/weftlabs/weft/internal/events"
)

// Default thresholds; both are configurable per aggregator.
const (
	DefaultStrengthThreshold    = 0.9
	DefaultImprovementThreshold = 0.7
)

// AggregatorConfig configures weighting and thresholds.
type AggregatorConfig struct {
	// Weights maps dimension names to their weight in the overall score.
	// Dimensions not listed weigh 1.0 — equal weighting is the explicit
	// default policy, not a fallback.
	Weights map[string]float64

	StrengthThreshold    float64 // ≥ threshold → strength (0 = default 0.9)
	ImprovementThreshold float64 // < threshold → improvement (0 = default 0.7)

	// Bus, when set, receives an assessment.ready event after every
	// successful Run.
	Bus *events.Bus
}

// Aggregator runs registered assessors over a task snapshot and combines
// their dimension scores. Aggregation over a fixed set of assessor
// outputs is pure and deterministic.
type Aggregator struct {
	mu        sync.RWMutex
	assessors []Assessor
	cfg       AggregatorConfig
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.StrengthThreshold == 0 {
		cfg.StrengthThreshold = DefaultStrengthThreshold
	}
	if cfg.ImprovementThreshold == 0 {
		cfg.ImprovementThreshold = DefaultImprovementThreshold
	}
	return &Aggregator{cfg: cfg}
}

// Register adds an assessor. Order of registration does not affect the
// report.
func (a *Aggregator) Register(as Assessor) {
	a.mu.Lock()
	a.assessors = append(a.assessors, as)
	a.mu.Unlock()
}

// Run assesses the snapshot with every registered assessor. A failing
// assessor's dimension is omitted and recorded as a warning; only when
// all assessors fail does Run return ErrNoAssessmentAvailable.
func (a *Aggregator) Run(ctx context.Context, snap Snapshot) (*Report, error) {
	a.mu.RLock()
	assessors := make([]Assessor, len(a.assessors))
	copy(assessors, a.assessors)
	a.mu.RUnlock()

	if len(assessors) == 0 {
		return nil, fmt.Errorf("%w: no assessors registered", ErrNoAssessmentAvailable)
	}

	var results []Result
	var warnings []string
	for _, as := range assessors {
		res, err := as.Assess(ctx, snap)
		if err != nil {
			warnings = append(warnings, err.Error())
			slog.Warn("assessor failed", "task_id", snap.Task.ID, "error", err)
			continue
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: all %d assessors failed", ErrNoAssessmentAvailable, len(assessors))
	}

	report := Combine(snap.Task.ID, results, a.cfg)
	report.Warnings = warnings

	if a.cfg.Bus != nil {
		a.cfg.Bus.Publish(events.NewEvent(events.SourceAssessor, events.AssessmentReadyPayload{
			TaskID:  snap.Task.ID,
			Overall: report.Overall,
		}))
	}
	return report, nil
}

// Combine folds assessor results into a report. Duplicate dimensions keep
// the first result seen and warn in the report. Exposed separately so
// aggregation is testable without running assessors.
func Combine(taskID string, results []Result, cfg AggregatorConfig) *Report {
	if cfg.StrengthThreshold == 0 {
		cfg.StrengthThreshold = DefaultStrengthThreshold
	}
	if cfg.ImprovementThreshold == 0 {
		cfg.ImprovementThreshold = DefaultImprovementThreshold
	}

	report := &Report{
		TaskID:          taskID,
		DimensionScores: make(map[string]float64, len(results)),
	}

	findings := make(map[string][]string, len(results))
	for _, res := range results {
		if _, dup := report.DimensionScores[res.Dimension]; dup {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("duplicate dimension %q ignored", res.Dimension))
			continue
		}
		report.DimensionScores[res.Dimension] = clamp(res.Score)
		findings[res.Dimension] = res.Findings
	}

	var weightedSum, weightTotal float64
	for dim, score := range report.DimensionScores {
		w := 1.0
		if cw, ok := cfg.Weights[dim]; ok {
			w = cw
		}
		weightedSum += w * score
		weightTotal += w
	}
	if weightTotal > 0 {
		report.Overall = weightedSum / weightTotal
	}

	for dim, score := range report.DimensionScores {
		if score >= cfg.StrengthThreshold {
			report.Strengths = append(report.Strengths, dim)
		}
		if score < cfg.ImprovementThreshold {
			report.Improvements = append(report.Improvements, Opportunity{
				Dimension: dim,
				Score:     score,
				Findings:  findings[dim],
			})
		}
	}

	// Strengths descending by score, improvements ascending; ties broken
	// by name so the report is deterministic.
	sort.Slice(report.Strengths, func(i, j int) bool {
		si, sj := report.DimensionScores[report.Strengths[i]], report.DimensionScores[report.Strengths[j]]
		if si != sj {
			return si > sj
		}
		return report.Strengths[i] < report.Strengths[j]
	})
	sort.Slice(report.Improvements, func(i, j int) bool {
		if report.Improvements[i].Score != report.Improvements[j].Score {
			return report.Improvements[i].Score < report.Improvements[j].Score
		}
		return report.Improvements[i].Dimension < report.Improvements[j].Dimension
	})

	return report
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
