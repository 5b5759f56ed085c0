package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftlabs/weft/internal/orchestrator"
	"github.com/weftlabs/weft/internal/registry"
)

// planDoc is the YAML shape the declarative planner accepts. JSON objectives
// parse too, YAML being a superset.
type planDoc struct {
	Steps []planStep `yaml:"steps"`
}

type planStep struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	Capability string    `yaml:"capability"`
	Input      any       `yaml:"input"`
	Rank       int       `yaml:"rank"`
	Retry      planRetry `yaml:"retry"`
}

type planRetry struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
}

// DeclarativePlanner parses the objective itself as a YAML plan document:
//
//	steps:
//	  - name: fetch
//	    capability: shell
//	    input: {command: "curl -s https://example.com"}
//	  - name: wait
//	    capability: sleep
//	    input: {duration: 2s}
//
// An objective that is not a plan document is a planning failure.
func DeclarativePlanner() orchestrator.Planner {
	return orchestrator.PlannerFunc(planObjective)
}

func planObjective(_ context.Context, objective string) ([]registry.Step, error) {
	var doc planDoc
	if err := yaml.Unmarshal([]byte(objective), &doc); err != nil {
		return nil, fmt.Errorf("objective is not a plan document: %w", err)
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("objective declares no steps")
	}

	plan := make([]registry.Step, 0, len(doc.Steps))
	for i, ps := range doc.Steps {
		if ps.Capability == "" {
			return nil, fmt.Errorf("step %d: capability is required", i+1)
		}
		step := registry.Step{
			ID:         ps.ID,
			Name:       ps.Name,
			Capability: ps.Capability,
			Rank:       ps.Rank,
		}
		if ps.Input != nil {
			raw, err := json.Marshal(normalizeYAML(ps.Input))
			if err != nil {
				return nil, fmt.Errorf("step %d: encode input: %w", i+1, err)
			}
			step.Input = raw
		}
		retry, err := ps.Retry.toPolicy()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		step.Retry = retry
		plan = append(plan, step)
	}
	return plan, nil
}

func (r planRetry) toPolicy() (registry.RetryPolicy, error) {
	p := registry.RetryPolicy{MaxAttempts: r.MaxAttempts}
	if r.BaseDelay != "" {
		d, err := time.ParseDuration(r.BaseDelay)
		if err != nil {
			return p, fmt.Errorf("parse retry base_delay: %w", err)
		}
		p.BaseDelay = d
	}
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return p, fmt.Errorf("parse retry max_delay: %w", err)
		}
		p.MaxDelay = d
	}
	return p, nil
}

// normalizeYAML converts map[any]any trees produced by YAML decoding into
// map[string]any so they survive json.Marshal.
func normalizeYAML(v any) any {
	switch v := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = normalizeYAML(val)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, val := range v {
			s[i] = normalizeYAML(val)
		}
		return s
	default:
		return v
	}
}
