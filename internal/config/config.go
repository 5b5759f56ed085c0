// Package config defines and loads the engine configuration.
package config

import "time"

// Config is the root configuration for the weft engine.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	Engine     EngineConfig     `yaml:"engine"`
	Events     EventsConfig     `yaml:"events"`
	Assessment AssessmentConfig `yaml:"assessment"`
	Schedules  []ScheduleConfig `yaml:"schedules"`
}

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EngineConfig holds orchestration settings.
type EngineConfig struct {
	// DataDir is where the file store keeps task directories.
	DataDir string `yaml:"data_dir"`

	// Store selects the registry backend: "file" or "sqlite".
	Store string `yaml:"store"`

	// SQLitePath is the database path when Store is "sqlite".
	SQLitePath string `yaml:"sqlite_path"`

	// MaxTasks caps live tasks; 0 = unlimited.
	MaxTasks int `yaml:"max_tasks"`

	// StepTimeout bounds a single provider invocation.
	StepTimeout Duration `yaml:"step_timeout"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// AssessmentConfig configures the score aggregator. Dimensions absent
// from Weights weigh 1.0.
type AssessmentConfig struct {
	Weights              map[string]float64 `yaml:"weights"`
	StrengthThreshold    float64            `yaml:"strength_threshold"`
	ImprovementThreshold float64            `yaml:"improvement_threshold"`
}

// ScheduleConfig declares a recurring task submission.
type ScheduleConfig struct {
	Name      string   `yaml:"name"`
	Cron      string   `yaml:"cron"`
	Objective string   `yaml:"objective"`
	Cooldown  Duration `yaml:"cooldown"`
	MaxRuns   int      `yaml:"max_runs"` // 0 = unlimited
}

// Duration wraps time.Duration for YAML round-tripping as "5m" strings.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
