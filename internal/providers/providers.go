// Package providers ships the built-in capability providers and the
// declarative planner.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/weftlabs/weft/internal/executor"
)

// RegisterBuiltins binds the built-in providers to their capability names.
func RegisterBuiltins(reg *executor.Providers) {
	reg.Register("shell", &ShellProvider{})
	reg.Register("sleep", executor.ProviderFunc(sleepProvider))
	reg.Register("static", executor.ProviderFunc(staticProvider))
}

type shellInput struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
}

type shellOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// ShellProvider runs a shell command through an embedded POSIX interpreter
// and returns stdout/stderr as JSON. A non-zero exit code is a failure so
// the step's retry policy applies.
type ShellProvider struct{}

func (*ShellProvider) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("shell: parse input: %w", err)
	}
	if in.Command == "" {
		return "", fmt.Errorf("shell: command is required")
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(in.Command), "")
	if err != nil {
		return "", fmt.Errorf("shell: parse command: %w", err)
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{interp.StdIO(nil, &stdout, &stderr)}
	if in.WorkingDir != "" {
		opts = append(opts, interp.Dir(in.WorkingDir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return "", fmt.Errorf("shell: init interpreter: %w", err)
	}

	exitCode := 0
	if err := runner.Run(ctx, file); err != nil {
		status, ok := interp.IsExitStatus(err)
		if !ok {
			return "", fmt.Errorf("shell: run: %w", err)
		}
		exitCode = int(status)
	}

	result := shellOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("shell: marshal result: %w", err)
	}
	if exitCode != 0 {
		return string(out), fmt.Errorf("shell: exit code %d", exitCode)
	}
	return string(out), nil
}

// sleepProvider blocks for the requested duration or until the attempt
// deadline cuts it short. Useful for pacing plans and for tests.
func sleepProvider(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Duration string `json:"duration"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("sleep: parse input: %w", err)
	}
	d, err := time.ParseDuration(in.Duration)
	if err != nil {
		return "", fmt.Errorf("sleep: parse duration: %w", err)
	}

	select {
	case <-time.After(d):
		return fmt.Sprintf("slept %s", d), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// staticProvider echoes its input back. A plan step that carries its own
// result, handy for wiring plans together and for tests.
func staticProvider(_ context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("static: parse input: %w", err)
	}
	return in.Output, nil
}
