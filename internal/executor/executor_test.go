package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/registry"
)

func newTestExecutor(t *testing.T, provs *Providers, timeout time.Duration) (*Executor, *registry.Registry, string) {
	t.Helper()

	reg := registry.New(registry.NewMemStore(), 0)
	task, err := reg.Create("test objective")
	if err != nil {
		t.Fatal(err)
	}

	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	exec := New(Config{Registry: reg, Providers: provs, Bus: bus, StepTimeout: timeout})
	return exec, reg, task.ID
}

func TestExecute_Success(t *testing.T) {
	provs := NewProviders()
	provs.Register("echo", ProviderFunc(func(_ context.Context, input json.RawMessage) (string, error) {
		return string(input), nil
	}))

	exec, reg, taskID := newTestExecutor(t, provs, 0)

	step := registry.Step{ID: "1-echo", Capability: "echo", Input: json.RawMessage(`"hello"`)}
	out, err := exec.Execute(context.Background(), taskID, step)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != registry.ResultSuccess {
		t.Errorf("result = %s, want success", out.Result)
	}
	if out.Output != `"hello"` {
		t.Errorf("output = %q", out.Output)
	}

	history, err := reg.History(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}

func TestExecute_UnknownCapability(t *testing.T) {
	exec, reg, taskID := newTestExecutor(t, NewProviders(), 0)

	step := registry.Step{ID: "1-x", Capability: "nope"}
	_, err := exec.Execute(context.Background(), taskID, step)
	if !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}

	// A configuration error never burns an attempt.
	history, _ := reg.History(taskID)
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0", len(history))
	}
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	provs := NewProviders()
	provs.Register("flaky", ProviderFunc(func(_ context.Context, _ json.RawMessage) (string, error) {
		if calls.Add(1) < 3 {
			return "", fmt.Errorf("%w: transient", ErrProviderFailure)
		}
		return "finally", nil
	}))

	exec, reg, taskID := newTestExecutor(t, provs, 0)

	step := registry.Step{
		ID:         "1-flaky",
		Capability: "flaky",
		Retry:      registry.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
	out, err := exec.Execute(context.Background(), taskID, step)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != registry.ResultSuccess {
		t.Fatalf("result = %s, want success", out.Result)
	}
	if out.Attempt != 3 {
		t.Errorf("final attempt = %d, want 3", out.Attempt)
	}

	// Every attempt is in history: two failures then the success.
	history, err := reg.History(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Result != registry.ResultFailure || history[1].Result != registry.ResultFailure {
		t.Error("expected first two attempts to be failures")
	}
	if history[2].Result != registry.ResultSuccess {
		t.Error("expected final attempt to succeed")
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	provs := NewProviders()
	provs.Register("dead", ProviderFunc(func(_ context.Context, _ json.RawMessage) (string, error) {
		return "", fmt.Errorf("%w: always down", ErrProviderFailure)
	}))

	exec, reg, taskID := newTestExecutor(t, provs, 0)

	step := registry.Step{
		ID:         "1-dead",
		Capability: "dead",
		Retry:      registry.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}
	out, err := exec.Execute(context.Background(), taskID, step)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != registry.ResultFailure {
		t.Errorf("result = %s, want failure", out.Result)
	}
	if out.Attempt != 2 {
		t.Errorf("final attempt = %d, want 2", out.Attempt)
	}

	history, _ := reg.History(taskID)
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestExecute_TimeoutIsFailure(t *testing.T) {
	provs := NewProviders()
	provs.Register("slow", ProviderFunc(func(ctx context.Context, _ json.RawMessage) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}))

	exec, _, taskID := newTestExecutor(t, provs, 10*time.Millisecond)

	step := registry.Step{ID: "1-slow", Capability: "slow"}
	out, err := exec.Execute(context.Background(), taskID, step)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != registry.ResultFailure {
		t.Errorf("timeout result = %s, want failure", out.Result)
	}
}

func TestExecute_NoRetryPolicyMeansOneAttempt(t *testing.T) {
	var calls atomic.Int32
	provs := NewProviders()
	provs.Register("count", ProviderFunc(func(_ context.Context, _ json.RawMessage) (string, error) {
		calls.Add(1)
		return "", errors.New("nope")
	}))

	exec, _, taskID := newTestExecutor(t, provs, 0)

	step := registry.Step{ID: "1-count", Capability: "count"}
	if _, err := exec.Execute(context.Background(), taskID, step); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestProvidersCapabilities_Sorted(t *testing.T) {
	provs := NewProviders()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		provs.Register(name, ProviderFunc(func(_ context.Context, _ json.RawMessage) (string, error) {
			return "", nil
		}))
	}

	caps := provs.Capabilities()
	want := []string{"alpha", "mid", "zeta"}
	if len(caps) != len(want) {
		t.Fatalf("capabilities = %v", caps)
	}
	for i := range want {
		if caps[i] != want[i] {
			t.Errorf("capabilities[%d] = %s, want %s", i, caps[i], want[i])
		}
	}
}
