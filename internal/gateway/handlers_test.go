package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weftlabs/weft/internal/assess"
	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/executor"
	"github.com/weftlabs/weft/internal/orchestrator"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/registry"
)

// newTestServer wires a full in-memory engine behind the HTTP router. The
// planner produces a single "noop" step unless the objective is
// "unplannable", and the registered assessor always scores 1.0.
func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()

	reg := registry.New(registry.NewMemStore(), 0)
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	providers := executor.NewProviders()
	providers.Register("noop", executor.ProviderFunc(
		func(ctx context.Context, input json.RawMessage) (string, error) {
			return "ok", nil
		},
	))

	exec := executor.New(executor.Config{
		Registry:  reg,
		Providers: providers,
		Bus:       bus,
	})

	planner := orchestrator.PlannerFunc(
		func(ctx context.Context, objective string) ([]registry.Step, error) {
			if objective == "unplannable" {
				return nil, fmt.Errorf("no decomposition found")
			}
			return []registry.Step{{Name: "work", Capability: "noop"}}, nil
		},
	)

	orch := orchestrator.New(orchestrator.Config{
		Registry: reg,
		Executor: exec,
		Planner:  planner,
		Bus:      bus,
	})
	orch.Start()
	t.Cleanup(orch.Stop)

	agg := assess.NewAggregator(assess.AggregatorConfig{})
	agg.Register(assess.AssessorFunc(
		func(ctx context.Context, snap assess.Snapshot) (assess.Result, error) {
			return assess.Result{Dimension: "completion", Score: 1.0}, nil
		},
	))

	srv := NewServer(Deps{
		Registry:   reg,
		Orch:       orch,
		Controller: orchestrator.NewController(orch),
		Reporter:   progress.NewReporter(reg),
		Aggregator: agg,
		Bus:        bus,
	}, "127.0.0.1", 0)

	return srv, reg
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// seedTask creates a task directly in the registry and walks it to the
// requested state with a two-step plan, bypassing the orchestrator.
func seedTask(t *testing.T, reg *registry.Registry, state registry.TaskState) *registry.Task {
	t.Helper()

	task, err := reg.Create("seeded objective")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if state == registry.StatePlanning {
		return task
	}

	task, err = reg.Update(task.ID, func(tk *registry.Task) error {
		tk.Plan = []registry.Step{
			{ID: "1-a", Name: "a", Capability: "noop", Rank: 1},
			{ID: "2-b", Name: "b", Capability: "noop", Rank: 2},
		}
		if err := tk.Transition(registry.StateRunning); err != nil {
			return err
		}
		if state == registry.StateRunning {
			return nil
		}
		return tk.Transition(state)
	})
	if err != nil {
		t.Fatalf("seed task to %s: %v", state, err)
	}
	return task
}

func waitForTaskState(t *testing.T, reg *registry.Registry, id string, want registry.TaskState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err := reg.Get(id)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := reg.Get(id)
	t.Fatalf("task never reached %s, still %s", want, task.State)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestSubmitRunsTask(t *testing.T) {
	srv, reg := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", map[string]string{"objective": "do the thing"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["task_id"] == "" {
		t.Fatal("submit returned no task_id")
	}

	waitForTaskState(t, reg, body["task_id"], registry.StateCompleted)
}

func TestSubmitRejectsEmptyObjective(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("submit status = %d, want 400", rec.Code)
	}
}

func TestSubmitPlanningFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", map[string]string{"objective": "unplannable"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTask(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateRunning)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/"+task.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var got registry.Task
	decodeBody(t, rec, &got)
	if got.ID != task.ID || got.State != registry.StateRunning {
		t.Errorf("got task %s in %s, want %s running", got.ID, got.State, task.ID)
	}
}

func TestGetUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/task-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get status = %d, want 404", rec.Code)
	}
}

func TestListFiltersByState(t *testing.T) {
	srv, reg := newTestServer(t)
	seedTask(t, reg, registry.StateRunning)
	seedTask(t, reg, registry.StateCompleted)
	seedTask(t, reg, registry.StateCompleted)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks?state=completed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var tasks []registry.Task
	decodeBody(t, rec, &tasks)
	if len(tasks) != 2 {
		t.Fatalf("got %d completed tasks, want 2", len(tasks))
	}
	for _, tk := range tasks {
		if tk.State != registry.StateCompleted {
			t.Errorf("task %s state = %s, want completed", tk.ID, tk.State)
		}
	}
}

func TestListEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("empty list body = %q, want []", got)
	}
}

func TestPauseRequiresRunning(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateCompleted)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/pause", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("pause status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestResumePausedTask(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StatePaused)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/resume", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resume status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	waitForTaskState(t, reg, task.ID, registry.StateCompleted)
}

func TestResumeRequiresPaused(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateRunning)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/resume", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("resume status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelTask(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StatePaused)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/cancel", map[string]string{"reason": "operator request"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	waitForTaskState(t, reg, task.ID, registry.StateCancelled)
}

func TestCancelTerminalTask(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateFailed)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestEvictLiveTask(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateRunning)

	rec := doRequest(t, srv, http.MethodDelete, "/api/tasks/"+task.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("evict status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestEvictTerminalTask(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateCompleted)

	rec := doRequest(t, srv, http.MethodDelete, "/api/tasks/"+task.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("evict status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tasks/"+task.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after evict status = %d, want 404", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateCompleted)

	for i := 1; i <= 2; i++ {
		err := reg.AppendOutcome(task.ID, registry.StepOutcome{
			StepID:  fmt.Sprintf("%d-a", i),
			Attempt: 1,
			Result:  registry.ResultSuccess,
		})
		if err != nil {
			t.Fatalf("append outcome: %v", err)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/"+task.ID+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	var history []registry.StepOutcome
	decodeBody(t, rec, &history)
	if len(history) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(history))
	}
	if history[0].StepID != "1-a" || history[1].StepID != "2-a" {
		t.Errorf("history out of order: %s, %s", history[0].StepID, history[1].StepID)
	}
}

func TestHistoryUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/task-missing/history", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("history status = %d, want 404", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateRunning)
	if _, err := reg.Update(task.ID, func(tk *registry.Task) error {
		tk.Cursor = 1
		return nil
	}); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/"+task.ID+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, want 200", rec.Code)
	}
	var view progress.View
	decodeBody(t, rec, &view)
	if view.Cursor != 1 || view.TotalSteps != 2 || view.PercentComplete != 50 {
		t.Errorf("view = %d/%d (%d%%), want 1/2 (50%%)", view.Cursor, view.TotalSteps, view.PercentComplete)
	}
}

func TestAssessmentEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateCompleted)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/"+task.ID+"/assessment", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assessment status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var report assess.Report
	decodeBody(t, rec, &report)
	if report.TaskID != task.ID {
		t.Errorf("report task = %s, want %s", report.TaskID, task.ID)
	}
	if report.Overall != 1.0 {
		t.Errorf("overall = %f, want 1.0", report.Overall)
	}
}

func TestAssessmentNoneAvailable(t *testing.T) {
	srv, reg := newTestServer(t)
	task := seedTask(t, reg, registry.StateCompleted)

	// Replace the aggregator with one whose only assessor fails.
	agg := assess.NewAggregator(assess.AggregatorConfig{})
	agg.Register(assess.AssessorFunc(
		func(ctx context.Context, snap assess.Snapshot) (assess.Result, error) {
			return assess.Result{}, fmt.Errorf("nothing to say")
		},
	))
	srv.deps.Aggregator = agg

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/"+task.ID+"/assessment", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("assessment status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	seedTask(t, reg, registry.StatePlanning)

	rec := doRequest(t, srv, http.MethodGet, "/api/events?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d, want 200", rec.Code)
	}
	var evts []events.Event
	decodeBody(t, rec, &evts)
	// History only holds what the bus has dispatched; nothing here was
	// published, so an empty array is acceptable. The endpoint just has
	// to answer with valid JSON.
	_ = evts
}
