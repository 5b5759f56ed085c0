package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weftlabs/weft/internal/assess"
	"github.com/weftlabs/weft/internal/executor"
	"github.com/weftlabs/weft/internal/orchestrator"
	"github.com/weftlabs/weft/internal/registry"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the engine error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrResourceExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrPlanningFailed),
		errors.Is(err, executor.ErrUnknownCapability):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, assess.ErrNoAssessmentAvailable):
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Objective string `json:"objective"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Objective == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "objective is required"})
		return
	}

	taskID, err := s.deps.Orch.Submit(r.Context(), req.Objective)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := registry.ListFilter{
		State: registry.TaskState(r.URL.Query().Get("state")),
	}
	tasks, err := s.deps.Registry.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*registry.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Evict(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Pause(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pausing"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Resume(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "running"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req) // reason is optional

	if err := s.deps.Controller.Cancel(chi.URLParam(r, "id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Reporter.Report(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Registry.Get(id); err != nil {
		writeError(w, err)
		return
	}
	history, err := s.deps.Registry.History(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []registry.StepOutcome{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.deps.Registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.deps.Registry.History(id)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := s.deps.Aggregator.Run(r.Context(), assess.Snapshot{
		Task:    *t,
		History: history,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
