package orchestrator

import (
	"log/slog"

	"github.com/weftlabs/weft/internal/registry"
)

// Recover parks all tasks left running by a previous process as paused.
// Should be called on startup before any driver starts: a task found
// running in the store without a driver was interrupted by a crash, and
// its checkpoint bounds what must be re-executed. Returns the number of
// tasks recovered.
func Recover(reg *registry.Registry) (int, error) {
	running, err := reg.List(registry.ListFilter{State: registry.StateRunning})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, t := range running {
		_, err := reg.Update(t.ID, func(t *registry.Task) error {
			t.Checkpoint = checkpoint(t.Cursor, "recovery")
			return t.Transition(registry.StatePaused)
		})
		if err != nil {
			slog.Warn("recover task", "task_id", t.ID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		slog.Info("recovered interrupted tasks", "count", recovered)
	}
	return recovered, nil
}
