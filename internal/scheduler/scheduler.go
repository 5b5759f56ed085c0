package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/events"
)

// DefaultCooldown is the minimum interval between two triggers of the
// same entry.
const DefaultCooldown = 60 * time.Second

// Submitter is how the scheduler hands tasks to the orchestrator.
type Submitter interface {
	Submit(ctx context.Context, objective string) (string, error)
}

// Config holds dependencies for the scheduler.
type Config struct {
	Submitter Submitter
	Bus       *events.Bus
	Entries   []config.ScheduleConfig
}

// entry is the runtime representation of one schedule.
type entry struct {
	name      string
	objective string
	cron      *CronExpr
	cooldown  time.Duration
	maxRuns   int // 0 = unlimited
	runCount  int
	lastRun   time.Time
}

// Scheduler fires cron-scheduled task submissions.
type Scheduler struct {
	submitter Submitter
	bus       *events.Bus

	mu      sync.Mutex
	entries map[string]*entry

	done chan struct{}
}

// New creates a Scheduler from declarative schedule configs. Entries with
// invalid cron expressions are skipped with a warning.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		submitter: cfg.Submitter,
		bus:       cfg.Bus,
		entries:   make(map[string]*entry),
		done:      make(chan struct{}),
	}

	for _, sc := range cfg.Entries {
		expr, err := ParseCron(sc.Cron)
		if err != nil {
			slog.Warn("scheduler: invalid cron", "entry", sc.Name, "error", err)
			continue
		}
		cooldown := sc.Cooldown.Duration()
		if cooldown == 0 {
			cooldown = DefaultCooldown
		}
		s.entries[sc.Name] = &entry{
			name:      sc.Name,
			objective: sc.Objective,
			cron:      expr,
			cooldown:  cooldown,
			maxRuns:   sc.MaxRuns,
		}
	}
	return s
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	slog.Info("scheduler started", "entries", len(s.entries))
	go s.cronLoop()
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	close(s.done)
	slog.Info("scheduler stopped")
}

func (s *Scheduler) cronLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick fires every due entry. Exported to entries via the minute ticker;
// factored out so tests can drive it directly.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.cron.Matches(now) {
			continue
		}
		if now.Sub(e.lastRun) < e.cooldown {
			continue
		}
		if e.maxRuns > 0 && e.runCount >= e.maxRuns {
			continue
		}
		e.lastRun = now
		e.runCount++
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		taskID, err := s.submitter.Submit(context.Background(), e.objective)
		if err != nil {
			slog.Warn("scheduler: submit failed", "entry", e.name, "error", err)
			continue
		}
		slog.Info("scheduler: triggered entry", "entry", e.name, "task_id", taskID)
		s.bus.Publish(events.NewEvent(events.SourceScheduler, events.ScheduleTriggerPayload{
			Entry:  e.name,
			TaskID: taskID,
		}))
	}
}
