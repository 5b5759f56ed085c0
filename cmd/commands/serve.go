package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/weftlabs/weft/internal/assess"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/executor"
	"github.com/weftlabs/weft/internal/gateway"
	"github.com/weftlabs/weft/internal/orchestrator"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/providers"
	"github.com/weftlabs/weft/internal/registry"
	"github.com/weftlabs/weft/internal/scheduler"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the weft engine and gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

// engine bundles the wired core so serve and mcp-serve share one setup path.
type engine struct {
	cfg        *config.Config
	bus        *events.Bus
	registry   *registry.Registry
	orch       *orchestrator.Orchestrator
	controller *orchestrator.Controller
	reporter   *progress.Reporter
	aggregator *assess.Aggregator
	storeClose io.Closer
}

func (e *engine) close() {
	e.orch.Stop()
	e.bus.Close()
	if e.storeClose != nil {
		if err := e.storeClose.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
	}
}

func loadConfig(cmd *cli.Command) *config.Config {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}
	return cfg
}

func buildEngine(cfg *config.Config) (*engine, error) {
	var (
		store      registry.Store
		storeClose io.Closer
	)
	switch cfg.Engine.Store {
	case "sqlite":
		s, err := registry.NewSQLiteStore(cfg.Engine.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, storeClose = s, s
	default:
		store = registry.NewFileStore(cfg.Engine.DataDir)
	}

	reg := registry.New(store, cfg.Engine.MaxTasks)
	bus := events.NewBus(cfg.Events.BufferSize)

	provs := executor.NewProviders()
	providers.RegisterBuiltins(provs)

	exec := executor.New(executor.Config{
		Registry:    reg,
		Providers:   provs,
		Bus:         bus,
		StepTimeout: cfg.Engine.StepTimeout.Duration(),
	})

	orch := orchestrator.New(orchestrator.Config{
		Registry: reg,
		Executor: exec,
		Planner:  providers.DeclarativePlanner(),
		Bus:      bus,
	})

	agg := assess.NewAggregator(assess.AggregatorConfig{
		Weights:              cfg.Assessment.Weights,
		StrengthThreshold:    cfg.Assessment.StrengthThreshold,
		ImprovementThreshold: cfg.Assessment.ImprovementThreshold,
		Bus:                  bus,
	})
	agg.Register(assess.CompletionAssessor())
	agg.Register(assess.ReliabilityAssessor())

	return &engine{
		cfg:        cfg,
		bus:        bus,
		registry:   reg,
		orch:       orch,
		controller: orchestrator.NewController(orch),
		reporter:   progress.NewReporter(reg),
		aggregator: agg,
		storeClose: storeClose,
	}, nil
}

func runServe(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	// Tasks left running by a previous process are parked paused so they
	// can be resumed rather than silently lost.
	if _, err := orchestrator.Recover(eng.registry); err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}

	eng.orch.Start()

	sched := scheduler.New(scheduler.Config{
		Submitter: eng.orch,
		Bus:       eng.bus,
		Entries:   cfg.Schedules,
	})
	sched.Start()
	defer sched.Stop()

	server := gateway.NewServer(gateway.Deps{
		Registry:   eng.registry,
		Orch:       eng.orch,
		Controller: eng.controller,
		Reporter:   eng.reporter,
		Aggregator: eng.aggregator,
		Bus:        eng.bus,
	}, cfg.Gateway.Host, cfg.Gateway.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
