package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/weftlabs/weft/internal/config"
	weftmcp "github.com/weftlabs/weft/internal/mcp"
	"github.com/weftlabs/weft/internal/orchestrator"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp-serve",
		Usage:  "Expose the weft engine as an MCP server (stdio)",
		Action: runMCPServe,
	}
}

func runMCPServe(_ context.Context, cmd *cli.Command) error {
	// Logging goes to stderr, stdout carries the MCP stdio transport.
	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Debug("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	ctx := context.Background()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	if _, err := orchestrator.Recover(eng.registry); err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}

	eng.orch.Start()

	server := weftmcp.NewMCPServer(weftmcp.Deps{
		Registry:   eng.registry,
		Orch:       eng.orch,
		Controller: eng.controller,
		Reporter:   eng.reporter,
		Aggregator: eng.aggregator,
	})
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
