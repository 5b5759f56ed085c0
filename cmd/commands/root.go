package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/weftlabs/weft/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "weft",
		Usage: "Task orchestration and assessment engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewSubmitCommand(),
			NewTasksCommand(),
			NewStatusCommand(),
			NewPauseCommand(),
			NewResumeCommand(),
			NewCancelCommand(),
			NewReportCommand(),
			NewMCPServeCommand(),
		},
	}
}
