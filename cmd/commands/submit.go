package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// NewSubmitCommand returns the submit subcommand.
func NewSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit an objective for planning and execution",
		ArgsUsage: "<objective>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read the objective from a file instead of the arguments",
			},
		},
		Action: runSubmit,
	}
}

func runSubmit(_ context.Context, cmd *cli.Command) error {
	var objective string
	if path := cmd.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read objective file: %w", err)
		}
		objective = string(data)
	} else {
		objective = strings.Join(cmd.Args().Slice(), " ")
	}
	if strings.TrimSpace(objective) == "" {
		return fmt.Errorf("usage: weft submit <objective> (or --file plan.yaml)")
	}

	client := newAPIClient(loadConfig(cmd))

	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := client.do("POST", "/tasks", map[string]string{"objective": objective}, &resp); err != nil {
		return err
	}

	fmt.Println(resp.TaskID)
	return nil
}
