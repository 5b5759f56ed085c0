package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewPauseCommand returns the pause subcommand.
func NewPauseCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause",
		Usage:     "Pause a running task at its next step boundary",
		ArgsUsage: "<task_id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return controlAction(cmd, "pause", nil)
		},
	}
}

// NewResumeCommand returns the resume subcommand.
func NewResumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a paused task from its checkpoint",
		ArgsUsage: "<task_id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return controlAction(cmd, "resume", nil)
		},
	}
}

// NewCancelCommand returns the cancel subcommand.
func NewCancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a task",
		ArgsUsage: "<task_id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "reason",
				Usage: "Reason recorded on the cancellation checkpoint",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			var body any
			if reason := cmd.String("reason"); reason != "" {
				body = map[string]string{"reason": reason}
			}
			return controlAction(cmd, "cancel", body)
		},
	}
}

func controlAction(cmd *cli.Command, verb string, body any) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: weft %s <task_id>", verb)
	}

	client := newAPIClient(loadConfig(cmd))

	var resp struct {
		Status string `json:"status"`
	}
	if err := client.do("POST", "/tasks/"+taskID+"/"+verb, body, &resp); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", taskID, resp.Status)
	return nil
}
