package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/weftlabs/weft/internal/progress"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a task's progress",
		ArgsUsage: "<task_id>",
		Action:    runStatus,
	}
}

func runStatus(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: weft status <task_id>")
	}

	client := newAPIClient(loadConfig(cmd))

	var view progress.View
	if err := client.do("GET", "/tasks/"+taskID+"/report", nil, &view); err != nil {
		return err
	}

	fmt.Printf("%s: %s, step %d/%d (%d%%)\n",
		view.TaskID, view.State, view.Cursor, view.TotalSteps, view.PercentComplete)
	if view.LastOutcome != nil {
		fmt.Printf("last step: %s attempt %d → %s\n",
			view.LastOutcome.StepID, view.LastOutcome.Attempt, view.LastOutcome.Result)
	}
	return nil
}
