package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/weftlabs/weft/internal/registry"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "Filter by state (planning, running, paused, completed, failed, cancelled)",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "history",
				Usage:     "Show a task's step outcome history",
				ArgsUsage: "<task_id>",
				Action:    runTasksHistory,
			},
			{
				Name:      "evict",
				Usage:     "Remove a terminal task from the registry",
				ArgsUsage: "<task_id>",
				Action:    runTasksEvict,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	client := newAPIClient(loadConfig(cmd))

	path := "/tasks"
	if state := cmd.String("state"); state != "" {
		path += "?state=" + state
	}

	var tasks []registry.Task
	if err := client.do("GET", path, nil, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tPROGRESS\tOBJECTIVE")
	for _, t := range tasks {
		progress := "-"
		if len(t.Plan) > 0 {
			progress = fmt.Sprintf("%d/%d", t.Cursor, len(t.Plan))
		}
		objective := t.Objective
		if len(objective) > 60 {
			objective = objective[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.State, progress, objective)
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: weft tasks show <task_id>")
	}

	client := newAPIClient(loadConfig(cmd))

	var task registry.Task
	if err := client.do("GET", "/tasks/"+taskID, nil, &task); err != nil {
		return err
	}
	return printJSON(task)
}

func runTasksHistory(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: weft tasks history <task_id>")
	}

	client := newAPIClient(loadConfig(cmd))

	var history []registry.StepOutcome
	if err := client.do("GET", "/tasks/"+taskID+"/history", nil, &history); err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No step outcomes recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tATTEMPT\tRESULT\tERROR")
	for _, o := range history {
		errMsg := o.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", o.StepID, o.Attempt, o.Result, errMsg)
	}
	return w.Flush()
}

func runTasksEvict(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: weft tasks evict <task_id>")
	}

	client := newAPIClient(loadConfig(cmd))
	if err := client.do("DELETE", "/tasks/"+taskID, nil, nil); err != nil {
		return err
	}
	fmt.Println("evicted", taskID)
	return nil
}
