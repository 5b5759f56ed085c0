package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/weftlabs/weft/internal/assess"
)

// NewReportCommand returns the report subcommand.
func NewReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Run the assessment aggregator over a task",
		ArgsUsage: "<task_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw report as JSON",
			},
		},
		Action: runReport,
	}
}

func runReport(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: weft report <task_id>")
	}

	client := newAPIClient(loadConfig(cmd))

	var report assess.Report
	if err := client.do("GET", "/tasks/"+taskID+"/assessment", nil, &report); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return printJSON(report)
	}

	fmt.Printf("task %s — overall %.2f\n", report.TaskID, report.Overall)
	for dim, score := range report.DimensionScores {
		fmt.Printf("  %s: %.2f\n", dim, score)
	}
	if len(report.Strengths) > 0 {
		fmt.Println("strengths:", report.Strengths)
	}
	for _, opp := range report.Improvements {
		fmt.Printf("improve %s (%.2f)\n", opp.Dimension, opp.Score)
		for _, f := range opp.Findings {
			fmt.Println("  -", f)
		}
	}
	for _, warn := range report.Warnings {
		fmt.Println("warning:", warn)
	}
	return nil
}
