// Package mcp exposes the weft engine as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/weftlabs/weft/internal/assess"
	"github.com/weftlabs/weft/internal/orchestrator"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/registry"
)

// Deps carries the engine surfaces the MCP tools call into.
type Deps struct {
	Registry   *registry.Registry
	Orch       *orchestrator.Orchestrator
	Controller *orchestrator.Controller
	Reporter   *progress.Reporter
	Aggregator *assess.Aggregator
}

// NewMCPServer creates an MCP server exposing task orchestration tools.
func NewMCPServer(deps Deps) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "weft",
		Version: "0.1.0",
	}, nil)

	addTool(server, "submit_task",
		"Submit an objective for planning and execution. Returns the task id.",
		objectSchema(map[string]any{
			"objective": prop("string", "What the task should accomplish"),
		}, "objective"),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Objective string `json:"objective"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			taskID, err := deps.Orch.Submit(ctx, in.Objective)
			if err != nil {
				return nil, err
			}
			return map[string]string{"task_id": taskID}, nil
		})

	addTool(server, "task_status",
		"Get the current state and progress of a task.",
		objectSchema(map[string]any{
			"task_id": prop("string", "The task identifier"),
		}, "task_id"),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			in, err := taskIDArg(args)
			if err != nil {
				return nil, err
			}
			return deps.Reporter.Report(in)
		})

	addTool(server, "list_tasks",
		"List known tasks, optionally filtered by state.",
		objectSchema(map[string]any{
			"state": propEnum("string", "Filter by task state",
				"planning", "running", "paused", "completed", "failed", "cancelled"),
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				State string `json:"state"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}
			}
			return deps.Registry.List(registry.ListFilter{State: registry.TaskState(in.State)})
		})

	addTool(server, "pause_task",
		"Request a running task to pause at the next step boundary.",
		objectSchema(map[string]any{
			"task_id": prop("string", "The task identifier"),
		}, "task_id"),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			in, err := taskIDArg(args)
			if err != nil {
				return nil, err
			}
			if err := deps.Controller.Pause(in); err != nil {
				return nil, err
			}
			return map[string]string{"task_id": in, "status": "pause requested"}, nil
		})

	addTool(server, "resume_task",
		"Resume a paused task from its checkpoint.",
		objectSchema(map[string]any{
			"task_id": prop("string", "The task identifier"),
		}, "task_id"),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			in, err := taskIDArg(args)
			if err != nil {
				return nil, err
			}
			if err := deps.Controller.Resume(in); err != nil {
				return nil, err
			}
			return map[string]string{"task_id": in, "status": "resumed"}, nil
		})

	addTool(server, "cancel_task",
		"Cancel a task. Steps already recorded are kept, no further steps run.",
		objectSchema(map[string]any{
			"task_id": prop("string", "The task identifier"),
			"reason":  prop("string", "Optional reason recorded on the checkpoint"),
		}, "task_id"),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID string `json:"task_id"`
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if in.TaskID == "" {
				return nil, fmt.Errorf("task_id is required")
			}
			if err := deps.Controller.Cancel(in.TaskID, in.Reason); err != nil {
				return nil, err
			}
			return map[string]string{"task_id": in.TaskID, "status": "cancelled"}, nil
		})

	addTool(server, "task_report",
		"Run the assessment aggregator over a task and return the report.",
		objectSchema(map[string]any{
			"task_id": prop("string", "The task identifier"),
		}, "task_id"),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			in, err := taskIDArg(args)
			if err != nil {
				return nil, err
			}
			task, err := deps.Registry.Get(in)
			if err != nil {
				return nil, err
			}
			history, err := deps.Registry.History(in)
			if err != nil {
				return nil, err
			}
			return deps.Aggregator.Run(ctx, assess.Snapshot{Task: *task, History: history})
		})

	return server
}

type toolHandler func(ctx context.Context, args json.RawMessage) (any, error)

func addTool(server *mcpsdk.Server, name, description string, schema map[string]any, handler toolHandler) {
	server.AddTool(&mcpsdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		result, err := handler(ctx, json.RawMessage(req.Params.Arguments))
		if err != nil {
			slog.Debug("mcp tool error", "tool", name, "error", err)
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		}, nil
	})
	slog.Debug("mcp tool registered", "tool", name)
}

func taskIDArg(args json.RawMessage) (string, error) {
	var in struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if in.TaskID == "" {
		return "", fmt.Errorf("task_id is required")
	}
	return in.TaskID, nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func propEnum(typ, description string, values ...string) map[string]any {
	p := prop(typ, description)
	p["enum"] = values
	return p
}
