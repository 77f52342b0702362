package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RegisterBuiltins binds the engine's own introspection tools. Domain tools
// (file access, issue tracking, and the like) are registered by the host
// process; these only expose run state.
func RegisterBuiltins(reg *Registry) error {
	if err := reg.Register(Definition{
		Name:        "list_runs",
		Description: "List the IDs of known workflow runs.",
		InputSchema: map[string]any{"type": "object"},
	}, listRuns); err != nil {
		return err
	}

	return reg.Register(Definition{
		Name:        "get_run",
		Description: "Get the snapshot of a workflow run by ID.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"run_id": map[string]any{"type": "string", "description": "The run ID"},
			},
			"required": []any{"run_id"},
		},
	}, getRun)
}

func listRuns(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	if tc.Runs == nil {
		return "", fmt.Errorf("no run store configured")
	}
	ids, err := tc.Runs.List(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(ids, "\n"), nil
}

func getRun(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	if tc.Runs == nil {
		return "", fmt.Errorf("no run store configured")
	}
	run, err := tc.Runs.Load(ctx, args["run_id"].(string))
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(run)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
