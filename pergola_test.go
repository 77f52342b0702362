package pergola_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmvf/pergola"
	"github.com/lucasmvf/pergola/pkg/domain"
)

func writeProjectWorkflow(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, ".pergola", "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(body), 0o644))
}

type echoExecutor struct{}

func (echoExecutor) ExecutePrompt(ctx context.Context, system, prompt string, vars map[string]any) (string, error) {
	return "echo: " + prompt, nil
}

func TestEngineRunsBuiltinWorkflow(t *testing.T) {
	eng, err := pergola.New(t.TempDir(), pergola.WithExecutor(echoExecutor{}))
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), "release-notes", map[string]any{
		"topic": "networking",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.Equal(t, []string{"gather", "draft", "breaking", "review"}, run.History)
	assert.Contains(t, run.Context["findings"], "networking")
	assert.NotEmpty(t, run.Context["final_notes"])

	// Defaults were settled into the context.
	assert.Equal(t, "users", run.Context["audience"])
	assert.Equal(t, true, run.Context["include_breaking"])
}

func TestEngineSkipsBreakingSectionWhenDisabled(t *testing.T) {
	eng, err := pergola.New(t.TempDir(), pergola.WithExecutor(echoExecutor{}))
	require.NoError(t, err)

	run, err := eng.Run(context.Background(), "release-notes", map[string]any{
		"topic":            "networking",
		"include_breaking": "false",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gather", "draft", "review"}, run.History)
}

func TestEngineRejectsInvalidParameter(t *testing.T) {
	eng, err := pergola.New(t.TempDir(), pergola.WithExecutor(echoExecutor{}))
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), "release-notes", map[string]any{
		"topic":        "networking",
		"detail_level": "7",
	})
	require.Error(t, err)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "detail_level", vErr.Parameter)
	assert.Equal(t, "max", vErr.Rule)
}

func TestEngineStoresRuns(t *testing.T) {
	eng, err := pergola.New(t.TempDir(), pergola.WithExecutor(echoExecutor{}))
	require.NoError(t, err)
	ctx := context.Background()

	run, err := eng.Run(ctx, "release-notes", map[string]any{"topic": "git"})
	require.NoError(t, err)

	ids, err := eng.Runs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, run.ID)

	stored, err := eng.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	_, err = eng.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEngineListsAndInspectsWorkflows(t *testing.T) {
	eng, err := pergola.New(t.TempDir(), pergola.WithExecutor(echoExecutor{}))
	require.NoError(t, err)

	names, err := eng.Workflows()
	require.NoError(t, err)
	assert.Contains(t, names, "release-notes")

	w, err := eng.Workflow("release-notes")
	require.NoError(t, err)
	assert.Equal(t, "gather", w.InitialState)

	_, err = eng.Workflow("ghost")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestEngineProjectTierShadowsBuiltin(t *testing.T) {
	root := t.TempDir()
	writeProjectWorkflow(t, root, "release-notes", strings.TrimSpace(`
---
description: project override
initial_state: only
---

## only

Say hi.
`)+"\n")

	eng, err := pergola.New(root, pergola.WithExecutor(echoExecutor{}))
	require.NoError(t, err)

	w, err := eng.Workflow("release-notes")
	require.NoError(t, err)
	assert.Equal(t, "project", w.Source)
	assert.Equal(t, "only", w.InitialState)
}
