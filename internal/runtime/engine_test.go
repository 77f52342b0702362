package runtime_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmvf/pergola/internal/adapters/memory"
	"github.com/lucasmvf/pergola/internal/loader"
	"github.com/lucasmvf/pergola/internal/runtime"
	"github.com/lucasmvf/pergola/pkg/agent"
	"github.com/lucasmvf/pergola/pkg/domain"
)

type mapLoader map[string]*domain.Workflow

func (m mapLoader) Get(name string) (*domain.Workflow, error) {
	w, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", name, domain.ErrWorkflowNotFound)
	}
	return w, nil
}

func (m mapLoader) List() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type promptCall struct {
	System string
	Prompt string
}

// scriptedExecutor records calls and answers with fn, or "echo:<prompt>"
// when fn is nil.
type scriptedExecutor struct {
	mu    sync.Mutex
	calls []promptCall
	fn    func(ctx context.Context, system, prompt string, vars map[string]any) (string, error)
}

func (s *scriptedExecutor) ExecutePrompt(ctx context.Context, system, prompt string, vars map[string]any) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, promptCall{System: system, Prompt: prompt})
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(ctx, system, prompt, vars)
	}
	return "echo:" + prompt, nil
}

func (s *scriptedExecutor) recorded() []promptCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]promptCall(nil), s.calls...)
}

func validated(t *testing.T, w *domain.Workflow) *domain.Workflow {
	t.Helper()
	require.NoError(t, loader.Validate(w))
	return w
}

func summarizeWorkflow(t *testing.T) *domain.Workflow {
	return validated(t, &domain.Workflow{
		Name:         "summarize",
		InitialState: "gather",
		Parameters: []domain.Parameter{
			{Name: "topic", Type: domain.ParamString, Required: true},
		},
		States: []domain.State{
			{
				ID:          "gather",
				Prompt:      "Summarize recent changes about {{topic}}.",
				Output:      "findings",
				Transitions: []domain.Transition{{To: "draft"}},
			},
			{
				ID:     "draft",
				System: "You write tersely.",
				Prompt: "Draft notes from: {{findings}}",
				Output: "notes",
			},
		},
	})
}

func TestRunResolvesParametersBeforeFirstState(t *testing.T) {
	exec := &scriptedExecutor{}
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithExecutor(exec),
	)

	run, err := eng.Run(context.Background(), "summarize", map[string]any{"topic": "git"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.Equal(t, []string{"gather", "draft"}, run.History)

	calls := exec.recorded()
	require.Len(t, calls, 2)
	// The parameter was settled into the context before the first state.
	assert.Equal(t, "Summarize recent changes about git.", calls[0].Prompt)
	assert.Equal(t, "You write tersely.", calls[1].System)
	assert.Equal(t, "Draft notes from: echo:Summarize recent changes about git.", calls[1].Prompt)

	assert.Equal(t, "git", run.Context["topic"])
	assert.NotEmpty(t, run.Context["notes"])
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.EndedAt.IsZero())
}

func TestRunMissingRequiredParameter(t *testing.T) {
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithExecutor(&scriptedExecutor{}),
	)

	_, err := eng.Run(context.Background(), "summarize", nil)
	require.Error(t, err)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "topic", vErr.Parameter)
	assert.Equal(t, "required", vErr.Rule)
}

func TestRunUnknownWorkflow(t *testing.T) {
	eng := runtime.NewEngine(mapLoader{}, runtime.WithExecutor(&scriptedExecutor{}))

	_, err := eng.Run(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func branchWorkflow(t *testing.T) *domain.Workflow {
	return validated(t, &domain.Workflow{
		Name:         "branchy",
		InitialState: "start",
		Parameters: []domain.Parameter{
			{Name: "verbose", Type: domain.ParamBoolean, Default: false},
		},
		States: []domain.State{
			{
				ID:     "start",
				Prompt: "go",
				Transitions: []domain.Transition{
					{To: "detailed", When: "verbose"},
					{To: "brief"},
				},
			},
			{ID: "detailed", Prompt: "long form"},
			{ID: "brief", Prompt: "short form"},
		},
	})
}

func TestTransitionsFirstMatchWins(t *testing.T) {
	eng := runtime.NewEngine(
		mapLoader{"branchy": branchWorkflow(t)},
		runtime.WithExecutor(&scriptedExecutor{}),
	)

	run, err := eng.Run(context.Background(), "branchy", map[string]any{"verbose": "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "detailed"}, run.History)

	run, err = eng.Run(context.Background(), "branchy", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "brief"}, run.History)
}

func TestRunFailureRecordsStateAndError(t *testing.T) {
	exec := &scriptedExecutor{
		fn: func(ctx context.Context, system, prompt string, vars map[string]any) (string, error) {
			if strings.Contains(prompt, "Draft") {
				return "", fmt.Errorf("backend exploded")
			}
			return "ok", nil
		},
	}
	store := memory.NewStore()
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithExecutor(exec),
		runtime.WithStore(store),
	)

	run, err := eng.Run(context.Background(), "summarize", map[string]any{"topic": "git"})
	require.Error(t, err)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "draft", runErr.State)

	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Equal(t, "draft", run.FailedState)
	assert.Contains(t, run.Error, "backend exploded")

	// The terminal snapshot is persisted.
	stored, err := store.Load(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestRunCancellationObservedBetweenStates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &scriptedExecutor{
		fn: func(ctx context.Context, system, prompt string, vars map[string]any) (string, error) {
			cancel() // first state completes, then the engine notices
			return "done", nil
		},
	}
	store := memory.NewStore()
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithExecutor(exec),
		runtime.WithStore(store),
	)

	run, err := eng.Run(ctx, "summarize", map[string]any{"topic": "git"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunCancelled)

	assert.Equal(t, domain.StatusCancelled, run.Status)
	assert.Equal(t, []string{"gather"}, run.History)

	stored, serr := store.Load(context.Background(), run.ID)
	require.NoError(t, serr)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestRunStepLimitBreaksCycles(t *testing.T) {
	w := validated(t, &domain.Workflow{
		Name:         "spinner",
		InitialState: "again",
		States: []domain.State{
			{ID: "again", Prompt: "spin", Transitions: []domain.Transition{{To: "again"}}},
		},
	})
	eng := runtime.NewEngine(
		mapLoader{"spinner": w},
		runtime.WithExecutor(&scriptedExecutor{}),
		runtime.WithMaxSteps(5),
	)

	run, err := eng.Run(context.Background(), "spinner", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step limit")
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Len(t, run.History, 5)
}

func TestRunIsDeterministic(t *testing.T) {
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithExecutor(&scriptedExecutor{}),
	)
	provided := map[string]any{"topic": "networking"}

	first, err := eng.Run(context.Background(), "summarize", provided)
	require.NoError(t, err)
	second, err := eng.Run(context.Background(), "summarize", provided)
	require.NoError(t, err)

	assert.Equal(t, first.History, second.History)
	assert.Equal(t, first.Context, second.Context)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunEmitsHooksInOrder(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(kind string) func(context.Context, *domain.RunEvent) {
		return func(_ context.Context, ev *domain.RunEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, kind+":"+ev.StateID)
		}
	}

	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithExecutor(&scriptedExecutor{}),
		runtime.WithHooks(domain.RunHooks{
			OnRunStart:   record("start"),
			OnStateEnter: record("enter"),
			OnStateLeave: record("leave"),
			OnTransition: func(_ context.Context, ev *domain.TransitionEvent) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, "transition:"+ev.From+">"+ev.To)
			},
			OnRunEnd: func(_ context.Context, ev *domain.RunEvent, status domain.RunStatus) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, "end:"+string(status))
			},
		}),
	)

	_, err := eng.Run(context.Background(), "summarize", map[string]any{"topic": "git"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:",
		"enter:gather",
		"leave:gather",
		"transition:gather>draft",
		"enter:draft",
		"leave:draft",
		"end:completed",
	}, events)
}

func TestRunFailsOnMalformedTransitionCondition(t *testing.T) {
	// Built in code, bypassing load-time validation.
	w := &domain.Workflow{
		Name:         "crooked",
		InitialState: "start",
		States: []domain.State{
			{
				ID:          "start",
				Prompt:      "go",
				Transitions: []domain.Transition{{To: "done", When: "== broken"}},
			},
			{ID: "done"},
		},
	}
	eng := runtime.NewEngine(mapLoader{"crooked": w}, runtime.WithExecutor(&scriptedExecutor{}))

	run, err := eng.Run(context.Background(), "crooked", nil)
	require.Error(t, err)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "start", runErr.State)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "malformed condition")
}

// fakeToolServer is a tool-server handle with a controllable lifecycle.
type fakeToolServer struct {
	mu       sync.Mutex
	endpoint string
	starts   int
	stops    int
}

func (f *fakeToolServer) Catalog() []agent.ToolDescriptor { return nil }

func (f *fakeToolServer) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	return "", nil
}

func (f *fakeToolServer) Endpoint() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoint
}

func (f *fakeToolServer) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.endpoint = "http://127.0.0.1:39100"
	return nil
}

func (f *fakeToolServer) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.endpoint = ""
	return nil
}

func (f *fakeToolServer) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// agentStub writes a shell script standing in for the agent binary.
func agentStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent-stub")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunStartsAndStopsToolServer(t *testing.T) {
	handle := &fakeToolServer{}
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithToolServer(handle),
		runtime.WithAgentConfig(agent.Config{
			Backend: agent.BackendClaudeCLI,
			Command: agentStub(t, `printf '%s' "$PERGOLA_TOOL_ENDPOINT"`),
		}),
	)

	run, err := eng.Run(context.Background(), "summarize", map[string]any{"topic": "git"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)

	// Started once for the whole run, not per state, and stopped when the
	// run finished.
	starts, stops := handle.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)

	// The agent process saw the live endpoint in every state.
	assert.Equal(t, "http://127.0.0.1:39100", run.Context["findings"])
	assert.Equal(t, "http://127.0.0.1:39100", run.Context["notes"])
}

func TestRunStopsToolServerOnFailure(t *testing.T) {
	handle := &fakeToolServer{}
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithToolServer(handle),
		runtime.WithAgentConfig(agent.Config{
			Backend: agent.BackendClaudeCLI,
			Command: agentStub(t, "exit 1"),
		}),
	)

	run, err := eng.Run(context.Background(), "summarize", map[string]any{"topic": "git"})
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)

	starts, stops := handle.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestRunOverrideExecutorSkipsToolServer(t *testing.T) {
	handle := &fakeToolServer{}
	eng := runtime.NewEngine(
		mapLoader{"summarize": summarizeWorkflow(t)},
		runtime.WithToolServer(handle),
		runtime.WithExecutor(&scriptedExecutor{}),
	)

	_, err := eng.Run(context.Background(), "summarize", map[string]any{"topic": "git"})
	require.NoError(t, err)

	starts, _ := handle.counts()
	assert.Zero(t, starts)
}

func TestRunStatesWithoutPromptSkipExecutor(t *testing.T) {
	w := validated(t, &domain.Workflow{
		Name:         "quiet",
		InitialState: "hop",
		States: []domain.State{
			{ID: "hop", Transitions: []domain.Transition{{To: "end"}}},
			{ID: "end", Prompt: "wrap up", Output: "out"},
		},
	})
	exec := &scriptedExecutor{}
	eng := runtime.NewEngine(mapLoader{"quiet": w}, runtime.WithExecutor(exec))

	run, err := eng.Run(context.Background(), "quiet", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hop", "end"}, run.History)
	require.Len(t, exec.recorded(), 1)
	assert.Equal(t, "wrap up", exec.recorded()[0].Prompt)
}
