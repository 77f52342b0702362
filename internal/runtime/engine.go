// Package runtime drives workflow runs: it resolves parameters, walks the
// state graph, renders prompt templates, delegates actions to an agent
// executor, and snapshots progress after every state.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasmvf/pergola/internal/observability"
	"github.com/lucasmvf/pergola/internal/params"
	"github.com/lucasmvf/pergola/pkg/agent"
	"github.com/lucasmvf/pergola/pkg/domain"
	"github.com/lucasmvf/pergola/pkg/ports"
)

// defaultMaxSteps bounds a single run. Cyclic graphs are legal (review
// loops), but an unconditional cycle would otherwise burn agent calls
// forever.
const defaultMaxSteps = 256

// Engine executes workflow runs.
type Engine struct {
	loader   ports.WorkflowLoader
	store    ports.RunStore
	prompter ports.Prompter
	factory  *agent.Factory
	agentCfg agent.Config
	handle   agent.ToolServerHandle
	hooks    domain.RunHooks
	logger   *slog.Logger
	maxSteps int

	// override, when set, serves every state regardless of backend.
	override agent.Executor

	mu         sync.Mutex
	executors  map[agent.Backend]agent.Executor
	serverRefs int
}

// toolServerLifecycle is the optional start/stop surface of a tool-server
// handle. Handles backed by an in-process loopback server implement it;
// the engine starts the server lazily on a run's first agent call and
// stops it when the run finishes.
type toolServerLifecycle interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithStore sets the run snapshot store.
func WithStore(store ports.RunStore) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithPrompter enables interactive collection of missing required
// parameters.
func WithPrompter(p ports.Prompter) EngineOption {
	return func(e *Engine) { e.prompter = p }
}

// WithHooks registers run lifecycle callbacks.
func WithHooks(hooks domain.RunHooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// WithAgentConfig sets the default executor configuration. A state's
// executor field overrides only the backend selection.
func WithAgentConfig(cfg agent.Config) EngineOption {
	return func(e *Engine) { e.agentCfg = cfg }
}

// WithToolServer provides the tool-server handle passed to executors.
func WithToolServer(handle agent.ToolServerHandle) EngineOption {
	return func(e *Engine) { e.handle = handle }
}

// WithExecutor bypasses the factory and serves the given executor for
// every state. Used by tests and embedders with their own executor.
func WithExecutor(exec agent.Executor) EngineOption {
	return func(e *Engine) { e.override = exec }
}

// WithMaxSteps overrides the per-run step bound.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) { e.maxSteps = n }
}

// NewEngine creates an engine reading workflows from the given loader.
func NewEngine(loader ports.WorkflowLoader, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:    loader,
		maxSteps:  defaultMaxSteps,
		executors: make(map[agent.Backend]agent.Executor),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.factory == nil {
		e.factory = agent.NewFactory(agent.WithLogger(e.logger))
	}
	return e
}

// Run loads the named workflow, resolves its parameters against the
// provided values, and executes it to a terminal status. The returned run
// carries the terminal snapshot even when err is non-nil.
func (e *Engine) Run(ctx context.Context, workflow string, provided map[string]any) (*domain.Run, error) {
	w, err := e.loader.Get(workflow)
	if err != nil {
		return nil, err
	}

	// All parameters settle before the first state executes.
	values, err := params.ResolveAll(w.Parameters, provided, e.prompter)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(uuid.NewString(), w.Name, w.InitialState, values)
	return run, e.execute(ctx, w, run)
}

func (e *Engine) execute(ctx context.Context, w *domain.Workflow, run *domain.Run) error {
	run.Status = domain.StatusRunning
	e.emitRunStart(ctx, run)
	e.snapshot(ctx, run)

	e.logger.Info("run started", "run", run.ID, "workflow", w.Name, "initial_state", run.CurrentState)

	// The tool server is acquired on the first state that needs it and
	// released when the run ends, whatever the terminal status.
	var releaseTools func(context.Context)
	defer func() {
		if releaseTools != nil {
			releaseTools(context.WithoutCancel(ctx))
		}
	}()

	steps := 0
	for {
		// Cancellation is observed between states; an in-flight action is
		// not interrupted beyond what its own ctx handling does.
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, run, domain.StatusCancelled,
				fmt.Errorf("workflow %q: %w", w.Name, domain.ErrRunCancelled))
		}
		if steps >= e.maxSteps {
			return e.fail(ctx, run, run.CurrentState,
				fmt.Errorf("step limit (%d) exceeded, likely a cycle with no exit", e.maxSteps))
		}
		steps++

		st, ok := w.State(run.CurrentState)
		if !ok {
			return e.fail(ctx, run, run.CurrentState,
				fmt.Errorf("state %q not defined", run.CurrentState))
		}

		e.emitStateEnter(ctx, run, st.ID)
		run.History = append(run.History, st.ID)

		if st.Prompt != "" {
			if releaseTools == nil && e.needsToolServer(st) {
				release, err := e.acquireToolServer(ctx)
				if err != nil {
					return e.fail(ctx, run, st.ID, err)
				}
				releaseTools = release
			}
			if err := e.executeState(ctx, st, run); err != nil {
				return e.fail(ctx, run, st.ID, err)
			}
		}

		e.emitStateLeave(ctx, run, st.ID)
		e.snapshot(ctx, run)

		next, err := e.nextTransition(ctx, run, st)
		if err != nil {
			return e.fail(ctx, run, st.ID, err)
		}
		if next == "" {
			// Terminal state, or rules exhausted with no default.
			return e.finish(ctx, run, domain.StatusCompleted, nil)
		}
		run.CurrentState = next
	}
}

// executeState renders the state's templates and delegates to the selected
// executor, storing the result under the state's output variable.
func (e *Engine) executeState(ctx context.Context, st *domain.State, run *domain.Run) error {
	exec, err := e.executorFor(st)
	if err != nil {
		return err
	}

	system := Render(st.System, run.Context)
	prompt := Render(st.Prompt, run.Context)

	e.logger.Debug("executing state", "run", run.ID, "state", st.ID, "executor", st.Executor)

	started := time.Now()
	result, err := exec.ExecutePrompt(ctx, system, prompt, run.Context)
	if err != nil {
		return err
	}
	e.logger.Debug("state finished", "run", run.ID, "state", st.ID, "elapsed", time.Since(started))

	if st.Output != "" {
		run.Context[st.Output] = result
	}
	return nil
}

// nextTransition evaluates the state's rules in declaration order and
// returns the first match, or "" when none fires.
func (e *Engine) nextTransition(ctx context.Context, run *domain.Run, st *domain.State) (string, error) {
	for i := range st.Transitions {
		tr := &st.Transitions[i]
		match, err := transitionMatches(tr, run.Context)
		if err != nil {
			return "", fmt.Errorf("transition to %q: %w", tr.To, err)
		}
		if !match {
			continue
		}
		e.emitTransition(ctx, run, st.ID, tr)
		return tr.To, nil
	}
	return "", nil
}

func transitionMatches(tr *domain.Transition, vars map[string]any) (bool, error) {
	if tr.When == "" {
		return true, nil
	}
	cond := tr.Cond
	if cond == nil {
		// Loaded workflows carry parsed conditions; workflows built in
		// code may not. A malformed condition fails the run instead of
		// silently never matching.
		parsed, err := domain.ParseExpr(tr.When)
		if err != nil {
			return false, err
		}
		cond = parsed
	}
	return cond.Eval(vars), nil
}

// needsToolServer reports whether the state's backend reaches the tool
// catalog over the loopback transport. The subprocess backend does; the
// local model calls tools in process through the handle it already holds.
func (e *Engine) needsToolServer(st *domain.State) bool {
	if e.override != nil || e.handle == nil {
		return false
	}
	backend := e.agentCfg.Backend
	if st.Executor != "" {
		backend = agent.Backend(st.Executor)
	}
	return backend == agent.BackendClaudeCLI
}

// acquireToolServer starts the loopback tool server when the first run
// needing it arrives, sharing one server across concurrent runs. The
// returned release shuts it down once the last of those runs ends.
func (e *Engine) acquireToolServer(ctx context.Context) (func(context.Context), error) {
	lc, ok := e.handle.(toolServerLifecycle)
	if !ok {
		// The handle fronts an externally managed server; nothing for the
		// engine to start or stop.
		return func(context.Context) {}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.serverRefs == 0 {
		if err := lc.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting tool server: %w", err)
		}
		e.logger.Debug("tool server started", "endpoint", e.handle.Endpoint())
	}
	e.serverRefs++

	return func(ctx context.Context) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.serverRefs--
		if e.serverRefs > 0 {
			return
		}
		if err := lc.Shutdown(ctx); err != nil {
			e.logger.Warn("failed to stop tool server", "error", err)
		}
	}, nil
}

// executorFor selects the executor for a state: the override if set,
// otherwise a factory-built executor for the state's backend, cached per
// backend.
func (e *Engine) executorFor(st *domain.State) (agent.Executor, error) {
	if e.override != nil {
		return e.override, nil
	}

	backend := e.agentCfg.Backend
	if st.Executor != "" {
		backend = agent.Backend(st.Executor)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executors[backend]; ok {
		return exec, nil
	}

	cfg := e.agentCfg
	cfg.Backend = backend
	exec, err := e.factory.NewExecutor(cfg, e.handle)
	if err != nil {
		return nil, err
	}
	e.executors[backend] = exec
	return exec, nil
}

func (e *Engine) fail(ctx context.Context, run *domain.Run, stateID string, err error) error {
	run.FailedState = stateID
	run.Error = err.Error()
	return e.finish(ctx, run, domain.StatusFailed,
		&domain.RunError{Workflow: run.Workflow, State: stateID, Err: err})
}

func (e *Engine) finish(ctx context.Context, run *domain.Run, status domain.RunStatus, err error) error {
	run.Status = status
	run.EndedAt = time.Now()
	observability.Runs.WithLabelValues(run.Workflow, string(status)).Inc()

	// Persist and emit even for cancelled runs, so the terminal snapshot
	// is always observable.
	e.snapshot(context.WithoutCancel(ctx), run)
	e.emitRunEnd(ctx, run, status)

	if err != nil {
		e.logger.Warn("run finished", "run", run.ID, "status", status, "error", err)
	} else {
		e.logger.Info("run finished", "run", run.ID, "status", status, "states", len(run.History))
	}
	return err
}

func (e *Engine) snapshot(ctx context.Context, run *domain.Run) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, run); err != nil {
		e.logger.Warn("failed to snapshot run", "run", run.ID, "error", err)
	}
}

func (e *Engine) emitRunStart(ctx context.Context, run *domain.Run) {
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, e.event(run, ""))
	}
}

func (e *Engine) emitStateEnter(ctx context.Context, run *domain.Run, stateID string) {
	if e.hooks.OnStateEnter != nil {
		e.hooks.OnStateEnter(ctx, e.event(run, stateID))
	}
}

func (e *Engine) emitStateLeave(ctx context.Context, run *domain.Run, stateID string) {
	if e.hooks.OnStateLeave != nil {
		e.hooks.OnStateLeave(ctx, e.event(run, stateID))
	}
}

func (e *Engine) emitTransition(ctx context.Context, run *domain.Run, from string, tr *domain.Transition) {
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(ctx, &domain.TransitionEvent{
			RunEvent:  *e.event(run, from),
			From:      from,
			To:        tr.To,
			Condition: tr.When,
		})
	}
}

func (e *Engine) emitRunEnd(ctx context.Context, run *domain.Run, status domain.RunStatus) {
	if e.hooks.OnRunEnd != nil {
		e.hooks.OnRunEnd(ctx, e.event(run, run.CurrentState), status)
	}
}

func (e *Engine) event(run *domain.Run, stateID string) *domain.RunEvent {
	return &domain.RunEvent{
		Timestamp: time.Now(),
		RunID:     run.ID,
		Workflow:  run.Workflow,
		StateID:   stateID,
	}
}
