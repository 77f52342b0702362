package pergola

import (
	"context"
	"log/slog"

	"github.com/lucasmvf/pergola/internal/adapters/memory"
	"github.com/lucasmvf/pergola/internal/loader"
	"github.com/lucasmvf/pergola/internal/logging"
	"github.com/lucasmvf/pergola/internal/runtime"
	"github.com/lucasmvf/pergola/pkg/agent"
	"github.com/lucasmvf/pergola/pkg/domain"
	"github.com/lucasmvf/pergola/pkg/ports"
)

// Version is the library version, overridable at build time with
// -ldflags "-X github.com/lucasmvf/pergola.Version=...".
var Version = "dev"

// Engine is the high-level entry point for the pergola library. It wraps
// the internal runtime behind a small API: load workflows, run them,
// inspect runs.
type Engine struct {
	loader   ports.WorkflowLoader
	store    ports.RunStore
	logger   *slog.Logger
	runtime  *runtime.Engine
	extraOpt []runtime.EngineOption
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoader injects a custom workflow loader, bypassing the default
// filesystem tiers.
func WithLoader(l ports.WorkflowLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithStore sets the run snapshot store. Defaults to in-memory.
func WithStore(s ports.RunStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the structured logger. Defaults to a no-op logger so
// library consumers opt in to output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHooks registers run lifecycle callbacks.
func WithHooks(hooks domain.RunHooks) Option {
	return func(e *Engine) {
		e.extraOpt = append(e.extraOpt, runtime.WithHooks(hooks))
	}
}

// WithAgentConfig sets the default agent backend configuration.
func WithAgentConfig(cfg agent.Config) Option {
	return func(e *Engine) {
		e.extraOpt = append(e.extraOpt, runtime.WithAgentConfig(cfg))
	}
}

// WithExecutor serves the given executor for every state, bypassing the
// backend factory. Useful for embedders with their own agent plumbing.
func WithExecutor(exec agent.Executor) Option {
	return func(e *Engine) {
		e.extraOpt = append(e.extraOpt, runtime.WithExecutor(exec))
	}
}

// WithToolServer provides the tool-server handle passed to executors.
func WithToolServer(handle agent.ToolServerHandle) Option {
	return func(e *Engine) {
		e.extraOpt = append(e.extraOpt, runtime.WithToolServer(handle))
	}
}

// WithPrompter enables interactive collection of missing required
// parameters.
func WithPrompter(p ports.Prompter) Option {
	return func(e *Engine) {
		e.extraOpt = append(e.extraOpt, runtime.WithPrompter(p))
	}
}

// New initializes an Engine. projectRoot anchors the project workflow tier
// (.pergola/workflows); it is ignored when a custom loader is injected.
func New(projectRoot string, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.loader == nil {
		e.loader = loader.New(loader.DefaultSources(projectRoot), loader.WithLogger(e.logger))
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(e.logger),
		runtime.WithStore(e.store),
	}
	runtimeOpts = append(runtimeOpts, e.extraOpt...)
	e.runtime = runtime.NewEngine(e.loader, runtimeOpts...)
	return e, nil
}

// Run executes the named workflow to a terminal status. provided maps
// parameter names to raw values; they are validated and resolved before
// the first state executes.
func (e *Engine) Run(ctx context.Context, workflow string, provided map[string]any) (*domain.Run, error) {
	return e.runtime.Run(ctx, workflow, provided)
}

// Workflow loads and validates a workflow definition without running it.
func (e *Engine) Workflow(name string) (*domain.Workflow, error) {
	return e.loader.Get(name)
}

// Workflows lists the available workflow names.
func (e *Engine) Workflows() ([]string, error) {
	return e.loader.List()
}

// GetRun retrieves a stored run snapshot.
func (e *Engine) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return e.store.Load(ctx, runID)
}

// Runs lists known run IDs.
func (e *Engine) Runs(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// Store exposes the run store, for wiring into tool contexts.
func (e *Engine) Store() ports.RunStore {
	return e.store
}
