package agent

import (
	"fmt"
	"log/slog"
)

// InitError reports an executor that could not be constructed: a missing
// required tool-server handle, or a backend/config mismatch.
type InitError struct {
	Backend Backend
	Reason  string
}

func (e *InitError) Error() string {
	return fmt.Sprintf("executor init (%s): %s", e.Backend, e.Reason)
}

// Factory is the sole construction authority for executors. No caller
// builds a backend-specific executor directly.
type Factory struct {
	logger *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the structured logger passed to constructed executors.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// NewFactory creates an executor factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// NewExecutor builds the executor selected by cfg. The claude-cli backend
// tolerates a nil handle (the external process connects to the tool server
// independently); the local-model backend fails without one.
func (f *Factory) NewExecutor(cfg Config, handle ToolServerHandle) (Executor, error) {
	switch cfg.Backend {
	case BackendClaudeCLI:
		return newClaudeExecutor(cfg, handle, f.logger), nil
	case BackendLocalModel:
		if handle == nil {
			return nil, &InitError{
				Backend: cfg.Backend,
				Reason:  "local-model backend requires an active tool-server handle",
			}
		}
		if cfg.Port <= 0 {
			return nil, &InitError{
				Backend: cfg.Backend,
				Reason:  "local-model backend requires a loopback port",
			}
		}
		return newLocalExecutor(cfg, handle, f.logger), nil
	case "":
		return nil, &InitError{Backend: cfg.Backend, Reason: "no backend selected"}
	default:
		return nil, &InitError{
			Backend: cfg.Backend,
			Reason:  fmt.Sprintf("unsupported backend (known: %s, %s)", BackendClaudeCLI, BackendLocalModel),
		}
	}
}
