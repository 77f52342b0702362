package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lucasmvf/pergola/internal/observability"
	"github.com/lucasmvf/pergola/internal/ratelimit"
	"github.com/lucasmvf/pergola/pkg/agent"
)

// defaultCallTimeout is the single authoritative transport-level timeout
// per tool call. It is intentionally not duplicated per tool.
const defaultCallTimeout = 30 * time.Second

// Handler implements one tool. It borrows the shared Context and receives
// schema-validated arguments.
type Handler func(ctx context.Context, tc *Context, args map[string]any) (string, error)

// Definition declares a tool: its name, description, JSON-schema argument
// structure, and rate-limiting class.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Expensive   bool

	// Cost is the token deduction per call (default 1).
	Cost int
}

type entry struct {
	def     Definition
	handler Handler
}

// Registry owns the one authoritative tool catalog. Every transport serves
// this instance, which is what keeps the catalogs identical.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]entry
	watchers []func(Definition)
	tctx     *Context
	timeout  time.Duration
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCallTimeout overrides the authoritative per-call timeout.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry creates an empty registry owning the given tool context.
func NewRegistry(tctx *Context, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		tctx:    tctx,
		timeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = tctx.Logger
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register binds a tool handler. Registering an existing name replaces it.
func (r *Registry) Register(def Definition, h Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition missing name")
	}
	if h == nil {
		return fmt.Errorf("tool %q: nil handler", def.Name)
	}
	if def.InputSchema == nil {
		def.InputSchema = map[string]any{"type": "object"}
	}
	if def.Cost <= 0 {
		def.Cost = 1
	}

	r.mu.Lock()
	r.entries[def.Name] = entry{def: def, handler: h}
	watchers := append([]func(Definition){}, r.watchers...)
	r.mu.Unlock()

	// Notified outside the lock; a watcher may read the catalog back.
	for _, fn := range watchers {
		fn(def)
	}
	return nil
}

// OnRegister subscribes to catalog additions. Transport adapters use it to
// mirror tools registered after they were constructed, so every transport
// keeps serving the full catalog.
func (r *Registry) OnRegister(fn func(Definition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

// Catalog returns the definitions sorted by name. Repeated calls without
// registry mutation return an identical catalog.
func (r *Registry) Catalog() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call validates arguments against the declared schema, consults the rate
// limiter, executes the handler under the authoritative timeout, and
// returns the textual result.
func (r *Registry) Call(ctx context.Context, clientID, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		observability.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return "", &UnknownToolError{Tool: name}
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := r.validateArgs(e.def, args); err != nil {
		observability.ToolCalls.WithLabelValues(name, "invalid_args").Inc()
		return "", err
	}

	if r.tctx.Limiter != nil {
		err := r.tctx.Limiter.CheckAndConsume(clientID, ratelimit.Op{Name: name, Expensive: e.def.Expensive}, e.def.Cost)
		if err != nil {
			var rlErr *ratelimit.Error
			if errors.As(err, &rlErr) {
				observability.RateLimited.WithLabelValues(rlErr.Scope).Inc()
			}
			observability.ToolCalls.WithLabelValues(name, "rate_limited").Inc()
			return "", err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("executing tool", "tool", name, "client", clientID)

	result, err := e.handler(callCtx, r.tctx, args)
	if err != nil {
		observability.ToolCalls.WithLabelValues(name, "error").Inc()
		return "", fmt.Errorf("tool %q failed: %w", name, err)
	}
	observability.ToolCalls.WithLabelValues(name, "ok").Inc()
	return result, nil
}

func (r *Registry) validateArgs(def Definition, args map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.InputSchema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("tool %q: schema validation: %w", def.Name, err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return &SchemaError{Tool: def.Name, Violations: violations}
}

// Handle returns the in-process tool-server view bound to a client
// identity. endpoint reports the loopback URL once the network transport
// is up.
func (r *Registry) Handle(clientID string, endpoint func() string) agent.ToolServerHandle {
	return &registryHandle{registry: r, clientID: clientID, endpoint: endpoint}
}

type registryHandle struct {
	registry *Registry
	clientID string
	endpoint func() string
}

func (h *registryHandle) Catalog() []agent.ToolDescriptor {
	defs := h.registry.Catalog()
	out := make([]agent.ToolDescriptor, 0, len(defs))
	for _, d := range defs {
		out = append(out, agent.ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
			Expensive:   d.Expensive,
		})
	}
	return out
}

func (h *registryHandle) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	return h.registry.Call(ctx, h.clientID, name, args)
}

func (h *registryHandle) Endpoint() string {
	if h.endpoint == nil {
		return ""
	}
	return h.endpoint()
}
