// Package mcp exposes the tool registry over the Model Context Protocol,
// on stdio for piped agent processes and over SSE for networked ones. Both
// transports serve the same underlying MCP server instance, so the catalog
// an agent sees is identical either way.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasmvf/pergola/internal/tools"
	"github.com/lucasmvf/pergola/pkg/agent"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a tool registry as an MCP server.
type Server struct {
	registry  *tools.Registry
	mcpServer *server.MCPServer
	logger    *slog.Logger
	name      string
	version   string

	mu         sync.Mutex
	baseURL    string
	httpServer *http.Server
	registered map[string]struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the structured logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithServerInfo overrides the name and version advertised to clients.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// NewServer wraps the registry in an MCP server. The registry's current
// catalog is registered here, and tools registered afterwards are mirrored
// as they arrive.
func NewServer(registry *tools.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry:   registry,
		name:       "pergola",
		version:    "dev",
		registered: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.mcpServer = server.NewMCPServer(s.name, s.version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	for _, def := range registry.Catalog() {
		s.addTool(def)
	}
	registry.OnRegister(s.addTool)
	return s
}

// Catalog reports the tool definitions this server exposes. Every
// transport serves exactly this set.
func (s *Server) Catalog() []tools.Definition {
	return s.registry.Catalog()
}

// Tools lists the names registered on the MCP server itself, including
// additions made after construction. It tracks Catalog exactly.
func (s *Server) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.registered))
	for name := range s.registered {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Server) addTool(def tools.Definition) {
	schema, err := json.Marshal(def.InputSchema)
	if err != nil {
		s.logger.Error("skipping tool with unmarshalable schema", "tool", def.Name, "error", err)
		return
	}
	tool := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
	s.mcpServer.AddTool(tool, s.callHandler(def.Name))

	s.mu.Lock()
	s.registered[def.Name] = struct{}{}
	s.mu.Unlock()
}

// callHandler bridges an MCP tool call into the registry. Tool failures
// are reported as tool results, not protocol errors, so the calling agent
// can react to them.
func (s *Server) callHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.registry.Call(ctx, s.clientID(ctx), name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}

// clientID derives the rate-limiting identity from the MCP session, so two
// connected agents draw from separate per-client buckets. Transports with
// no session (stdio before init) share the server name.
func (s *Server) clientID(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return s.name
}

// ServeStdio serves MCP over stdin/stdout, blocking until EOF.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening (stdio)", "tools", len(s.registry.Catalog()))
	return server.ServeStdio(s.mcpServer)
}

// Endpoint returns the base URL of the SSE transport, or "" while no
// network transport is up.
func (s *Server) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Start brings up the SSE transport on an ephemeral localhost port and
// returns once the listener accepts connections. It is idempotent while
// the server runs. The engine calls it lazily when a run first needs the
// tool server, and Shutdown when that run finishes.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("tool server listen: %w", err)
	}
	s.baseURL = "http://" + ln.Addr().String()

	srv := &http.Server{Handler: s.Handler()}
	s.httpServer = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mcp server stopped", "error", err)
		}
	}()

	s.logger.Info("mcp server listening (sse)", "address", s.baseURL, "tools", len(s.registry.Catalog()))
	return nil
}

// Shutdown stops the transport brought up by Start and clears the
// endpoint. A server that was never started shuts down as a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.baseURL = ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down mcp server")
	return srv.Shutdown(shutdownCtx)
}

// RunHandle binds the registry's in-process view to this server's loopback
// lifecycle. Executors read the live endpoint through it, and the engine
// starts and stops the transport around each run that needs it.
func (s *Server) RunHandle(clientID string) agent.ToolServerHandle {
	return &runHandle{srv: s, inner: s.registry.Handle(clientID, s.Endpoint)}
}

type runHandle struct {
	srv   *Server
	inner agent.ToolServerHandle
}

func (h *runHandle) Catalog() []agent.ToolDescriptor { return h.inner.Catalog() }

func (h *runHandle) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	return h.inner.CallTool(ctx, name, args)
}

func (h *runHandle) Endpoint() string { return h.srv.Endpoint() }

func (h *runHandle) Start(ctx context.Context) error { return h.srv.Start(ctx) }

func (h *runHandle) Shutdown(ctx context.Context) error { return h.srv.Shutdown(ctx) }

// Handler builds the HTTP surface of the SSE transport: the MCP endpoints
// plus health and metrics.
func (s *Server) Handler() http.Handler {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(s.baseURL))

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Handle("/sse", sse.SSEHandler())
	r.Handle("/message", sse.MessageHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// ServeSSE serves MCP over SSE on the given port until ctx is cancelled,
// then shuts down gracefully. It is the long-lived variant of Start, used
// by the serve command.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.mu.Lock()
	s.baseURL = fmt.Sprintf("http://localhost:%d", port)
	s.mu.Unlock()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr, "tools", len(s.registry.Catalog()))
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down mcp server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
