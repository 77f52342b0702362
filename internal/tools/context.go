// Package tools hosts the transport-independent tool catalog: the registry
// of named tools, the shared context their handlers borrow, and the
// invocation pipeline (schema validation, rate limiting, execution).
package tools

import (
	"log/slog"

	"github.com/lucasmvf/pergola/internal/ratelimit"
	"github.com/lucasmvf/pergola/pkg/ports"
)

// Context is the shared bundle of handles every tool handler borrows. It is
// owned by the Registry and shared by reference; component stores carry
// their own synchronization and are never copied.
type Context struct {
	Logger  *slog.Logger
	Limiter *ratelimit.Limiter

	// Runs gives tools read access to run snapshots.
	Runs ports.RunStore

	// WorkDir anchors tools that touch the project tree.
	WorkDir string
}
