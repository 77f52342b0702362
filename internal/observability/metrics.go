// Package observability registers the process-wide prometheus metrics.
// The loopback transport exposes them at /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToolCalls counts tool invocations by tool name and outcome
	// (ok, error, unknown, invalid_args, rate_limited).
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pergola",
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	// RateLimited counts rejections by bucket scope.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pergola",
		Name:      "rate_limited_total",
		Help:      "Rate-limited tool invocations by bucket scope.",
	}, []string{"scope"})

	// Runs counts finished workflow runs by terminal status.
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pergola",
		Name:      "runs_total",
		Help:      "Finished workflow runs by terminal status.",
	}, []string{"workflow", "status"})
)
