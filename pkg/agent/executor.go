package agent

import "context"

// Executor is the single shared capability all agent backends implement:
// send a prompt, get generated text back. It is defined exactly once, here,
// and both the orchestration layer and the tool-hosting layer depend on
// this package downward; neither depends on the other.
type Executor interface {
	// ExecutePrompt sends the rendered prompts to the backend and returns
	// the generated text. vars carries the run's context values for
	// backends that expose them to the agent environment.
	ExecutePrompt(ctx context.Context, systemPrompt, userPrompt string, vars map[string]any) (string, error)
}

// ToolDescriptor describes one callable tool: its name, human description
// and JSON-schema argument structure. Expensive marks the operation class
// the rate limiter budgets separately.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Expensive   bool           `json:"expensive,omitempty"`
}

// ToolServerHandle is the in-process view of a running tool-invocation
// server. The local-model backend requires one so model-issued tool calls
// route back into the process; the remote-process backend only needs the
// endpoint, which the external process connects to on its own.
type ToolServerHandle interface {
	// Catalog returns the authoritative tool catalog.
	Catalog() []ToolDescriptor

	// CallTool validates and executes a tool, returning its textual result.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// Endpoint returns the loopback URL external processes can reach the
	// server at, or "" if only the pipe transport is up.
	Endpoint() string
}
