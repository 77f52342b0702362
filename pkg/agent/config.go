package agent

// Backend discriminates the closed set of agent executor backends.
type Backend string

const (
	// BackendClaudeCLI drives a remote coding-assistant process (the
	// claude CLI) via stdin/stdout.
	BackendClaudeCLI Backend = "claude-cli"

	// BackendLocalModel drives a locally hosted model speaking the
	// OpenAI-compatible chat API on a loopback port.
	BackendLocalModel Backend = "local-model"
)

// Config selects a backend and its settings. Only the fields relevant to
// the selected backend are consulted.
type Config struct {
	Backend Backend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Model is the backend model identity (e.g. a claude model alias or
	// the local server's model name).
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// ContextWindow caps the completion budget for the local backend.
	ContextWindow int `json:"context_window,omitempty" yaml:"context_window,omitempty" mapstructure:"context_window"`

	// Port is the loopback port the local model server listens on.
	Port int `json:"port,omitempty" yaml:"port,omitempty" mapstructure:"port"`

	// Command overrides the claude binary name (tests point this at a stub).
	Command string `json:"command,omitempty" yaml:"command,omitempty" mapstructure:"command"`

	// MaxToolRounds bounds the local backend's tool-call loop (default 8).
	MaxToolRounds int `json:"max_tool_rounds,omitempty" yaml:"max_tool_rounds,omitempty" mapstructure:"max_tool_rounds"`
}
