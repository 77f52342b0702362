package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

const defaultClaudeCommand = "claude"

// claudeExecutor shells out to the claude CLI in print mode. Context values
// are passed as environment variables rather than flags, which prevents
// flag injection from untrusted context content.
type claudeExecutor struct {
	command string
	model   string
	handle  ToolServerHandle
	logger  *slog.Logger
}

func newClaudeExecutor(cfg Config, handle ToolServerHandle, logger *slog.Logger) *claudeExecutor {
	command := cfg.Command
	if command == "" {
		command = defaultClaudeCommand
	}
	return &claudeExecutor{
		command: command,
		model:   cfg.Model,
		handle:  handle,
		logger:  logger.With("executor", BackendClaudeCLI),
	}
}

func (e *claudeExecutor) ExecutePrompt(ctx context.Context, systemPrompt, userPrompt string, vars map[string]any) (string, error) {
	args := []string{"-p", "--output-format", "text"}
	if e.model != "" {
		args = append(args, "--model", e.model)
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}

	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Stdin = strings.NewReader(userPrompt)

	env := []string{}
	for k, v := range vars {
		env = append(env, fmt.Sprintf("PERGOLA_VAR_%s=%v", strings.ToUpper(k), v))
	}
	// The endpoint is read per call, not at construction: the tool server
	// starts lazily once a run needs it, and the external process reaches
	// it on its own.
	if e.handle != nil {
		if endpoint := e.handle.Endpoint(); endpoint != "" {
			env = append(env, "PERGOLA_TOOL_ENDPOINT="+endpoint)
		}
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("invoking agent process", "command", e.command, "model", e.model)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("agent process failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
