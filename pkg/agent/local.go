package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultMaxToolRounds = 8

// localExecutor drives a locally hosted model over the OpenAI-compatible
// chat API. Model-issued tool calls are routed back into the process
// through the tool-server handle, so a handle is mandatory.
type localExecutor struct {
	client    openai.Client
	model     string
	maxTokens int
	maxRounds int
	handle    ToolServerHandle
	logger    *slog.Logger
}

func newLocalExecutor(cfg Config, handle ToolServerHandle, logger *slog.Logger) *localExecutor {
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	return &localExecutor{
		client: openai.NewClient(
			option.WithBaseURL(fmt.Sprintf("http://127.0.0.1:%d/v1", cfg.Port)),
			option.WithAPIKey("pergola-local"),
		),
		model:     cfg.Model,
		maxTokens: cfg.ContextWindow,
		maxRounds: maxRounds,
		handle:    handle,
		logger:    logger.With("executor", BackendLocalModel),
	}
}

func (e *localExecutor) ExecutePrompt(ctx context.Context, systemPrompt, userPrompt string, vars map[string]any) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	tools := e.catalogTools()

	for round := 0; round < e.maxRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(e.model),
			Messages: messages,
		}
		if e.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(e.maxTokens))
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		response, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("local model call failed: %w", err)
		}
		if len(response.Choices) == 0 {
			return "", fmt.Errorf("local model returned no choices")
		}

		choice := response.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return choice.Message.Content, nil
		}

		messages = append(messages, choice.Message.ToParam())

		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return "", fmt.Errorf("tool %q: malformed arguments from model: %w", tc.Function.Name, err)
			}

			e.logger.Debug("routing tool call", "tool", tc.Function.Name, "round", round)

			content, err := e.handle.CallTool(ctx, tc.Function.Name, args)
			if err != nil {
				// The model sees the failure and may recover; hard failures
				// still bound out via maxRounds.
				content = fmt.Sprintf("tool error: %v", err)
			}
			messages = append(messages, openai.ToolMessage(content, tc.ID))
		}
	}

	return "", fmt.Errorf("local model exceeded %d tool rounds without a final answer", e.maxRounds)
}

func (e *localExecutor) catalogTools() []openai.ChatCompletionToolParam {
	catalog := e.handle.Catalog()
	tools := make([]openai.ChatCompletionToolParam, 0, len(catalog))
	for _, td := range catalog {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        td.Name,
				Description: openai.String(td.Description),
				Parameters:  openai.FunctionParameters(td.InputSchema),
			},
		})
	}
	return tools
}
