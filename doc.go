/*
Package pergola is a local orchestration engine for declarative multi-step
workflows that drive generative-AI coding agents.

A workflow is a markdown document with YAML frontmatter: the frontmatter
declares typed parameters (with validation rules and conditional
dependencies), each "## state" section declares one state machine node with
a prompt template and transition rules. The engine resolves parameters,
walks the graph, renders prompts against the accumulated run context, and
delegates each state's action to an agent executor.

# Key Pieces

  - Engine: resolves parameters, executes runs to a terminal status, and
    snapshots progress after every state.
  - Agent executors: a CLI-driven agent (claude-cli) or an OpenAI-compatible
    local model, both built exclusively by the agent.Factory.
  - Tool server: a single tool registry exposed over MCP on stdio and SSE,
    with JSON-schema argument validation and token-bucket rate limiting.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/lucasmvf/pergola"
		"github.com/lucasmvf/pergola/pkg/agent"
	)

	func main() {
		eng, err := pergola.New(".",
			pergola.WithAgentConfig(agent.Config{Backend: agent.BackendClaudeCLI}),
		)
		if err != nil {
			log.Fatal(err)
		}

		run, err := eng.Run(context.Background(), "release-notes", map[string]any{
			"topic": "networking",
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(run.Context["final_notes"])
	}

Workflows are looked up in three tiers: definitions embedded in the binary,
the project's .pergola/workflows directory, and the user config directory.
Later tiers shadow earlier ones by name.
*/
package pergola
