package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// terminalPrompter collects parameter values from stdin. Prompts go to
// stderr so stdout carries only run output.
type terminalPrompter struct {
	in *bufio.Reader
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(os.Stdin)}
}

func (p *terminalPrompter) Prompt(param *domain.Parameter) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", param.Name)
	if param.Description != "" {
		fmt.Fprintf(&b, " (%s)", param.Description)
	}
	if len(param.Choices) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(param.Choices, ", "))
	}
	if param.Type == domain.ParamMultiChoice {
		b.WriteString(" (comma-separated)")
	}
	fmt.Fprintf(os.Stderr, "%s: ", b.String())

	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading value for %q: %w", param.Name, err)
	}
	return strings.TrimSpace(line), nil
}
