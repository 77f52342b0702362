// Package loader reads workflow documents from precedence-ordered sources
// and validates them before anything runs.
//
// A workflow document is markdown with YAML frontmatter. The frontmatter
// declares the workflow name, its parameters, and the initial state; each
// "## state-id" section declares one state, with an optional fenced yaml
// block for metadata (executor, output, transitions) followed by the
// prompt template.
package loader

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/lucasmvf/pergola/pkg/domain"
)

const frontmatterDelimiter = "---"

// header mirrors the frontmatter keys of a workflow document.
type header struct {
	Name         string             `mapstructure:"name"`
	Description  string             `mapstructure:"description"`
	InitialState string             `mapstructure:"initial_state"`
	Parameters   []domain.Parameter `mapstructure:"parameters"`
}

// stateMeta mirrors the fenced yaml block inside a state section.
type stateMeta struct {
	Executor string              `mapstructure:"executor"`
	System   string              `mapstructure:"system"`
	Output   string              `mapstructure:"output"`
	Next     []domain.Transition `mapstructure:"next"`
}

// ParseDocument parses one workflow document. name is the lookup name the
// document was found under (its file stem); a frontmatter name, if present,
// must agree with it.
func ParseDocument(name string, data []byte) (*domain.Workflow, error) {
	front, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, &domain.LoadError{Workflow: name, Detail: "frontmatter", Err: err}
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(front), &raw); err != nil {
		return nil, &domain.LoadError{Workflow: name, Detail: "frontmatter is not valid yaml", Err: err}
	}

	var hdr header
	if err := decode(raw, &hdr); err != nil {
		return nil, &domain.LoadError{Workflow: name, Detail: "frontmatter", Err: err}
	}
	if hdr.Name != "" && hdr.Name != name {
		return nil, &domain.LoadError{
			Workflow: name,
			Detail:   fmt.Sprintf("frontmatter name %q does not match document name", hdr.Name),
		}
	}

	states, err := parseStates(name, body)
	if err != nil {
		return nil, err
	}

	w := &domain.Workflow{
		Name:         name,
		Description:  hdr.Description,
		Parameters:   hdr.Parameters,
		InitialState: hdr.InitialState,
		States:       states,
	}
	if err := Validate(w); err != nil {
		return nil, err
	}
	return w, nil
}

// splitFrontmatter separates the leading "---" delimited yaml block from
// the markdown body.
func splitFrontmatter(content string) (front, body string, err error) {
	trimmed := strings.TrimLeft(content, "\n\r \t")
	if !strings.HasPrefix(trimmed, frontmatterDelimiter+"\n") {
		return "", "", fmt.Errorf("document must begin with a %q frontmatter block", frontmatterDelimiter)
	}
	rest := trimmed[len(frontmatterDelimiter)+1:]

	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated frontmatter block")
	}
	front = rest[:idx]
	body = rest[idx+len(frontmatterDelimiter)+1:]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return front, body, nil
}

// parseStates walks the markdown body splitting it into "## id" sections.
func parseStates(workflow, body string) ([]domain.State, error) {
	var states []domain.State
	var current *domain.State
	var buf []string

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := fillState(workflow, current, strings.Join(buf, "\n")); err != nil {
			return err
		}
		states = append(states, *current)
		current = nil
		buf = nil
		return nil
	}

	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			if err := flush(); err != nil {
				return nil, err
			}
			id := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			if id == "" {
				return nil, &domain.LoadError{Workflow: workflow, Detail: "state section with empty id"}
			}
			current = &domain.State{ID: id}
			continue
		}
		if current != nil {
			buf = append(buf, line)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return states, nil
}

// fillState extracts the optional fenced yaml metadata block from a state
// section; everything after it is the prompt template.
func fillState(workflow string, st *domain.State, section string) error {
	meta, prompt, err := splitMetaBlock(section)
	if err != nil {
		return &domain.LoadError{Workflow: workflow, Detail: fmt.Sprintf("state %q", st.ID), Err: err}
	}

	if meta != "" {
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(meta), &raw); err != nil {
			return &domain.LoadError{
				Workflow: workflow,
				Detail:   fmt.Sprintf("state %q: metadata is not valid yaml", st.ID),
				Err:      err,
			}
		}
		var sm stateMeta
		if err := decode(raw, &sm); err != nil {
			return &domain.LoadError{Workflow: workflow, Detail: fmt.Sprintf("state %q: metadata", st.ID), Err: err}
		}
		st.Executor = sm.Executor
		st.System = sm.System
		st.Output = sm.Output
		st.Transitions = sm.Next
	}

	st.Prompt = strings.TrimSpace(prompt)
	return nil
}

// splitMetaBlock peels a leading ```yaml fence off a state section.
func splitMetaBlock(section string) (meta, prompt string, err error) {
	trimmed := strings.TrimLeft(section, "\n\r \t")
	if !strings.HasPrefix(trimmed, "```yaml\n") && trimmed != "```yaml" {
		return "", section, nil
	}
	rest := strings.TrimPrefix(trimmed, "```yaml")
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n```")
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated metadata fence")
	}
	meta = rest[:idx]
	prompt = rest[idx+len("\n```"):]
	return meta, prompt, nil
}

func decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
