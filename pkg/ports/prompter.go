package ports

import "github.com/lucasmvf/pergola/pkg/domain"

// Prompter collects a parameter value from an interactive surface. The
// resolver calls it only in interactive mode, for required parameters that
// were not provided. The returned string goes through the same validation
// as any other raw value.
type Prompter interface {
	Prompt(param *domain.Parameter) (string, error)
}
