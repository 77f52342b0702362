package tools

import (
	"fmt"
	"strings"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// UnknownToolError reports a call to a name absent from the catalog. It is
// a specific error, distinct from handler failures.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

func (e *UnknownToolError) Unwrap() error { return domain.ErrUnknownTool }

// SchemaError reports arguments that failed the tool's declared schema.
type SchemaError struct {
	Tool       string
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool %q: invalid arguments: %s", e.Tool, strings.Join(e.Violations, "; "))
}
