package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// Source is one tier of workflow definitions. Tiers are ordered by
// precedence: a workflow in a later source shadows one with the same name
// in an earlier source.
type Source struct {
	Name string
	FS   fs.FS
}

// Loader implements ports.WorkflowLoader over precedence-ordered sources.
type Loader struct {
	sources []Source
	logger  *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// New creates a loader over the given sources, lowest precedence first.
func New(sources []Source, opts ...Option) *Loader {
	ld := &Loader{sources: sources}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.logger == nil {
		ld.logger = slog.Default()
	}
	return ld
}

// DefaultSources builds the standard tiers: embedded defaults, then the
// project's .pergola/workflows, then the user config directory. Missing
// directories are simply skipped.
func DefaultSources(projectRoot string) []Source {
	sources := []Source{Builtin()}

	project := filepath.Join(projectRoot, ".pergola", "workflows")
	if info, err := os.Stat(project); err == nil && info.IsDir() {
		sources = append(sources, Source{Name: "project", FS: os.DirFS(project)})
	}

	if cfg, err := os.UserConfigDir(); err == nil {
		user := filepath.Join(cfg, "pergola", "workflows")
		if info, err := os.Stat(user); err == nil && info.IsDir() {
			sources = append(sources, Source{Name: "user", FS: os.DirFS(user)})
		}
	}
	return sources
}

// Get retrieves a workflow by name, searching sources from highest to
// lowest precedence. The first hit wins; parse and validation errors are
// reported rather than falling through to a lower tier.
func (ld *Loader) Get(name string) (*domain.Workflow, error) {
	for i := len(ld.sources) - 1; i >= 0; i-- {
		src := ld.sources[i]
		data, err := fs.ReadFile(src.FS, name+".md")
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading workflow %q from %s: %w", name, src.Name, err)
		}

		w, err := ParseDocument(name, data)
		if err != nil {
			return nil, err
		}
		w.Source = src.Name
		ld.logger.Debug("loaded workflow", "workflow", name, "source", src.Name, "states", len(w.States))
		return w, nil
	}
	return nil, fmt.Errorf("workflow %q: %w", name, domain.ErrWorkflowNotFound)
}

// List returns the names of all available workflows with shadowing applied,
// sorted for stable output.
func (ld *Loader) List() ([]string, error) {
	seen := make(map[string]bool)
	for _, src := range ld.sources {
		entries, err := fs.ReadDir(src.FS, ".")
		if err != nil {
			return nil, fmt.Errorf("listing workflows from %s: %w", src.Name, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), ".md")] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
