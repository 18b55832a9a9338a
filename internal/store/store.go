// Package store loads named query definitions. Definitions are external
// documents keyed by a human-chosen query name; the pipeline reads a
// fresh snapshot on every resolution and never caches across calls.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one named query definition. It is a read-only snapshot:
// the pipeline never mutates it and never shares it across resolutions.
type Definition struct {
	// Query is the GraphQL document text. Required.
	Query string `yaml:"query"`
	// Variables is the raw serialized variable text declared on the
	// definition (a JSON object). Optional.
	Variables string `yaml:"variables,omitempty"`
	// Transform is transformer source executed against the raw result.
	// Optional.
	Transform string `yaml:"transform,omitempty"`
	// Endpoint selects a configured endpoint/credential pair, overriding
	// the caller-supplied default. Optional.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Store loads definitions by name. Load returns (nil, nil) when no
// definition exists under the given name.
type Store interface {
	Load(ctx context.Context, name string) (*Definition, error)
}

// FS reads one YAML document per query name from a directory:
// <dir>/<name>.yaml. Every Load re-reads the file, so edits are picked
// up by the next resolution without any watcher.
type FS struct {
	dir string
}

func NewFS(dir string) *FS { return &FS{dir: dir} }

func (s *FS) Load(ctx context.Context, name string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(name, `/\`) || name == "" {
		return nil, fmt.Errorf("invalid query name %q", name)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, name+".yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read definition %q: %w", name, err)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse definition %q: %w", name, err)
	}
	return &def, nil
}

// Static is an in-memory store used by tests and embedders.
type Static map[string]*Definition

func (s Static) Load(ctx context.Context, name string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, ok := s[name]
	if !ok {
		return nil, nil
	}
	cp := *def
	return &cp, nil
}
