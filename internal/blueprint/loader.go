package blueprint

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Parse decodes a single YAML blueprint document and validates it. Unknown
// fields are rejected so typos in blueprint files fail loudly.
func Parse(data []byte) (*Blueprint, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var bp Blueprint
	if err := dec.Decode(&bp); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty blueprint document")
		}
		return nil, fmt.Errorf("failed to decode blueprint: %w", err)
	}
	if bp.Skill.ToolDiscovery == "" {
		bp.Skill.ToolDiscovery = ToolDiscoveryDynamic
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

// LoadFS parses every *.yaml / *.yml file directly under dir in fsys, in
// lexical order.
func LoadFS(fsys fs.FS, dir string) ([]*Blueprint, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := path.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	blueprints := make([]*Blueprint, 0, len(names))
	for _, name := range names {
		p := path.Join(dir, name)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read blueprint %s: %w", p, err)
		}
		bp, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		blueprints = append(blueprints, bp)
	}
	return blueprints, nil
}

// LoadBuiltin returns the blueprints compiled into the binary.
func LoadBuiltin() ([]*Blueprint, error) {
	return LoadFS(builtinFS, "builtin")
}

// LoadDir loads blueprints from a directory on disk.
func LoadDir(dir string) ([]*Blueprint, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// NewDefaultRegistry registers the builtin blueprints followed by those in
// overrideDir (when non-empty), so files on disk replace builtins with the
// same provider key.
func NewDefaultRegistry(overrideDir string) (*Registry, error) {
	builtin, err := LoadBuiltin()
	if err != nil {
		return nil, err
	}
	r := NewRegistry(builtin...)
	if strings.TrimSpace(overrideDir) == "" {
		return r, nil
	}
	extra, err := LoadDir(overrideDir)
	if err != nil {
		return nil, err
	}
	for _, bp := range extra {
		r.Register(bp)
	}
	slog.Info("blueprints loaded", "builtin", len(builtin), "from_dir", len(extra), "dir", overrideDir, "total", r.Len())
	return r, nil
}
