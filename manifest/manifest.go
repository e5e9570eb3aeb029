// Package manifest handles pylower.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/lower"
)

// FileName is the name of the configuration file.
const FileName = "pylower.toml"

// Manifest represents a pylower.toml configuration.
type Manifest struct {
	Lower   LowerConfig   `toml:"lower"`
	Catalog CatalogConfig `toml:"catalog"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the pylower.toml file (set at load time).
	Dir string `toml:"-"`

	dialect lower.Dialect
}

// LowerConfig configures translation.
type LowerConfig struct {
	Dialect string `toml:"dialect"`
	// Verify is a pointer so an absent key can default to true.
	Verify *bool `toml:"verify"`
}

// CatalogConfig lists the catalog files, relative to Dir.
type CatalogConfig struct {
	Files []string `toml:"files"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Load parses a pylower.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes configuration TOML. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}

	if m.Lower.Dialect == "" {
		return nil, fmt.Errorf("[lower] dialect is required")
	}
	m.dialect, err = lower.ParseDialect(m.Lower.Dialect)
	if err != nil {
		return nil, fmt.Errorf("[lower] %w", err)
	}

	// Defaults
	if m.Lower.Verify == nil {
		verify := true
		m.Lower.Verify = &verify
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a pylower.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Dialect returns the parsed handler-entry dialect.
func (m *Manifest) Dialect() lower.Dialect {
	return m.dialect
}

// CatalogPaths returns absolute paths for the configured catalog files.
func (m *Manifest) CatalogPaths() []string {
	var paths []string
	for _, f := range m.Catalog.Files {
		if filepath.IsAbs(f) {
			paths = append(paths, f)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, f))
	}
	return paths
}

// Registry builds a catalog holding the builtins plus every configured
// catalog file, loaded in order.
func (m *Manifest) Registry() (*catalog.Registry, error) {
	r := catalog.NewRegistry()
	for _, path := range m.CatalogPaths() {
		if err := catalog.LoadFile(r, path); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config builds the lowering configuration, loading the catalog.
func (m *Manifest) Config() (lower.Config, error) {
	r, err := m.Registry()
	if err != nil {
		return lower.Config{}, err
	}
	return lower.Config{
		Dialect: m.dialect,
		Verify:  *m.Lower.Verify,
		Catalog: r,
	}, nil
}
