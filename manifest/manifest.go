// Package manifest handles catena.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/catena-lang/catena/vm"
)

// Manifest represents a catena.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	VM      VMConfig    `toml:"vm"`
	Image   ImageConfig `toml:"image"`

	// Dir is the directory containing the catena.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// VMConfig sizes the machine's segments. Zero values fall back to the
// core defaults.
type VMConfig struct {
	DataStackCells   int `toml:"data-stack-cells"`
	ReturnStackCells int `toml:"return-stack-cells"`
	CodeBytes        int `toml:"code-bytes"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// Default returns the manifest used when no catena.toml exists: core VM
// defaults, src/ as the source directory, no image output.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	def := vm.DefaultConfig()
	if m.VM.DataStackCells <= 0 {
		m.VM.DataStackCells = def.DataStackCells
	}
	if m.VM.ReturnStackCells <= 0 {
		m.VM.ReturnStackCells = def.ReturnStackCells
	}
	if m.VM.CodeBytes <= 0 {
		m.VM.CodeBytes = def.CodeBytes
	}
}

// Load parses a catena.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "catena.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a catena.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "catena.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ToConfig converts the manifest's VM section to a core Config.
func (m *Manifest) ToConfig() vm.Config {
	return vm.Config{
		DataStackCells:   m.VM.DataStackCells,
		ReturnStackCells: m.VM.ReturnStackCells,
		CodeBytes:        m.VM.CodeBytes,
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// ImagePath returns the absolute image output path, or "" when image output
// is not configured.
func (m *Manifest) ImagePath() string {
	if m.Image.Output == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Image.Output)
}
