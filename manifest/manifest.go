// Package manifest handles weft.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a weft.toml project configuration.
type Manifest struct {
	Advice  Advice  `toml:"advice"`
	Target  Target  `toml:"target"`
	Markers Markers `toml:"markers"`
	Report  Report  `toml:"report"`

	// Dir is the directory containing the weft.toml file (set at load time).
	Dir string `toml:"-"`
}

// Advice configures the advice class and weaving behavior.
type Advice struct {
	Class string `toml:"class"`

	// Exceptional routes exceptions thrown by woven methods through the
	// exit advice. Defaults to true.
	Exceptional *bool `toml:"exceptional"`

	// Suppress is the internal name of a throwable type swallowed inside
	// advice bodies, or empty for none.
	Suppress string `toml:"suppress"`
}

// Target configures which class files are woven.
type Target struct {
	Classes []string `toml:"classes"`
	Methods []string `toml:"methods"`
	Output  string   `toml:"output"`
}

// Markers overrides the marker annotation internal names.
type Markers struct {
	Enter string `toml:"enter"`
	Exit  string `toml:"exit"`
}

// Report configures weave report output.
type Report struct {
	Output string `toml:"output"`
}

// ExceptionalOrDefault resolves the exceptional-invocation flag, which
// defaults to true when the manifest leaves it unset.
func (a Advice) ExceptionalOrDefault() bool {
	if a.Exceptional == nil {
		return true
	}
	return *a.Exceptional
}

// Load parses a weft.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "weft.toml")
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

	// Defaults
	if m.Target.Output == "" {
		m.Target.Output = "woven"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a weft.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "weft.toml")
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

// MatchesMethod reports whether a method name passes the [target] method
// filters. An empty filter list matches every method.
func (m *Manifest) MatchesMethod(name string) bool {
	if len(m.Target.Methods) == 0 {
		return true
	}
	for _, want := range m.Target.Methods {
		if want == name {
			return true
		}
	}
	return false
}
