// internal/safeeval/manifest.go
package safeeval

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/btmgen/internal/translate"
	"github.com/solatis/btmgen/internal/types"
)

/*
 * Predicate manifest (predicates.yaml).
 *
 * Safe-mode generation records every opaque condition next to the rule
 * files: rule ID, location, raw condition and the translated helper
 * expression. Loading the manifest and registering it against a set of
 * bindings reproduces offline what the generated registration blocks do
 * inside the JVM. Conditions that do not translate register as constant
 * true, matching the "return true;" body the rule carries.
 */

// ManifestFile is the manifest name inside the output directory.
const ManifestFile = "predicates.yaml"

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1

// Manifest lists the opaque predicates of one generation run.
type Manifest struct {
	Version    int     `yaml:"version"`
	Generator  string  `yaml:"generator"`
	Helper     string  `yaml:"helper"`
	Predicates []Entry `yaml:"predicates"`
}

// Entry is one opaque condition.
type Entry struct {
	RuleID     string `yaml:"rule_id"`
	Class      string `yaml:"class"`
	Method     string `yaml:"method"`
	Line       int    `yaml:"line"`
	Condition  string `yaml:"condition"`
	Expression string `yaml:"expression"`
}

// WriteManifest writes m to path as YAML.
func WriteManifest(path string, m *Manifest) error {
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	if m.Generator == "" {
		m.Generator = types.GeneratorName
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// LoadManifest reads a manifest written by WriteManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d is newer than %d", types.ErrInvalidConfig, m.Version, ManifestVersion)
	}
	return &m, nil
}

// Register compiles every entry against b and stores it in reg. It returns
// how many entries compiled; the rest were registered as constant true.
func (m *Manifest) Register(reg *Registry, b Bindings) (int, error) {
	compiled := 0
	for _, e := range m.Predicates {
		if e.RuleID == "" {
			return compiled, fmt.Errorf("%w: manifest entry at %s.%s:%d has no rule_id", types.ErrInvalidConfig, e.Class, e.Method, e.Line)
		}
		n, err := translate.Parse(e.Condition)
		if errors.Is(err, types.ErrTranslationFailed) {
			reg.Register(e.RuleID, alwaysTrue)
			continue
		}
		if err != nil {
			return compiled, err
		}
		p, err := Compile(n, b)
		if err != nil {
			return compiled, fmt.Errorf("failed to compile %s: %w", e.RuleID, err)
		}
		reg.Register(e.RuleID, p)
		compiled++
	}
	return compiled, nil
}

func alwaysTrue() (bool, error) { return true, nil }
