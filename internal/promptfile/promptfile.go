// Package promptfile loads the optional prompt override file. Deployments
// that need a different persona or extra catalog guidance ship a YAML file
// instead of rebuilding the binary.
package promptfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt is the parsed prompt file.
type Prompt struct {
	// System replaces the built-in system prompt when set.
	System string `yaml:"system"`
	// Extra is appended to the effective system prompt, whether built-in
	// or overridden.
	Extra []string `yaml:"extra"`
}

// Load reads and parses path. An empty path returns a zero Prompt and no
// error.
func Load(path string) (Prompt, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Prompt{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("read prompt file: %w", err)
	}
	var p Prompt
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Prompt{}, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	p.System = strings.TrimSpace(p.System)
	kept := p.Extra[:0]
	for _, line := range p.Extra {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	p.Extra = kept
	return p, nil
}

// Apply builds the effective system prompt from the built-in default and the
// loaded overrides.
func (p Prompt) Apply(builtin string) string {
	system := strings.TrimSpace(builtin)
	if p.System != "" {
		system = p.System
	}
	if len(p.Extra) == 0 {
		return system
	}
	parts := append([]string{system}, p.Extra...)
	return strings.Join(parts, "\n\n")
}
