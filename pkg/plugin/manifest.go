// Package plugin models the plugin sandbox surface: loading plugin
// manifests, verifying them against a lockfile, and resolving the
// "plugin:<id>:<tool>" qualified tool name format the interceptor's
// SensitiveAction classification depends on.
package plugin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes one plugin's identity and declared capabilities,
// parsed from YAML frontmatter in a <plugin-id>.md file the same way
// subagent definitions are.
type Manifest struct {
	ID           string   `yaml:"id"`
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities"`
	Trusted      bool     `yaml:"trusted"`

	FilePath string `yaml:"-"`
	Hash     string `yaml:"-"` // sha256 hex of FilePath's raw bytes at load time
}

// knownManifestKeys mirrors the unknown-field detection goat's subagent
// loader does for agent frontmatter.
var knownManifestKeys = map[string]bool{
	"id":           true,
	"description":  true,
	"capabilities": true,
	"trusted":      true,
}

// splitFrontmatter extracts YAML frontmatter delimited by "---" lines.
func splitFrontmatter(data []byte) (yamlPart []byte, ok bool) {
	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return nil, false
	}
	rest := content[3:]
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r\n")
	endIdx := strings.Index(rest, "\n---")
	if endIdx < 0 {
		return nil, false
	}
	return []byte(rest[:endIdx]), true
}

// ParseFile reads and parses a plugin manifest file, recording its content
// hash for lockfile verification.
func ParseFile(path string) (*Manifest, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading plugin manifest %s: %w", path, err)
	}

	yamlPart, ok := splitFrontmatter(data)
	if !ok {
		return nil, nil, fmt.Errorf("no frontmatter found in %s", path)
	}

	var raw map[string]any
	var warnings []string
	if err := yaml.Unmarshal(yamlPart, &raw); err == nil {
		for key := range raw {
			if !knownManifestKeys[key] {
				warnings = append(warnings, fmt.Sprintf("unknown field %q in %s", key, path))
			}
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(yamlPart, &m); err != nil {
		return nil, warnings, fmt.Errorf("parsing plugin manifest %s: %w", path, err)
	}

	if m.ID == "" {
		base := filepath.Base(path)
		m.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if strings.Contains(m.ID, ":") {
		return nil, warnings, fmt.Errorf("plugin id %q in %s must not contain ':' (qualified tool names are colon-delimited)", m.ID, path)
	}

	sum := sha256.Sum256(data)
	m.FilePath = path
	m.Hash = hex.EncodeToString(sum[:])

	return &m, warnings, nil
}

// ParseQualifiedTool splits a "plugin:<id>:<tool>" name into its plugin id
// and tool name. Per the source's own documented limitation, an id
// containing a colon breaks this scheme; ids are colon-free by convention
// and are not validated here beyond what ParseFile already rejects at load
// time.
func ParseQualifiedTool(qualified string) (pluginID, tool string, ok bool) {
	rest, ok := strings.CutPrefix(qualified, "plugin:")
	if !ok {
		return "", "", false
	}
	pluginID, tool, ok = strings.Cut(rest, ":")
	return pluginID, tool, ok
}
