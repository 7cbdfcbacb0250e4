package plugin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LockEntry is one plugin's recorded identity in plugin.lock.
type LockEntry struct {
	Hash         string   `yaml:"hash"`
	Capabilities []string `yaml:"capabilities"`
}

// Lockfile pins each known plugin id to the content hash and capability set
// it was approved with, the same discipline goat's subagent frontmatter
// brings to agent definitions, applied here to plugin identity instead.
type Lockfile struct {
	Plugins map[string]LockEntry `yaml:"plugins"`
}

// LoadLockfile reads plugin.lock. A missing file yields an empty lockfile,
// not an error — a workspace with no plugins configured is the common case.
func LoadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Lockfile{Plugins: map[string]LockEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	if lf.Plugins == nil {
		lf.Plugins = map[string]LockEntry{}
	}
	return &lf, nil
}

// Save writes the lockfile back to disk, used after Registry.Trust pins a
// newly-seen plugin.
func (lf *Lockfile) Save(path string) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Verify reports whether a manifest's hash matches the lockfile entry for
// its id. A plugin absent from the lockfile is unverified, not an error —
// callers decide whether an unverified plugin may load untrusted.
func (lf *Lockfile) Verify(m *Manifest) (verified bool, known bool) {
	entry, known := lf.Plugins[m.ID]
	if !known {
		return false, false
	}
	return entry.Hash == m.Hash, true
}

// Pin records a manifest's current hash and capabilities as the trusted
// baseline for its id.
func (lf *Lockfile) Pin(m *Manifest) {
	if lf.Plugins == nil {
		lf.Plugins = map[string]LockEntry{}
	}
	lf.Plugins[m.ID] = LockEntry{Hash: m.Hash, Capabilities: m.Capabilities}
}
