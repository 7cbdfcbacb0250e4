package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LoadWarning is a non-fatal issue encountered while scanning plugin
// manifests, mirroring goat subagent's LoadWarning.
type LoadWarning struct {
	File  string
	Error error
}

func (w LoadWarning) String() string {
	return fmt.Sprintf("%s: %v", w.File, w.Error)
}

// ToolDefinition identifies one capability a loaded plugin exposes,
// addressable via the "plugin:<id>:<tool>" qualified name.
type ToolDefinition struct {
	PluginID string
	Tool     string
	Trusted  bool
}

// Registry discovers plugin manifests from one or more directories and
// verifies them against a lockfile, the find_tool/all_tool_definitions
// collaborator the spec requires the core be able to consume without
// depending on how plugins are actually executed (WASM, subprocess, ...).
type Registry struct {
	mu       sync.RWMutex
	dirs     []string
	lockPath string
	lock     *Lockfile
	plugins  map[string]*Manifest // by id
}

// NewRegistry creates a Registry that scans dirs for *.md plugin manifests
// and verifies them against the lockfile at lockPath.
func NewRegistry(lockPath string, dirs ...string) (*Registry, error) {
	lock, err := LoadLockfile(lockPath)
	if err != nil {
		return nil, err
	}
	return &Registry{
		dirs:     dirs,
		lockPath: lockPath,
		lock:     lock,
		plugins:  make(map[string]*Manifest),
	}, nil
}

// Load scans every configured directory for plugin manifests. A plugin
// whose hash doesn't match its lockfile entry is still loaded (so it's
// visible to FindTool) but reported Trusted=false regardless of its own
// Trusted field, until re-pinned. A plugin absent from the lockfile
// is loaded unverified with Trusted=false.
func (r *Registry) Load() ([]LoadWarning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var warnings []LoadWarning
	plugins := make(map[string]*Manifest)

	for _, dir := range r.dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return warnings, err
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			m, fieldWarnings, err := ParseFile(path)
			for _, fw := range fieldWarnings {
				warnings = append(warnings, LoadWarning{File: path, Error: fmt.Errorf("%s", fw)})
			}
			if err != nil {
				warnings = append(warnings, LoadWarning{File: path, Error: err})
				continue
			}

			verified, known := r.lock.Verify(m)
			switch {
			case known && !verified:
				warnings = append(warnings, LoadWarning{File: path, Error: fmt.Errorf("plugin %q hash mismatch against plugin.lock, loading untrusted", m.ID)})
				m.Trusted = false
			case !known:
				m.Trusted = false
			}
			plugins[m.ID] = m
		}
	}

	r.plugins = plugins
	return warnings, nil
}

// Trust pins a loaded plugin's current manifest into the lockfile and
// persists it, the equivalent of an operator running "Allow Always" on a
// previously-unverified plugin.
func (r *Registry) Trust(pluginID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.plugins[pluginID]
	if !ok {
		return fmt.Errorf("unknown plugin %q", pluginID)
	}
	r.lock.Pin(m)
	m.Trusted = true
	return r.lock.Save(r.lockPath)
}

// IsTrusted reports whether a loaded plugin is marked trusted: Trust was
// called for it since the last Load, or its hash matches the lockfile and
// its manifest sets trusted.
func (r *Registry) IsTrusted(pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.plugins[pluginID]
	return ok && m.Trusted
}

// FindTool resolves a "plugin:<id>:<tool>" qualified name to a
// ToolDefinition. ok is false if the plugin id is unknown; the tool name
// itself is not validated against the plugin's declared capabilities here
// (that's the interceptor's job via action.Resource's plugin://id:cap
// pattern matching against AllowancePattern/CapabilityToken).
func (r *Registry) FindTool(qualified string) (ToolDefinition, bool) {
	pluginID, tool, ok := ParseQualifiedTool(qualified)
	if !ok {
		return ToolDefinition{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.plugins[pluginID]
	if !ok {
		return ToolDefinition{}, false
	}
	return ToolDefinition{PluginID: pluginID, Tool: tool, Trusted: m.Trusted}, true
}

// AllToolDefinitions returns every capability declared by every loaded
// plugin, addressable as "plugin:<id>:<capability>".
func (r *Registry) AllToolDefinitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []ToolDefinition
	for id, m := range r.plugins {
		for _, cap := range m.Capabilities {
			defs = append(defs, ToolDefinition{PluginID: id, Tool: cap, Trusted: m.Trusted})
		}
	}
	return defs
}

// Manifest returns the loaded manifest for a plugin id, if any.
func (r *Registry) Manifest(pluginID string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.plugins[pluginID]
	return m, ok
}
