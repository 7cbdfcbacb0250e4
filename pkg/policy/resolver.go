package policy

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Paths locates the on-disk configuration sources for the five layers.
// System, User, and Workspace may not exist; Defaults must.
type Paths struct {
	Defaults  string
	System    string
	User      string
	Workspace string
	EnvPrefix string // e.g. "ASTRID"
}

// Resolver loads, merges, and enforces the layered configuration. It is
// safe for concurrent reads of Effective/FieldSource once Load has
// returned; Load itself is not concurrency-safe and should be called from
// a single goroutine (typically at startup and from the fsnotify watcher).
type Resolver struct {
	paths Paths
	log   *slog.Logger

	effective Tree
	sources   FieldSources
}

// NewResolver creates a Resolver; call Load before using Effective.
func NewResolver(paths Paths, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{paths: paths, log: log}
}

// Load performs the full resolution:
//  1. Load each layer's YAML file (absent files contribute an empty layer)
//  2. Deep-merge defaults < system < user < workspace, tracking provenance
//  3. Enforce the one-way restriction table against the pre-workspace
//     baseline, reverting any loosening the workspace layer attempted
//  4. Overlay environment variables (not subject to restriction: the
//     environment is operator-controlled, same trust tier as system)
func (r *Resolver) Load() error {
	defaultsTree, err := loadYAMLFile(r.paths.Defaults)
	if err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	systemTree, err := loadYAMLFile(r.paths.System)
	if err != nil {
		return fmt.Errorf("load system config: %w", err)
	}
	userTree, err := loadYAMLFile(r.paths.User)
	if err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	workspaceTree, err := loadYAMLFile(r.paths.Workspace)
	if err != nil {
		return fmt.Errorf("load workspace config: %w", err)
	}

	baseline, _, err := MergeLayers([]LayerTree{
		{Defaults, defaultsTree},
		{System, systemTree},
		{User, userTree},
	})
	if err != nil {
		return fmt.Errorf("merge baseline layers: %w", err)
	}

	withWorkspace, sources, err := MergeLayers([]LayerTree{
		{Defaults, defaultsTree},
		{System, systemTree},
		{User, userTree},
		{Workspace, workspaceTree},
	})
	if err != nil {
		return fmt.Errorf("merge workspace layer: %w", err)
	}

	enforced := EnforceRestrictions(baseline, withWorkspace, r.log)

	envTree := envOverlay(r.paths.EnvPrefix)
	final, envSources, err := MergeLayers([]LayerTree{
		{Workspace, enforced},
		{Environment, envTree},
	})
	if err != nil {
		return fmt.Errorf("merge environment layer: %w", err)
	}
	for path, layer := range envSources {
		if layer == Environment {
			sources[path] = Environment
		}
	}

	r.effective = final
	r.sources = sources
	return nil
}

// Effective returns the fully resolved, enforced configuration tree.
func (r *Resolver) Effective() Tree {
	return r.effective
}

// FieldSource reports which layer last set the leaf at path.
func (r *Resolver) FieldSource(path string) (Layer, bool) {
	l, ok := r.sources[path]
	return l, ok
}

func loadYAMLFile(path string) (Tree, error) {
	if path == "" {
		return Tree{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Tree{}, nil
	}
	if err != nil {
		return nil, err
	}
	var tree Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree == nil {
		tree = Tree{}
	}
	return tree, nil
}

// envOverlay builds a Tree from environment variables named
// "<prefix>__SECTION__FIELD", mapping double-underscore-separated segments
// to a lowercased dot path (e.g. ASTRID__BUDGET__SESSION_MAX_USD ->
// budget.session_max_usd).
func envOverlay(prefix string) Tree {
	tree := Tree{}
	if prefix == "" {
		return tree
	}
	envPrefix := prefix + "__"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envPrefix)
		segments := strings.Split(rest, "__")
		for i, seg := range segments {
			segments[i] = strings.ToLower(seg)
		}
		SetPath(tree, strings.Join(segments, "."), parseEnvValue(value))
	}
	return tree
}

func parseEnvValue(v string) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

// Watcher reloads the resolver when the workspace config file changes on
// disk, invoking onReload with any error from Load.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// WatchWorkspace starts watching the resolver's workspace config file path
// for writes and re-runs Load on change.
func WatchWorkspace(r *Resolver, onReload func(error)) (*Watcher, error) {
	if r.paths.Workspace == "" {
		return nil, fmt.Errorf("policy: no workspace config path configured")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(r.paths.Workspace); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", r.paths.Workspace, err)
	}
	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onReload(r.Load())
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return &Watcher{fsw: fsw}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
