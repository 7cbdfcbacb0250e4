package policy

import "dario.cat/mergo"

// Layer identifies one of the five configuration layers, in increasing
// precedence order.
type Layer int

const (
	Defaults Layer = iota
	System
	User
	Workspace
	Environment
)

func (l Layer) String() string {
	switch l {
	case Defaults:
		return "defaults"
	case System:
		return "system"
	case User:
		return "user"
	case Workspace:
		return "workspace"
	case Environment:
		return "environment"
	default:
		return "unknown"
	}
}

// LayerTree pairs a layer with the tree it contributed. A nil Tree means
// the layer's source was absent (e.g. no workspace config file).
type LayerTree struct {
	Layer Layer
	Tree  Tree
}

// FieldSources maps each leaf dot-path to the layer that last set it.
type FieldSources map[string]Layer

// MergeLayers deep-merges layers in order, later layers overriding earlier
// ones per leaf field, and records provenance in the returned FieldSources.
// Layers must be supplied in ascending precedence order.
func MergeLayers(layers []LayerTree) (Tree, FieldSources, error) {
	merged := Tree{}
	sources := FieldSources{}
	for _, lt := range layers {
		if lt.Tree == nil {
			continue
		}
		// Merge a copy so nested tables in merged never alias a layer's own
		// tables, which later layers would otherwise overwrite in place.
		if err := mergo.Merge(&merged, Clone(lt.Tree), mergo.WithOverride); err != nil {
			return nil, nil, err
		}
		for _, path := range Flatten(lt.Tree) {
			sources[path] = lt.Layer
		}
	}
	return merged, sources, nil
}
