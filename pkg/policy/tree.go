// Package policy implements the layered configuration resolver with
// restriction enforcement (C7): merging defaults/system/user/workspace/
// environment into an effective configuration and applying the one-way
// tightening rules a workspace config may never violate.
package policy

import "strings"

// Tree is a dynamic structured configuration value: tables merge
// recursively by key, scalars and arrays are leaves. Per §9, the resolver
// deliberately operates on this generic shape rather than a typed struct so
// that "absent" and "set to the type's zero value" remain distinguishable
// until after merge and enforcement.
type Tree map[string]any

// GetPath looks up a dot-separated path, e.g. "budget.session_max_usd".
func GetPath(t Tree, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = t
	for _, part := range parts {
		m, ok := cur.(Tree)
		if !ok {
			if asMap, ok2 := cur.(map[string]any); ok2 {
				m = Tree(asMap)
			} else {
				return nil, false
			}
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// SetPath writes value at a dot-separated path, creating intermediate
// tables as needed.
func SetPath(t Tree, path string, value any) {
	parts := strings.Split(path, ".")
	cur := t
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part]
		if !ok {
			newTree := Tree{}
			cur[part] = newTree
			cur = newTree
			continue
		}
		nextTree, ok := asTree(next)
		if !ok {
			nextTree = Tree{}
			cur[part] = nextTree
		}
		cur = nextTree
	}
}

func asTree(v any) (Tree, bool) {
	switch m := v.(type) {
	case Tree:
		return m, true
	case map[string]any:
		return Tree(m), true
	default:
		return nil, false
	}
}

// Clone deep-copies a Tree.
func Clone(t Tree) Tree {
	out := make(Tree, len(t))
	for k, v := range t {
		if sub, ok := asTree(v); ok {
			out[k] = Clone(sub)
		} else if arr, ok := v.([]any); ok {
			cp := make([]any, len(arr))
			copy(cp, arr)
			out[k] = cp
		} else {
			out[k] = v
		}
	}
	return out
}

// Flatten returns the set of leaf dot-paths present in t.
func Flatten(t Tree) []string {
	var out []string
	var walk func(prefix string, node Tree)
	walk = func(prefix string, node Tree) {
		for k, v := range node {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if sub, ok := asTree(v); ok {
				walk(path, sub)
				continue
			}
			out = append(out, path)
		}
	}
	walk("", t)
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func unionStrings(a, b []string) []string {
	set := stringSet(a)
	out := append([]string{}, a...)
	for _, item := range b {
		if _, ok := set[item]; !ok {
			out = append(out, item)
			set[item] = struct{}{}
		}
	}
	return out
}

func isSubset(sub, super []string) bool {
	set := stringSet(super)
	for _, item := range sub {
		if _, ok := set[item]; !ok {
			return false
		}
	}
	return true
}
