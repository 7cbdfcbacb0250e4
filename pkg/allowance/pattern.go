// Package allowance implements the in-memory allowance store (C2): pattern
// grants that pre-authorize a class of future actions.
package allowance

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/astralis-run/astrid/pkg/action"
)

// Pattern is a discriminated union mirroring the action taxonomy. Type
// determines which fields are populated; never model as a base type with
// subclasses.
type Pattern struct {
	Type string `json:"type"`

	// ExactTool, ServerTools, WorkspaceRelative(Invoke)
	Server string `json:"server,omitempty"`
	Tool   string `json:"tool,omitempty"`

	// FilePattern, WorkspaceRelative, CommandPattern
	Glob       string            `json:"glob,omitempty"`
	Permission action.Permission `json:"permission,omitempty"`

	// NetworkHost
	Host  string `json:"host,omitempty"`
	Ports []int  `json:"ports,omitempty"` // nil = any port

	// PluginCapability, PluginWildcard
	PluginID   string `json:"plugin_id,omitempty"`
	Capability string `json:"capability,omitempty"`

	// Custom
	Raw string `json:"raw,omitempty"`
}

const (
	TypeExactTool         = "exact_tool"
	TypeServerTools       = "server_tools"
	TypeFilePattern       = "file_pattern"
	TypeNetworkHost       = "network_host"
	TypeCommandPattern    = "command_pattern"
	TypeWorkspaceRelative = "workspace_relative"
	TypePluginCapability  = "plugin_capability"
	TypePluginWildcard    = "plugin_wildcard"
	TypeCustom            = "custom"
)

func globMatches(pattern, value string) bool {
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}

// hasTraversal reports whether path contains a ".." path component.
func hasTraversal(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// withinWorkspace reports whether path is workspaceRoot or a descendant of
// it, comparing path components rather than raw bytes: workspaceRoot
// "/home/u/proj" must not match a sibling directory like
// "/home/u/proj-evil" just because it shares that prefix.
func withinWorkspace(path, workspaceRoot string) bool {
	rel, err := filepath.Rel(workspaceRoot, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func derivedFileCapability(mode action.FileAccessMode) string {
	return "file_" + string(mode)
}

// Matches implements the exhaustive pattern-match rules of §4.2. workspaceRoot
// is "" when the action is not scoped to a known workspace.
func (p Pattern) Matches(a action.SensitiveAction, workspaceRoot string) bool {
	switch p.Type {
	case TypeExactTool:
		return a.Type == action.TypeMcpToolCall && a.Server == p.Server && a.Tool == p.Tool

	case TypeServerTools:
		return a.Type == action.TypeMcpToolCall && a.Server == p.Server

	case TypeFilePattern:
		path, ok := filePathForPermission(a, p.Permission)
		if !ok {
			return false
		}
		if hasTraversal(path) {
			return false
		}
		return globMatches(p.Glob, path)

	case TypeWorkspaceRelative:
		switch p.Permission {
		case action.PermissionRead, action.PermissionWrite, action.PermissionDelete:
			path, ok := filePathForPermission(a, p.Permission)
			if !ok {
				return false
			}
			if hasTraversal(path) {
				return false
			}
			if !globMatches(p.Glob, path) {
				return false
			}
			return workspaceRoot == "" || withinWorkspace(path, workspaceRoot)
		case action.PermissionInvoke:
			if a.Type != action.TypeMcpToolCall || workspaceRoot == "" {
				return false
			}
			return globMatches(p.Glob, a.Server+"/"+a.Tool)
		case action.PermissionExecute:
			if a.Type != action.TypeExecuteCommand || workspaceRoot == "" {
				return false
			}
			return globMatches(p.Glob, a.Command)
		default:
			return false
		}

	case TypeNetworkHost:
		if a.Type != action.TypeNetworkRequest || a.Host != p.Host {
			return false
		}
		if p.Ports == nil {
			return true
		}
		for _, port := range p.Ports {
			if port == a.Port {
				return true
			}
		}
		return false

	case TypeCommandPattern:
		return a.Type == action.TypeExecuteCommand && globMatches(p.Glob, a.Command)

	case TypePluginCapability:
		switch a.Type {
		case action.TypePluginExecution:
			return a.PluginID == p.PluginID && a.Capability == p.Capability
		case action.TypePluginHttpRequest:
			return a.PluginID == p.PluginID && p.Capability == "http_request"
		case action.TypePluginFileAccess:
			return a.PluginID == p.PluginID && p.Capability == derivedFileCapability(a.Mode)
		default:
			return false
		}

	case TypePluginWildcard:
		switch a.Type {
		case action.TypePluginExecution, action.TypePluginHttpRequest, action.TypePluginFileAccess:
			return a.PluginID == p.PluginID
		default:
			return false
		}

	case TypeCustom:
		return false

	default:
		return false
	}
}

// filePathForPermission returns the action's path when the action's type
// corresponds to the given file permission.
func filePathForPermission(a action.SensitiveAction, perm action.Permission) (string, bool) {
	switch perm {
	case action.PermissionRead:
		if a.Type == action.TypeFileRead {
			return a.Path, true
		}
	case action.PermissionDelete:
		if a.Type == action.TypeFileDelete {
			return a.Path, true
		}
	case action.PermissionWrite:
		if a.Type == action.TypeFileWriteOutsideSandbox {
			return a.Path, true
		}
	}
	return "", false
}
