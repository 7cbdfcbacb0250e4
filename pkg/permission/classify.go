package permission

import (
	"path/filepath"
	"strings"

	"github.com/astralis-run/astrid/pkg/action"
)

// ClassifyTool implements the reverse of §4.1.1: given a tool invocation,
// decide whether it is a sensitive action the interceptor must gate, and if
// so, which one. ok is false for tools with no sensitive-action mapping
// (Glob/Grep/TodoWrite/...), for Bash without a command, and for
// Read/Write/Edit/NotebookEdit on a path inside workspaceRoot; those fall
// through to the legacy mode/rules/hook/callback layering unchanged.
func ClassifyTool(toolName string, input map[string]any, workspaceRoot string) (action.SensitiveAction, bool) {
	if server, tool, ok := strings.Cut(strings.TrimPrefix(toolName, "mcp__"), "__"); ok && strings.HasPrefix(toolName, "mcp__") {
		return action.SensitiveAction{Type: action.TypeMcpToolCall, Server: server, Tool: tool}, true
	}

	switch toolName {
	case "Bash":
		command, _ := input["command"].(string)
		if command == "" {
			return action.SensitiveAction{}, false
		}
		return action.SensitiveAction{Type: action.TypeExecuteCommand, Command: command}, true

	case "Write", "Edit", "NotebookEdit":
		path, _ := input["file_path"].(string)
		if path == "" {
			return action.SensitiveAction{}, false
		}
		if withinWorkspace(path, workspaceRoot) {
			return action.SensitiveAction{}, false
		}
		return action.SensitiveAction{Type: action.TypeFileWriteOutsideSandbox, Path: path}, true

	case "Read":
		path, _ := input["file_path"].(string)
		if path == "" || withinWorkspace(path, workspaceRoot) {
			return action.SensitiveAction{}, false
		}
		return action.SensitiveAction{Type: action.TypeFileRead, Path: path}, true

	default:
		return action.SensitiveAction{}, false
	}
}

// withinWorkspace reports whether path is workspaceRoot itself or a
// descendant of it. Component-wise: "/home/u/proj-evil" must not be treated
// as inside "/home/u/proj" just because it shares that byte prefix.
func withinWorkspace(path, workspaceRoot string) bool {
	if workspaceRoot == "" {
		return true
	}
	rel, err := filepath.Rel(workspaceRoot, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
