package action

import "fmt"

// Permission is the operation requested against a resource.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionDelete  Permission = "delete"
	PermissionExecute Permission = "execute"
	PermissionInvoke  Permission = "invoke"
)

// Resource derives the (resource_string, permission) pair for an action per
// the action-to-resource mapping. ok is false for actions that have no
// natural resource mapping and always require approval (TransmitData,
// FinancialTransaction, AccessControlChange, CapabilityGrant).
func Resource(a SensitiveAction) (resource string, permission Permission, ok bool) {
	switch a.Type {
	case TypeMcpToolCall:
		return fmt.Sprintf("mcp://%s:%s", a.Server, a.Tool), PermissionInvoke, true
	case TypeFileRead:
		return fmt.Sprintf("file://%s", a.Path), PermissionRead, true
	case TypeFileDelete:
		return fmt.Sprintf("file://%s", a.Path), PermissionDelete, true
	case TypeFileWriteOutsideSandbox:
		return fmt.Sprintf("file://%s", a.Path), PermissionWrite, true
	case TypeExecuteCommand:
		return fmt.Sprintf("exec://%s", a.Command), PermissionExecute, true
	case TypeNetworkRequest:
		return fmt.Sprintf("net://%s:%d", a.Host, a.Port), PermissionInvoke, true
	case TypePluginExecution:
		return fmt.Sprintf("plugin://%s:%s", a.PluginID, a.Capability), PermissionInvoke, true
	case TypePluginHttpRequest:
		return fmt.Sprintf("plugin://%s:http_request", a.PluginID), PermissionInvoke, true
	case TypePluginFileAccess:
		return fmt.Sprintf("plugin://%s:file_%s", a.PluginID, a.Mode), PermissionInvoke, true
	default:
		return "", "", false
	}
}
