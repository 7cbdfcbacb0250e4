package allowance

import (
	"time"

	"github.com/astralis-run/astrid/pkg/action"
)

// Allowance is a pre-authorization for a class of future actions, matched
// by Pattern. Invariants: MaxUses != nil implies UsesRemaining != nil;
// UsesRemaining <= MaxUses.
type Allowance struct {
	ID            string
	ActionPattern Pattern
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	MaxUses       *int
	UsesRemaining *int
	SessionOnly   bool
	WorkspaceRoot *string
	Signature     []byte
}

// IsValid reports whether the allowance has not expired and still has uses
// remaining (if use-counted).
func (a *Allowance) IsValid(now time.Time) bool {
	if a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
		return false
	}
	if a.UsesRemaining != nil && *a.UsesRemaining <= 0 {
		return false
	}
	return true
}

// PatternFromAction implements the §4.1.2 mapping from an action to the
// AllowancePattern created on a Session/Workspace approval. ok is false for
// actions with no natural pattern (caller should fall back to UserApproval).
func PatternFromAction(a action.SensitiveAction) (Pattern, bool) {
	switch a.Type {
	case action.TypeMcpToolCall:
		return Pattern{Type: TypeExactTool, Server: a.Server, Tool: a.Tool}, true
	case action.TypeFileRead:
		return Pattern{Type: TypeFilePattern, Glob: a.Path, Permission: action.PermissionRead}, true
	case action.TypeFileDelete:
		return Pattern{Type: TypeFilePattern, Glob: a.Path, Permission: action.PermissionDelete}, true
	case action.TypeFileWriteOutsideSandbox:
		return Pattern{Type: TypeFilePattern, Glob: a.Path, Permission: action.PermissionWrite}, true
	case action.TypeExecuteCommand:
		return Pattern{Type: TypeCommandPattern, Glob: a.Command}, true
	case action.TypeNetworkRequest:
		return Pattern{Type: TypeNetworkHost, Host: a.Host, Ports: []int{a.Port}}, true
	case action.TypePluginExecution:
		return Pattern{Type: TypePluginCapability, PluginID: a.PluginID, Capability: a.Capability}, true
	default:
		return Pattern{}, false
	}
}
