package policy

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/astralis-run/astrid/pkg/action"
)

// Verdict is the outcome of consulting SecurityPolicy during interceptor
// step 1.
type Verdict int

const (
	// VerdictAllowed means the action needs no further gating.
	VerdictAllowed Verdict = iota
	// VerdictRequiresApproval means later pipeline stages (capability,
	// budget, approval) must run.
	VerdictRequiresApproval
	// VerdictBlocked means the action is denied outright.
	VerdictBlocked
)

// SecurityPolicy is the bound, typed view of the security.policy section of
// the effective configuration tree, used by the interceptor's first stage.
type SecurityPolicy struct {
	BlockedTools             []string
	DeniedPaths              []string
	DeniedHosts              []string
	AllowedPaths             []string
	AllowedHosts             []string
	ApprovalRequiredTools    []string
	RequireApprovalForDelete bool
	RequireApprovalForNetwork bool
	MaxArgumentSize          int
}

// Classify implements §4.1 step 1: consult the policy for a blocked match,
// then whether the action requires approval (file deletes, the approval
// flags, approval_required_tools); any other action is VerdictAllowed.
func (p SecurityPolicy) Classify(a action.SensitiveAction) Verdict {
	if p.blockedByTool(a) || p.blockedByPath(a) || p.blockedByHost(a) {
		return VerdictBlocked
	}
	if p.requiresApproval(a) {
		return VerdictRequiresApproval
	}
	return VerdictAllowed
}

func (p SecurityPolicy) blockedByTool(a action.SensitiveAction) bool {
	if a.ActionType() != action.TypeMcpToolCall && a.ActionType() != action.TypePluginExecution {
		return false
	}
	name := toolKey(a)
	for _, pattern := range p.BlockedTools {
		if globMatch(pattern, name) {
			return true
		}
	}
	return false
}

func (p SecurityPolicy) blockedByPath(a action.SensitiveAction) bool {
	if a.Path == "" {
		return false
	}
	for _, pattern := range p.DeniedPaths {
		if globMatch(pattern, a.Path) {
			return true
		}
	}
	if len(p.AllowedPaths) == 0 {
		return false
	}
	for _, pattern := range p.AllowedPaths {
		if globMatch(pattern, a.Path) {
			return false
		}
	}
	return true
}

func (p SecurityPolicy) blockedByHost(a action.SensitiveAction) bool {
	if a.Host == "" {
		return false
	}
	for _, pattern := range p.DeniedHosts {
		if globMatch(pattern, a.Host) {
			return true
		}
	}
	if len(p.AllowedHosts) == 0 {
		return false
	}
	for _, pattern := range p.AllowedHosts {
		if globMatch(pattern, a.Host) {
			return false
		}
	}
	return true
}

func (p SecurityPolicy) requiresApproval(a action.SensitiveAction) bool {
	switch a.ActionType() {
	case action.TypeFileDelete:
		return true
	case action.TypeFileWriteOutsideSandbox:
		if p.RequireApprovalForDelete {
			return true
		}
	case action.TypeNetworkRequest:
		if p.RequireApprovalForNetwork {
			return true
		}
	}
	name := toolKey(a)
	for _, pattern := range p.ApprovalRequiredTools {
		if globMatch(pattern, name) {
			return true
		}
	}
	return false
}

func toolKey(a action.SensitiveAction) string {
	switch a.ActionType() {
	case action.TypeMcpToolCall:
		return fmt.Sprintf("%s/%s", a.Server, a.Tool)
	case action.TypePluginExecution:
		return fmt.Sprintf("%s/%s", a.PluginID, a.Capability)
	default:
		return ""
	}
}

func globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// BindSecurityPolicy extracts a SecurityPolicy from an effective tree's
// security.policy section. Binding happens only after merge and
// restriction enforcement, never before: the interceptor must see the
// final, already-tightened values.
func BindSecurityPolicy(t Tree) SecurityPolicy {
	get := func(path string) (any, bool) { return GetPath(t, path) }
	strs := func(path string) []string {
		v, ok := get(path)
		if !ok {
			return nil
		}
		s, _ := toStringSlice(v)
		return s
	}
	boolAt := func(path string) bool {
		v, ok := get(path)
		if !ok {
			return false
		}
		b, _ := toBool(v)
		return b
	}
	intAt := func(path string) int {
		v, ok := get(path)
		if !ok {
			return 0
		}
		f, _ := toFloat(v)
		return int(f)
	}
	return SecurityPolicy{
		BlockedTools:              strs("security.policy.blocked_tools"),
		DeniedPaths:               strs("security.policy.denied_paths"),
		DeniedHosts:               strs("security.policy.denied_hosts"),
		AllowedPaths:              strs("security.policy.allowed_paths"),
		AllowedHosts:              strs("security.policy.allowed_hosts"),
		ApprovalRequiredTools:     strs("security.policy.approval_required_tools"),
		RequireApprovalForDelete:  boolAt("security.policy.require_approval_for_delete"),
		RequireApprovalForNetwork: boolAt("security.policy.require_approval_for_network"),
		MaxArgumentSize:           intAt("security.policy.max_argument_size"),
	}
}
