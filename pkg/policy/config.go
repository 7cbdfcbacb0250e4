package policy

import (
	"time"

	"github.com/astralis-run/astrid/pkg/budget"
)

// BindBudgetConfig extracts a budget.Config from the effective tree's
// budget section.
func BindBudgetConfig(t Tree) budget.Config {
	cfg := budget.Config{WarnAtPercent: 80}
	if v, ok := GetPath(t, "budget.session_max_usd"); ok {
		if f, ok := toFloat(v); ok {
			cfg.SessionMaxUSD = f
		}
	}
	if v, ok := GetPath(t, "budget.per_action_max_usd"); ok {
		if f, ok := toFloat(v); ok {
			cfg.PerActionMaxUSD = f
		}
	}
	if v, ok := GetPath(t, "budget.warn_at_percent"); ok {
		if f, ok := toFloat(v); ok {
			cfg.WarnAtPercent = f
		}
	}
	return cfg
}

// BindWorkspaceBudgetMaxUSD extracts workspace.budget_max_usd, the overall
// cap a WorkspaceTracker enforces across every session sharing a workspace.
func BindWorkspaceBudgetMaxUSD(t Tree) float64 {
	v, ok := GetPath(t, "workspace.budget_max_usd")
	if !ok {
		return 0
	}
	f, _ := toFloat(v)
	return f
}

// ApprovalTimeout extracts security.approval_timeout_secs as a
// time.Duration, defaulting to 120s when absent.
func ApprovalTimeout(t Tree) time.Duration {
	v, ok := GetPath(t, "security.approval_timeout_secs")
	if !ok {
		return 120 * time.Second
	}
	f, ok := toFloat(v)
	if !ok {
		return 120 * time.Second
	}
	return time.Duration(f) * time.Second
}

// WorkspaceMode extracts the workspace.mode enum, defaulting to "guided".
func WorkspaceMode(t Tree) string {
	v, ok := GetPath(t, "workspace.mode")
	if !ok {
		return "guided"
	}
	s, ok := v.(string)
	if !ok {
		return "guided"
	}
	return s
}

// EscapePolicy extracts workspace.escape_policy, defaulting to "ask".
func EscapePolicy(t Tree) string {
	v, ok := GetPath(t, "workspace.escape_policy")
	if !ok {
		return "ask"
	}
	s, ok := v.(string)
	if !ok {
		return "ask"
	}
	return s
}
