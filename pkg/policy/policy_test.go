package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/astralis-run/astrid/pkg/action"
)

func mcpAction(server, tool string) action.SensitiveAction {
	return action.SensitiveAction{Type: action.TypeMcpToolCall, Server: server, Tool: tool}
}

func fileDeleteAction(path string) action.SensitiveAction {
	return action.SensitiveAction{Type: action.TypeFileDelete, Path: path}
}

func fileWriteOutsideAction(path string) action.SensitiveAction {
	return action.SensitiveAction{Type: action.TypeFileWriteOutsideSandbox, Path: path}
}

func TestMergeLayers_LaterLayerOverridesAndTracksSource(t *testing.T) {
	defaults := Tree{"budget": Tree{"session_max_usd": 50.0}}
	user := Tree{"budget": Tree{"session_max_usd": 30.0}}

	merged, sources, err := MergeLayers([]LayerTree{
		{Defaults, defaults},
		{User, user},
	})
	require.NoError(t, err)

	v, ok := GetPath(merged, "budget.session_max_usd")
	require.True(t, ok)
	require.Equal(t, 30.0, v)
	require.Equal(t, User, sources["budget.session_max_usd"])
}

func TestEnforceRestrictions_ClampsBudgetRaise(t *testing.T) {
	baseline := Tree{"budget": Tree{"session_max_usd": 50.0}}
	candidate := Tree{"budget": Tree{"session_max_usd": 500.0}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "budget.session_max_usd")
	require.Equal(t, 50.0, v)
}

func TestEnforceRestrictions_AllowsBudgetLower(t *testing.T) {
	baseline := Tree{"budget": Tree{"session_max_usd": 50.0}}
	candidate := Tree{"budget": Tree{"session_max_usd": 10.0}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "budget.session_max_usd")
	require.Equal(t, 10.0, v)
}

func TestEnforceRestrictions_TrueOnlyFieldCannotBeRelaxed(t *testing.T) {
	baseline := Tree{"security": Tree{"policy": Tree{"require_approval_for_delete": true}}}
	candidate := Tree{"security": Tree{"policy": Tree{"require_approval_for_delete": false}}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "security.policy.require_approval_for_delete")
	require.Equal(t, true, v)
}

func TestEnforceRestrictions_FalseOnlyFieldCannotBeEnabled(t *testing.T) {
	baseline := Tree{"hooks": Tree{"allow_wasm_hooks": false}}
	candidate := Tree{"hooks": Tree{"allow_wasm_hooks": true}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "hooks.allow_wasm_hooks")
	require.Equal(t, false, v)
}

func TestEnforceRestrictions_UnionFieldAccumulates(t *testing.T) {
	baseline := Tree{"security": Tree{"policy": Tree{"blocked_tools": []string{"a"}}}}
	candidate := Tree{"security": Tree{"policy": Tree{"blocked_tools": []string{"a", "b"}}}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "security.policy.blocked_tools")
	require.ElementsMatch(t, []string{"a", "b"}, v)
}

func TestEnforceRestrictions_NoExpansionFieldRevertsOnAddition(t *testing.T) {
	baseline := Tree{"security": Tree{"policy": Tree{"allowed_paths": []string{"/repo/**"}}}}
	candidate := Tree{"security": Tree{"policy": Tree{"allowed_paths": []string{"/repo/**", "/etc/**"}}}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "security.policy.allowed_paths")
	require.Equal(t, []string{"/repo/**"}, v)
}

func TestEnforceRestrictions_NoExpansionFieldAllowsNarrowing(t *testing.T) {
	baseline := Tree{"workspace": Tree{"auto_allow_read": []string{"/repo/**", "/docs/**"}}}
	candidate := Tree{"workspace": Tree{"auto_allow_read": []string{"/repo/**"}}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "workspace.auto_allow_read")
	require.Equal(t, []string{"/repo/**"}, v)
}

func TestEnforceRestrictions_OrdinalFieldClampsToBaseline(t *testing.T) {
	baseline := Tree{"workspace": Tree{"mode": "guided"}}
	candidate := Tree{"workspace": Tree{"mode": "autonomous"}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "workspace.mode")
	require.Equal(t, "guided", v)
}

func TestEnforceRestrictions_OrdinalFieldAllowsTightening(t *testing.T) {
	baseline := Tree{"workspace": Tree{"mode": "autonomous"}}
	candidate := Tree{"workspace": Tree{"mode": "safe"}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "workspace.mode")
	require.Equal(t, "safe", v)
}

func TestEnforceRestrictions_ServerFieldsImmutable(t *testing.T) {
	baseline := Tree{"servers": Tree{"fs": Tree{"command": "orig", "trusted": true}}}
	candidate := Tree{"servers": Tree{"fs": Tree{"command": "hijacked", "trusted": true}}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "servers.fs.command")
	require.Equal(t, "orig", v)
}

func TestEnforceRestrictions_WorkspaceInjectedServerForcedUntrusted(t *testing.T) {
	baseline := Tree{}
	candidate := Tree{"servers": Tree{"evil": Tree{"command": "x", "trusted": true, "auto_start": true}}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	trusted, _ := GetPath(enforced, "servers.evil.trusted")
	autoStart, _ := GetPath(enforced, "servers.evil.auto_start")
	require.Equal(t, false, trusted)
	require.Equal(t, false, autoStart)
}

func TestEnforceRestrictions_ModelAPIKeyOverrideIgnored(t *testing.T) {
	baseline := Tree{"model": Tree{"api_key": "real-key"}}
	candidate := Tree{"model": Tree{"api_key": "workspace-supplied-key"}}

	enforced := EnforceRestrictions(baseline, candidate, nil)

	v, _ := GetPath(enforced, "model.api_key")
	require.Equal(t, "real-key", v)
}

func TestResolver_LoadsLayersAndEnforcesRestrictions(t *testing.T) {
	dir := t.TempDir()

	defaultsPath := filepath.Join(dir, "defaults.yaml")
	workspacePath := filepath.Join(dir, "workspace.yaml")

	require.NoError(t, os.WriteFile(defaultsPath, []byte("budget:\n  session_max_usd: 50\n"), 0o644))
	require.NoError(t, os.WriteFile(workspacePath, []byte("budget:\n  session_max_usd: 5000\n"), 0o644))

	r := NewResolver(Paths{Defaults: defaultsPath, Workspace: workspacePath}, nil)
	require.NoError(t, r.Load())

	v, ok := GetPath(r.Effective(), "budget.session_max_usd")
	require.True(t, ok)
	require.Equal(t, 50.0, v)
}

func TestResolver_MissingLayerFilesAreNotErrors(t *testing.T) {
	r := NewResolver(Paths{Defaults: "/nonexistent/defaults.yaml"}, nil)
	require.NoError(t, r.Load())
}

func TestEnvOverlay_MapsDoubleUnderscorePath(t *testing.T) {
	t.Setenv("ASTRID__BUDGET__SESSION_MAX_USD", "42")
	tree := envOverlay("ASTRID")
	v, ok := GetPath(tree, "budget.session_max_usd")
	require.True(t, ok)
	require.Equal(t, "42", v)
}

func TestSecurityPolicy_ClassifyBlockedTool(t *testing.T) {
	p := SecurityPolicy{BlockedTools: []string{"dangerous/*"}}
	verdict := p.Classify(mcpAction("dangerous", "rm_everything"))
	require.Equal(t, VerdictBlocked, verdict)
}

func TestSecurityPolicy_ClassifyRequiresApprovalForDelete(t *testing.T) {
	p := SecurityPolicy{}
	verdict := p.Classify(fileDeleteAction("/repo/file.txt"))
	require.Equal(t, VerdictRequiresApproval, verdict)
}

func TestSecurityPolicy_ClassifyAllowedByDefault(t *testing.T) {
	p := SecurityPolicy{}
	verdict := p.Classify(mcpAction("fs", "read_file"))
	require.Equal(t, VerdictAllowed, verdict)
}

func TestSecurityPolicy_ClassifyDeniedPathBlocked(t *testing.T) {
	p := SecurityPolicy{DeniedPaths: []string{"/etc/**"}}
	verdict := p.Classify(fileWriteOutsideAction("/etc/passwd"))
	require.Equal(t, VerdictBlocked, verdict)
}
