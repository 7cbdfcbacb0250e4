package policy

import "log/slog"

// clampMaxFields may only be lowered by the workspace layer relative to the
// baseline (defaults+system+user) value.
var clampMaxFields = []string{
	"budget.session_max_usd",
	"budget.per_action_max_usd",
	"budget.warn_at_percent",
	"security.approval_timeout_secs",
	"security.policy.max_argument_size",
	"rate_limits.llm_requests_per_min",
	"rate_limits.mcp_calls_per_min",
	"timeouts.approval_secs",
	"timeouts.idle_secs",
	"subagents.max_concurrent",
	"subagents.max_depth",
	"subagents.timeout_secs",
	"retry.llm_max_attempts",
	"retry.mcp_max_attempts",
}

// trueOnlyFields may only be flipped from false to true by the workspace
// layer; an attempt to relax them to false is ignored.
var trueOnlyFields = []string{
	"security.policy.require_approval_for_delete",
	"security.policy.require_approval_for_network",
	"security.require_signatures",
}

// falseOnlyFields may only be flipped from true to false by the workspace
// layer; an attempt to enable them is ignored.
var falseOnlyFields = []string{
	"hooks.allow_wasm_hooks",
	"hooks.allow_agent_hooks",
	"hooks.allow_http_hooks",
	"hooks.allow_command_hooks",
}

// unionFields accumulate across layers: the workspace layer may only add
// entries, and effective is the union of baseline and workspace.
var unionFields = []string{
	"security.policy.blocked_tools",
	"security.policy.denied_paths",
	"security.policy.denied_hosts",
	"security.policy.approval_required_tools",
	"workspace.never_allow",
}

// noExpansionFields are allow-lists the workspace layer may only narrow. Any
// entry not present in baseline reverts the whole field to baseline.
var noExpansionFields = []string{
	"security.policy.allowed_paths",
	"security.policy.allowed_hosts",
	"workspace.auto_allow_read",
	"workspace.auto_allow_write",
}

// ordinalFields are enums where index order is strictness order (index 0 is
// strictest); the workspace layer may only move toward a lower ordinal.
var ordinalFields = map[string][]string{
	"workspace.mode":          {"safe", "guided", "autonomous"},
	"workspace.escape_policy": {"deny", "ask", "allow"},
}

// EnforceRestrictions takes the baseline tree (defaults+system+user) and a
// candidate tree (baseline deep-merged with the workspace layer), and
// returns the enforced effective tree with every loosening attempt reverted
// to baseline, logging a warning for each. Restriction enforcement always
// runs, even when no user config file exists.
func EnforceRestrictions(baseline, candidate Tree, log *slog.Logger) Tree {
	out := Clone(candidate)

	for _, path := range clampMaxFields {
		baseVal, baseOK := GetPath(baseline, path)
		candVal, candOK := GetPath(out, path)
		if !baseOK || !candOK {
			continue
		}
		b, bOK := toFloat(baseVal)
		c, cOK := toFloat(candVal)
		if !bOK || !cOK {
			continue
		}
		if c > b {
			SetPath(out, path, b)
			warn(log, path, "workspace may not raise this limit above baseline")
		}
	}

	for _, path := range trueOnlyFields {
		baseVal, baseOK := GetPath(baseline, path)
		candVal, candOK := GetPath(out, path)
		if !baseOK || !candOK {
			continue
		}
		b, _ := toBool(baseVal)
		c, _ := toBool(candVal)
		if b && !c {
			SetPath(out, path, true)
			warn(log, path, "workspace may not disable this requirement")
		}
	}

	for _, path := range falseOnlyFields {
		baseVal, baseOK := GetPath(baseline, path)
		candVal, candOK := GetPath(out, path)
		if !baseOK || !candOK {
			continue
		}
		b, _ := toBool(baseVal)
		c, _ := toBool(candVal)
		if !b && c {
			SetPath(out, path, false)
			warn(log, path, "workspace may not enable this capability")
		}
	}

	for _, path := range unionFields {
		baseVal, _ := GetPath(baseline, path)
		candVal, _ := GetPath(out, path)
		baseList, _ := toStringSlice(baseVal)
		candList, _ := toStringSlice(candVal)
		if len(baseList) == 0 && len(candList) == 0 {
			continue
		}
		SetPath(out, path, unionStrings(baseList, candList))
	}

	for _, path := range noExpansionFields {
		baseVal, baseOK := GetPath(baseline, path)
		candVal, candOK := GetPath(out, path)
		if !baseOK || !candOK {
			continue
		}
		baseList, _ := toStringSlice(baseVal)
		candList, _ := toStringSlice(candVal)
		if !isSubset(candList, baseList) {
			SetPath(out, path, baseList)
			warn(log, path, "workspace may not add entries outside baseline; field reverted")
		}
	}

	for path, order := range ordinalFields {
		baseVal, baseOK := GetPath(baseline, path)
		candVal, candOK := GetPath(out, path)
		if !baseOK || !candOK {
			continue
		}
		baseStr, bOK := baseVal.(string)
		candStr, cOK := candVal.(string)
		if !bOK || !cOK {
			continue
		}
		baseIdx, candIdx := indexOf(order, baseStr), indexOf(order, candStr)
		if baseIdx < 0 || candIdx < 0 {
			continue
		}
		if candIdx > baseIdx {
			SetPath(out, path, baseStr)
			warn(log, path, "workspace may not relax this beyond baseline")
		}
	}

	enforceServerFields(baseline, out, log)
	enforceWorkspaceInjectedServers(baseline, out)

	for _, path := range []string{"model.api_key", "model.api_url"} {
		baseVal, baseOK := GetPath(baseline, path)
		candVal, candOK := GetPath(out, path)
		if baseOK && candOK && baseVal != candVal {
			SetPath(out, path, baseVal)
			warn(log, path, "workspace may not override this field")
		}
	}

	return out
}

// serverImmutableFields is the set of per-server subfields a workspace
// config may not change for a server already defined by baseline.
var serverImmutableFields = []string{"command", "args", "env", "cwd", "binary_hash", "trusted"}

func enforceServerFields(baseline, out Tree, log *slog.Logger) {
	baseServers, ok := GetPath(baseline, "servers")
	if !ok {
		return
	}
	baseServersTree, ok := asTree(baseServers)
	if !ok {
		return
	}
	outServers, ok := GetPath(out, "servers")
	if !ok {
		return
	}
	outServersTree, ok := asTree(outServers)
	if !ok {
		return
	}
	for name, baseEntry := range baseServersTree {
		baseServer, ok := asTree(baseEntry)
		if !ok {
			continue
		}
		outEntry, ok := outServersTree[name]
		if !ok {
			continue
		}
		outServer, ok := asTree(outEntry)
		if !ok {
			continue
		}
		for _, field := range serverImmutableFields {
			baseVal, baseHas := baseServer[field]
			outVal, outHas := outServer[field]
			if baseHas && outHas && !deepEqual(baseVal, outVal) {
				outServer[field] = baseVal
				warn(log, "servers."+name+"."+field, "workspace may not modify a baseline-defined server")
			}
		}
	}
}

// enforceWorkspaceInjectedServers forces trusted=false and auto_start=false
// for any server the workspace layer defines that baseline does not know
// about.
func enforceWorkspaceInjectedServers(baseline, out Tree) {
	baseServers, _ := GetPath(baseline, "servers")
	baseServersTree, _ := asTree(baseServers)
	outServers, ok := GetPath(out, "servers")
	if !ok {
		return
	}
	outServersTree, ok := asTree(outServers)
	if !ok {
		return
	}
	for name, entry := range outServersTree {
		if baseServersTree != nil {
			if _, known := baseServersTree[name]; known {
				continue
			}
		}
		server, ok := asTree(entry)
		if !ok {
			continue
		}
		server["trusted"] = false
		server["auto_start"] = false
	}
}

func indexOf(order []string, v string) int {
	for i, item := range order {
		if item == v {
			return i
		}
	}
	return -1
}

func deepEqual(a, b any) bool {
	aSlice, aOK := toStringSlice(a)
	bSlice, bOK := toStringSlice(b)
	if aOK && bOK {
		if len(aSlice) != len(bSlice) {
			return false
		}
		for i := range aSlice {
			if aSlice[i] != bSlice[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func warn(log *slog.Logger, path, reason string) {
	if log == nil {
		return
	}
	log.Warn("policy: workspace override reverted", "field", path, "reason", reason)
}
