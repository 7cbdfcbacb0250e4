// Package interceptor implements the security interceptor (C8): the single
// entry point every sensitive action passes through, composing policy,
// capability, budget, and approval checks into one short-circuiting
// pipeline and recording the outcome to the audit log.
package interceptor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/astralis-run/astrid/pkg/action"
	"github.com/astralis-run/astrid/pkg/allowance"
	"github.com/astralis-run/astrid/pkg/approval"
	"github.com/astralis-run/astrid/pkg/audit"
	"github.com/astralis-run/astrid/pkg/budget"
	"github.com/astralis-run/astrid/pkg/capability"
	"github.com/astralis-run/astrid/pkg/policy"
)

// Result is what Intercept returns when the action is allowed.
type Result struct {
	Proof   Proof
	AuditID string

	// BudgetWarning is set when this action's reservation crossed the
	// session tracker's warn threshold. The action is still allowed; this
	// is advisory, for a caller to surface to the operator.
	BudgetWarning *BudgetWarning
}

// BudgetWarning reports that a session's spend has crossed its configured
// warn-at percentage. It does not block the action that triggered it.
type BudgetWarning struct {
	CurrentSpend float64
	SessionMax   float64
	PercentUsed  float64
}

// Interceptor gates one session's sensitive actions. It holds a reference
// to the process-wide workspace budget tracker and capability/allowance
// stores, and its own per-session budget tracker.
type Interceptor struct {
	SessionID     string
	WorkspaceRoot string

	Policy          func() policy.SecurityPolicy
	Allowances      *allowance.Store
	Capabilities    *capability.Store
	SessionBudget   *budget.Tracker
	WorkspaceBudget *budget.WorkspaceTracker
	Approval        *approval.Manager
	Audit           *audit.Log
}

// New builds an Interceptor for one session. policyFn is called fresh on
// every Intercept so a hot-reloaded policy.Resolver takes effect
// immediately.
func New(sessionID, workspaceRoot string, policyFn func() policy.SecurityPolicy, allowances *allowance.Store, caps *capability.Store, sessionBudget *budget.Tracker, workspaceBudget *budget.WorkspaceTracker, appr *approval.Manager, auditLog *audit.Log) *Interceptor {
	return &Interceptor{
		SessionID:       sessionID,
		WorkspaceRoot:   workspaceRoot,
		Policy:          policyFn,
		Allowances:      allowances,
		Capabilities:    caps,
		SessionBudget:   sessionBudget,
		WorkspaceBudget: workspaceBudget,
		Approval:        appr,
		Audit:           auditLog,
	}
}

// Intercept runs the full pipeline for a. estimatedCost is the projected
// USD cost of allowing the action (0 for actions with no direct cost).
func (i *Interceptor) Intercept(ctx context.Context, a action.SensitiveAction, contextStr string, estimatedCost float64) (Result, error) {
	verdict := i.Policy().Classify(a)

	if verdict == policy.VerdictBlocked {
		i.record(a, auditProofDenied("blocked by policy"), false, "blocked by policy")
		return Result{}, newError(KindPolicyBlocked, "action matches a blocked policy pattern")
	}

	if verdict == policy.VerdictAllowed {
		warning, err := i.reserveBudget(estimatedCost)
		if err != nil {
			i.record(a, auditProofDenied(err.Error()), false, err.Error())
			return Result{}, err
		}
		proof := Proof{Type: ProofPolicyAllowed}
		id := i.record(a, auditProofNotRequired(), true, "")
		return Result{Proof: proof, AuditID: id, BudgetWarning: warning}, nil
	}

	// VerdictRequiresApproval: capability, then allowance (already folded
	// into approval.Manager.CheckApproval), then human approval.
	if resource, permission, ok := action.Resource(a); ok && i.Capabilities != nil {
		if token, found, err := i.Capabilities.FindCapability(resource, permission); err != nil {
			return Result{}, newError(KindStorageError, err.Error())
		} else if found {
			warning, err := i.reserveBudget(estimatedCost)
			if err != nil {
				i.record(a, auditProofDenied(err.Error()), false, err.Error())
				return Result{}, err
			}
			proof := Proof{Type: ProofCapability, TokenID: token.ID}
			id := i.record(a, auditProofCapability(token.ID), true, "")
			return Result{Proof: proof, AuditID: id, BudgetWarning: warning}, nil
		}
	}

	budgetWarning, err := i.reserveBudget(estimatedCost)
	if err != nil {
		i.record(a, auditProofDenied(err.Error()), false, err.Error())
		return Result{}, err
	}

	approvalResult, err := i.Approval.CheckApproval(ctx, i.SessionID, i.WorkspaceRoot, a, contextStr, estimatedCost)
	if err != nil && approvalResult.Kind != approval.KindDeferred {
		return Result{}, newError(KindStorageError, err.Error())
	}

	switch approvalResult.Kind {
	case approval.KindDeferred:
		i.record(a, auditProofNotRequired(), false, "approval deferred pending operator")
		return Result{}, newError(KindDenied, "approval deferred pending operator")
	case approval.KindTimedOut:
		i.record(a, auditProofDenied("approval timed out"), false, "approval timed out")
		return Result{}, newError(KindTimeout, "approval request timed out")
	case approval.KindDenied:
		i.record(a, auditProofDenied("denied by operator"), false, "denied by operator")
		return Result{}, newError(KindDenied, "action denied by operator")
	}

	proof, proofAuditID := i.proofFromApproval(approvalResult)
	id := i.record(a, proofAuditID, true, "")
	return Result{Proof: proof, AuditID: id, BudgetWarning: budgetWarning}, nil
}

func (i *Interceptor) proofFromApproval(r approval.Result) (Proof, audit.Proof) {
	switch r.Scope {
	case approval.ScopeSession:
		return Proof{Type: ProofSessionApproval, AllowanceID: r.AllowanceID}, auditProofUserApproval("")
	case approval.ScopeWorkspace:
		return Proof{Type: ProofWorkspaceApproval, AllowanceID: r.AllowanceID}, auditProofUserApproval("")
	case approval.ScopeAlways:
		return Proof{Type: ProofCapabilityCreated, TokenID: r.CapabilityID}, auditProofUserApproval("")
	default:
		return Proof{Type: ProofUserApproval}, auditProofUserApproval("")
	}
}

// reserveBudget checks the workspace tracker then the session tracker,
// reserving cost against both. A WarnAndAllow from the workspace tracker is
// tentative; the session tracker's own WarnAndAllow takes precedence since
// it is closer to the action actually being gated.
func (i *Interceptor) reserveBudget(cost float64) (*BudgetWarning, *Error) {
	if cost <= 0 {
		return nil, nil
	}
	var warning *BudgetWarning
	if i.WorkspaceBudget != nil {
		d := i.WorkspaceBudget.CheckAndReserve(cost)
		if d.Kind == budget.Exceeded {
			return nil, newError(KindDenied, d.Reason)
		}
		if d.Kind == budget.WarnAndAllow {
			warning = &BudgetWarning{CurrentSpend: d.Current, SessionMax: d.Max, PercentUsed: d.Percent}
		}
	}
	if i.SessionBudget != nil {
		d := i.SessionBudget.CheckAndReserve(cost)
		if d.Kind == budget.Exceeded {
			return nil, newError(KindDenied, d.Reason)
		}
		if d.Kind == budget.WarnAndAllow {
			warning = &BudgetWarning{CurrentSpend: d.Current, SessionMax: d.Max, PercentUsed: d.Percent}
		}
	}
	return warning, nil
}

func (i *Interceptor) record(a action.SensitiveAction, proof audit.Proof, success bool, errMsg string) string {
	if i.Audit == nil {
		return ""
	}
	id, err := i.Audit.Append(i.SessionID, toAuditAction(a), proof, audit.Outcome{Success: success, Error: errMsg})
	if err != nil {
		return ""
	}
	return id
}

func toAuditAction(a action.SensitiveAction) audit.Action {
	switch a.Type {
	case action.TypeMcpToolCall:
		return audit.Action{Type: audit.TypeMcpToolCall, Server: a.Server, Tool: a.Tool, ArgsHash: hashArgs(a.Args)}
	case action.TypeFileDelete:
		return audit.Action{Type: audit.TypeFileDelete, Path: a.Path}
	case action.TypeFileWriteOutsideSandbox:
		return audit.Action{Type: audit.TypeFileWrite, Path: a.Path}
	case action.TypePluginExecution:
		return audit.Action{Type: audit.TypePluginToolCall, PluginID: a.PluginID, Tool: a.Capability}
	default:
		b, _ := json.Marshal(a)
		return audit.Action{Type: a.Type, Reason: string(b)}
	}
}

func hashArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	b, _ := json.Marshal(args)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func auditProofNotRequired() audit.Proof {
	return audit.Proof{Type: audit.ProofNotRequired}
}

func auditProofDenied(reason string) audit.Proof {
	return audit.Proof{Type: audit.ProofDenied, Reason: reason}
}

func auditProofCapability(tokenID string) audit.Proof {
	return audit.Proof{Type: audit.ProofCapability, TokenID: tokenID}
}

func auditProofUserApproval(userID string) audit.Proof {
	return audit.Proof{Type: audit.ProofUserApproval, UserID: userID}
}
