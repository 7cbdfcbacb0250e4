// Package approval implements the interactive consent manager (C6): when
// neither policy, capability, nor allowance already authorizes an action,
// a human decides, and the decision is translated into the scope the
// operator chose (Once/Session/Workspace/Always).
package approval

import (
	"context"
	"time"

	"github.com/astralis-run/astrid/pkg/action"
)

// Scope is the lifetime of consent an operator can grant.
type Scope int

const (
	ScopeOnce Scope = iota
	ScopeSession
	ScopeWorkspace
	ScopeAlways
	ScopeDeny
)

// Request is presented to the frontend for a human decision.
type Request struct {
	ID            string
	SessionID     string
	WorkspaceRoot string
	Action        action.SensitiveAction
	Context       string
	Risk          action.RiskLevel
	EstimatedCost float64
	RequestedAt   time.Time
}

// Outcome is the human decision, or a synthetic Timeout if none arrived in
// time.
type Outcome struct {
	Scope   Scope
	Timeout bool
}

// FrontendHandler is the single polymorphic dispatch boundary of the
// approval subsystem: whatever UI (TUI, web, CLI prompt) is attached
// implements this to surface requests to a human.
type FrontendHandler interface {
	RequestApproval(ctx context.Context, req Request) (Outcome, error)
}

// Kind mirrors the audit taxonomy's ApprovalRequested/Granted/Denied
// triad, used by the manager to decide what to write to the audit log.
type Kind int

const (
	KindGranted Kind = iota
	KindDenied
	KindDeferred
	KindTimedOut
)

// Result is what CheckApproval returns to the interceptor: the decision,
// plus identifiers for whatever durable record (allowance or capability)
// the decision produced.
type Result struct {
	Kind         Kind
	Scope        Scope
	AllowanceID  string
	CapabilityID string
}
