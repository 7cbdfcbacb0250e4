// Package security wires the independently-testable C2-C9 components —
// allowance store, capability store, budget trackers, escape handler,
// approval manager, audit log, and the interceptor composing them — into a
// single stack for one session, and attaches it to a permission.Checker so
// every tool invocation ClassifyTool maps to a sensitive action actually
// passes through it.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/astralis-run/astrid/pkg/allowance"
	"github.com/astralis-run/astrid/pkg/approval"
	"github.com/astralis-run/astrid/pkg/audit"
	"github.com/astralis-run/astrid/pkg/budget"
	"github.com/astralis-run/astrid/pkg/capability"
	"github.com/astralis-run/astrid/pkg/escape"
	"github.com/astralis-run/astrid/pkg/interceptor"
	"github.com/astralis-run/astrid/pkg/permission"
	"github.com/astralis-run/astrid/pkg/policy"
	"github.com/astralis-run/astrid/pkg/signing"
)

// Config locates the on-disk state one session's security stack needs and
// the policy layers it resolves against.
type Config struct {
	SessionID     string
	WorkspaceRoot string

	// StateDir holds signing.key, capabilities.db, audit.db, deferred.db.
	// Created by the caller if it doesn't already exist.
	StateDir string

	// PolicyPaths locates the five config layers §C7 resolves. Defaults
	// may be empty (an absent file contributes an empty layer).
	PolicyPaths policy.Paths

	// Frontend receives approval requests that reach the operator. Nil
	// means every approval-required action defers with no operator
	// attached, which is the correct behavior for a headless run.
	Frontend approval.FrontendHandler

	// ApprovalTimeout bounds how long CheckApproval waits for Frontend
	// before timing out. Zero uses a 5 minute default.
	ApprovalTimeout time.Duration

	Log *slog.Logger
}

// Stack is one session's fully wired security core.
type Stack struct {
	Checker      *permission.Checker
	Interceptor  *interceptor.Interceptor
	Audit        *audit.Log
	Capabilities *capability.Store
	Approval     *approval.Manager
	Resolver     *policy.Resolver

	deferred *approval.DeferredStore
}

// Close releases the sqlite handles Bootstrap opened.
func (s *Stack) Close() error {
	var firstErr error
	if err := s.deferred.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.Capabilities.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.Audit.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Bootstrap builds the full security stack for one session and attaches it
// to a permission.Checker via SetInterceptor, so the interceptor becomes
// the authoritative gate for every tool call ClassifyTool recognizes
// instead of a library nothing instantiates.
func Bootstrap(cfg Config) (*Stack, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.ApprovalTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	keys, err := signing.LoadOrGenerate(filepath.Join(cfg.StateDir, "signing.key"))
	if err != nil {
		return nil, fmt.Errorf("security: load signing key: %w", err)
	}

	auditLog, err := audit.Open(filepath.Join(cfg.StateDir, "audit.db"), keys)
	if err != nil {
		return nil, fmt.Errorf("security: open audit log: %w", err)
	}

	caps, err := capability.Open(filepath.Join(cfg.StateDir, "capabilities.db"), keys, log)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("security: open capability store: %w", err)
	}
	// A capability token that fails signature verification is treated as
	// absent (§4.3/§7) but must still leave a security-violation audit
	// entry, not just a log line.
	caps.OnSecurityViolation = func(detail string) {
		_, _ = auditLog.Append(cfg.SessionID,
			audit.Action{Type: audit.TypeSecurityViolation, Reason: detail},
			audit.Proof{Type: audit.ProofDenied, Reason: "capability signature verification failed"},
			audit.Outcome{Success: false, Error: detail},
		)
	}

	deferred, err := approval.OpenDeferredStore(filepath.Join(cfg.StateDir, "deferred.db"))
	if err != nil {
		caps.Close()
		auditLog.Close()
		return nil, fmt.Errorf("security: open deferred approval store: %w", err)
	}

	resolver := policy.NewResolver(cfg.PolicyPaths, log)
	if err := resolver.Load(); err != nil {
		deferred.Close()
		caps.Close()
		auditLog.Close()
		return nil, fmt.Errorf("security: load policy: %w", err)
	}

	allowances := allowance.NewStore(log)
	mgr := approval.NewManager(allowances, caps, escape.NewHandler(), auditLog, deferred, timeout, log)
	if cfg.Frontend != nil {
		mgr.SetFrontend(cfg.Frontend)
	}

	sessionBudget := budget.NewTracker(policy.BindBudgetConfig(resolver.Effective()))
	workspaceBudget := budget.NewWorkspaceTracker(0)

	policyFn := func() policy.SecurityPolicy { return policy.BindSecurityPolicy(resolver.Effective()) }

	icpt := interceptor.New(cfg.SessionID, cfg.WorkspaceRoot, policyFn, allowances, caps, sessionBudget, workspaceBudget, mgr, auditLog)

	checker := permission.NewChecker(permission.CheckerConfig{WorkspaceRoot: cfg.WorkspaceRoot})
	checker.SetInterceptor(icpt, cfg.WorkspaceRoot)

	return &Stack{
		Checker:      checker,
		Interceptor:  icpt,
		Audit:        auditLog,
		Capabilities: caps,
		Approval:     mgr,
		Resolver:     resolver,
		deferred:     deferred,
	}, nil
}
