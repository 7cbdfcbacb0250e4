package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astralis-run/astrid/pkg/action"
	"github.com/astralis-run/astrid/pkg/allowance"
	"github.com/astralis-run/astrid/pkg/audit"
	"github.com/astralis-run/astrid/pkg/capability"
	"github.com/astralis-run/astrid/pkg/escape"
)

// ErrDeferred is returned by CheckApproval when no frontend is attached and
// the request has been queued for later resolution; callers should treat
// the action as pending, not denied.
var ErrDeferred = errors.New("approval: no frontend attached, request deferred")

// Manager implements §4.4's approval algorithm: consult existing
// allowances first, then ask a human (directly or via the deferred queue),
// then translate the chosen scope into a durable allowance or capability.
type Manager struct {
	Allowances *allowance.Store
	Capability *capability.Store
	Escape     *escape.Handler
	Audit      *audit.Log
	Deferred   *DeferredStore
	Timeout    time.Duration

	mu       sync.RWMutex
	frontend FrontendHandler

	log *slog.Logger
}

// NewManager builds an approval manager. frontend may be nil; attach one
// later with SetFrontend once a UI connects.
func NewManager(allowances *allowance.Store, caps *capability.Store, esc *escape.Handler, auditLog *audit.Log, deferred *DeferredStore, timeout time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Manager{
		Allowances: allowances,
		Capability: caps,
		Escape:     esc,
		Audit:      auditLog,
		Deferred:   deferred,
		Timeout:    timeout,
		log:        log,
	}
}

// SetFrontend attaches or detaches (nil) the connected UI.
func (m *Manager) SetFrontend(h FrontendHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frontend = h
}

func (m *Manager) currentFrontend() FrontendHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frontend
}

// CheckApproval implements §4.4. It returns the outcome of the decision and
// persists whatever durable record (allowance or capability) the scope the
// operator chose requires.
func (m *Manager) CheckApproval(ctx context.Context, sessionID, workspaceRoot string, a action.SensitiveAction, contextStr string, estimatedCost float64) (Result, error) {
	if existing, found, err := m.Allowances.FindMatchingAndConsume(a, workspaceRoot); err != nil {
		return Result{}, fmt.Errorf("check existing allowance: %w", err)
	} else if found {
		return Result{Kind: KindGranted, Scope: ScopeOnce, AllowanceID: existing.ID}, nil
	}

	if resource, _, ok := action.Resource(a); ok && m.Escape != nil && m.Escape.IsAllowed(resource) {
		return Result{Kind: KindGranted, Scope: ScopeAlways}, nil
	}

	req := Request{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		WorkspaceRoot: workspaceRoot,
		Action:        a,
		Context:       contextStr,
		Risk:          a.DefaultRisk(),
		EstimatedCost: estimatedCost,
		RequestedAt:   time.Now(),
	}

	frontend := m.currentFrontend()
	if frontend == nil {
		if m.Deferred == nil {
			return Result{}, ErrDeferred
		}
		if err := m.Deferred.Put(DeferredRecord{ID: req.ID, Request: req, CreatedAt: req.RequestedAt}); err != nil {
			return Result{}, fmt.Errorf("defer approval request: %w", err)
		}
		m.log.Info("approval deferred: no frontend attached", "request_id", req.ID, "action", a.Summary())
		return Result{Kind: KindDeferred}, ErrDeferred
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	outcome, err := frontend.RequestApproval(timeoutCtx, req)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return Result{Kind: KindTimedOut}, nil
		}
		return Result{}, fmt.Errorf("request approval: %w", err)
	}
	return m.applyOutcome(a, workspaceRoot, sessionID, outcome)
}

// ResolveDeferred applies an operator's decision to a previously-deferred
// request, for callers (e.g. a CLI or reconnected UI) resolving backlog.
func (m *Manager) ResolveDeferred(a action.SensitiveAction, workspaceRoot, sessionID, requestID string, outcome Outcome) (Result, error) {
	if m.Deferred == nil {
		return Result{}, errors.New("approval: no deferred store configured")
	}
	if err := m.Deferred.Resolve(requestID, outcome); err != nil {
		return Result{}, err
	}
	return m.applyOutcome(a, workspaceRoot, sessionID, outcome)
}

func (m *Manager) applyOutcome(a action.SensitiveAction, workspaceRoot, sessionID string, outcome Outcome) (Result, error) {
	switch outcome.Scope {
	case ScopeDeny:
		return Result{Kind: KindDenied, Scope: ScopeDeny}, nil
	case ScopeOnce:
		return Result{Kind: KindGranted, Scope: ScopeOnce}, nil
	case ScopeSession:
		return m.grantAllowance(a, workspaceRoot, true, false)
	case ScopeWorkspace:
		return m.grantAllowance(a, workspaceRoot, false, true)
	case ScopeAlways:
		return m.grantAlways(a, workspaceRoot, sessionID)
	default:
		if outcome.Timeout {
			return Result{Kind: KindTimedOut}, nil
		}
		return Result{Kind: KindDenied, Scope: ScopeDeny}, nil
	}
}

func (m *Manager) grantAllowance(a action.SensitiveAction, workspaceRoot string, sessionOnly, workspaceScoped bool) (Result, error) {
	pattern, ok := allowance.PatternFromAction(a)
	if !ok {
		return Result{Kind: KindGranted, Scope: ScopeOnce}, nil
	}
	grant := &allowance.Allowance{
		ActionPattern: pattern,
		SessionOnly:   sessionOnly,
	}
	if workspaceScoped {
		root := workspaceRoot
		grant.WorkspaceRoot = &root
	}
	id := m.Allowances.Add(grant)
	scope := ScopeSession
	if workspaceScoped {
		scope = ScopeWorkspace
	}
	return Result{Kind: KindGranted, Scope: scope, AllowanceID: id}, nil
}

// grantAlways creates a persistent capability token when the action maps to
// a resource, or falls back to remembering the path via the escape handler
// for out-of-workspace file access that has no capability-resource mapping.
func (m *Manager) grantAlways(a action.SensitiveAction, workspaceRoot, sessionID string) (Result, error) {
	resource, permission, ok := action.Resource(a)
	if !ok {
		return Result{Kind: KindGranted, Scope: ScopeAlways}, nil
	}
	if m.Capability == nil {
		if m.Escape != nil {
			m.Escape.Remember(resource)
		}
		return Result{Kind: KindGranted, Scope: ScopeAlways}, nil
	}
	expires := time.Now().Add(capability.DefaultAutoCreatedTTL)
	token, err := m.Capability.Create(capability.Token{
		ID:          uuid.NewString(),
		Resource:    resource,
		Permissions: []action.Permission{permission},
		Scope:       capability.ScopePersistent,
		IssuedBy:    sessionID,
		ExpiresAt:   &expires,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create capability: %w", err)
	}
	return Result{Kind: KindGranted, Scope: ScopeAlways, CapabilityID: token.ID}, nil
}
