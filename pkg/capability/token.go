// Package capability implements the persistent capability store (C3):
// signed, TTL-bound resource-pattern tokens created by "Allow Always"
// approvals and surviving daemon restarts.
package capability

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/astralis-run/astrid/pkg/action"
)

// Scope is the lifetime class of a capability token.
type Scope string

const (
	ScopeSession    Scope = "session"
	ScopePersistent Scope = "persistent"
)

// DefaultAutoCreatedTTL is the TTL applied to tokens auto-created by an
// "Allow Always" approval per §4.1/§4.3.
const DefaultAutoCreatedTTL = time.Hour

// Token is a signed, resource-scoped authorization. Signature covers a
// canonical encoding of every other field.
type Token struct {
	ID            string              `json:"id"`
	Resource      string              `json:"resource"`
	Permissions   []action.Permission `json:"permissions"`
	Scope         Scope               `json:"scope"`
	IssuedBy      string              `json:"issued_by"`
	IssuedAuditID string              `json:"issued_audit_id"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	Signature     []byte              `json:"signature"`
}

// IsValid reports whether the token has not expired.
func (t *Token) IsValid(now time.Time) bool {
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// HasPermission reports whether permissions includes perm.
func (t *Token) HasPermission(perm action.Permission) bool {
	for _, p := range t.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Covers reports whether the token's resource pattern covers the concrete
// resource string, using URI-prefix/glob semantics: an exact match, a glob
// match (when the pattern contains metacharacters), or a path-prefix match.
func (t *Token) Covers(resource string) bool {
	if t.Resource == resource {
		return true
	}
	if strings.ContainsAny(t.Resource, "*?[{") {
		if ok, err := doublestar.Match(t.Resource, resource); err == nil && ok {
			return true
		}
	}
	return strings.HasSuffix(t.Resource, "/") && strings.HasPrefix(resource, t.Resource)
}

// canonicalBytes returns the deterministic byte encoding signed over and
// verified against. Struct field order in encoding/json output is stable
// (declaration order), so this satisfies the spec's
// canonical_bytes(decode(canonical_bytes(e))) == canonical_bytes(e) round
// trip without a bespoke encoder.
func canonicalBytes(t Token) []byte {
	t.Signature = nil
	b, _ := json.Marshal(t)
	return b
}
