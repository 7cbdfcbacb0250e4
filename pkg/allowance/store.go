package allowance

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astralis-run/astrid/pkg/action"
)

// Store holds active allowances in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Allowance
	log     *slog.Logger
	now     func() time.Time
}

// NewStore creates an empty allowance store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		entries: make(map[string]*Allowance),
		log:     log,
		now:     time.Now,
	}
}

// Add inserts a new allowance, assigning it an id if it doesn't have one,
// and returns the id.
func (s *Store) Add(a *Allowance) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.entries[a.ID] = a
	return a.ID
}

// pruneExpiredLocked removes entries that are no longer valid. Caller must
// hold the write lock.
func (s *Store) pruneExpiredLocked() {
	now := s.now()
	for id, a := range s.entries {
		if !a.IsValid(now) {
			delete(s.entries, id)
		}
	}
}

func (s *Store) matchLocked(a action.SensitiveAction, workspaceRoot string) *Allowance {
	now := s.now()
	for _, entry := range s.entries {
		if !entry.IsValid(now) {
			continue
		}
		if entry.WorkspaceRoot != nil && *entry.WorkspaceRoot != workspaceRoot {
			continue
		}
		if entry.ActionPattern.Matches(a, workspaceRoot) {
			return entry
		}
	}
	return nil
}

// FindMatching performs a read-only query for the first valid allowance
// matching action, without consuming a use. Intended for diagnostics; the
// interceptor must use FindMatchingAndConsume.
func (s *Store) FindMatching(a action.SensitiveAction, workspaceRoot string) (*Allowance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.matchLocked(a, workspaceRoot)
	if found == nil {
		return nil, false
	}
	clone := *found
	return &clone, true
}

// FindMatchingAndConsume atomically prunes expired entries, finds the first
// matching valid allowance, and — if it is use-counted — decrements its
// remaining uses (saturating at zero). The whole operation runs under a
// single exclusive lock so two concurrent turns can never both consume the
// same single-use allowance.
func (s *Store) FindMatchingAndConsume(a action.SensitiveAction, workspaceRoot string) (result *Allowance, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("allowance store recovered from panic", "panic", r)
			result, found, err = nil, false, ErrStorage
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneExpiredLocked()
	entry := s.matchLocked(a, workspaceRoot)
	if entry == nil {
		return nil, false, nil
	}

	clone := *entry
	if entry.UsesRemaining != nil {
		remaining := *entry.UsesRemaining - 1
		if remaining < 0 {
			remaining = 0
		}
		entry.UsesRemaining = &remaining
		consumed := remaining
		clone.UsesRemaining = &consumed
	}
	return &clone, true, nil
}

// ConsumeUse decrements the use count of the allowance identified by id,
// saturating at zero, regardless of whether the allowance is currently
// valid (the explicit-id mutation path — distinct from the validity-gated
// FindMatchingAndConsume).
func (s *Store) ConsumeUse(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrStorage
	}
	if entry.UsesRemaining != nil {
		remaining := *entry.UsesRemaining - 1
		if remaining < 0 {
			remaining = 0
		}
		entry.UsesRemaining = &remaining
	}
	return nil
}

// ClearSessionAllowances retains only session_only == false entries.
func (s *Store) ClearSessionAllowances() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.entries {
		if a.SessionOnly {
			delete(s.entries, id)
		}
	}
}

// ExportSessionAllowances returns entries that are session-scoped
// (session_only == true) and still valid, for session-save. These are the
// allowances that would otherwise be lost on restart.
func (s *Store) ExportSessionAllowances() []Allowance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]Allowance, 0)
	for _, a := range s.entries {
		if a.SessionOnly && a.IsValid(now) {
			out = append(out, *a)
		}
	}
	return out
}

// ExportWorkspaceAllowances returns entries that are workspace-scoped
// (session_only == false && workspace_root is set) and still valid.
func (s *Store) ExportWorkspaceAllowances() []Allowance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]Allowance, 0)
	for _, a := range s.entries {
		if !a.SessionOnly && a.WorkspaceRoot != nil && a.IsValid(now) {
			out = append(out, *a)
		}
	}
	return out
}

// ImportAllowances inserts the still-valid entries from list.
func (s *Store) ImportAllowances(list []Allowance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range list {
		a := list[i]
		if a.IsValid(now) {
			s.entries[a.ID] = &a
		}
	}
}
