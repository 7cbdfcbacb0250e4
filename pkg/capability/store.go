package capability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/astralis-run/astrid/pkg/action"
	"github.com/astralis-run/astrid/pkg/signing"
)

// Store is a sqlite-backed, signature-verified capability token store.
// Tokens survive daemon restarts unlike session allowances.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	keys *signing.KeyPair
	log  *slog.Logger

	// OnSecurityViolation, if set, is invoked when a loaded token's
	// signature fails verification (treated as absent per §4.3/§7).
	OnSecurityViolation func(detail string)

	now func() time.Time
}

// Open opens (creating if absent) the capability database at path.
func Open(path string, keys *signing.KeyPair, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open capability store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", path, err)
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS capabilities (
		id         TEXT PRIMARY KEY,
		resource   TEXT NOT NULL,
		data       BLOB NOT NULL,
		expires_at INTEGER
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create capability schema: %w", err)
	}
	return &Store{db: db, keys: keys, log: log, now: time.Now}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create signs and persists a new capability token. ID and IssuedBy are
// stored as the caller set them; Create does not fill them in.
func (s *Store) Create(t Token) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.Signature = s.keys.Sign(canonicalBytes(t))

	payload, err := json.Marshal(t)
	if err != nil {
		return Token{}, fmt.Errorf("marshal capability token: %w", err)
	}
	var expiresAt any
	if t.ExpiresAt != nil {
		expiresAt = t.ExpiresAt.Unix()
	}
	_, err = s.db.Exec(
		`INSERT INTO capabilities (id, resource, data, expires_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Resource, payload, expiresAt,
	)
	if err != nil {
		return Token{}, fmt.Errorf("persist capability token: %w", err)
	}
	return t, nil
}

// FindCapability returns the first valid, signature-verified token whose
// resource pattern covers resource and whose permissions include
// permission. Expired tokens are pruned on lookup.
func (s *Store) FindCapability(resource string, permission action.Permission) (*Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, data FROM capabilities`)
	if err != nil {
		return nil, false, fmt.Errorf("query capabilities: %w", err)
	}
	defer rows.Close()

	now := s.now()
	var expiredIDs []string
	var match *Token

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, false, fmt.Errorf("scan capability row: %w", err)
		}
		var t Token
		if err := json.Unmarshal(data, &t); err != nil {
			s.log.Error("capability token corrupt, dropping", "id", id, "error", err)
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if !t.IsValid(now) {
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if !signing.VerifyWith(s.keys.PublicKey(), canonicalBytes(t), t.Signature) {
			s.reportViolation(fmt.Sprintf("capability token %s failed signature verification", t.ID))
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if match == nil && t.Covers(resource) && t.HasPermission(permission) {
			found := t
			match = &found
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate capabilities: %w", err)
	}

	for _, id := range expiredIDs {
		if _, err := s.db.Exec(`DELETE FROM capabilities WHERE id = ?`, id); err != nil {
			s.log.Error("failed to prune capability token", "id", id, "error", err)
		}
	}

	if match == nil {
		return nil, false, nil
	}
	return match, true, nil
}

func (s *Store) reportViolation(detail string) {
	s.log.Warn("capability security violation", "detail", detail)
	if s.OnSecurityViolation != nil {
		s.OnSecurityViolation(detail)
	}
}
