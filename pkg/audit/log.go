package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/astralis-run/astrid/pkg/signing"
)

// ChainResult is the outcome of VerifyChain.
type ChainResult struct {
	OK    bool
	BreakAtID string
}

// Log is the append-only, hash-chained, Ed25519-signed audit log. The chain
// is global across all sessions; entries carry a session_id for per-session
// querying. Append is a leaf lock: callers must not hold other locks across
// the call.
type Log struct {
	mu   sync.Mutex
	db   *sql.DB
	keys *signing.KeyPair

	violations atomic.Int64
	now        func() time.Time
}

// Open opens (creating if absent) the audit database at path.
func Open(path string, keys *signing.KeyPair) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", path, err)
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT UNIQUE NOT NULL,
		session_id TEXT NOT NULL,
		data       BLOB NOT NULL,
		chain_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_entries(session_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Log{db: db, keys: keys, now: time.Now}, nil
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// SecurityViolations returns the running count of chain-verification
// failures observed since the log was opened.
func (l *Log) SecurityViolations() int64 {
	return l.violations.Load()
}

// Append extends the chain with a new entry and returns its id.
func (l *Log) Append(sessionID string, act Action, proof Proof, outcome Outcome) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash, err := l.tailHashLocked()
	if err != nil {
		return "", err
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		SessionID: sessionID,
		PrevHash:  prevHash,
		Action:    act,
		AuthProof: proof,
		Outcome:   outcome,
	}
	entry.Signature = l.keys.Sign(canonicalBytes(entry))

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}

	_, err = l.db.Exec(
		`INSERT INTO audit_entries (id, session_id, data, chain_hash) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.SessionID, data, chainHash(entry),
	)
	if err != nil {
		return "", fmt.Errorf("persist audit entry: %w", err)
	}
	return entry.ID, nil
}

func (l *Log) tailHashLocked() (string, error) {
	var hash string
	err := l.db.QueryRow(`SELECT chain_hash FROM audit_entries ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return ZeroHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("read audit tail: %w", err)
	}
	return hash, nil
}

// GetSessionEntries returns the ordered entries for sessionID.
func (l *Log) GetSessionEntries(sessionID string) ([]Entry, error) {
	rows, err := l.db.Query(`SELECT data FROM audit_entries WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VerifyChain walks the entire chain from the genesis entry, recomputing
// each entry's canonical bytes, verifying its signature, and recomputing
// prev_hash linkage. Any mismatch is reported (never panicked) and
// increments the security-violation counter.
func (l *Log) VerifyChain() (ChainResult, error) {
	rows, err := l.db.Query(`SELECT id, data FROM audit_entries ORDER BY seq ASC`)
	if err != nil {
		return ChainResult{}, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()

	expectedPrev := ZeroHash
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return ChainResult{}, fmt.Errorf("scan audit entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			l.violations.Add(1)
			return ChainResult{OK: false, BreakAtID: id}, nil
		}
		if e.PrevHash != expectedPrev {
			l.violations.Add(1)
			return ChainResult{OK: false, BreakAtID: e.ID}, nil
		}
		if !signing.VerifyWith(l.keys.PublicKey(), canonicalBytes(e), e.Signature) {
			l.violations.Add(1)
			return ChainResult{OK: false, BreakAtID: e.ID}, nil
		}
		expectedPrev = chainHash(e)
	}
	if err := rows.Err(); err != nil {
		return ChainResult{}, fmt.Errorf("iterate audit chain: %w", err)
	}
	return ChainResult{OK: true}, nil
}
