package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DeferredRecord is a pending approval request persisted because no
// frontend was attached when it was created.
type DeferredRecord struct {
	ID         string
	Request    Request
	CreatedAt  time.Time
	Resolved   bool
	ResolvedAt *time.Time
	Outcome    *Outcome
}

// DeferredStore persists approval requests awaiting an operator who is not
// currently connected, and notifies in-process waiters when a resolution
// lands — whether from this process or, via the on-disk row, from another
// one (e.g. a CLI resolving a backlog).
type DeferredStore struct {
	db *sql.DB

	mu      sync.Mutex
	waiters map[string][]chan Outcome
}

// OpenDeferredStore opens (creating if absent) the deferred-approval
// database at path.
func OpenDeferredStore(path string) (*DeferredStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open deferred store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", path, err)
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS deferred_approvals (
		id          TEXT PRIMARY KEY,
		data        BLOB NOT NULL,
		resolved    INTEGER NOT NULL DEFAULT 0,
		outcome     BLOB
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create deferred schema: %w", err)
	}
	return &DeferredStore{db: db, waiters: make(map[string][]chan Outcome)}, nil
}

// Close closes the underlying database handle.
func (d *DeferredStore) Close() error {
	return d.db.Close()
}

// Put persists a new deferred record.
func (d *DeferredStore) Put(rec DeferredRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal deferred record: %w", err)
	}
	_, err = d.db.Exec(`INSERT INTO deferred_approvals (id, data) VALUES (?, ?)`, rec.ID, data)
	if err != nil {
		return fmt.Errorf("persist deferred record: %w", err)
	}
	return nil
}

// Pending returns all unresolved deferred records, oldest first.
func (d *DeferredStore) Pending() ([]DeferredRecord, error) {
	rows, err := d.db.Query(`SELECT data FROM deferred_approvals WHERE resolved = 0 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query pending deferred records: %w", err)
	}
	defer rows.Close()

	var out []DeferredRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan deferred record: %w", err)
		}
		var rec DeferredRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal deferred record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Resolve marks the deferred record resolved with outcome and wakes any
// in-process waiters blocked on it.
func (d *DeferredStore) Resolve(id string, outcome Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	res, err := d.db.Exec(`UPDATE deferred_approvals SET resolved = 1, outcome = ? WHERE id = ? AND resolved = 0`, data, id)
	if err != nil {
		return fmt.Errorf("resolve deferred record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deferred record %s not found or already resolved", id)
	}
	d.wake(id, outcome)
	return nil
}

// Await blocks until id is resolved or ctx is cancelled. Besides the
// in-process wakeup on resolution, it re-checks the database every
// pollInterval, which picks up resolutions made by another process directly
// against the database.
func (d *DeferredStore) Await(ctx context.Context, id string, pollInterval time.Duration) (Outcome, error) {
	ch := d.register(id)
	defer d.unregister(id, ch)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case outcome := <-ch:
			return outcome, nil
		case <-ticker.C:
			resolved, outcome, err := d.checkResolved(id)
			if err != nil {
				return Outcome{}, err
			}
			if resolved {
				return outcome, nil
			}
		}
	}
}

func (d *DeferredStore) checkResolved(id string) (bool, Outcome, error) {
	var resolved bool
	var data []byte
	err := d.db.QueryRow(`SELECT resolved, outcome FROM deferred_approvals WHERE id = ?`, id).Scan(&resolved, &data)
	if err != nil {
		return false, Outcome{}, fmt.Errorf("query deferred record %s: %w", id, err)
	}
	if !resolved {
		return false, Outcome{}, nil
	}
	var outcome Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return false, Outcome{}, fmt.Errorf("unmarshal outcome for %s: %w", id, err)
	}
	return true, outcome, nil
}

func (d *DeferredStore) register(id string) chan Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan Outcome, 1)
	d.waiters[id] = append(d.waiters[id], ch)
	return ch
}

func (d *DeferredStore) unregister(id string, ch chan Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.waiters[id]
	for i, c := range list {
		if c == ch {
			d.waiters[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (d *DeferredStore) wake(id string, outcome Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.waiters[id] {
		select {
		case ch <- outcome:
		default:
		}
	}
}
