package engine

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// Ledger is SQLite-backed persistence for paths that failed to push,
// keyed by the (root, remote) pair. A later run with --retry-failed
// reads it back to restrict the scan to just those paths.
type Ledger struct {
	db   *sql.DB
	path string
}

// OpenLedger opens (or creates) the failure ledger for the given
// project root and remote URL. The DB is stored at
// $XDG_STATE_HOME/gitchunk/<job-id>.db or /tmp/gitchunk-<job-id>.db.
func OpenLedger(root, remote string) (*Ledger, error) {
	dbPath := ledgerPath(ledgerJobID(root, remote))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	l := &Ledger{db: db, path: dbPath}
	if err := l.init(root, remote); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) init(root, remote string) error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS failed (
			path     TEXT PRIMARY KEY,
			reason   TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			at       INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var storedRoot string
	row := l.db.QueryRow("SELECT value FROM meta WHERE key = 'root'")
	if err := row.Scan(&storedRoot); err == nil {
		var storedRemote string
		row2 := l.db.QueryRow("SELECT value FROM meta WHERE key = 'remote'")
		if err := row2.Scan(&storedRemote); err == nil {
			if storedRoot != root || storedRemote != remote {
				return fmt.Errorf("ledger pair mismatch: stored %s -> %s, got %s -> %s",
					storedRoot, storedRemote, root, remote)
			}
		}
	} else {
		_, err = l.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('root', ?), ('remote', ?)", root, remote)
		if err != nil {
			return fmt.Errorf("store meta: %w", err)
		}
	}

	return nil
}

// RecordFailures upserts the given failures. A path already present
// keeps its key and picks up the newest reason and attempt count.
func (l *Ledger) RecordFailures(recs []FailureRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO failed (path, reason, attempts, at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range recs {
		if _, err := stmt.Exec(r.Path, r.Reason, r.Attempts, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ClearPaths removes paths that have since pushed successfully.
func (l *Ledger) ClearPaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare("DELETE FROM failed WHERE path = ?")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.Exec(p); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FailedPaths returns the set of paths recorded as failed.
func (l *Ledger) FailedPaths() (map[string]bool, error) {
	rows, err := l.db.Query("SELECT path FROM failed")
	if err != nil {
		return nil, fmt.Errorf("query failed paths: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		set[p] = true
	}
	return set, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the path to the ledger database file.
func (l *Ledger) Path() string {
	return l.path
}

// ledgerJobID computes a deterministic job ID from the root and remote.
func ledgerJobID(root, remote string) string {
	h := blake3.New()
	h.Write([]byte(root))
	h.Write([]byte{0})
	h.Write([]byte(remote))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// ledgerPath returns the filesystem path for a ledger DB.
func ledgerPath(jobID string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "gitchunk", jobID+".db")
	}
	return filepath.Join(os.TempDir(), "gitchunk-"+jobID+".db")
}
