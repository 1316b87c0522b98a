// Package state persists the daemon's audit log: a record of install and
// delete events per target, backed by SQLite the same way the teacher
// persists download history.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/sqlite"
)

type DB struct {
	SQL  *sql.DB
	Path string
}

// Open creates (or opens) the audit-log database under dataRoot.
func Open(dataRoot string) (*DB, error) {
	if dataRoot == "" {
		return nil, errors.New("data root required")
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataRoot, "audit.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_fk=1", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := initSchema(sqldb); err != nil {
		return nil, err
	}
	return &DB{SQL: sqldb, Path: path}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id TEXT NOT NULL,
		event TEXT NOT NULL,
		content_id TEXT,
		content_hash TEXT,
		detail TEXT,
		created_at INTEGER NOT NULL
	);`)
	return err
}

// Event is the kind of thing that happened to a target's map/mod library.
type Event string

const (
	EventMapInstall  Event = "map_install"
	EventMapDelete   Event = "map_delete"
	EventModInstall  Event = "mod_install"
	EventModDelete   Event = "mod_delete"
)

type Entry struct {
	TargetID    string
	Event       Event
	ContentID   string
	ContentHash string
	Detail      string
}

// Record appends an audit-log entry. This is the implementation of the
// audit_log_entry hook the original daemon left as a stub.
func (db *DB) Record(e Entry) error {
	_, err := db.SQL.Exec(
		`INSERT INTO audit_log(target_id, event, content_id, content_hash, detail, created_at) VALUES (?,?,?,?,?,?)`,
		e.TargetID, string(e.Event), e.ContentID, e.ContentHash, e.Detail, time.Now().Unix(),
	)
	return err
}

// Recent returns the most recent n audit-log entries across all targets,
// newest first. Used by the daemon to log recent activity at startup.
func (db *DB) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := db.SQL.Query(
		`SELECT target_id, event, content_id, content_hash, detail FROM audit_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TargetID, &e.Event, &e.ContentID, &e.ContentHash, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) Close() error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}
