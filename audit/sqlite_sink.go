package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS audit_events (
	event_id       TEXT PRIMARY KEY,
	event_type     TEXT NOT NULL,
	severity       TEXT NOT NULL,
	ts             TEXT NOT NULL,
	actor          TEXT NOT NULL DEFAULT '',
	resource       TEXT NOT NULL DEFAULT '',
	session_id     TEXT NOT NULL DEFAULT '',
	partner_id     TEXT NOT NULL DEFAULT '',
	ip             TEXT NOT NULL DEFAULT '',
	success        INTEGER NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	metadata       TEXT NOT NULL DEFAULT '{}',
	integrity_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts);
`

// Fixed-width so that lexical order on the ts column is chronological.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSink durably appends events to a local SQLite file. It is the
// fallback when the primary sink is unreachable.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (creating if needed) the database at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit: create sqlite directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	// Single writer; also keeps ":memory:" to one shared database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate sqlite: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Write implements [Sink]. Redelivered events (same EventID) are ignored.
func (s *SQLiteSink) Write(ctx context.Context, event Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	if event.Metadata == nil {
		metadata = []byte("{}")
	}

	success := 0
	if event.Success {
		success = 1
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO audit_events
	(event_id, event_type, severity, ts, actor, resource, session_id, partner_id, ip, success, reason, metadata, integrity_hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID,
		event.EventType,
		string(event.Severity),
		event.Timestamp.UTC().Format(sqliteTimeLayout),
		event.Actor,
		event.Resource,
		event.SessionID,
		event.PartnerID,
		event.IP,
		success,
		event.Reason,
		string(metadata),
		event.IntegrityHash,
	)
	if err != nil {
		return fmt.Errorf("audit: sqlite insert: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, event_type, severity, ts, actor, resource, session_id, partner_id, ip, success, reason, metadata, integrity_hash
FROM audit_events ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: sqlite query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			severity string
			ts       string
			success  int
			metadata string
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &severity, &ts, &e.Actor, &e.Resource,
			&e.SessionID, &e.PartnerID, &e.IP, &success, &e.Reason, &metadata, &e.IntegrityHash); err != nil {
			return nil, fmt.Errorf("audit: sqlite scan: %w", err)
		}
		e.Severity = Severity(severity)
		e.Success = success == 1
		if e.Timestamp, err = time.Parse(sqliteTimeLayout, ts); err != nil {
			return nil, fmt.Errorf("audit: sqlite timestamp: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit: sqlite metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
