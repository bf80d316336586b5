package eventlog

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable append-only history of emitted events,
// queryable for replay/debugging. Modeled on the teacher's
// internal/events/store.go schema and query shape, but registered via
// modernc.org/sqlite (pure Go) rather than the teacher's in-practice
// mattn/go-sqlite3 (CGo) import, matching the dependency go.mod already
// declares directly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the event-log database at
// path and ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	agent_id TEXT,
	session_id TEXT,
	task_id TEXT,
	priority INTEGER NOT NULL,
	payload TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`)
	return err
}

// Record implements Sink. Failures are logged, not propagated: a
// durable-history write failure must never block event delivery to
// live subscribers.
func (s *SQLiteStore) Record(evt Event) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		log.Printf("[EVENTLOG] marshal payload for event %s: %v", evt.ID, err)
		return
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO events (id, type, agent_id, session_id, task_id, priority, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, string(evt.Type), evt.AgentID, evt.SessionID, evt.TaskID, int(evt.Priority), string(payload), evt.CreatedAt,
	)
	if err != nil {
		log.Printf("[EVENTLOG] save event %s: %v", evt.ID, err)
	}
}

// Recent returns up to limit of the most recently recorded events,
// newest first.
func (s *SQLiteStore) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, type, agent_id, session_id, task_id, priority, payload, created_at
		 FROM events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var agentID, sessionID, taskID, payload sql.NullString
		if err := rows.Scan(&evt.ID, &evt.Type, &agentID, &sessionID, &taskID, &evt.Priority, &payload, &evt.CreatedAt); err != nil {
			return nil, err
		}
		evt.AgentID = agentID.String
		evt.SessionID = sessionID.String
		evt.TaskID = taskID.String
		if payload.Valid && payload.String != "" {
			_ = json.Unmarshal([]byte(payload.String), &evt.Payload)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Cleanup deletes events recorded before cutoff, logging how many were
// pruned and the cutoff's age in human-readable form via go-humanize.
func (s *SQLiteStore) Cleanup(cutoff time.Time) error {
	res, err := s.db.Exec(`DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	log.Printf("[EVENTLOG] pruned %d events older than %s", n, humanize.Time(cutoff))
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
