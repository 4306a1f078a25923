// Package audit persists an append-only ledger of stage transitions to a
// SQLite database for operator visibility. It is optional: the pipeline
// itself needs no database, since every stage boundary is the filesystem,
// but an operator inspecting "where did task X go and when" benefits from
// a queryable history the filesystem alone does not retain once a task
// directory is deleted or moved past its working directory.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded stage transition.
type Event struct {
	TaskID    string
	Stage     string
	Outcome   string
	Detail    string
	Timestamp int64
}

// Ledger wraps a SQLite-backed audit log.
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS stage_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_events_task_id ON stage_events(task_id);
`

// Open creates or connects to the ledger database at path and applies its
// schema.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure audit database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends a stage-transition event to the ledger.
func (l *Ledger) Record(ctx context.Context, event Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stage_events (task_id, stage, outcome, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		event.TaskID, event.Stage, event.Outcome, event.Detail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("record stage event: %w", err)
	}
	return nil
}

// RecordStageEvent is a convenience wrapper around Record that stamps the
// event with the current time. It satisfies the audit recorder interface
// expected by the stage and registration worker pools.
func (l *Ledger) RecordStageEvent(ctx context.Context, taskID, stage, outcome, detail string) error {
	return l.Record(ctx, Event{
		TaskID:    taskID,
		Stage:     stage,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	})
}

// ForTask returns every recorded event for a task id, oldest first.
func (l *Ledger) ForTask(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT task_id, stage, outcome, detail, occurred_at FROM stage_events WHERE task_id = ? ORDER BY id ASC`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.TaskID, &e.Stage, &e.Outcome, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage events: %w", err)
	}
	return events, nil
}

// Recent returns the most recently recorded events, newest first, capped
// at limit.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT task_id, stage, outcome, detail, occurred_at FROM stage_events ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query recent stage events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.TaskID, &e.Stage, &e.Outcome, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent stage events: %w", err)
	}
	return events, nil
}
