// Package eventstore keeps session history in SQLite: one row per session
// plus the ordered progress events it emitted.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nadzzz/duomode/internal/config"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Session statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event represents a recorded progress entry.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Label     string    `json:"label"`
	Detail    string    `json:"detail,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the summary row of one run.
type Session struct {
	SessionID    string        `json:"session_id"`
	Status       string        `json:"status"`
	InputKind    string        `json:"input_kind"`
	Topic        string        `json:"topic,omitempty"`
	Turns        int           `json:"turns,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	ArtifactURL  string        `json:"artifact_url,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	FinishedAt   time.Time     `json:"finished_at,omitempty"`
}

// Store wraps a SQLite-backed session history.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config. In ephemeral mode
// no database is opened and every write is dropped.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    input_kind TEXT,
    topic TEXT,
    turns INTEGER NOT NULL DEFAULT 0,
    error_kind TEXT,
    error_stage TEXT,
    error_message TEXT,
    artifact_path TEXT,
    artifact_url TEXT,
    content_type TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    state TEXT NOT NULL,
    label TEXT,
    detail TEXT,
    error_kind TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.disabled() {
		return nil
	}
	return s.db.PingContext(ctx)
}

// BeginSession records a new running session.
func (s *Store) BeginSession(ctx context.Context, sessionID, inputKind string) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, status, input_kind, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET status=excluded.status, input_kind=excluded.input_kind`,
		sessionID, StatusRunning, inputKind, s.clock().UnixMilli())
	return err
}

// AppendEvent writes a progress event.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, state, label, detail, error_kind, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.State, evt.Label, evt.Detail, evt.ErrorKind, evt.CreatedAt.UnixMilli())
	return err
}

// FinishSession stores the outcome of a session.
func (s *Store) FinishSession(ctx context.Context, rec Session) error {
	if s.disabled() {
		return nil
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = s.clock()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status=?, topic=?, turns=?, error_kind=?, error_stage=?, error_message=?,
		     artifact_path=?, artifact_url=?, content_type=?, duration_ms=?, finished_at=?
		 WHERE session_id=?`,
		rec.Status, rec.Topic, rec.Turns, rec.ErrorKind, rec.ErrorStage, rec.ErrorMessage,
		rec.ArtifactPath, rec.ArtifactURL, rec.ContentType, rec.Duration.Milliseconds(), rec.FinishedAt.UnixMilli(),
		rec.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish %s: %w", rec.SessionID, ErrNotFound)
	}
	return nil
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if s.disabled() {
		return nil, ErrNotFound
	}
	var (
		rec                                  Session
		inputKind, topic, errKind, errStage  sql.NullString
		errMsg, artPath, artURL, contentType sql.NullString
		durationMS, createdAt                int64
		finishedAt                           sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, status, input_kind, topic, turns, error_kind, error_stage, error_message,
		        artifact_path, artifact_url, content_type, duration_ms, created_at, finished_at
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&rec.SessionID, &rec.Status, &inputKind, &topic, &rec.Turns, &errKind, &errStage, &errMsg,
			&artPath, &artURL, &contentType, &durationMS, &createdAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.InputKind = inputKind.String
	rec.Topic = topic.String
	rec.ErrorKind = errKind.String
	rec.ErrorStage = errStage.String
	rec.ErrorMessage = errMsg.String
	rec.ArtifactPath = artPath.String
	rec.ArtifactURL = artURL.String
	rec.ContentType = contentType.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	if finishedAt.Valid {
		rec.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	return &rec, nil
}

// ListSessionEvents retrieves up to limit events for a session in emission order.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, state, label, detail, error_kind, created_at
		 FROM events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                      Event
			label, detail, errKind sql.NullString
			created                int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.State, &label, &detail, &errKind, &created); err != nil {
			return nil, err
		}
		e.Label = label.String
		e.Detail = detail.String
		e.ErrorKind = errKind.String
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixMilli()
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions); err != nil {
			return err
		}
	}
	return tx.Commit()
}
