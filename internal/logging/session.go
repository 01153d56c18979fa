package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session is an append-only log file scoped to one pipeline run. Records
// are written to the file and to the process logger.
type Session struct {
	Logger *slog.Logger
	Path   string

	file *os.File
	once sync.Once
	err  error
}

// OpenSession creates dir/duo_mode_<timestamp>_<id>.log. The returned
// Session must be closed by the caller on every exit path.
func OpenSession(dir, sessionID string, now time.Time, base *slog.Logger) (*Session, error) {
	if base == nil {
		base = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}

	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("duo_mode_%s_%s.log", now.Format("20060102_150405"), short)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(tee{fileHandler, base.Handler()}).With(slog.String("session_id", sessionID))
	logger.Info("session log opened", slog.String("path", path))

	return &Session{Logger: logger, Path: path, file: f}, nil
}

// Context attaches the session logger to ctx.
func (s *Session) Context(ctx context.Context) context.Context {
	return WithLogger(ctx, s.Logger)
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.file.Sync(), s.file.Close())
	})
	return s.err
}

// tee fans records out to several handlers.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
