package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nadzzz/duomode/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "duomode.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "ephemeral"})
	ctx := context.Background()
	if err := es.BeginSession(ctx, "s1", "audio"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := es.GetSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound in ephemeral mode, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent"})
	ctx := context.Background()
	es.clock = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := es.BeginSession(ctx, "s1", "audio"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, st := range []string{"transcribing", "generating", "synthesizing", "stitching", "complete"} {
		if err := es.AppendEvent(ctx, Event{SessionID: "s1", State: st, Label: st + "..."}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	err := es.FinishSession(ctx, Session{
		SessionID:    "s1",
		Status:       StatusComplete,
		Topic:        "photosynthesis",
		Turns:        2,
		ArtifactPath: "/data/s1.mp3",
		ContentType:  "audio/mpeg",
		Duration:     3850 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	rec, err := es.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusComplete || rec.Topic != "photosynthesis" || rec.Turns != 2 || rec.InputKind != "audio" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Duration != 3850*time.Millisecond || rec.FinishedAt.IsZero() {
		t.Fatalf("unexpected timing %+v", rec)
	}

	events, err := es.ListSessionEvents(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 5 || events[0].State != "transcribing" || events[4].State != "complete" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestFinishUnknownSession(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent"})
	err := es.FinishSession(context.Background(), Session{SessionID: "nope", Status: StatusFailed})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(ctx, "old-session", "audio"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "old-session", State: "transcribing"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(ctx, "new-session", "text"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := es.GetSession(ctx, "old-session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old session pruned, got %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old events cascaded, got %d", len(events))
	}
	if _, err := es.GetSession(ctx, "new-session"); err != nil {
		t.Fatalf("new session should survive: %v", err)
	}
}
