package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Fatal("expected logger from context")
	}
}

func TestErrAttr(t *testing.T) {
	if a := Err(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("got %v", a)
	}
	if a := Err(nil); a.Value.String() != "" {
		t.Fatalf("got %v", a)
	}
}

func TestOpenSessionTeesToFileAndBase(t *testing.T) {
	var base bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	dir := filepath.Join(t.TempDir(), "logs")
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	s, err := OpenSession(dir, "0123456789abcdef", now, baseLogger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if filepath.Base(s.Path) != "duo_mode_20240309_140506_01234567.log" {
		t.Fatalf("unexpected file name %s", s.Path)
	}

	FromContext(s.Context(context.Background())).Info("Detected topic", "topic", "tides")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatal(err)
	}
	for _, out := range []string{string(data), base.String()} {
		if !strings.Contains(out, "Detected topic") || !strings.Contains(out, "session_id=0123456789abcdef") {
			t.Fatalf("missing record in %q", out)
		}
	}
}

func TestSessionFileSkipsDebug(t *testing.T) {
	var base bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := OpenSession(t.TempDir(), "abc", time.Now(), baseLogger)
	if err != nil {
		t.Fatal(err)
	}
	s.Logger.Debug("raw segment sizes")
	_ = s.Close()

	data, _ := os.ReadFile(s.Path)
	if strings.Contains(string(data), "raw segment sizes") {
		t.Fatal("debug record reached the session file")
	}
	if !strings.Contains(base.String(), "raw segment sizes") {
		t.Fatal("debug record missing from base logger")
	}
}

func TestRedactor(t *testing.T) {
	in := "mail me at ada@example.com or call +1 555-123-4567 about tides"
	if got := (Redactor{}).Text(in); got != in {
		t.Fatalf("disabled redactor changed text: %q", got)
	}
	got := Redactor{Enabled: true}.Text(in)
	if strings.Contains(got, "ada@example.com") || strings.Contains(got, "555-123-4567") {
		t.Fatalf("PII not masked: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_EMAIL]") || !strings.Contains(got, "[REDACTED_PHONE]") || !strings.HasSuffix(got, "about tides") {
		t.Fatalf("unexpected redaction %q", got)
	}
}
