package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got cfg %+v", cfg)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Pause != 250*time.Millisecond {
		t.Fatalf("expected 250ms pause, got %s", cfg.Pipeline.Pause)
	}
	if cfg.Pipeline.SynthesisConcurrency != 4 {
		t.Fatalf("unexpected concurrency %d", cfg.Pipeline.SynthesisConcurrency)
	}
	if cfg.Dialogue.OpenAI.APIKey != "sk-test" || cfg.TTS.OpenAI.APIKey != "sk-test" {
		t.Fatal("expected ${OPENAI_API_KEY} to resolve")
	}
	if cfg.Audio.Format != "mp3" {
		t.Fatalf("unexpected format %q", cfg.Audio.Format)
	}
	if cfg.Logging.SessionDir != "logs" {
		t.Fatalf("unexpected session dir %q", cfg.Logging.SessionDir)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DUOMODE_PIPELINE_PAUSE", "400ms")
	t.Setenv("DUOMODE_TTS_BACKEND", "piper")
	t.Setenv("DUOMODE_AUDIO_SAMPLE_RATE", "16000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Pause != 400*time.Millisecond {
		t.Fatalf("expected env pause, got %s", cfg.Pipeline.Pause)
	}
	if cfg.TTS.Backend != "piper" {
		t.Fatalf("expected piper backend, got %q", cfg.TTS.Backend)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected 16000, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "duomode.yaml")
	body := `
pipeline:
  pause: 1s
dialogue:
  backend: mock
  max_turns: 4
voices:
  JOHN: echo
  narrator: alloy
audio:
  format: wav
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Pause != time.Second {
		t.Fatalf("expected 1s, got %s", cfg.Pipeline.Pause)
	}
	if cfg.Dialogue.Backend != "mock" || cfg.Dialogue.MaxTurns != 4 {
		t.Fatalf("unexpected dialogue config %+v", cfg.Dialogue)
	}
	if cfg.Voices["narrator"] != "alloy" {
		t.Fatalf("expected voice override, got %v", cfg.Voices)
	}
	if cfg.Audio.Format != "wav" {
		t.Fatalf("expected wav, got %q", cfg.Audio.Format)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DUOMODE_TTS_BACKEND", "espeak")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "tts.backend") {
		t.Fatalf("expected tts.backend validation error, got %v", err)
	}
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("DUOMODE_TEST_SECRET", "shh")
	if got := resolveEnvRef("${DUOMODE_TEST_SECRET}"); got != "shh" {
		t.Fatalf("got %q", got)
	}
	if got := resolveEnvRef("${DUOMODE_TEST_UNSET}"); got != "" {
		t.Fatalf("expected empty for unset var, got %q", got)
	}
	if got := resolveEnvRef("literal"); got != "literal" {
		t.Fatalf("got %q", got)
	}
}
