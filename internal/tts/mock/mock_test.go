package mock

import (
	"context"
	"testing"
	"time"

	"github.com/nadzzz/duomode/internal/audio"
)

func TestSynthesizeDurationFollowsText(t *testing.T) {
	s := New()
	seg, err := s.Synthesize(context.Background(), "0123456789", "mock-low")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if seg.Duration != 600*time.Millisecond {
		t.Fatalf("expected 600ms, got %v", seg.Duration)
	}
	pcm, err := audio.Decode(*seg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pcm.Samples) != 9600 || pcm.SampleRate != sampleRate {
		t.Fatalf("unexpected pcm: %d samples at %d", len(pcm.Samples), pcm.SampleRate)
	}
}

func TestShortLinesGetMinimumDuration(t *testing.T) {
	if d := LineDuration("Hi"); d != minDuration {
		t.Fatalf("expected %v, got %v", minDuration, d)
	}
}

func TestPitchIsDeterministicPerVoice(t *testing.T) {
	if Pitch("mock-low") != Pitch("mock-low") {
		t.Fatal("pitch must be deterministic")
	}
	if p := Pitch("mock-high"); p < 140 || p >= 400 {
		t.Fatalf("pitch %v out of range", p)
	}
}

func TestSynthesizeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Synthesize(ctx, "hello", "mock-low"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
