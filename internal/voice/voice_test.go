package voice

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolveIsDeterministic(t *testing.T) {
	r1 := NewResolver("openai", nil)
	r2 := NewResolver("openai", nil)

	for _, label := range []string{SpeakerJohn, SpeakerCartoonDad} {
		a, err := r1.Resolve(label)
		if err != nil {
			t.Fatalf("resolve %s: %v", label, err)
		}
		for i := 0; i < 5; i++ {
			b, _ := r1.Resolve(label)
			c, _ := r2.Resolve(label)
			if a != b || a != c {
				t.Fatalf("resolve %s not stable: %q %q %q", label, a, b, c)
			}
		}
	}
}

func TestResolveNormalizesLabels(t *testing.T) {
	r := NewResolver("openai", nil)
	want, _ := r.Resolve(SpeakerCartoonDad)
	got, err := r.Resolve("  cartoon dad ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolveUnknownSpeakerFails(t *testing.T) {
	r := NewResolver("piper", nil)
	_, err := r.Resolve("NARRATOR")
	if !errors.Is(err, ErrUnknownSpeaker) {
		t.Fatalf("expected ErrUnknownSpeaker, got %v", err)
	}
}

func TestOverridesReplaceAndRemove(t *testing.T) {
	r := NewResolver("openai", map[string]string{
		"john":        "echo",
		"narrator":    "alloy",
		"CARTOON_DAD": "",
	})

	if id, _ := r.Resolve(SpeakerJohn); id != "echo" {
		t.Fatalf("expected override, got %q", id)
	}
	if id, _ := r.Resolve("Narrator"); id != "alloy" {
		t.Fatalf("expected added label, got %q", id)
	}
	if _, err := r.Resolve(SpeakerCartoonDad); !errors.Is(err, ErrUnknownSpeaker) {
		t.Fatalf("expected removed label to be unknown, got %v", err)
	}
	if got, want := r.Labels(), []string{"JOHN", "NARRATOR"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
}

func TestUnknownBackendHasNoDefaults(t *testing.T) {
	r := NewResolver("nope", nil)
	if len(r.Labels()) != 0 {
		t.Fatalf("expected no labels, got %v", r.Labels())
	}
}
