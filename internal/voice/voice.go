// Package voice maps dialogue speaker labels to synthesis voice identities.
//
// The mapping is built once at startup from per-backend defaults merged with
// configured overrides and is never mutated afterwards, so Resolve is safe
// for concurrent use.
package voice

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Default speaker labels used by the dialogue generator.
const (
	SpeakerJohn       = "JOHN"
	SpeakerCartoonDad = "CARTOON_DAD"
)

// ErrUnknownSpeaker is returned for a label with no configured voice.
var ErrUnknownSpeaker = errors.New("unknown speaker")

// Identity is an opaque, backend-specific voice token.
type Identity string

// defaultVoices maps TTS backend names to label -> voice defaults.
var defaultVoices = map[string]map[string]string{
	"openai": {
		SpeakerJohn:       "onyx",
		SpeakerCartoonDad: "fable",
	},
	"piper": {
		SpeakerJohn:       "en_US-lessac-medium",
		SpeakerCartoonDad: "en_US-ryan-high",
	},
	"deepgram": {
		SpeakerJohn:       "aura-orion-en",
		SpeakerCartoonDad: "aura-zeus-en",
	},
	"exec": {
		SpeakerJohn:       "john",
		SpeakerCartoonDad: "cartoon_dad",
	},
	"mock": {
		SpeakerJohn:       "mock-low",
		SpeakerCartoonDad: "mock-high",
	},
}

// Resolver is a pure label -> Identity lookup.
type Resolver struct {
	voices map[string]Identity
}

// NewResolver builds a resolver from the defaults of backend, overlaid with
// overrides. Override keys are normalized like labels; an empty override
// value removes the label.
func NewResolver(backend string, overrides map[string]string) *Resolver {
	voices := make(map[string]Identity)
	for label, v := range defaultVoices[backend] {
		voices[NormalizeLabel(label)] = Identity(v)
	}
	for label, v := range overrides {
		key := NormalizeLabel(label)
		if strings.TrimSpace(v) == "" {
			delete(voices, key)
			continue
		}
		voices[key] = Identity(strings.TrimSpace(v))
	}
	return &Resolver{voices: voices}
}

// Resolve returns the voice for label. Unknown labels fail with
// ErrUnknownSpeaker rather than falling back to a default voice.
func (r *Resolver) Resolve(label string) (Identity, error) {
	id, ok := r.voices[NormalizeLabel(label)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSpeaker, label)
	}
	return id, nil
}

// Labels returns the known speaker labels in sorted order.
func (r *Resolver) Labels() []string {
	labels := make([]string, 0, len(r.voices))
	for l := range r.voices {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// NormalizeLabel canonicalizes a speaker label: trimmed, upper-case, inner
// whitespace collapsed to underscores.
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.Join(strings.Fields(label), "_"))
}
