// Package tts defines the Synthesizer capability: one dialogue line spoken
// in one voice, returned as an audio segment in the backend's native format.
package tts

import (
	"context"
	"errors"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/voice"
)

// ErrEmptyAudio is returned when a backend answered without audio.
var ErrEmptyAudio = errors.New("synthesizer returned no audio")

// Synthesizer converts text to speech.
type Synthesizer interface {
	// Name returns the backend identifier (e.g. "piper", "openai").
	Name() string

	// Synthesize speaks text with the given voice. The segment must be
	// decodable by audio.Decode; canonicalization happens at stitch time.
	Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error)

	// Close releases backend resources.
	Close() error
}

// CheckSegment rejects nil and empty segments.
func CheckSegment(seg *audio.Segment) (*audio.Segment, error) {
	if seg.Empty() {
		return nil, ErrEmptyAudio
	}
	return seg, nil
}
