// Package mock provides an offline Synthesizer that renders each line as a
// sine tone. Duration grows with the text and the pitch depends on the
// voice, so stitched output is audibly a two-speaker exchange.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/voice"
)

const (
	sampleRate  = 16000
	perRune     = 60 * time.Millisecond
	minDuration = 300 * time.Millisecond
	amplitude   = 6000
)

// Synthesizer returns deterministic WAV tones.
type Synthesizer struct{}

// New creates a mock synthesizer.
func New() *Synthesizer { return &Synthesizer{} }

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "mock" }

// Synthesize renders text as a tone in v's pitch.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	d := LineDuration(text)
	pcm := &audio.PCM{Samples: tone(d, Pitch(v)), SampleRate: sampleRate}
	data, err := audio.EncodeWAV(pcm)
	if err != nil {
		return nil, err
	}
	return &audio.Segment{
		Data:        data,
		ContentType: audio.ContentTypeWAV,
		SampleRate:  sampleRate,
		Channels:    1,
		Duration:    d,
	}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }

// LineDuration is the tone length for text.
func LineDuration(text string) time.Duration {
	d := time.Duration(len([]rune(text))) * perRune
	if d < minDuration {
		d = minDuration
	}
	return d
}

// Pitch maps a voice to a frequency between 140 and 400 Hz.
func Pitch(v voice.Identity) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(v))
	return 140 + float64(h.Sum32()%260)
}

func tone(d time.Duration, freq float64) []int16 {
	n := int(math.Round(d.Seconds() * sampleRate))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}
