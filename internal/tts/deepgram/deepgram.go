// Package deepgram implements the TTS Synthesizer with Deepgram Aura over
// the speak REST API, requesting linear16 audio in a WAV container.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speakapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/speak/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	speak "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/speak"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/tts"
	"github.com/nadzzz/duomode/internal/voice"
)

const defaultSampleRate = 24000

type streamFunc func(ctx context.Context, text string, opts *interfaces.SpeakOptions, buf *interfaces.RawResponse) error

// Synthesizer speaks each line with the voice passed as the Aura model name.
type Synthesizer struct {
	sampleRate int
	stream     streamFunc
}

// New creates a Deepgram synthesizer. The API key falls back to
// DEEPGRAM_API_KEY inside the SDK when empty.
func New(cfg config.DeepgramConfig) (*Synthesizer, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	c := speak.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	if c == nil {
		return nil, errors.New("deepgram speak client init failed")
	}
	dg := speakapi.New(c)
	return &Synthesizer{
		sampleRate: rate,
		stream: func(ctx context.Context, text string, opts *interfaces.SpeakOptions, buf *interfaces.RawResponse) error {
			_, err := dg.ToStream(ctx, text, opts, buf)
			return err
		},
	}, nil
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "deepgram" }

// Synthesize requests one WAV clip for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	opts := &interfaces.SpeakOptions{
		Model:      string(v),
		Encoding:   "linear16",
		Container:  "wav",
		SampleRate: s.sampleRate,
	}

	var buf interfaces.RawResponse
	if err := s.stream(ctx, text, opts, &buf); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("deepgram speak: %w", err)
	}
	logging.FromContext(ctx).Debug("deepgram speak", "voice", v, "bytes", buf.Len())

	return tts.CheckSegment(&audio.Segment{
		Data:        buf.Bytes(),
		ContentType: audio.ContentTypeWAV,
		SampleRate:  s.sampleRate,
		Channels:    1,
	})
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
