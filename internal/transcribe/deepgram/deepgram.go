// Package deepgram implements the transcribe Provider with Deepgram's
// pre-recorded REST API.
package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/transcribe"
)

const defaultModel = "nova-2"

type transcribeFunc func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (string, error)

// Provider sends the whole clip in one request.
type Provider struct {
	model      string
	language   string
	fromStream transcribeFunc
}

// New creates a Deepgram provider. The API key falls back to
// DEEPGRAM_API_KEY inside the SDK when empty.
func New(cfg config.DeepgramConfig, language string) (*Provider, error) {
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	if c == nil {
		return nil, errors.New("deepgram listen client init failed")
	}
	dg := api.New(c)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		model:    model,
		language: language,
		fromStream: func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (string, error) {
			res, err := dg.FromStream(ctx, r, opts)
			if err != nil {
				return "", err
			}
			if res == nil || len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
				return "", nil
			}
			return res.Results.Channels[0].Alternatives[0].Transcript, nil
		},
	}, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "deepgram" }

// Transcribe uploads audio and returns the first alternative of channel 0.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       p.model,
		Language:    p.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	text, err := p.fromStream(ctx, bytes.NewReader(audio), opts)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	logging.FromContext(ctx).Debug("transcription complete",
		"backend", "deepgram",
		"content_type", contentType,
		"text_length", len(text))
	return transcribe.Clean(text)
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }
