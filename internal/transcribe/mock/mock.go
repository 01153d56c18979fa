// Package mock provides an offline transcription Provider. Text payloads
// (content type text/plain) are echoed back; audio yields a fixed topic.
package mock

import (
	"context"
	"strings"

	"github.com/nadzzz/duomode/internal/transcribe"
)

// DefaultTopic is returned for any audio input.
const DefaultTopic = "photosynthesis"

// Provider is the mock transcription backend.
type Provider struct {
	topic string
}

// New creates a mock provider returning topic for audio input.
func New(topic string) *Provider {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	return &Provider{topic: topic}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "mock" }

// Transcribe returns the configured topic, or the payload itself for text.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.HasPrefix(contentType, "text/") {
		return transcribe.Clean(string(audio))
	}
	if len(audio) == 0 {
		return "", transcribe.ErrEmptyTranscript
	}
	return p.topic, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }
