// Package openai implements the TTS Synthesizer using the OpenAI speech API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/httpclient"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/tts"
	"github.com/nadzzz/duomode/internal/voice"
)

var tracer = otel.Tracer("github.com/nadzzz/duomode/internal/tts/openai")

// pcmRate is the fixed rate of the API's raw pcm output.
const pcmRate = 24000

// Synthesizer calls POST /audio/speech once per line.
type Synthesizer struct {
	apiKey    string
	speechURL string
	model     string
	speed     float64
	format    string
	client    *http.Client
}

// New creates a new OpenAI synthesizer from config.
func New(cfg config.OpenAISpeechConfig) *Synthesizer {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	format := strings.ToLower(cfg.ResponseFormat)
	if format == "" {
		format = "wav"
	}
	return &Synthesizer{
		apiKey:    cfg.APIKey,
		speechURL: base + "/audio/speech",
		model:     cfg.Model,
		speed:     cfg.Speed,
		format:    format,
		client:    httpclient.New(0),
	}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "openai" }

// Synthesize requests speech for text in voice v.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	ctx, span := tracer.Start(ctx, "tts.openai.synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", s.model),
		attribute.String("tts.voice", string(v)),
		attribute.Int("tts.text_length", len(text)),
	)

	body, err := json.Marshal(speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          string(v),
		Speed:          s.speed,
		ResponseFormat: s.format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.speechURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech failed (status %d): %s", resp.StatusCode, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}
	logging.FromContext(ctx).Debug("openai speech", "voice", v, "bytes", len(data), "format", s.format)

	seg := &audio.Segment{Data: data, ContentType: contentType(s.format)}
	if s.format == "pcm" {
		seg.SampleRate = pcmRate
		seg.Channels = 1
	}
	return tts.CheckSegment(seg)
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }

func contentType(format string) string {
	switch format {
	case "mp3":
		return audio.ContentTypeMP3
	case "pcm":
		return audio.ContentTypePCM
	default:
		return audio.ContentTypeWAV
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}
