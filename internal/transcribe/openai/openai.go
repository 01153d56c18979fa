// Package openai implements the transcribe Provider using OpenAI's Audio
// Transcription API (whisper-1 / gpt-4o-transcribe).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/httpclient"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/transcribe"
)

var tracer = otel.Tracer("github.com/nadzzz/duomode/internal/transcribe/openai")

// Provider uses the OpenAI transcription endpoint.
type Provider struct {
	apiKey           string
	transcriptionURL string
	model            string
	language         string
	client           *http.Client
}

// New creates a new OpenAI transcription provider from config.
func New(cfg config.OpenAITranscribeConfig, language string) *Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Provider{
		apiKey:           cfg.APIKey,
		transcriptionURL: base + "/audio/transcriptions",
		model:            cfg.Model,
		language:         language,
		client:           httpclient.New(0),
	}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "openai" }

// Transcribe sends audio to the OpenAI Transcription API.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}
	ctx, span := tracer.Start(ctx, "transcribe.openai")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", p.model),
		attribute.Int("audio.bytes", len(audio)),
	)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+transcribe.ExtFromContentType(contentType))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	_ = writer.WriteField("model", p.model)
	if p.language != "" {
		_ = writer.WriteField("language", p.language)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.transcriptionURL, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}

	logging.FromContext(ctx).Debug("transcription complete",
		"backend", "openai",
		"text_length", len(result.Text),
		"language", transcribe.NormalizeLanguage(result.Language))
	return transcribe.Clean(result.Text)
}

// Close is a no-op for the OpenAI provider.
func (p *Provider) Close() error { return nil }
