// Package local implements the transcribe Provider against a self-hosted
// Whisper server. It supports any OpenAI-compatible transcription endpoint
// (whisper.cpp server, faster-whisper) and ahmetoner/whisper-asr-webservice.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/httpclient"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/transcribe"
)

// Provider uses a local Whisper endpoint.
type Provider struct {
	endpoint    string
	whisperType string // "openai" or "asr"
	model       string
	language    string
	vadFilter   bool
	client      *http.Client
}

// New creates a new local transcription provider from config.
func New(cfg config.LocalWhisperConfig, language string) *Provider {
	wt := cfg.Type
	if wt == "" {
		wt = "openai"
	}
	return &Provider{
		endpoint:    cfg.Endpoint,
		whisperType: wt,
		model:       cfg.Model,
		language:    language,
		vadFilter:   cfg.VADFilter,
		client:      httpclient.New(0),
	}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "local" }

// Transcribe sends audio to the local Whisper-compatible endpoint.
// Supports two flavors:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}
	var (
		text string
		err  error
	)
	switch p.whisperType {
	case "asr":
		text, err = p.transcribeASR(ctx, audio, contentType)
	default:
		text, err = p.transcribeOpenAI(ctx, audio, contentType)
	}
	if err != nil {
		return "", err
	}
	return transcribe.Clean(text)
}

// transcribeASR handles the whisper-asr-webservice format.
// API: POST /asr?task=transcribe&language=en&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (p *Provider) transcribeASR(ctx context.Context, audio []byte, contentType string) (string, error) {
	body, formType, err := multipartBody("audio_file", audio, contentType, nil)
	if err != nil {
		return "", err
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if p.language != "" {
		q.Set("language", p.language)
	}
	if p.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := p.endpoint + "?" + q.Encode()
	logging.FromContext(ctx).Debug("whisper-asr request", "url", reqURL)
	return p.post(ctx, reqURL, body, formType)
}

// transcribeOpenAI handles OpenAI-compatible whisper endpoints.
func (p *Provider) transcribeOpenAI(ctx context.Context, audio []byte, contentType string) (string, error) {
	fields := map[string]string{"response_format": "json"}
	if p.model != "" {
		fields["model"] = p.model
	}
	if p.language != "" {
		fields["language"] = p.language
	}
	body, formType, err := multipartBody("file", audio, contentType, fields)
	if err != nil {
		return "", err
	}
	return p.post(ctx, p.endpoint, body, formType)
}

func (p *Provider) post(ctx context.Context, reqURL string, body *bytes.Buffer, formType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", formType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("local transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}

	logging.FromContext(ctx).Debug("local transcription complete",
		"flavor", p.whisperType,
		"text_length", len(result.Text),
		"language", result.Language)
	return result.Text, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

func multipartBody(field string, audio []byte, contentType string, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, "audio"+transcribe.ExtFromContentType(contentType))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
