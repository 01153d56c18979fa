// Package local implements the dialogue Generator against self-hosted models:
// Ollama's /api/generate or any OpenAI-compatible chat endpoint (vLLM,
// llama.cpp server, Ollama's /v1).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dialogue"
	"github.com/nadzzz/duomode/internal/httpclient"
	"github.com/nadzzz/duomode/internal/logging"
)

// Generator uses a self-hosted LLM for dialogue generation.
type Generator struct {
	endpoint string
	model    string
	opts     dialogue.Options
	client   *http.Client
}

// New creates a new local generator from config.
func New(cfg config.LocalLLMConfig, opts dialogue.Options) *Generator {
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &Generator{
		endpoint: cfg.Endpoint,
		model:    model,
		opts:     opts,
		client:   httpclient.New(0),
	}
}

// Name returns the backend identifier.
func (g *Generator) Name() string { return "local" }

// Generate sends the topic to the local LLM endpoint.
func (g *Generator) Generate(ctx context.Context, topic string) ([]dialogue.Turn, error) {
	topic, err := dialogue.CheckTopic(topic)
	if err != nil {
		return nil, err
	}
	systemPrompt := dialogue.SystemPrompt(g.opts)
	userPrompt := dialogue.UserPrompt(topic)

	// Ollama native format when the endpoint is /api/generate.
	var reqBody map[string]any
	if strings.HasSuffix(g.endpoint, "/api/generate") {
		reqBody = map[string]any{
			"model":  g.model,
			"system": systemPrompt,
			"prompt": userPrompt,
			"stream": false,
			"format": "json",
		}
	} else {
		reqBody = map[string]any{
			"model": g.model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": userPrompt},
			},
			"response_format": map[string]string{"type": "json_object"},
			"stream":          false,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("local LLM failed (status %d): %s", resp.StatusCode, respBody)
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading LLM response: %w", err)
	}

	content := extractContent(respData)
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty response from local LLM", dialogue.ErrEmptyDialogue)
	}

	raw, err := dialogue.ParseScript(content)
	if err != nil {
		return nil, err
	}
	turns, err := dialogue.Normalize(raw, g.opts)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("dialogue generated", "backend", "local", "model", g.model, "turns", len(turns))
	return turns, nil
}

// Close is a no-op for the local generator.
func (g *Generator) Close() error { return nil }

func extractContent(data []byte) string {
	// OpenAI-compatible: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama: {"response": "..."}
	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}

	return string(data)
}
