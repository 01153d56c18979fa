// Package openai implements the dialogue Generator with the OpenAI Chat
// Completions API, requesting a strict JSON schema reflected from
// dialogue.Script.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dialogue"
	"github.com/nadzzz/duomode/internal/httpclient"
	"github.com/nadzzz/duomode/internal/logging"
)

var tracer = otel.Tracer("github.com/nadzzz/duomode/internal/dialogue/openai")

// Generator uses OpenAI chat completions for dialogue generation.
type Generator struct {
	apiKey      string
	chatURL     string
	model       string
	maxTokens   int
	temperature float64
	opts        dialogue.Options
	schema      *jsonschema.Schema
	client      *http.Client
}

// New creates a new OpenAI dialogue generator from config.
func New(cfg config.OpenAIDialogueConfig, opts dialogue.Options) *Generator {
	reflector := jsonschema.Reflector{DoNotReference: true}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Generator{
		apiKey:      cfg.APIKey,
		chatURL:     base + "/chat/completions",
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		opts:        opts,
		schema:      reflector.Reflect(&dialogue.Script{}),
		client:      httpclient.New(0),
	}
}

// Name returns the backend identifier.
func (g *Generator) Name() string { return "openai" }

// Generate asks the model for a script and normalizes it.
func (g *Generator) Generate(ctx context.Context, topic string) ([]dialogue.Turn, error) {
	topic, err := dialogue.CheckTopic(topic)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "dialogue.openai.generate")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", g.model))

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: dialogue.SystemPrompt(g.opts)},
			{Role: "user", Content: dialogue.UserPrompt(topic)},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "Script",
				Schema: g.schema,
				Strict: true,
			},
		},
		Temperature:         g.temperature,
		MaxCompletionTokens: g.maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.chatURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("chat failed (status %d): %s", resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned from chat API", dialogue.ErrEmptyDialogue)
	}

	choice := chatResp.Choices[0].Message
	if choice.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", choice.Refusal)
	}
	raw, err := dialogue.ParseScript(choice.Content)
	if err != nil {
		return nil, err
	}
	turns, err := dialogue.Normalize(raw, g.opts)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("dialogue generated", "backend", "openai", "turns", len(turns))
	return turns, nil
}

// Close is a no-op for the OpenAI generator.
func (g *Generator) Close() error { return nil }

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
	Temperature         float64         `json:"temperature,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
	Strict bool               `json:"strict"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}
