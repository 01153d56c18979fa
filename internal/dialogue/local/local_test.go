package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dialogue"
)

func TestGenerateOllamaFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["format"] != "json" || req["system"] == "" {
			t.Errorf("expected ollama request, got %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": `{"turns":[{"speaker":"john","line":"What is gravity?"},{"speaker":"cartoon_dad","line":"It's the Earth giving you a hug!"}]}`,
		})
	}))
	defer srv.Close()

	g := New(config.LocalLLMConfig{Endpoint: srv.URL + "/api/generate", Model: "llama3"}, dialogue.Options{})
	turns, err := g.Generate(context.Background(), "gravity")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(turns) != 2 || turns[0].Speaker != "JOHN" || turns[1].Speaker != "CARTOON_DAD" {
		t.Fatalf("unexpected turns %+v", turns)
	}
}

func TestGenerateOpenAICompatibleFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := req["messages"]; !ok {
			t.Errorf("expected chat request, got %v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"JOHN: Why is the sky blue?\nCARTOON_DAD: Because it's showing off!"}}]}`))
	}))
	defer srv.Close()

	g := New(config.LocalLLMConfig{Endpoint: srv.URL + "/v1/chat/completions"}, dialogue.Options{})
	turns, err := g.Generate(context.Background(), "sky")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(turns) != 2 || turns[1].Line != "Because it's showing off!" {
		t.Fatalf("unexpected turns %+v", turns)
	}
}
