package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/transcribe"
)

func TestTranscribeSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "RIFFdata" || hdr.Filename != "audio.wav" {
				t.Errorf("unexpected file %q %q", hdr.Filename, data)
			}
		}
		_, _ = w.Write([]byte(`{"text":"  photosynthesis \n","language":"english"}`))
	}))
	defer srv.Close()

	p := New(config.OpenAITranscribeConfig{BaseURL: srv.URL, Model: "whisper-1"}, "en")
	got, err := p.Transcribe(context.Background(), []byte("RIFFdata"), "audio/wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "photosynthesis" {
		t.Fatalf("got %q", got)
	}
}

func TestTranscribeEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	p := New(config.OpenAITranscribeConfig{BaseURL: srv.URL}, "")
	if _, err := p.Transcribe(context.Background(), []byte("x"), "audio/wav"); !errors.Is(err, transcribe.ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestTranscribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := New(config.OpenAITranscribeConfig{BaseURL: srv.URL}, "")
	if _, err := p.Transcribe(context.Background(), []byte("x"), "audio/wav"); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	p := New(config.OpenAITranscribeConfig{BaseURL: "http://127.0.0.1:1"}, "")
	if _, err := p.Transcribe(context.Background(), nil, "audio/wav"); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
