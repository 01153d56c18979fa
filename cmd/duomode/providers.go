package main

import (
	"fmt"
	"log/slog"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dialogue"
	execdialogue "github.com/nadzzz/duomode/internal/dialogue/exec"
	localdialogue "github.com/nadzzz/duomode/internal/dialogue/local"
	mockdialogue "github.com/nadzzz/duomode/internal/dialogue/mock"
	openaidialogue "github.com/nadzzz/duomode/internal/dialogue/openai"
	"github.com/nadzzz/duomode/internal/transcribe"
	deepgramstt "github.com/nadzzz/duomode/internal/transcribe/deepgram"
	execstt "github.com/nadzzz/duomode/internal/transcribe/exec"
	localstt "github.com/nadzzz/duomode/internal/transcribe/local"
	mockstt "github.com/nadzzz/duomode/internal/transcribe/mock"
	openaistt "github.com/nadzzz/duomode/internal/transcribe/openai"
	"github.com/nadzzz/duomode/internal/tts"
	deepgramtts "github.com/nadzzz/duomode/internal/tts/deepgram"
	exectts "github.com/nadzzz/duomode/internal/tts/exec"
	mocktts "github.com/nadzzz/duomode/internal/tts/mock"
	openaitts "github.com/nadzzz/duomode/internal/tts/openai"
	"github.com/nadzzz/duomode/internal/tts/piper"
)

func newTranscriber(cfg config.TranscriptionConfig) (transcribe.Provider, error) {
	switch cfg.Backend {
	case "openai":
		slog.Info("using OpenAI transcription", "model", cfg.OpenAI.Model)
		return openaistt.New(cfg.OpenAI, cfg.Language), nil
	case "local":
		slog.Info("using local whisper", "endpoint", cfg.Local.Endpoint, "type", cfg.Local.Type)
		return localstt.New(cfg.Local, cfg.Language), nil
	case "deepgram":
		slog.Info("using Deepgram transcription", "model", cfg.Deepgram.Model)
		return deepgramstt.New(cfg.Deepgram, cfg.Language)
	case "exec":
		slog.Info("using command transcription", "command", cfg.Exec.Command)
		return execstt.New(cfg.Exec)
	case "mock":
		slog.Warn("using mock transcription")
		return mockstt.New(""), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}

func newGenerator(cfg config.DialogueConfig, speakers []string) (dialogue.Generator, error) {
	opts := dialogue.Options{
		Speakers:     speakers,
		MaxTurns:     cfg.MaxTurns,
		MaxLineChars: cfg.MaxLineChars,
	}
	switch cfg.Backend {
	case "openai":
		slog.Info("using OpenAI dialogue", "model", cfg.OpenAI.Model)
		return openaidialogue.New(cfg.OpenAI, opts), nil
	case "local":
		slog.Info("using local LLM dialogue", "endpoint", cfg.Local.Endpoint, "model", cfg.Local.Model)
		return localdialogue.New(cfg.Local, opts), nil
	case "exec":
		slog.Info("using command dialogue", "command", cfg.Exec.Command)
		return execdialogue.New(cfg.Exec, opts)
	case "mock":
		slog.Warn("using mock dialogue")
		return mockdialogue.New(opts), nil
	default:
		return nil, fmt.Errorf("unknown dialogue backend %q", cfg.Backend)
	}
}

func newSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Backend {
	case "piper":
		slog.Info("using Piper TTS", "endpoint", cfg.Piper.Endpoint)
		return piper.New(cfg.Piper), nil
	case "openai":
		slog.Info("using OpenAI TTS", "model", cfg.OpenAI.Model, "format", cfg.OpenAI.ResponseFormat)
		return openaitts.New(cfg.OpenAI), nil
	case "deepgram":
		slog.Info("using Deepgram TTS", "sample_rate", cfg.Deepgram.SampleRate)
		return deepgramtts.New(cfg.Deepgram)
	case "exec":
		slog.Info("using command TTS", "command", cfg.Exec.Command)
		return exectts.New(cfg.Exec)
	case "mock":
		slog.Warn("using mock TTS")
		return mocktts.New(), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}
