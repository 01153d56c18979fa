// Package transcribe defines the Provider capability: one recorded clip in,
// the recognized topic text out.
//
// Duo Mode ships several backends (OpenAI, self-hosted whisper, Deepgram, an
// external command and a mock); each lives in its own subpackage and is
// selected at startup.
package transcribe

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyTranscript is returned when recognition produced no text.
var ErrEmptyTranscript = errors.New("transcription returned no text")

// Provider is the interface for speech-to-text backends.
type Provider interface {
	// Name returns the backend identifier (e.g., "openai", "local").
	Name() string

	// Transcribe converts audio bytes to trimmed, non-empty text.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Clean collapses whitespace and rejects an empty result.
func Clean(text string) (string, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// ExtFromContentType picks the file extension upload APIs use to sniff the
// container.
func ExtFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "m4a"), strings.Contains(ct, "mp4"):
		return ".m4a"
	default:
		return ".wav"
	}
}

// NormalizeLanguage converts full language names (as returned by OpenAI) to ISO-639-1 codes.
func NormalizeLanguage(lang string) string {
	if len(lang) == 2 {
		return strings.ToLower(lang)
	}
	known := map[string]string{
		"english":    "en",
		"french":     "fr",
		"spanish":    "es",
		"german":     "de",
		"italian":    "it",
		"portuguese": "pt",
		"dutch":      "nl",
		"japanese":   "ja",
		"chinese":    "zh",
		"hindi":      "hi",
	}
	if code, ok := known[strings.ToLower(lang)]; ok {
		return code
	}
	return strings.ToLower(lang)
}
