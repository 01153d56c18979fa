// Package exec implements the transcribe Provider by running an external
// recognizer (whisper.cpp's main, vosk-transcriber, ...) against a temporary
// copy of the clip. The file path is appended to the configured command line
// and the command prints either plain text or {"text": ...} on stdout.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/command"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/transcribe"
)

// Provider shells out once per clip.
type Provider struct {
	cmd        *command.Command
	sampleRate int
	channels   int
	tempDir    string
}

// New parses the configured command line.
func New(cfg config.ExecConfig) (*Provider, error) {
	cmd, err := command.Parse(cfg.Command, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("transcribe exec: %w", err)
	}
	return &Provider{cmd: cmd, sampleRate: cfg.SampleRate, channels: cfg.Channels, tempDir: cfg.TempDir}, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "exec" }

// Transcribe writes audio to a temp file that is removed on every return
// path, then runs the command on it.
func (p *Provider) Transcribe(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}
	data, ext, err := p.container(data, contentType)
	if err != nil {
		return "", err
	}

	path, cleanup, err := writeTemp(p.tempDir, data, ext)
	if err != nil {
		return "", fmt.Errorf("transcribe exec: %w", err)
	}
	defer cleanup()

	logging.FromContext(ctx).Debug("exec transcription", "command", p.cmd.Name(), "bytes", len(data))
	out, err := p.cmd.Run(ctx, nil, path)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("transcribe exec: %w", err)
	}
	return transcribe.Clean(parseOutput(out))
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// container wraps raw PCM in a WAV header; recognizers expect a file format.
func (p *Provider) container(data []byte, contentType string) ([]byte, string, error) {
	if !strings.Contains(contentType, "pcm") && !strings.Contains(contentType, "l16") {
		return data, transcribe.ExtFromContentType(contentType), nil
	}
	pcm, err := audio.Decode(audio.Segment{
		Data:        data,
		ContentType: audio.ContentTypePCM,
		SampleRate:  p.sampleRate,
		Channels:    p.channels,
	})
	if err != nil {
		return nil, "", fmt.Errorf("transcribe exec: %w", err)
	}
	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		return nil, "", fmt.Errorf("transcribe exec: %w", err)
	}
	return wav, ".wav", nil
}

func writeTemp(dir string, data []byte, ext string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "duomode-input-*"+ext)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

func parseOutput(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var res struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(trimmed, &res); err == nil {
			return res.Text
		}
	}
	return string(trimmed)
}
