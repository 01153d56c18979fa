// Package exec implements the TTS Synthesizer by running an external
// command per line. The command receives {"text","voice","sample_rate"} as
// JSON on stdin and prints either a WAV/MP3 file or JSON lines of
// {"pcm_base64": ...} chunks on stdout.
package exec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/command"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/tts"
	"github.com/nadzzz/duomode/internal/voice"
)

const defaultSampleRate = 22050

// Synthesizer shells out once per line.
type Synthesizer struct {
	cmd        *command.Command
	sampleRate int
	channels   int
}

type request struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type chunk struct {
	PCMBase64 string `json:"pcm_base64"`
}

// New parses the configured command line.
func New(cfg config.ExecConfig) (*Synthesizer, error) {
	cmd, err := command.Parse(cfg.Command, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("tts exec: %w", err)
	}
	s := &Synthesizer{cmd: cmd, sampleRate: cfg.SampleRate, channels: cfg.Channels}
	if s.sampleRate <= 0 {
		s.sampleRate = defaultSampleRate
	}
	if s.channels <= 0 {
		s.channels = 1
	}
	return s, nil
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "exec" }

// Synthesize runs the command for one line.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	input, err := json.Marshal(request{
		Text:       text,
		Voice:      string(v),
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.cmd.Run(ctx, bytes.NewReader(input))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tts exec: %w", err)
	}

	seg := &audio.Segment{Data: out, SampleRate: s.sampleRate, Channels: s.channels}
	if trimmed := bytes.TrimSpace(out); len(trimmed) > 0 && trimmed[0] == '{' {
		pcm, err := decodeChunks(trimmed)
		if err != nil {
			return nil, fmt.Errorf("tts exec: %w", err)
		}
		seg.Data = pcm
		seg.ContentType = audio.ContentTypePCM
	}
	return tts.CheckSegment(seg)
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }

// decodeChunks concatenates the PCM carried by each JSON line.
func decodeChunks(out []byte) ([]byte, error) {
	var pcm bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var c chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("invalid chunk line: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(c.PCMBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid pcm_base64: %w", err)
		}
		pcm.Write(raw)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pcm.Bytes(), nil
}
