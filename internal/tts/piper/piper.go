// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. Each dialogue
// line opens its own connection, so concurrent synthesis calls do not share
// protocol state.
//
// Wyoming protocol format (per event):
//
//	{"type": ..., "data_length": N, "payload_length": M}\n
//	<N bytes of data JSON>
//	<M bytes of payload>
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/tts"
	"github.com/nadzzz/duomode/internal/voice"
)

const protocolVersion = "1.5.2"

// Upper bounds on the lengths a server may announce in one event header.
const (
	maxDataLength    = 1 << 20
	maxPayloadLength = 16 << 20
)

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint string // host:port of the Piper Wyoming server
	timeout  time.Duration
}

// New creates a new Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	ep := strings.TrimPrefix(cfg.Endpoint, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synthesizer{endpoint: ep, timeout: timeout}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "piper" }

// Synthesize sends text to the Piper server and returns the raw PCM it streams back.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	if s.endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured")
	}

	logger := logging.FromContext(ctx)
	logger.Debug("piper synthesize", "text_length", len(text), "voice", v, "endpoint", s.endpoint)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock reads if the session is cancelled mid-call.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	synth := event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": string(v)},
		},
	}
	if err := writeEvent(conn, synth, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// audio-start → audio-chunk* → audio-stop
	var (
		pcm        bytes.Buffer
		sampleRate = 22050
		channels   = 1
		width      = 2
		r          = bufio.NewReader(conn)
	)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			sampleRate = intField(evt.Data, "rate", sampleRate)
			channels = intField(evt.Data, "channels", channels)
			width = intField(evt.Data, "width", width)
			if width != 2 {
				return nil, fmt.Errorf("piper sample width %d not supported", width)
			}

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			logger.Debug("piper audio-stop", "pcm_bytes", pcm.Len(), "rate", sampleRate)
			frames := pcm.Len() / (width * channels)
			return tts.CheckSegment(&audio.Segment{
				Data:        pcm.Bytes(),
				ContentType: audio.ContentTypePCM,
				SampleRate:  sampleRate,
				Channels:    channels,
				Duration:    time.Duration(frames) * time.Second / time.Duration(sampleRate),
			})

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		}
	}
}

// Close is a no-op; connections are per-request.
func (s *Synthesizer) Close() error { return nil }

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// header is the first line of every event. Data may be inline or follow
// the header as data_length bytes of JSON.
type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

func intField(data map[string]any, key string, fallback int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}
	return fallback
}

// writeEvent sends a Wyoming event: header line, data JSON, payload.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
	}
	hdr, err := json.Marshal(header{
		Type:          evt.Type,
		Version:       protocolVersion,
		DataLength:    len(data),
		PayloadLength: len(payload),
	})
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(hdr)
	buf.WriteByte('\n')
	buf.Write(data)
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

// readEvent reads one Wyoming event.
func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", line, err)
	}

	if hdr.DataLength < 0 || hdr.DataLength > maxDataLength {
		return nil, nil, fmt.Errorf("wyoming %s event data_length %d out of range", hdr.Type, hdr.DataLength)
	}
	if hdr.PayloadLength < 0 || hdr.PayloadLength > maxPayloadLength {
		return nil, nil, fmt.Errorf("wyoming %s event payload_length %d out of range", hdr.Type, hdr.PayloadLength)
	}

	evt := &event{Type: hdr.Type, Data: hdr.Data}
	if hdr.DataLength > 0 {
		raw := make([]byte, hdr.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, nil, fmt.Errorf("reading event data: %w", err)
		}
		extra := map[string]any{}
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling event data: %w", err)
		}
		if evt.Data == nil {
			evt.Data = extra
		} else {
			for k, v := range extra {
				evt.Data[k] = v
			}
		}
	}

	var payload []byte
	if hdr.PayloadLength > 0 {
		payload = make([]byte, hdr.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return evt, payload, nil
}
