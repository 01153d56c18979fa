package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// DefaultFFmpegCommand reads a WAV stream on stdin and writes MP3 to stdout.
const DefaultFFmpegCommand = "ffmpeg -hide_banner -loglevel error -f wav -i pipe:0 -codec:a libmp3lame -b:a 128k -f mp3 pipe:1"

// Encoder turns the stitched PCM buffer into the output container.
type Encoder interface {
	Encode(ctx context.Context, pcm *PCM) ([]byte, error)
	ContentType() string
	Extension() string
}

// NewEncoder returns the encoder for an output format ("mp3" or "wav").
func NewEncoder(format, ffmpegCommand string) (Encoder, error) {
	switch strings.ToLower(format) {
	case "wav":
		return WAVEncoder{}, nil
	case "mp3", "":
		if ffmpegCommand == "" {
			ffmpegCommand = DefaultFFmpegCommand
		}
		return NewFFmpegEncoder(ffmpegCommand, ContentTypeMP3, ".mp3")
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// WAVEncoder writes 16-bit mono PCM WAV.
type WAVEncoder struct{}

func (WAVEncoder) ContentType() string { return ContentTypeWAV }
func (WAVEncoder) Extension() string   { return ".wav" }

func (WAVEncoder) Encode(_ context.Context, pcm *PCM) ([]byte, error) {
	return EncodeWAV(pcm)
}

// EncodeWAV serializes canonical PCM into a WAV container.
func EncodeWAV(pcm *PCM) ([]byte, error) {
	if pcm == nil || pcm.SampleRate <= 0 {
		return nil, errors.New("pcm buffer without sample rate")
	}
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, pcm.SampleRate, 16, 1, 1)

	data := make([]int, len(pcm.Samples))
	for i, s := range pcm.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: pcm.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("writing wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wav: %w", err)
	}
	return ws.buf, nil
}

// FFmpegEncoder pipes a WAV rendition of the buffer through an external
// command and returns its stdout.
type FFmpegEncoder struct {
	args        []string
	contentType string
	ext         string
}

// NewFFmpegEncoder parses command with shell quoting rules.
func NewFFmpegEncoder(command, contentType, ext string) (*FFmpegEncoder, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse encoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("encoder command is empty")
	}
	return &FFmpegEncoder{args: args, contentType: contentType, ext: ext}, nil
}

func (e *FFmpegEncoder) ContentType() string { return e.contentType }
func (e *FFmpegEncoder) Extension() string   { return e.ext }

func (e *FFmpegEncoder) Encode(ctx context.Context, pcm *PCM) ([]byte, error) {
	in, err := EncodeWAV(pcm)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.args[0], e.args[1:]...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", e.args[0], err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no output", e.args[0])
	}
	return stdout.Bytes(), nil
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	w.pos = int(next)
	return next, nil
}
