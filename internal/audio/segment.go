// Package audio holds the segment types exchanged between synthesis and
// stitching, and the stitcher that merges per-line segments into one
// encoded dialogue.
//
// Segments arrive in whatever container a synthesis backend produced (WAV,
// MP3 or raw little-endian PCM). The stitcher canonicalizes them to mono
// 16-bit PCM at a single sample rate before concatenating.
package audio

import (
	"bytes"
	"strings"
	"time"
)

// Content types understood by Decode.
const (
	ContentTypeWAV = "audio/wav"
	ContentTypeMP3 = "audio/mpeg"
	ContentTypePCM = "audio/pcm" // signed 16-bit little-endian, rate and channels from Segment
)

// Segment is one synthesized line of dialogue in its native encoding.
type Segment struct {
	// Data is the encoded audio payload.
	Data []byte `json:"-"`

	// ContentType is the MIME type of Data (e.g. "audio/wav", "audio/mpeg").
	ContentType string `json:"content_type"`

	// SampleRate is the native rate in Hz. Required for raw PCM, informative otherwise.
	SampleRate int `json:"sample_rate,omitempty"`

	// Channels is the channel count. Required for raw PCM, informative otherwise.
	Channels int `json:"channels,omitempty"`

	// Duration is the playback length when the backend reports it.
	Duration time.Duration `json:"duration,omitempty"`
}

// Empty reports whether the segment carries no audio.
func (s *Segment) Empty() bool {
	return s == nil || len(s.Data) == 0
}

// Encoded is the stitched output artifact.
type Encoded struct {
	Data        []byte
	ContentType string
	Extension   string // including the dot, e.g. ".mp3"
	SampleRate  int
	Duration    time.Duration
}

// sniff returns the canonical content type for a segment, looking at the
// declared type first and the payload magic second.
func sniff(seg Segment) string {
	ct := strings.ToLower(seg.ContentType)
	switch {
	case strings.Contains(ct, "wav"), strings.Contains(ct, "wave"):
		return ContentTypeWAV
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return ContentTypeMP3
	case strings.Contains(ct, "pcm"), strings.Contains(ct, "l16"), strings.Contains(ct, "linear16"):
		return ContentTypePCM
	}

	data := seg.Data
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContentTypeWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return ContentTypeMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContentTypeMP3
	}
	return ""
}
