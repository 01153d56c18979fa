// Package message defines the request and result types exchanged with
// duomode clients over every transport.
package message

import (
	"encoding/base64"
	"time"
)

// GenerateRequest asks for one Duo Mode dialogue.
type GenerateRequest struct {
	// Audio is the recorded topic. In JSON it travels as base64.
	Audio []byte `json:"audio,omitempty"`

	// ContentType is the MIME type of Audio (e.g., "audio/wav", "audio/webm").
	ContentType string `json:"content_type,omitempty"`

	// Text is an already-known topic; when set, transcription is skipped.
	Text string `json:"text,omitempty"`

	// IncludeAudio asks for the finished clip inline in the result.
	IncludeAudio bool `json:"include_audio,omitempty"`
}

// HasAudio returns true if the request carries an audio payload.
func (r *GenerateRequest) HasAudio() bool {
	return len(r.Audio) > 0
}

// InputKind names the input for history records.
func (r *GenerateRequest) InputKind() string {
	switch {
	case r.Text != "":
		return "text"
	case r.HasAudio():
		return "audio"
	default:
		return "none"
	}
}

// Turn is one line of the generated script.
type Turn struct {
	Speaker string `json:"speaker"`
	Line    string `json:"line"`
}

// Result is the outcome of one session.
type Result struct {
	// SessionID identifies the session for follow-up lookups.
	SessionID string `json:"session_id"`

	// Topic is the recognized topic.
	Topic string `json:"topic,omitempty"`

	// Turns is the dialogue script, in playback order.
	Turns []Turn `json:"turns,omitempty"`

	// ContentType and FileName describe the finished clip.
	ContentType string `json:"content_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`

	// Duration is the clip length.
	Duration time.Duration `json:"duration,omitempty"`

	// Audio is the base64-encoded clip, set only when the request asked for it.
	Audio string `json:"audio,omitempty"`

	// DownloadURL is the relative path serving the clip over HTTP.
	DownloadURL string `json:"download_url,omitempty"`

	// DriveURL is the Google Drive link when uploading is enabled.
	DriveURL string `json:"drive_url,omitempty"`

	// Error, ErrorKind and Stage are set when the session failed.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

// Failed reports whether the session ended without a clip.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// SetAudioBytes base64-encodes raw audio bytes into Audio.
func (r *Result) SetAudioBytes(audio []byte) {
	if len(audio) > 0 {
		r.Audio = base64.StdEncoding.EncodeToString(audio)
	}
}

// AudioBytes decodes Audio.
func (r *Result) AudioBytes() ([]byte, error) {
	if r.Audio == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(r.Audio)
}
