package pipeline

import (
	"time"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/dialogue"
)

// ArtifactBaseName is the download name of every dialogue, before the extension.
const ArtifactBaseName = "duo-mode-dialogue"

// Input is one topic request. When Text is set the transcription provider
// is skipped and Text is used as the recognized topic.
type Input struct {
	SessionID   string
	Audio       []byte
	ContentType string
	Text        string
}

// HasAudio returns true if the input carries an audio payload.
func (in Input) HasAudio() bool {
	return len(in.Audio) > 0
}

// Artifact is the finished dialogue audio.
type Artifact struct {
	Data        []byte        `json:"-"`
	ContentType string        `json:"content_type"`
	FileName    string        `json:"file_name"`
	SampleRate  int           `json:"sample_rate"`
	Duration    time.Duration `json:"duration"`
}

func newArtifact(enc *audio.Encoded) *Artifact {
	return &Artifact{
		Data:        enc.Data,
		ContentType: enc.ContentType,
		FileName:    ArtifactBaseName + enc.Extension,
		SampleRate:  enc.SampleRate,
		Duration:    enc.Duration,
	}
}

// Session is the state of one Run. It is owned by that Run until Run
// returns; afterwards it is read-only.
type Session struct {
	ID         string
	Topic      string
	Turns      []dialogue.Turn
	Segments   []audio.Segment
	Artifact   *Artifact
	State      State
	Err        *Error
	StartedAt  time.Time
	FinishedAt time.Time
}
