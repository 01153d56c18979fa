package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a session failure.
type Kind string

// Failure kinds.
const (
	KindTranscriptionFailed Kind = "TranscriptionFailed"
	KindGenerationFailed    Kind = "GenerationFailed"
	KindUnknownSpeaker      Kind = "UnknownSpeaker"
	KindSynthesisFailed     Kind = "SynthesisFailed"
	KindNoAudioToStitch     Kind = "NoAudioToStitch"
	KindStitchFailed        Kind = "StitchFailed"
	KindCancelled           Kind = "Cancelled"
	KindInternal            Kind = "Internal"
)

// Error is the only error type Run returns. Stage is the state the session
// was in when the failure occurred.
type Error struct {
	Kind  Kind
	Stage State
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s during %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindCancelled}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the failure kind from err, or "" when err is not a
// pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// StageOf extracts the failing stage from err.
func StageOf(err error) (State, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage, true
	}
	return Idle, false
}

// classify turns a collaborator error into a pipeline error, preferring
// Cancelled whenever the session context is done or the call was cancelled.
func classify(ctx context.Context, stage State, kind Kind, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return &Error{Kind: KindCancelled, Stage: stage, Err: cause}
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
