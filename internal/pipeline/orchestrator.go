// Package pipeline runs one Duo Mode session: transcribe the spoken topic,
// generate a two-speaker script, synthesize each line in its speaker's voice
// and stitch the lines into a single clip.
//
// Stages run strictly in order and any failure ends the session. The only
// parallel work is per-line synthesis, whose results are reassembled in
// script order before stitching. No partial artifact is ever returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/dialogue"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/voice"
)

const instrumentationName = "github.com/nadzzz/duomode/internal/pipeline"

// ErrEmptySegment is returned when a synthesizer produced no audio for a line.
var ErrEmptySegment = errors.New("synthesizer returned an empty segment")

// ErrNoInput is returned when a request carries neither audio nor text.
var ErrNoInput = errors.New("request has no audio and no text")

// Transcriber turns the recorded request into topic text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Generator writes the dialogue script for a topic.
type Generator interface {
	Generate(ctx context.Context, topic string) ([]dialogue.Turn, error)
}

// VoiceResolver maps a speaker label to a synthesis voice.
type VoiceResolver interface {
	Resolve(label string) (voice.Identity, error)
}

// Synthesizer speaks one line.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, v voice.Identity) (*audio.Segment, error)
}

// Stitcher merges ordered segments into one encoded clip.
type Stitcher interface {
	Stitch(ctx context.Context, segments []audio.Segment, pause time.Duration) (*audio.Encoded, error)
}

// Deps are the collaborators of an Orchestrator. They are shared by all
// sessions and must be safe for concurrent use.
type Deps struct {
	Transcriber Transcriber
	Generator   Generator
	Voices      VoiceResolver
	Synthesizer Synthesizer
	Stitcher    Stitcher
}

// Options tune an Orchestrator.
type Options struct {
	// Pause is the silence inserted between consecutive lines.
	Pause time.Duration

	// Concurrency caps parallel synthesis calls per session. Values below 1 mean 1.
	Concurrency int

	// RedactTopic, when set, is applied to the topic before it is logged.
	RedactTopic func(string) string
}

// Orchestrator drives sessions through the pipeline.
type Orchestrator struct {
	deps   Deps
	opts   Options
	now    func() time.Time
	tracer trace.Tracer

	sessionDuration metric.Float64Histogram
	stageDuration   metric.Float64Histogram
	sessions        metric.Int64Counter
}

// New validates deps and creates an Orchestrator. Metrics and spans go to
// the global OpenTelemetry providers.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	var missing []string
	if deps.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Voices == nil {
		missing = append(missing, "voice resolver")
	}
	if deps.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if deps.Stitcher == nil {
		missing = append(missing, "stitcher")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %s", strings.Join(missing, ", "))
	}
	if opts.Pause < 0 {
		return nil, fmt.Errorf("pipeline: negative pause %v", opts.Pause)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	meter := otel.Meter(instrumentationName)
	o := &Orchestrator{
		deps:   deps,
		opts:   opts,
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
	}
	var err error
	if o.sessionDuration, err = meter.Float64Histogram("duomode.session.duration",
		metric.WithDescription("End-to-end session latency."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("pipeline: session histogram: %w", err)
	}
	if o.stageDuration, err = meter.Float64Histogram("duomode.stage.duration",
		metric.WithDescription("Latency of each pipeline stage."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("pipeline: stage histogram: %w", err)
	}
	if o.sessions, err = meter.Int64Counter("duomode.sessions",
		metric.WithDescription("Sessions by outcome.")); err != nil {
		return nil, fmt.Errorf("pipeline: session counter: %w", err)
	}
	return o, nil
}

// Pause returns the configured inter-line silence.
func (o *Orchestrator) Pause() time.Duration { return o.opts.Pause }

// Run executes one session. The returned Session is always non-nil and
// records how far the run got; the error, when non-nil, is a *Error.
// On success Session.Artifact holds the complete clip.
func (o *Orchestrator) Run(ctx context.Context, in Input, obs Observer) (*Session, error) {
	sess := &Session{ID: in.SessionID, State: Idle, StartedAt: o.now()}
	logger := logging.FromContext(ctx).With(slog.String("component", "pipeline"))
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.Bool("input.text", in.Text != ""),
	))
	defer span.End()

	r := &run{
		o:          o,
		sess:       sess,
		logger:     logger,
		stageStart: sess.StartedAt,
		notify:     &notifier{obs: obs, sessionID: in.SessionID, now: o.now},
	}

	err := r.execute(ctx, in)
	sess.FinishedAt = o.now()
	elapsed := sess.FinishedAt.Sub(sess.StartedAt)

	outcome := attribute.String("outcome", "complete")
	if err != nil {
		pe := r.fail(ctx, err)
		outcome = attribute.String("outcome", string(pe.Kind))
		span.RecordError(pe)
		span.SetStatus(codes.Error, string(pe.Kind))
		o.sessions.Add(ctx, 1, metric.WithAttributes(outcome))
		o.sessionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(outcome))
		return sess, pe
	}

	o.sessions.Add(ctx, 1, metric.WithAttributes(outcome))
	o.sessionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(outcome))
	span.SetAttributes(
		attribute.Int("dialogue.turns", len(sess.Turns)),
		attribute.Float64("artifact.duration_s", sess.Artifact.Duration.Seconds()),
	)
	logger.Info("session complete",
		"turns", len(sess.Turns),
		"duration", sess.Artifact.Duration,
		"bytes", len(sess.Artifact.Data),
		"elapsed", elapsed)
	return sess, nil
}

// run is the mutable state of one Run call.
type run struct {
	o          *Orchestrator
	sess       *Session
	logger     *slog.Logger
	notify     *notifier
	stageStart time.Time
}

func (r *run) execute(ctx context.Context, in Input) error {
	o := r.o

	// Transcribing
	if err := r.enter(ctx, Transcribing, LabelTranscribing, ""); err != nil {
		return err
	}
	topic, err := r.transcribe(ctx, in)
	if err != nil {
		return classify(ctx, Transcribing, KindTranscriptionFailed, err)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return &Error{Kind: KindTranscriptionFailed, Stage: Transcribing, Err: dialogue.ErrEmptyTopic}
	}
	r.sess.Topic = topic
	r.logger.Info("Detected topic", "topic", r.redact(topic))

	// Generating
	if err := r.enter(ctx, Generating, LabelGenerating, r.redact(topic)); err != nil {
		return err
	}
	turns, err := o.deps.Generator.Generate(ctx, topic)
	if err != nil {
		return classify(ctx, Generating, KindGenerationFailed, err)
	}
	if len(turns) == 0 {
		return &Error{Kind: KindGenerationFailed, Stage: Generating, Err: dialogue.ErrEmptyDialogue}
	}
	r.sess.Turns = turns
	r.logger.Info("Dialogue ready", "turns", len(turns))

	// Synthesizing
	if err := r.enter(ctx, Synthesizing, LabelSynthesizing, fmt.Sprintf("%d lines", len(turns))); err != nil {
		return err
	}
	voices, err := r.resolveVoices(turns)
	if err != nil {
		return err
	}
	segments, err := r.synthesize(ctx, turns, voices)
	if err != nil {
		return classify(ctx, Synthesizing, KindSynthesisFailed, err)
	}
	r.sess.Segments = segments

	// Stitching
	if err := r.enter(ctx, Stitching, LabelStitching, ""); err != nil {
		return err
	}
	enc, err := o.deps.Stitcher.Stitch(ctx, segments, o.opts.Pause)
	if err != nil {
		kind := KindStitchFailed
		if errors.Is(err, audio.ErrNoAudioToStitch) {
			kind = KindNoAudioToStitch
		}
		return classify(ctx, Stitching, kind, err)
	}
	r.logger.Info("Dialogue audio stitched successfully", "duration", enc.Duration)

	// Complete
	if err := r.enter(ctx, Complete, LabelComplete, ""); err != nil {
		return err
	}
	r.sess.Artifact = newArtifact(enc)
	return nil
}

// enter moves the session to state after checking for cancellation, then
// reports the transition.
func (r *run) enter(ctx context.Context, to State, label, detail string) error {
	from := r.sess.State
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCancelled, Stage: from, Err: err}
	}
	if !CanTransition(from, to) {
		return &Error{Kind: KindInternal, Stage: from, Err: fmt.Errorf("illegal transition %s -> %s", from, to)}
	}
	r.observeStage(ctx, from)
	r.sess.State = to
	r.logger.Info("stage entered", "stage", to.String())
	r.notify.emit(Event{State: to, Label: label, Detail: detail})
	return nil
}

// fail moves the session to Failed, discarding intermediate audio.
func (r *run) fail(ctx context.Context, err error) *Error {
	var pe *Error
	if !errors.As(err, &pe) {
		pe = &Error{Kind: KindInternal, Stage: r.sess.State, Err: err}
	}
	r.observeStage(ctx, r.sess.State)
	r.sess.Segments = nil
	r.sess.Artifact = nil
	r.sess.Err = pe
	if !r.sess.State.Terminal() {
		r.sess.State = Failed
	}
	r.logger.Error("session failed",
		"stage", pe.Stage.String(),
		"kind", string(pe.Kind),
		logging.Err(pe.Err))
	r.notify.emit(Event{
		State:     Failed,
		Label:     LabelFailed,
		Detail:    fmt.Sprintf("%s failed: %v", pe.Stage, pe.Err),
		ErrorKind: pe.Kind,
	})
	return pe
}

func (r *run) observeStage(ctx context.Context, s State) {
	now := r.o.now()
	if s != Idle {
		r.o.stageDuration.Record(ctx, now.Sub(r.stageStart).Seconds(),
			metric.WithAttributes(attribute.String("stage", s.String())))
	}
	r.stageStart = now
}

func (r *run) transcribe(ctx context.Context, in Input) (string, error) {
	if strings.TrimSpace(in.Text) != "" {
		r.logger.Debug("using text input directly")
		return in.Text, nil
	}
	if !in.HasAudio() {
		return "", ErrNoInput
	}
	r.logger.Debug("transcribing audio", "content_type", in.ContentType, "bytes", len(in.Audio))
	return r.o.deps.Transcriber.Transcribe(ctx, in.Audio, in.ContentType)
}

// resolveVoices maps every turn before any synthesis call, so an unknown
// speaker costs nothing.
func (r *run) resolveVoices(turns []dialogue.Turn) ([]voice.Identity, error) {
	voices := make([]voice.Identity, len(turns))
	for i, t := range turns {
		v, err := r.o.deps.Voices.Resolve(t.Speaker)
		if err != nil {
			return nil, &Error{
				Kind:  KindUnknownSpeaker,
				Stage: Synthesizing,
				Err:   fmt.Errorf("line %d: %w", i+1, err),
			}
		}
		voices[i] = v
	}
	return voices, nil
}

// synthesize fans out one call per turn and collects segments by index.
// The first failure cancels the calls still in flight.
func (r *run) synthesize(ctx context.Context, turns []dialogue.Turn, voices []voice.Identity) ([]audio.Segment, error) {
	segments := make([]audio.Segment, len(turns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.Concurrency)

	for i, turn := range turns {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.notify.emit(Event{
				State: Synthesizing,
				Label: lineLabel(i+1, turn.Speaker),
				Index: i + 1,
				Total: len(turns),
			})
			r.logger.Info("Generating line", "index", i+1, "speaker", turn.Speaker, "voice", string(voices[i]))

			seg, err := r.o.deps.Synthesizer.Synthesize(gctx, turn.Line, voices[i])
			if err != nil {
				return fmt.Errorf("line %d (%s): %w", i+1, turn.Speaker, err)
			}
			if seg.Empty() {
				return fmt.Errorf("line %d (%s): %w", i+1, turn.Speaker, ErrEmptySegment)
			}
			segments[i] = *seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A cancelled parent can stop scheduling without any goroutine failing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *run) redact(topic string) string {
	if r.o.opts.RedactTopic == nil {
		return topic
	}
	return r.o.opts.RedactTopic(topic)
}
