// Package dispatch connects transports to the pipeline.
//
// The dispatcher gives every request a session ID and a session log,
// runs it through the orchestrator, persists the finished clip and records
// the outcome in the session history. The caller always receives a Result,
// whether the session completed or failed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/duomode/internal/artifact"
	"github.com/nadzzz/duomode/internal/audio"
	"github.com/nadzzz/duomode/internal/eventstore"
	"github.com/nadzzz/duomode/internal/logging"
	"github.com/nadzzz/duomode/internal/message"
	"github.com/nadzzz/duomode/internal/pipeline"
)

// ErrNotFound is returned for unknown sessions or artifacts.
var ErrNotFound = errors.New("not found")

// Runner executes one pipeline session.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, obs pipeline.Observer) (*pipeline.Session, error)
}

// History records sessions and their progress events.
type History interface {
	BeginSession(ctx context.Context, sessionID, inputKind string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
	FinishSession(ctx context.Context, rec eventstore.Session) error
	GetSession(ctx context.Context, sessionID string) (*eventstore.Session, error)
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]eventstore.Event, error)
}

// Artifacts stores finished clips by session ID.
type Artifacts interface {
	Save(sessionID, ext string, data []byte) (string, error)
	Load(sessionID string) ([]byte, string, error)
}

// Uploader mirrors finished clips to remote storage.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Options tune a Dispatcher.
type Options struct {
	// SessionLogDir receives one log file per session. Empty disables session files.
	SessionLogDir string

	// Timeout bounds each session. Zero means no deadline beyond the caller's.
	Timeout time.Duration

	// Uploader is optional.
	Uploader Uploader

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher is the request handler shared by all transports.
type Dispatcher struct {
	runner    Runner
	history   History
	artifacts Artifacts
	opts      Options
	base      *slog.Logger
	logger    *slog.Logger

	newID func() string
	now   func() time.Time
}

// New creates a Dispatcher.
func New(runner Runner, history History, artifacts Artifacts, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner:    runner,
		history:   history,
		artifacts: artifacts,
		opts:      opts,
		base:      logger,
		logger:    logging.Component(logger, "dispatch"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Handle runs one request to completion. Pipeline failures are reported in
// Result.Error; the returned error is reserved for requests that could not
// be attempted at all.
func (d *Dispatcher) Handle(ctx context.Context, req *message.GenerateRequest, obs pipeline.Observer) (*message.Result, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	id := d.newID()
	start := d.now()

	logger := d.logger.With(slog.String("session_id", id))
	ctx = logging.WithLogger(ctx, logger)
	if d.opts.SessionLogDir != "" {
		sl, err := logging.OpenSession(d.opts.SessionLogDir, id, start, d.base)
		if err != nil {
			logger.Warn("session log unavailable", logging.Err(err))
		} else {
			defer sl.Close()
			logger = sl.Logger
			ctx = sl.Context(ctx)
		}
	}

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	// History writes must land even after the session context is cancelled.
	hctx := context.WithoutCancel(ctx)
	if err := d.history.BeginSession(hctx, id, req.InputKind()); err != nil {
		logger.Warn("history begin failed", logging.Err(err))
	}
	record := pipeline.ObserverFunc(func(e pipeline.Event) {
		err := d.history.AppendEvent(hctx, eventstore.Event{
			SessionID: e.SessionID,
			State:     e.State.String(),
			Label:     e.Label,
			Detail:    e.Detail,
			ErrorKind: string(e.ErrorKind),
			CreatedAt: e.At,
		})
		if err != nil {
			logger.Warn("history event failed", logging.Err(err))
		}
	})

	logger.Info("session started", "input", req.InputKind(), "bytes", len(req.Audio))
	sess, runErr := d.runner.Run(ctx, pipeline.Input{
		SessionID:   id,
		Audio:       req.Audio,
		ContentType: req.ContentType,
		Text:        req.Text,
	}, pipeline.Observers(record, obs))

	result := &message.Result{SessionID: id}
	rec := eventstore.Session{SessionID: id, Status: eventstore.StatusComplete}
	if sess != nil {
		result.Topic = sess.Topic
		result.Turns = toTurns(sess)
		rec.Topic = sess.Topic
		rec.Turns = len(sess.Turns)
	}

	if runErr != nil {
		setFailure(result, &rec, runErr)
		d.finish(hctx, logger, rec)
		logger.Warn("session failed", "kind", result.ErrorKind, "elapsed", d.now().Sub(start))
		return result, nil
	}

	art := sess.Artifact
	path, err := d.artifacts.Save(id, extension(art), art.Data)
	if err != nil {
		setFailure(result, &rec, &pipeline.Error{
			Kind:  pipeline.KindInternal,
			Stage: pipeline.Complete,
			Err:   fmt.Errorf("storing artifact: %w", err),
		})
		d.finish(hctx, logger, rec)
		return result, nil
	}
	rec.ArtifactPath = path
	rec.ContentType = art.ContentType
	rec.Duration = art.Duration

	result.ContentType = art.ContentType
	result.FileName = art.FileName
	result.Duration = art.Duration
	result.DownloadURL = DownloadPath(id)
	if req.IncludeAudio {
		result.SetAudioBytes(art.Data)
	}

	if d.opts.Uploader != nil {
		url, err := d.opts.Uploader.Upload(ctx, art.FileName, art.ContentType, art.Data)
		if err != nil {
			logger.Warn("drive upload failed", logging.Err(err))
		} else {
			result.DriveURL = url
			rec.ArtifactURL = url
		}
	}

	d.finish(hctx, logger, rec)
	logger.Info("session stored", "path", path, "duration", art.Duration, "elapsed", d.now().Sub(start))
	return result, nil
}

// Artifact returns a stored clip with its content type and download name.
func (d *Dispatcher) Artifact(sessionID string) ([]byte, string, string, error) {
	data, ext, err := d.artifacts.Load(sessionID)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, "", "", ErrNotFound
	}
	if err != nil {
		return nil, "", "", err
	}
	return data, contentTypeFor(ext), pipeline.ArtifactBaseName + ext, nil
}

// Session returns the history record of a session and its events.
func (d *Dispatcher) Session(ctx context.Context, sessionID string, limit int) (*eventstore.Session, []eventstore.Event, error) {
	rec, err := d.history.GetSession(ctx, sessionID)
	if errors.Is(err, eventstore.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	events, err := d.history.ListSessionEvents(ctx, sessionID, limit)
	if err != nil {
		return nil, nil, err
	}
	return rec, events, nil
}

// DownloadPath is the HTTP path serving a session's clip.
func DownloadPath(sessionID string) string {
	return "/sessions/" + sessionID + "/audio"
}

func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, rec eventstore.Session) {
	rec.FinishedAt = d.now()
	if err := d.history.FinishSession(ctx, rec); err != nil {
		logger.Warn("history finish failed", logging.Err(err))
	}
}

func setFailure(result *message.Result, rec *eventstore.Session, err error) {
	result.Error = err.Error()
	rec.Status = eventstore.StatusFailed
	rec.ErrorMessage = err.Error()

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		result.ErrorKind = string(pe.Kind)
		result.Stage = pe.Stage.String()
	} else {
		result.ErrorKind = string(pipeline.KindInternal)
	}
	rec.ErrorKind = result.ErrorKind
	rec.ErrorStage = result.Stage
}

func toTurns(sess *pipeline.Session) []message.Turn {
	if len(sess.Turns) == 0 {
		return nil
	}
	out := make([]message.Turn, len(sess.Turns))
	for i, t := range sess.Turns {
		out[i] = message.Turn{Speaker: t.Speaker, Line: t.Line}
	}
	return out
}

func extension(a *pipeline.Artifact) string {
	if ext := filepath.Ext(a.FileName); ext != "" {
		return ext
	}
	if a.ContentType == audio.ContentTypeWAV {
		return ".wav"
	}
	return ".mp3"
}

func contentTypeFor(ext string) string {
	if ext == ".wav" {
		return audio.ContentTypeWAV
	}
	return audio.ContentTypeMP3
}
