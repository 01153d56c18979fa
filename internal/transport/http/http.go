// Package http implements the HTTP/WebSocket transport for duomode.
//
// POST /generate runs a session and answers with the result once the
// dialogue is ready. GET /ws runs the same session over a WebSocket and
// streams progress events while it runs. Finished clips and session
// history are served under /sessions/{id}.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dispatch"
	_ "github.com/nadzzz/duomode/internal/docs"
	"github.com/nadzzz/duomode/internal/eventstore"
	"github.com/nadzzz/duomode/internal/message"
	"github.com/nadzzz/duomode/internal/pipeline"
	"github.com/nadzzz/duomode/internal/transport"
)

// StatusClientClosedRequest is returned when the session was cancelled.
const StatusClientClosedRequest = 499

const wsWriteTimeout = 10 * time.Second

// Lookup serves stored sessions and clips.
type Lookup interface {
	Artifact(sessionID string) ([]byte, string, string, error)
	Session(ctx context.Context, sessionID string, limit int) (*eventstore.Session, []eventstore.Event, error)
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	maxBody  int64
	lookup   Lookup
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a new HTTP transport.
func New(cfg config.HTTPConfig, lookup Lookup) *Transport {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 25 << 20
	}
	return &Transport{
		port:    cfg.Port,
		maxBody: maxBody,
		lookup:  lookup,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           otelhttp.NewHandler(t.routes(handler), "duomode.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (t *Transport) routes(handler transport.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		t.handleGenerate(w, r, handler)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWebSocket(w, r, handler)
	})
	mux.HandleFunc("GET /sessions/{id}", t.handleSession)
	mux.HandleFunc("GET /sessions/{id}/audio", t.handleAudio)

	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// handleGenerate processes a POST /generate request.
//
// @Summary     Generate a Duo Mode dialogue
// @Description Accepts a recorded topic and answers with a two-speaker tutoring dialogue rendered as one clip.
// @Description The body may be JSON (base64 audio or text), multipart form data (an "audio" file and/or a "text" field),
// @Description plain text, or raw audio bytes with the matching Content-Type.
// @Tags        generate
// @Accept      json
// @Accept      mpfd
// @Accept      plain
// @Accept      audio/wav
// @Accept      audio/webm
// @Produce     json
// @Param       request        body   message.GenerateRequest  true   "Generate request"
// @Param       include_audio  query  bool                     false  "Inline the finished clip as base64"
// @Success     200  {object}  message.Result  "Finished dialogue"
// @Failure     400  {string}  string          "Invalid request body"
// @Failure     422  {object}  message.Result  "Topic could not be recognized or scripted"
// @Failure     499  {object}  message.Result  "Session cancelled"
// @Failure     502  {object}  message.Result  "Speech or synthesis provider failed"
// @Failure     500  {object}  message.Result  "Internal processing error"
// @Router      /generate [post]
func (t *Transport) handleGenerate(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	req, err := t.decodeRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := handler(r.Context(), req, nil)
	if err != nil {
		slog.Error("generate failed", "error", err)
		http.Error(w, "generate error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, StatusFor(result), result)
}

// decodeRequest builds a GenerateRequest from any supported body encoding.
func (t *Transport) decodeRequest(w http.ResponseWriter, r *http.Request) (*message.GenerateRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, t.maxBody)
	var req message.GenerateRequest

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(t.maxBody); err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
		req.Text = r.FormValue("text")
		file, hdr, err := r.FormFile("audio")
		switch {
		case err == nil:
			defer file.Close()
			if req.Audio, err = io.ReadAll(file); err != nil {
				return nil, fmt.Errorf("reading audio: %w", err)
			}
			req.ContentType = hdr.Header.Get("Content-Type")
		case !errors.Is(err, http.ErrMissingFile):
			return nil, fmt.Errorf("reading audio: %w", err)
		}
	case "text/plain":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading text: %w", err)
		}
		req.Text = string(body)
	default:
		// Treat body as raw audio.
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading audio: %w", err)
		}
		req.Audio = body
		req.ContentType = contentType
	}

	if v := r.URL.Query().Get("include_audio"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid include_audio: %w", err)
		}
		req.IncludeAudio = include
	}
	return &req, nil
}

// wsFrame is one message sent to a WebSocket client.
type wsFrame struct {
	Type   string          `json:"type"` // progress, result, error
	Event  *pipeline.Event `json:"event,omitempty"`
	Result *message.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// handleWebSocket runs one session per connection. The client sends a single
// request, either a JSON GenerateRequest text frame or a binary audio frame
// (with ?content_type=), then receives progress frames and one result frame.
// Closing the socket cancels the session.
func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(t.maxBody)

	var mu sync.Mutex
	send := func(f wsFrame) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req message.GenerateRequest
	switch msgType {
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &req); err != nil {
			_ = send(wsFrame{Type: "error", Error: "invalid json: " + err.Error()})
			return
		}
	case websocket.BinaryMessage:
		req.Audio = data
		req.ContentType = r.URL.Query().Get("content_type")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	progress := pipeline.ObserverFunc(func(e pipeline.Event) {
		if err := send(wsFrame{Type: "progress", Event: &e}); err != nil {
			slog.Debug("websocket progress dropped", "error", err)
		}
	})
	result, err := handler(ctx, &req, progress)
	if err != nil {
		_ = send(wsFrame{Type: "error", Error: err.Error()})
		return
	}
	_ = send(wsFrame{Type: "result", Result: result})

	mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
	mu.Unlock()
}

// sessionView is the body of GET /sessions/{id}.
type sessionView struct {
	Session *eventstore.Session `json:"session"`
	Events  []eventstore.Event  `json:"events"`
}

// handleSession returns a session's history.
//
// @Summary  Session history
// @Tags     sessions
// @Produce  json
// @Param    id     path   string  true   "Session ID"
// @Param    limit  query  int     false  "Maximum events to return"
// @Success  200  {object}  sessionView
// @Failure  404  {string}  string  "Unknown session"
// @Router   /sessions/{id} [get]
func (t *Transport) handleSession(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rec, events, err := t.lookup.Session(r.Context(), r.PathValue("id"), limit)
	if errors.Is(err, dispatch.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{Session: rec, Events: events})
}

// handleAudio serves the finished clip for download.
//
// @Summary  Download a dialogue
// @Tags     sessions
// @Produce  audio/mpeg
// @Produce  audio/wav
// @Param    id  path  string  true  "Session ID"
// @Success  200  {file}    binary
// @Failure  404  {string}  string  "No clip for this session"
// @Router   /sessions/{id}/audio [get]
func (t *Transport) handleAudio(w http.ResponseWriter, r *http.Request) {
	data, contentType, name, err := t.lookup.Artifact(r.PathValue("id"))
	if errors.Is(err, dispatch.ErrNotFound) {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// StatusFor maps a session outcome to an HTTP status.
func StatusFor(res *message.Result) int {
	if !res.Failed() {
		return http.StatusOK
	}
	switch pipeline.Kind(res.ErrorKind) {
	case pipeline.KindTranscriptionFailed, pipeline.KindGenerationFailed, pipeline.KindUnknownSpeaker:
		return http.StatusUnprocessableEntity
	case pipeline.KindSynthesisFailed:
		return http.StatusBadGateway
	case pipeline.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
