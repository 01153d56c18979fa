package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dispatch"
	"github.com/nadzzz/duomode/internal/eventstore"
	"github.com/nadzzz/duomode/internal/message"
	"github.com/nadzzz/duomode/internal/pipeline"
)

type fakeLookup struct{}

func (fakeLookup) Artifact(id string) ([]byte, string, string, error) {
	if id != "s1" {
		return nil, "", "", dispatch.ErrNotFound
	}
	return []byte("ID3clip"), "audio/mpeg", "duo-mode-dialogue.mp3", nil
}

func (fakeLookup) Session(_ context.Context, id string, _ int) (*eventstore.Session, []eventstore.Event, error) {
	if id != "s1" {
		return nil, nil, dispatch.ErrNotFound
	}
	return &eventstore.Session{SessionID: "s1", Status: eventstore.StatusComplete},
		[]eventstore.Event{{SessionID: "s1", State: "complete", Label: pipeline.LabelComplete}}, nil
}

// recordingHandler captures the request and replies with res.
func recordingHandler(got chan<- *message.GenerateRequest, res *message.Result) func(context.Context, *message.GenerateRequest, pipeline.Observer) (*message.Result, error) {
	return func(_ context.Context, req *message.GenerateRequest, obs pipeline.Observer) (*message.Result, error) {
		got <- req
		if obs != nil {
			obs.Notify(pipeline.Event{State: pipeline.Transcribing, Label: pipeline.LabelTranscribing})
			obs.Notify(pipeline.Event{State: pipeline.Complete, Label: pipeline.LabelComplete})
		}
		return res, nil
	}
}

func newServer(t *testing.T, got chan<- *message.GenerateRequest, res *message.Result) *httptest.Server {
	t.Helper()
	tr := New(config.HTTPConfig{MaxBodyBytes: 1 << 20}, fakeLookup{})
	srv := httptest.NewServer(tr.routes(recordingHandler(got, res)))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateJSON(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1", Topic: "photosynthesis"})

	body, _ := json.Marshal(message.GenerateRequest{Audio: []byte{1, 2, 3}, ContentType: "audio/wav"})
	resp, err := http.Post(srv.URL+"/generate?include_audio=true", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	req := <-got
	if !bytes.Equal(req.Audio, []byte{1, 2, 3}) || req.ContentType != "audio/wav" || !req.IncludeAudio {
		t.Fatalf("unexpected request %+v", req)
	}
	var res message.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil || res.Topic != "photosynthesis" {
		t.Fatalf("unexpected body %+v err=%v", res, err)
	}
}

func TestGenerateRawAudio(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1"})

	resp, err := http.Post(srv.URL+"/generate", "audio/webm;codecs=opus", bytes.NewReader([]byte("webm")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if req := <-got; string(req.Audio) != "webm" || req.ContentType != "audio/webm;codecs=opus" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestGenerateMultipart(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1"})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("text", "volcanoes")
	fw, _ := mw.CreateFormFile("audio", "topic.wav")
	_, _ = fw.Write([]byte("RIFF"))
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/generate", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if req := <-got; req.Text != "volcanoes" || string(req.Audio) != "RIFF" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestGeneratePlainText(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1"})

	resp, err := http.Post(srv.URL+"/generate", "text/plain", strings.NewReader("black holes"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if req := <-got; req.Text != "black holes" || req.HasAudio() {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestGenerateBadJSON(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{})

	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || len(got) != 0 {
		t.Fatalf("expected 400 without dispatch, got %d", resp.StatusCode)
	}
}

func TestGenerateFailureStatus(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1", Error: "boom", ErrorKind: string(pipeline.KindSynthesisFailed)})

	resp, err := http.Post(srv.URL+"/generate", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[pipeline.Kind]int{
		pipeline.KindTranscriptionFailed: http.StatusUnprocessableEntity,
		pipeline.KindGenerationFailed:    http.StatusUnprocessableEntity,
		pipeline.KindUnknownSpeaker:      http.StatusUnprocessableEntity,
		pipeline.KindSynthesisFailed:     http.StatusBadGateway,
		pipeline.KindCancelled:           StatusClientClosedRequest,
		pipeline.KindStitchFailed:        http.StatusInternalServerError,
		pipeline.KindNoAudioToStitch:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusFor(&message.Result{Error: "x", ErrorKind: string(kind)}); got != want {
			t.Errorf("%s: got %d want %d", kind, got, want)
		}
	}
	if StatusFor(&message.Result{}) != http.StatusOK {
		t.Error("success should be 200")
	}
}

func TestSessionAndAudio(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{})

	resp, err := http.Get(srv.URL + "/sessions/s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var view sessionView
	_ = json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.Session == nil || view.Session.Status != eventstore.StatusComplete || len(view.Events) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	resp, err = http.Get(srv.URL + "/sessions/s1/audio")
	if err != nil {
		t.Fatalf("get audio: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=duo-mode-dialogue.mp3" {
		t.Fatalf("unexpected disposition %q", cd)
	}

	for _, path := range []string{"/sessions/nope", "/sessions/nope/audio"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestWebSocketStreamsProgress(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1", Topic: "tides"})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(message.GenerateRequest{Text: "tides"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frames []wsFrame
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 2 progress + 1 result frames, got %+v", frames)
	}
	if frames[0].Type != "progress" || frames[0].Event.Label != pipeline.LabelTranscribing {
		t.Fatalf("unexpected first frame %+v", frames[0])
	}
	if frames[2].Type != "result" || frames[2].Result.Topic != "tides" {
		t.Fatalf("unexpected last frame %+v", frames[2])
	}
	if req := <-got; req.Text != "tides" {
		t.Fatalf("request not forwarded: %+v", req)
	}
}

func TestWebSocketBinaryAudio(t *testing.T) {
	got := make(chan *message.GenerateRequest, 1)
	srv := newServer(t, got, &message.Result{SessionID: "s1"})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?content_type=audio/wav", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
	}
	if req := <-got; string(req.Audio) != "RIFF" || req.ContentType != "audio/wav" {
		t.Fatalf("unexpected request %+v", req)
	}
}
