// Package nats implements the NATS request/reply transport for duomode.
//
// Requests are JSON GenerateRequests published to the configured subject;
// the JSON Result is sent to the reply inbox. Subscribers join a queue
// group, so several daemons share the load. A requester that wants progress
// sets the Duomode-Progress header to a subject, and every pipeline event
// is published there as JSON while the session runs.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/message"
	"github.com/nadzzz/duomode/internal/pipeline"
	"github.com/nadzzz/duomode/internal/transport"
)

// ProgressHeader names the subject that receives progress events.
const ProgressHeader = "Duomode-Progress"

// Transport implements transport.Transport over NATS.
type Transport struct {
	cfg config.NATSConfig

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a new NATS transport.
func New(cfg config.NATSConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "nats" }

// Listen connects, joins the queue group and serves requests until ctx is done.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	conn, err := nats.Connect(t.cfg.URL,
		nats.Name("duomode"),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}

	sub, err := conn.QueueSubscribe(t.cfg.Subject, t.cfg.Queue, func(msg *nats.Msg) {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.serve(ctx, conn, msg, handler)
		}()
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe %s: %w", t.cfg.Subject, err)
	}

	t.mu.Lock()
	t.conn, t.sub = conn, sub
	t.mu.Unlock()

	slog.Info("nats transport listening", "url", t.cfg.URL, "subject", t.cfg.Subject, "queue", t.cfg.Queue)
	<-ctx.Done()
	slog.Info("nats transport shutting down")
	return t.Close()
}

func (t *Transport) serve(ctx context.Context, conn *nats.Conn, msg *nats.Msg, handler transport.Handler) {
	var obs pipeline.Observer
	if subject := msg.Header.Get(ProgressHeader); subject != "" {
		obs = publisher(conn, subject)
	}
	reply := process(ctx, msg.Data, handler, obs)
	if msg.Reply == "" {
		slog.Debug("nats request without reply subject", "subject", msg.Subject)
		return
	}
	if err := msg.Respond(reply); err != nil {
		slog.Error("nats respond failed", "error", err)
	}
}

// process decodes one request, runs it and encodes the reply. Decoding and
// handler errors are reported inside the Result.
func process(ctx context.Context, data []byte, handler transport.Handler, obs pipeline.Observer) []byte {
	var req message.GenerateRequest
	var res *message.Result
	if err := json.Unmarshal(data, &req); err != nil {
		res = &message.Result{Error: "invalid json: " + err.Error()}
	} else if r, err := handler(ctx, &req, obs); err != nil {
		res = &message.Result{Error: err.Error(), ErrorKind: string(pipeline.KindInternal)}
	} else {
		res = r
	}

	out, err := json.Marshal(res)
	if err != nil {
		out, _ = json.Marshal(&message.Result{Error: "encoding result: " + err.Error()})
	}
	return out
}

// publishFunc is the subset of *nats.Conn used for progress.
type publishFunc func(subject string, data []byte) error

func publisher(conn *nats.Conn, subject string) pipeline.Observer {
	return progressObserver(conn.Publish, subject)
}

func progressObserver(publish publishFunc, subject string) pipeline.Observer {
	return pipeline.ObserverFunc(func(e pipeline.Event) {
		b, err := json.Marshal(e)
		if err != nil {
			return
		}
		if err := publish(subject, b); err != nil {
			slog.Debug("nats progress dropped", "error", err)
		}
	})
}

// Close drains the subscription, waits for in-flight sessions and drains the connection.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		conn, sub := t.conn, t.sub
		t.mu.Unlock()
		if sub != nil {
			err = sub.Drain()
		}
		t.wg.Wait()
		if conn != nil {
			if derr := conn.Drain(); derr != nil && err == nil {
				err = derr
			}
		}
	})
	return err
}
