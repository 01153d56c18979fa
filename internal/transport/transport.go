// Package transport defines the interface for pluggable request transports.
//
// Each transport (HTTP/WebSocket, gRPC, NATS) accepts generate requests in
// its own framing and hands them to the same Handler. The dispatcher
// doesn't care how requests arrive.
package transport

import (
	"context"

	"github.com/nadzzz/duomode/internal/message"
	"github.com/nadzzz/duomode/internal/pipeline"
)

// Handler processes one generate request. Progress events are delivered to
// obs while the session runs; obs may be nil.
type Handler func(ctx context.Context, req *message.GenerateRequest, obs pipeline.Observer) (*message.Result, error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http", "nats").
	Name() string

	// Listen starts accepting requests and dispatches them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
