// Package grpc implements the gRPC transport for duomode.
//
// The service is registered by hand with a JSON codec, so clients call it
// with the "json" content subtype and the same request/result shapes the
// HTTP transport uses:
//
//	/duomode.v1.DuoMode/Generate        unary: GenerateRequest -> Result
//	/duomode.v1.DuoMode/GenerateStream  server stream: GenerateRequest -> Frame...
//
// The standard gRPC health service is registered alongside it.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/message"
	"github.com/nadzzz/duomode/internal/pipeline"
	"github.com/nadzzz/duomode/internal/transport"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "duomode.v1.DuoMode"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals messages as JSON under the "json" content subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// Frame is one message on the GenerateStream response stream: either a
// progress event or the final result.
type Frame struct {
	Event  *pipeline.Event `json:"event,omitempty"`
	Result *message.Result `json:"result,omitempty"`
}

// duoModeServer is the service implementation contract.
type duoModeServer interface {
	Generate(ctx context.Context, req *message.GenerateRequest) (*message.Result, error)
	GenerateStream(req *message.GenerateRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*duoModeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GenerateStream", Handler: generateStreamHandler, ServerStreams: true},
	},
	Metadata: "duomode.json",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.GenerateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(duoModeServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Generate"}
	h := func(ctx context.Context, req any) (any, error) {
		return srv.(duoModeServer).Generate(ctx, req.(*message.GenerateRequest))
	}
	return interceptor(ctx, in, info, h)
}

func generateStreamHandler(srv any, stream grpc.ServerStream) error {
	in := new(message.GenerateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(duoModeServer).GenerateStream(in, stream)
}

// service adapts a transport.Handler to duoModeServer.
type service struct {
	handler transport.Handler
}

func (s *service) Generate(ctx context.Context, req *message.GenerateRequest) (*message.Result, error) {
	res, err := s.handler(ctx, req, nil)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func (s *service) GenerateStream(req *message.GenerateRequest, stream grpc.ServerStream) error {
	var mu sync.Mutex
	send := func(f *Frame) error {
		mu.Lock()
		defer mu.Unlock()
		return stream.SendMsg(f)
	}

	progress := pipeline.ObserverFunc(func(e pipeline.Event) {
		if err := send(&Frame{Event: &e}); err != nil {
			slog.Debug("grpc progress dropped", "error", err)
		}
	})
	res, err := s.handler(stream.Context(), req, progress)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return send(&Frame{Result: res})
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport.
func New(cfg config.GRPCConfig) *Transport {
	return &Transport{port: cfg.Port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	t.register(handler)
	slog.Info("grpc transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	return t.server.Serve(lis)
}

func (t *Transport) register(handler transport.Handler) {
	t.server = grpc.NewServer()
	t.server.RegisterService(&serviceDesc, &service{handler: handler})

	t.health = health.NewServer()
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(t.server, t.health)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
