package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
)

// Fully-qualified gRPC names of the processor service.
const (
	ServiceName       = "vehicletracking.processor.v1.Processor"
	ProcessVideoRoute = "/" + ServiceName + "/ProcessVideo"
)

// GRPCDialer dials the processor over gRPC.
type GRPCDialer struct {
	address string
	limiter *ratelimit.Limiter
	opts    []grpc.DialOption
}

// GRPCOption customizes a GRPCDialer.
type GRPCOption func(*GRPCDialer)

// WithGRPCLimiter throttles outbound calls.
func WithGRPCLimiter(l *ratelimit.Limiter) GRPCOption {
	return func(d *GRPCDialer) { d.limiter = l }
}

// WithConnectTimeout bounds each connection attempt. Non-positive values
// keep the gRPC default.
func WithConnectTimeout(d time.Duration) GRPCOption {
	return func(g *GRPCDialer) {
		if d > 0 {
			g.opts = append(g.opts, grpc.WithConnectParams(grpc.ConnectParams{
				Backoff:           backoff.DefaultConfig,
				MinConnectTimeout: d,
			}))
		}
	}
}

// NewGRPCDialer creates a dialer for address using plaintext credentials.
func NewGRPCDialer(address string, opts ...GRPCOption) *GRPCDialer {
	d := &GRPCDialer{
		address: address,
		opts:    []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transport implements Dialer.
func (d *GRPCDialer) Transport() string { return TransportGRPC }

// Dial creates a new client connection. The connection is established
// lazily on the first call.
func (d *GRPCDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cc, err := grpc.NewClient(d.address, d.opts...)
	if err != nil {
		return nil, domain.NewConnectionError(d.address, err)
	}
	return &grpcConn{cc: cc, address: d.address, limiter: d.limiter}, nil
}

type grpcConn struct {
	cc      *grpc.ClientConn
	address string
	limiter *ratelimit.Limiter
}

func (c *grpcConn) ProcessVideo(ctx context.Context, job domain.JobDescriptor) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := jobToStruct(job)
	if err != nil {
		return nil, domain.NewInvocationError("encode request", err)
	}

	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ProcessVideoRoute, req, resp); err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded:
			return nil, domain.NewConnectionError(c.address, err)
		}
		return nil, err
	}

	raw, err := protojson.Marshal(resp)
	if err != nil {
		return nil, domain.NewInvocationError("encode response", err)
	}
	return raw, nil
}

func (c *grpcConn) Close() error {
	return c.cc.Close()
}

func jobToStruct(job domain.JobDescriptor) (*structpb.Struct, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ProcessorServer is the server API of the processor service.
type ProcessorServer interface {
	ProcessVideo(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterServer registers h as the processor service on s.
func RegisterServer(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&serviceDesc, &grpcServer{handler: h})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProcessorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProcessVideo",
			Handler:    processVideoHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vehicletracking/processor/v1/processor.proto",
}

func processVideoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProcessorServer).ProcessVideo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ProcessVideoRoute,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProcessorServer).ProcessVideo(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type grpcServer struct {
	handler Handler
}

func (s *grpcServer) ProcessVideo(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	job, err := decodeJob(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.handler.ProcessVideo(ctx, job)
	if err != nil {
		return nil, toStatus(err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("process video: %v", err))
	}
}
