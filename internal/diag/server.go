package diag

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const serviceName = "liveweb.diag.v1.Diagnostics"

const (
	methodStatus          = "/" + serviceName + "/Status"
	methodRequestPreset   = "/" + serviceName + "/RequestPreset"
	methodSetTestOverride = "/" + serviceName + "/SetTestOverride"
	methodRecentEvents    = "/" + serviceName + "/RecentEvents"
)

type diagService interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RequestPreset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetTestOverride(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecentEvents(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// unary builds a MethodDesc for one RPC with request type Req.
func unary[Req proto.Message](name, full string, newReq func() Req,
	call func(diagService, context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(diagService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(diagService), ctx, req.(Req))
			})
		},
	}
}

func newEmpty() *emptypb.Empty   { return &emptypb.Empty{} }
func newStruct() *structpb.Struct { return &structpb.Struct{} }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*diagService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", methodStatus, newEmpty, diagService.Status),
		unary("RequestPreset", methodRequestPreset, newStruct, diagService.RequestPreset),
		unary("SetTestOverride", methodSetTestOverride, newStruct, diagService.SetTestOverride),
		unary("RecentEvents", methodRecentEvents, newEmpty, diagService.RecentEvents),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "liveweb/diag/v1/diag.proto",
}

// #endregion service-desc

// #region server
// Server exposes the control plane's status and test controls over gRPC.
type Server struct {
	backend Backend
	logger  zerolog.Logger
	grpc    *grpc.Server
}

// NewServer registers the diagnostics service on a fresh grpc.Server.
func NewServer(backend Backend, logger zerolog.Logger) *Server {
	s := &Server{
		backend: backend,
		logger:  logger.With().Str("component", "diag").Logger(),
	}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("diagnostics listening")
	return s.grpc.Serve(lis)
}

// Stop drains in-flight calls and closes listeners.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("diag call")
	return resp, err
}

// #endregion server

// #region handlers
func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, backendError(err)
	}
	return encode(st)
}

func (s *Server) RequestPreset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req preset.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Scope != preset.Foreground && req.Scope != preset.Background {
		return nil, status.Errorf(codes.InvalidArgument, "unknown scope %q", req.Scope)
	}
	if req.Origin == "" {
		req.Origin = preset.Manual
	}
	if req.Origin != preset.Manual && req.Origin != preset.Auto {
		return nil, status.Errorf(codes.InvalidArgument, "unknown origin %q", req.Origin)
	}
	rep, err := s.backend.RequestPreset(ctx, req)
	if err != nil {
		return nil, backendError(err)
	}
	return encode(rep)
}

func (s *Server) SetTestOverride(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var o Override
	if err := fromStruct(in, &o); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	st, err := s.backend.SetTestOverride(ctx, o)
	if err != nil {
		return nil, backendError(err)
	}
	return encode(st)
}

func (s *Server) RecentEvents(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ev, err := s.backend.RecentEvents(ctx)
	if err != nil {
		return nil, backendError(err)
	}
	return encode(ev)
}

func encode(v any) (*structpb.Struct, error) {
	st, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func backendError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

// #endregion handlers
