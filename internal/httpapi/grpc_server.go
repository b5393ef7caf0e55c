package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sentinel.org/internal/api"
	"sentinel.org/internal/audit"
	"sentinel.org/internal/auth"
	"sentinel.org/internal/ids"
	"sentinel.org/internal/obs"
	"sentinel.org/internal/rpcapi"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer exposes the dispatcher as sentinel.api.v1.APIService and
// reports readiness through the standard health service.
type GRPCServer struct {
	calls     Caller
	readiness readinessChecker
	health    *health.Server
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(calls Caller, r readinessChecker) *GRPCServer {
	return &GRPCServer{
		calls:     calls,
		readiness: r,
		health:    health.NewServer(),
	}
}

// Register installs the API and health services on reg.
func (s *GRPCServer) Register(reg grpc.ServiceRegistrar) {
	rpcapi.RegisterAPIServiceServer(reg, s)
	healthpb.RegisterHealthServer(reg, s.health)
}

// UpdateHealth runs the readiness check and publishes the result.
func (s *GRPCServer) UpdateHealth(ctx context.Context) error {
	err := s.readiness.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(rpcapi.ServiceName, st)
	return err
}

// Shutdown marks every service as not serving.
func (s *GRPCServer) Shutdown() { s.health.Shutdown() }

// Call runs one API call. Application errors travel in the response
// body with JSON-RPC codes; only malformed envelopes fail the RPC.
func (s *GRPCServer) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	name := strings.TrimSpace(fields["method"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "method is required")
	}
	var params json.RawMessage
	if v, ok := fields["params"]; ok {
		raw, err := json.Marshal(v.AsInterface())
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "params: %v", err)
		}
		params = raw
	}
	var member *string
	if v, ok := fields["auth"]; ok {
		switch k := v.GetKind().(type) {
		case nil, *structpb.Value_NullValue:
		case *structpb.Value_StringValue:
			token := k.StringValue
			member = &token
		default:
			return errorStruct(invalidAuth())
		}
	}

	ctx = incomingContext(ctx)
	service, method, _ := strings.Cut(name, ".")
	req := api.Request{Service: service, Method: method, Params: params, Auth: member}
	if api.RequiresAuth(service, method) {
		if token, ok := bearerFromMetadata(ctx); ok {
			req.Auth = &token
		}
	}

	res := s.calls.Call(ctx, req)
	if res.Error != nil {
		return errorStruct(rpcErrorFrom(res.Error))
	}
	raw, err := json.Marshal(res.Result)
	if err != nil {
		return nil, status.Error(codes.Internal, "cannot encode result")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, status.Error(codes.Internal, "cannot encode result")
	}
	result, err := structpb.NewValue(generic)
	if err != nil {
		return nil, status.Error(codes.Internal, "cannot encode result")
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"result": result}}, nil
}

func errorStruct(e *rpcError) (*structpb.Struct, error) {
	debug := make([]any, 0, len(e.Debug))
	for _, line := range e.Debug {
		debug = append(debug, line)
	}
	body := map[string]any{
		"code":    e.Code,
		"message": e.Message,
		"data":    e.Data,
	}
	if len(debug) > 0 {
		body["debug"] = debug
	}
	errValue, err := structpb.NewStruct(body)
	if err != nil {
		return nil, status.Error(codes.Internal, "cannot encode error")
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"error": structpb.NewStructValue(errValue)}}, nil
}

// incomingContext carries the request id and peer address into ctx.
func incomingContext(ctx context.Context) context.Context {
	rid := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 {
			rid = strings.TrimSpace(v[0])
		}
	}
	if rid == "" || len(rid) > 128 {
		rid = ids.NewRequestID()
	}
	ctx = audit.WithRequestID(ctx, rid)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		ctx = auth.ContextWithClientIP(ctx, addr)
	}
	return ctx
}

func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		if token, err := extractBearerToken(v); err == nil {
			return token, true
		}
	}
	return "", false
}

// UnaryLogging writes one JSON line per unary RPC.
func UnaryLogging(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	obs.LogRequest(map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"level":       "info",
		"msg":         "rpc_complete",
		"rpc":         info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return resp, err
}
