package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// Metadata keys read from incoming calls.
const (
	MetadataUserID    = "x-user-id"
	MetadataRequestID = "x-request-id"
)

// ScopeFromContext returns the caller's user corpus, or the shared corpus
// when no user id came with the call.
func ScopeFromContext(ctx context.Context) entity.Scope {
	if id := common.UserIDFromContext(ctx); id != "" {
		return entity.UserScope(id)
	}
	return entity.SharedScope()
}

func firstMD(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// UnaryInterceptor stamps request and user ids on the context, logs each call
// and maps application errors onto gRPC status codes.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		md, _ := metadata.FromIncomingContext(ctx)

		rid := firstMD(md, MetadataRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, rid)
		user := firstMD(md, MetadataUserID)
		if user != "" {
			ctx = common.WithUserID(ctx, user)
		}

		resp, err := handler(ctx, req)
		if err != nil {
			err = common.ToStatus(err)
			logger.Warn("grpc.request.failed",
				"method", info.FullMethod,
				"request_id", rid,
				"user_id", user,
				"code", status.Code(err).String(),
				"error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, err
		}
		logger.Info("grpc.request.ok",
			"method", info.FullMethod,
			"request_id", rid,
			"user_id", user,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, nil
	}
}

// NewGRPCServer builds a server with the people service and the standard
// health service registered.
func NewGRPCServer(svc PeopleServiceServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryInterceptor(logger)),
		grpc.MaxRecvMsgSize(64 << 20),
		grpc.MaxSendMsgSize(64 << 20),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterPeopleServiceServer(s, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, hs
}
