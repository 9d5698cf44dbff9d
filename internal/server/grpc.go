package server

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// NewGRPCServer serves the standard health service and reflection. The health
// status starts NOT_SERVING until WatchHealth sees the store.
func NewGRPCServer(log logger.ZapLogger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryInterceptor(log)))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

// WatchHealth pings the store every interval and flips the overall serving
// status accordingly, until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, ping Pinger, interval time.Duration, log logger.ZapLogger) {
	current := healthpb.HealthCheckResponse_NOT_SERVING
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		next := healthpb.HealthCheckResponse_SERVING
		if err := ping(pctx); err != nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
			if current == healthpb.HealthCheckResponse_SERVING {
				log.Warn("Store unreachable, reporting NOT_SERVING", zap.Error(err))
			}
		}
		if next != current {
			hs.SetServingStatus("", next)
			current = next
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}

// UnaryInterceptor copies the forwarded identity from metadata onto the
// context and logs each call.
func UnaryInterceptor(log logger.ZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if actor, ok := actorFromMetadata(md); ok {
				ctx = auth.WithActor(ctx, actor)
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			log.Warn("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}

func actorFromMetadata(md metadata.MD) (model.Actor, bool) {
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return auth.ParseActor(first(auth.HeaderUserID), first(auth.HeaderUserRole))
}
