package main

import (
	"context"
	"log"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// newHealthServer builds the gRPC server exposing grpc.health.v1.Health,
// rate limited per peer.
func newHealthServer(hs *health.Server, limiter middleware.Limiter) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.RateLimitUnaryInterceptor(limiter, map[string]bool{healthCheckMethod: true}),
	))
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// watchDatabase keeps the overall serving status in step with database
// reachability until ctx is done.
func watchDatabase(ctx context.Context, db pinger, hs *health.Server, interval time.Duration) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err := db.Ping(pingCtx); err != nil {
			log.Printf("database ping failed: %v", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			hs.Shutdown()
			return
		}
	}
}
