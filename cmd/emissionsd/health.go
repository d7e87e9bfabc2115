package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// healthService is the service name orchestrators probe. The empty name
// reports the server as a whole and tracks the same status.
const healthService = "emissions.Ledger"

const healthInterval = 5 * time.Second

// newGRPCServer returns a gRPC server exposing only the standard health
// checking protocol and reflection.
func newGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

// watchHealth runs check every interval and mirrors the result into hs
// until ctx is done. It reports NOT_SERVING on the way out.
func watchHealth(ctx context.Context, hs *health.Server, check func(context.Context) error, interval time.Duration, log *zap.Logger) {
	set := func(status healthpb.HealthCheckResponse_ServingStatus) {
		hs.SetServingStatus("", status)
		hs.SetServingStatus(healthService, status)
	}

	last := healthpb.HealthCheckResponse_UNKNOWN
	probe := func() {
		status := healthpb.HealthCheckResponse_SERVING
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := check(checkCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			log.Info("health status changed", zap.String("status", status.String()), zap.Error(err))
			last = status
		}
		set(status)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			set(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			probe()
		}
	}
}
