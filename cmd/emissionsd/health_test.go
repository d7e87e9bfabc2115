package main

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (healthpb.HealthClient, func(context.Context, func(context.Context) error)) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv, hs := newGRPCServer()
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	run := func(ctx context.Context, check func(context.Context) error) {
		go watchHealth(ctx, hs, check, 10*time.Millisecond, zap.NewNop())
	}
	return healthpb.NewHealthClient(conn), run
}

func waitStatus(t *testing.T, client healthpb.HealthClient, service string, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last healthpb.HealthCheckResponse_ServingStatus
	for time.Now().Before(deadline) {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err == nil {
			last = resp.GetStatus()
			if last == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("service %q: status %s, want %s", service, last, want)
}

func TestHealth_TracksCheck(t *testing.T) {
	client, run := startHealthServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var failing atomic.Bool
	run(ctx, func(context.Context) error {
		if failing.Load() {
			return errors.New("redis down")
		}
		return nil
	})

	waitStatus(t, client, healthService, healthpb.HealthCheckResponse_SERVING)
	waitStatus(t, client, "", healthpb.HealthCheckResponse_SERVING)

	failing.Store(true)
	waitStatus(t, client, healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	failing.Store(false)
	waitStatus(t, client, healthService, healthpb.HealthCheckResponse_SERVING)
}

func TestHealth_NotServingAfterCancel(t *testing.T) {
	client, run := startHealthServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	run(ctx, func(context.Context) error { return nil })
	waitStatus(t, client, healthService, healthpb.HealthCheckResponse_SERVING)

	cancel()
	waitStatus(t, client, healthService, healthpb.HealthCheckResponse_NOT_SERVING)
}
