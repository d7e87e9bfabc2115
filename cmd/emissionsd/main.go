package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/adminkey"
	"github.com/0gfoundation/0g-emissions/internal/api"
	"github.com/0gfoundation/0g-emissions/internal/archive"
	"github.com/0gfoundation/0g-emissions/internal/auth"
	"github.com/0gfoundation/0g-emissions/internal/config"
	"github.com/0gfoundation/0g-emissions/internal/emissions"
	"github.com/0gfoundation/0g-emissions/internal/events"
	"github.com/0gfoundation/0g-emissions/internal/issuer"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
	"github.com/0gfoundation/0g-emissions/internal/sigverify"
	"github.com/0gfoundation/0g-emissions/internal/token"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}
	store := ledger.NewStore(rdb, cfg.Redis.Prefix)

	// ── Events (NATS optional) ────────────────────────────────────────────────
	var pub events.Publisher = &events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		np, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			log.Fatal("nats publisher init failed", zap.Error(err))
		}
		pub = np
	}
	defer pub.Close() //nolint:errcheck

	// ── Executor + programs ───────────────────────────────────────────────────
	programID := address.Named(cfg.Program.IDSeed)
	exec := newExecutor(store, programID, pub, log)
	log.Info("emissions program registered", zap.String("program_id", programID.Hex()))

	// ── Archive (Postgres optional) ───────────────────────────────────────────
	var arch *archive.Store
	if cfg.Archive.DatabaseURL != "" {
		arch, err = archive.Open(cfg.Archive.DatabaseURL)
		if err != nil {
			log.Fatal("archive open failed", zap.Error(err))
		}
		defer arch.Close() //nolint:errcheck

		if cfg.NATS.URL == "" {
			log.Warn("DATABASE_URL set without NATS_URL; archive will not be fed")
		} else {
			sub, err := events.NewNATSSubscriber(cfg.NATS.URL, log)
			if err != nil {
				log.Fatal("nats subscriber init failed", zap.Error(err))
			}
			defer sub.Close() //nolint:errcheck
			msgs, unsubscribe, err := sub.Subscribe(events.TopicTicketRedeemed)
			if err != nil {
				log.Fatal("nats subscribe failed", zap.Error(err))
			}
			defer unsubscribe()
			go archive.Run(ctx, msgs, arch, rdb, log)
		}
	}

	// ── HTTP handler ──────────────────────────────────────────────────────────
	handler := api.NewHandler(exec, store, programID, log)
	if arch != nil {
		handler.WithHistory(arch)
	}

	// ── Ticket issuer (admin key optional) ────────────────────────────────────
	if cfg.IssuerEnabled() {
		key, err := adminkey.Load(adminkey.Source{Inline: cfg.Issuer.AdminKey, File: cfg.Issuer.AdminKeyFile})
		if err != nil {
			log.Fatal("admin signing key load failed", zap.Error(err))
		}
		operators, err := parseOperators(cfg.OperatorList())
		if err != nil {
			log.Fatal("invalid OPERATORS", zap.Error(err))
		}
		var nonces issuer.NonceReader
		if arch != nil {
			nonces = arch
		}
		iss := issuer.New(key, rdb, time.Duration(cfg.Issuer.TicketTTLSec)*time.Second, nonces, log)
		handler.WithIssuer(iss, auth.Middleware(rdb, cfg.Redis.Prefix, operators))
		log.Info("ticket issuer enabled",
			zap.String("admin", iss.Admin().Hex()),
			zap.Int("operators", len(operators)),
		)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(handler),
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── gRPC health (optional) ────────────────────────────────────────────────
	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			log.Fatal("gRPC listen failed", zap.Error(err))
		}
		var hs *health.Server
		grpcServer, hs = newGRPCServer()
		go watchHealth(ctx, hs, func(ctx context.Context) error { return rdb.Ping(ctx).Err() }, healthInterval, log)
		go func() {
			log.Info("gRPC health server starting", zap.Int("port", cfg.Server.GRPCPort))
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	log.Info("shutdown complete")
}

// newExecutor registers the signature precompile, the token program and
// the emissions program under programID.
func newExecutor(store *ledger.Store, programID address.Address, pub events.Publisher, log *zap.Logger) *runtime.Executor {
	exec := runtime.NewExecutor(store, runtime.SystemClock{}, pub, log)
	exec.Register(sigverify.ProgramID, sigverify.Program{})
	exec.Register(token.ProgramID, token.Program{})
	exec.Register(programID, emissions.NewProgram(programID, log))
	return exec
}

func newRouter(h *api.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	h.Register(r.Group("/api/v1"))
	return r
}

func parseOperators(raw []string) ([]address.Address, error) {
	out := make([]address.Address, 0, len(raw))
	for _, s := range raw {
		a, err := address.ParseHex(s)
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}
