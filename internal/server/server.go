// Package server provides the shared service lifecycle runner.
// cmd/ services delegate to server.Run for signal handling, config loading,
// observability init, health checks, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aelexs/time-engine/internal/config"
	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/observability"
)

// SetupDeps carries what a service's composition root needs to register
// its handlers.
type SetupDeps struct {
	Config     *config.Config
	Logger     *slog.Logger
	HTTPMux    *http.ServeMux
	GRPCServer *grpc.Server // nil when the service has no gRPC port
}

// SetupFunc builds the service and returns a cleanup run during shutdown,
// after the listeners have drained.
type SetupFunc func(ctx context.Context, deps SetupDeps) (func(context.Context) error, error)

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service (e.g. "timeengine").
	Name string

	// Version is reported in logs and telemetry. Empty means "dev".
	Version string

	// PortFromConfig extracts the HTTP port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// GRPCPortFromConfig extracts the gRPC port. Nil disables gRPC.
	GRPCPortFromConfig func(cfg *config.Config) int

	// Setup is optional; without it the service only serves /healthz.
	Setup SetupFunc
}

// Listeners lets callers inject pre-bound listeners (enables port-0
// testing). Nil fields are bound from config.
type Listeners struct {
	HTTP net.Listener
	GRPC net.Listener
}

// Run executes the full service lifecycle: signal handling, config loading,
// observability initialization, service setup, HTTP and gRPC servers with
// health checks, and graceful shutdown.
func Run(ctx context.Context, p Params, ls Listeners) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logging with secret redaction
	version := p.Version
	if version == "" {
		version = "dev"
	}
	logger := observability.InitLogger(observability.LogConfig{
		Level:          cfg.LogLevel,
		Format:         cfg.LogFormat,
		ServiceName:    p.Name,
		ServiceVersion: version,
		Environment:    cfg.Environment,
	})

	// --- Startup order: telemetry -> setup -> servers ---

	telemetryName := cfg.OTEL.ServiceName
	if telemetryName == "" {
		telemetryName = p.Name
	}
	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    telemetryName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	flushOTEL := func() {
		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := telemetry.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to flush telemetry", slog.String("error", shutdownErr.Error()))
		}
	}

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, p.Name)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, p.Name)
	})

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if p.GRPCPortFromConfig != nil || ls.GRPC != nil {
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
	}

	cleanup := func(context.Context) error { return nil }
	if p.Setup != nil {
		c, setupErr := p.Setup(ctx, SetupDeps{
			Config:     cfg,
			Logger:     logger,
			HTTPMux:    mux,
			GRPCServer: grpcServer,
		})
		if setupErr != nil {
			flushOTEL()
			return fmt.Errorf("setup %s: %w", p.Name, setupErr)
		}
		if c != nil {
			cleanup = c
		}
	}

	// Bind listeners (use injected listeners or create from config).
	lc := &net.ListenConfig{}
	if ls.HTTP == nil {
		ls.HTTP, err = lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", p.PortFromConfig(cfg)))
		if err != nil {
			_ = cleanup(context.Background())
			flushOTEL()
			return fmt.Errorf("listen: %w", err)
		}
	}
	if grpcServer != nil && ls.GRPC == nil {
		ls.GRPC, err = lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", p.GRPCPortFromConfig(cfg)))
		if err != nil {
			_ = ls.HTTP.Close()
			_ = cleanup(context.Background())
			flushOTEL()
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ls.HTTP.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(ls.HTTP); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	if grpcServer != nil {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			logger.Info("starting gRPC server", slog.String("addr", ls.GRPC.Addr().String()))
			if serveErr := grpcServer.Serve(ls.GRPC); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
				return serveErr
			}
			return nil
		})
	}

	// Shutdown trigger: waits for context cancellation, then drains.
	// Order is the reverse of startup: servers -> service cleanup -> OTEL.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Mark shutting down: health checks report not serving
		shuttingDown.Store(true)
		if healthServer != nil {
			healthServer.Shutdown()
		}

		// 2. Drain delay: let load balancer propagate endpoint removal
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Drain HTTP and gRPC servers
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}

		// 4. Service cleanup: flush engines, close clients
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), domain.ShutdownEngineTimeout)
		defer cleanupCancel()
		if cleanupErr := cleanup(cleanupCtx); cleanupErr != nil {
			logger.Error("service cleanup error", slog.String("error", cleanupErr.Error()))
		}

		// 5. Flush OTEL
		flushOTEL()

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}
