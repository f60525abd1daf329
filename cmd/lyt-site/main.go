// Command lyt-site serves the public read API and the gRPC health service.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/app"
	"github.com/lytoranea/website/internal/config"
	grpcserver "github.com/lytoranea/website/internal/server/grpc"
	httpserver "github.com/lytoranea/website/internal/server/http"
	"github.com/lytoranea/website/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires the content service and runs both listeners
// until SIGINT or SIGTERM.
func main() {
	config.LoadDotenv()
	cfg := config.Bind(flag.CommandLine)
	release := flag.Bool("release", os.Getenv("GIN_MODE") == gin.ReleaseMode, "gin release mode")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("healthAddr", cfg.HealthAddr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if *release {
		gin.SetMode(gin.ReleaseMode)
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wiring", zap.Error(err))
	}
	defer deps.Close()

	content := service.NewContentService(deps.Dialer.Anonymous(), deps.Cache, logger)

	// Public API
	api := httpserver.New(content, logger, httpserver.Options{AllowOrigins: cfg.AllowOrigins})
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Health
	gs := grpcserver.NewServer(logger)
	health := grpcserver.NewHealth(content, logger, cfg.ProbeInterval)
	health.Register(gs)
	go health.Run(ctx)

	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
