// Package grpcserver serves the gRPC health protocol for the site process.
// Serving status follows a periodic probe of the content backend.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry reported next to the overall ("") status.
const ServiceName = "lytoranea.site"

// Pinger is satisfied by service.ContentService.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health couples a grpc health server with a backend probe.
type Health struct {
	hs       *health.Server
	probe    Pinger
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHealth starts NOT_SERVING until the first successful probe.
func NewHealth(probe Pinger, log *zap.Logger, interval time.Duration) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	h := &Health{
		hs:       health.NewServer(),
		probe:    probe,
		log:      log,
		interval: interval,
		timeout:  interval / 2,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register exposes the health service on s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.hs)
}

// Server returns the underlying health server.
func (h *Health) Server() healthpb.HealthServer { return h.hs }

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Check runs one probe and updates the serving status.
func (h *Health) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.probe.Ping(ctx); err != nil {
		h.log.Warn("backend probe failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run probes until ctx is done, then marks everything as shut down.
func (h *Health) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	_ = h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			_ = h.Check(ctx)
		}
	}
}

// NewServer builds a grpc server with the recover and logging chains installed.
func NewServer(log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	return grpc.NewServer(opts...)
}
