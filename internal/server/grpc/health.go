// Package grpcserver runs the gRPC health listener of the libris server.
// Readiness follows the storage backend: SERVING while it answers pings.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall "" entry.
const ServiceName = "libris.v1.Library"

// DefaultCheckInterval is how often Watch re-checks storage.
const DefaultCheckInterval = 5 * time.Second

// pingTimeout bounds a single storage ping.
const pingTimeout = 2 * time.Second

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health keeps the grpc health status in sync with storage.
type Health struct {
	hs    *health.Server
	ready Pinger
	log   *zap.Logger
}

// NewHealth starts in NOT_SERVING until the first successful storage ping.
func NewHealth(ready Pinger, log *zap.Logger) *Health {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{hs: hs, ready: ready, log: log}
}

// Refresh pings storage once and publishes the result.
func (h *Health) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.ready.Ping(pctx); err != nil {
		h.log.Warn("storage ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	return st
}

// Watch refreshes every interval until ctx is done, then marks everything as shut down.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	h.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

// NewServer builds a grpc server with panic recovery, logging and the health
// service registered. Reflection is enabled in dev mode.
func NewServer(log *zap.Logger, h *Health, dev bool, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.hs)
	if dev {
		reflection.Register(s)
	}
	return s
}
