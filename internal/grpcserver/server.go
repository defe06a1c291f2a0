// Package grpcserver exposes the daemon's gRPC health service.
package grpcserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PurchaseServiceName is the health-check service name for the purchase core.
const PurchaseServiceName = "slotmarket.v1.Purchase"

const defaultProbeInterval = 15 * time.Second

// Prober checks a dependency the purchase core cannot work without.
type Prober interface {
	Probe(ctx context.Context) error
}

// HealthServer flips the purchase service between SERVING and NOT_SERVING
// according to the prober.
type HealthServer struct {
	health   *health.Server
	prober   Prober
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHealthServer constructs a HealthServer. The purchase service starts
// NOT_SERVING until the first probe succeeds.
func NewHealthServer(prober Prober, logger *zap.Logger, interval time.Duration) (*HealthServer, error) {
	if prober == nil {
		return nil, errors.New("grpcserver: prober is nil")
	}
	if logger == nil {
		return nil, errors.New("grpcserver: logger is nil")
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	server := &HealthServer{
		health:   health.NewServer(),
		prober:   prober,
		logger:   logger,
		interval: interval,
		timeout:  interval / 2,
	}
	server.health.SetServingStatus(PurchaseServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return server, nil
}

// Register attaches the health service to grpcServer.
func (server *HealthServer) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, server.health)
}

// Probe runs one check and publishes the result.
func (server *HealthServer) Probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, server.timeout)
	defer cancel()
	if err := server.prober.Probe(probeCtx); err != nil {
		server.logger.Warn("health probe failed", zap.String("service", PurchaseServiceName), zap.Error(err))
		server.health.SetServingStatus(PurchaseServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	server.health.SetServingStatus(PurchaseServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Run probes on every interval until ctx is done, then marks all services
// NOT_SERVING.
func (server *HealthServer) Run(ctx context.Context) {
	server.Probe(ctx)
	ticker := time.NewTicker(server.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			server.health.Shutdown()
			return
		case <-ticker.C:
			server.Probe(ctx)
		}
	}
}
