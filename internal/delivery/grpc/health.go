package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is reported alongside the overall ("") health status.
const ServiceName = "storefront.OrderService"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter mirrors store reachability into the standard gRPC health service.
type HealthReporter struct {
	health   *health.Server
	store    Pinger
	interval time.Duration
	log      *logrus.Logger
}

func NewServer(store Pinger, interval time.Duration, logger *logrus.Logger) (*grpc.Server, *HealthReporter) {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	reporter := &HealthReporter{
		health:   health.NewServer(),
		store:    store,
		interval: interval,
		log:      logger,
	}
	healthpb.RegisterHealthServer(server, reporter.health)
	reflection.Register(server)
	logger.Info("gRPC health and reflection services registered")
	return server, reporter
}

func (h *HealthReporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warnf("gRPC health: store ping failed: %v", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
	return st
}

// Run refreshes the status every interval until ctx ends, then marks the service as shutting down.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func loggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := logger.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       status.Code(err).String(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.Warn("gRPC request failed")
		} else {
			entry.Debug("gRPC request completed")
		}
		return resp, err
	}
}
