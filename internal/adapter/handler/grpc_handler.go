package handler

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth publishes watcher liveness over grpc.health.v1. The overall
// service ("") is SERVING only while every known component is.
type GRPCHealth struct {
	srv *health.Server

	mu      sync.Mutex
	serving map[string]bool
}

func NewGRPCHealth(components ...string) *GRPCHealth {
	g := &GRPCHealth{srv: health.NewServer(), serving: make(map[string]bool, len(components))}
	for _, c := range components {
		g.serving[c] = false
		g.srv.SetServingStatus(c, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	g.srv.SetServingStatus("", g.overall())
	return g
}

func (g *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, g.srv)
}

func (g *GRPCHealth) SetServing(component string, serving bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.serving[component] = serving
	g.srv.SetServingStatus(component, servingStatus(serving))
	g.srv.SetServingStatus("", g.overall())
}

// Shutdown flips every status to NOT_SERVING ahead of stopping the server.
func (g *GRPCHealth) Shutdown() {
	g.srv.Shutdown()
}

func (g *GRPCHealth) overall() healthpb.HealthCheckResponse_ServingStatus {
	for _, ok := range g.serving {
		if !ok {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}

func servingStatus(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
