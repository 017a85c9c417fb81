package server

import (
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name under which the chat core reports its health.
const ServiceName = "strangerchat.Chat"

// NewHealthServer builds a gRPC server exposing grpc.health.v1. Statuses start NOT_SERVING
// until the first store probe succeeds.
func NewHealthServer(log *slog.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)
	reflection.Register(s)
	return s, healthServer
}
