package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"stranger-chat/contract"
	"stranger-chat/infrastructure/grpc/server"
	"stranger-chat/infrastructure/httpapi"
	"stranger-chat/infrastructure/notifier"
	"stranger-chat/internal"
	"stranger-chat/observability"
	"stranger-chat/repositories"
	"stranger-chat/repositories/memory"
	"stranger-chat/repositories/postgres"
	"stranger-chat/runtime"
	"stranger-chat/runtime/workers"
	"stranger-chat/services"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stranger-chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig(".env")
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	store, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		_ = store.Close()
	}()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// 4. Notifications
	transport, closeTransport, err := buildNotifier(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeTransport()
	dispatcher := workers.NewNotificationDispatcher(
		logger, transport, config.NotificationBufferSize, config.NotificationTimeout, metrics,
	)

	// 5. Core services
	scheduler := runtime.NewRetryScheduler(ctx, logger)
	defer scheduler.Stop()

	matchmaker := services.NewMatchmaker(
		logger, store, store, scheduler, dispatcher, metrics, config.RetryDelay, config.MaxClaimAttempts,
	)
	relay := services.NewRelay(logger, store, store, dispatcher, metrics, config.MaxContentLength)
	lifecycle := services.NewLifecycle(logger, store, store, matchmaker, relay, scheduler, dispatcher, metrics)

	// 6. Background workers
	grpcServer, healthServer := server.NewHealthServer(logger)
	probe := workers.NewHealthProbeWorker(
		logger, store, healthServer, scheduler, metrics, config.HealthInterval, server.ServiceName,
	)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(dispatcher, probe)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 7. Servers
	errChan := make(chan error, 2)

	grpcAddress := fmt.Sprintf("%s:%d", config.HTTPHost, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress, "at", time.Now().UTC())
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	httpAddress := fmt.Sprintf("%s:%d", config.HTTPHost, config.HTTPPort)
	httpServer := httpapi.NewServer(httpAddress, httpapi.NewRouter(logger, lifecycle, store, metrics, registry))
	go func() {
		logger.Info("Starting HTTP server", "address", httpAddress, "store", config.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful shutdown: stop intake first, then timers, then workers.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
	scheduler.Stop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.IStore, error) {
	switch config.Driver() {
	case internal.DriverMemory:
		logger.Warn("Using in-memory store, state is lost on restart")
		return memory.NewStore(), nil
	case internal.DriverPostgres:
		pool, err := postgres.NewPool(ctx, config.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations failed: %w", err)
		}
		return postgres.NewStore(pool, logger), nil
	default:
		store, err := repositories.OpenBadgerStore(ctx, config.BadgerFilepath, logger)
		if err != nil {
			return nil, err
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			logger.Info("Debug Badger inspector available",
				"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
			database.StartDebugServer(store.DB(), config.DebugPort, endpoint, repositories.InspectMapper)
		}
		return store, nil
	}
}

// buildNotifier publishes through Redis when REDIS_URL is set and falls back to the log otherwise.
func buildNotifier(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.Notifier, func(), error) {
	if config.RedisURL == "" {
		logger.Info("REDIS_URL not set, notifications are only logged")
		return notifier.NewLogNotifier(logger), func() {}, nil
	}
	client, err := notifier.NewRedisClient(ctx, config.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		logger.Info("Closing Redis client...")
		_ = client.Close()
	}
	return notifier.NewRedisNotifier(client, logger), closeFn, nil
}
