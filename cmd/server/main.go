package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lojaops/marketplace-recon-backend/internal/adapters/erp"
	"github.com/lojaops/marketplace-recon-backend/internal/api"
	"github.com/lojaops/marketplace-recon-backend/internal/application/linking"
	"github.com/lojaops/marketplace-recon-backend/internal/application/payments"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/verifier"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/config"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/logging"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
	"github.com/lojaops/marketplace-recon-backend/internal/observability"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		port       = flag.Int("port", 0, "Override the configured HTTP port")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger := logging.NewLogger(cfg.Observability.Logging)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	registry := verifier.NewRegistry(store)
	linkEngine := linking.NewEngine(store, registry, metrics, logger)

	tinyClient := erp.NewTinyClient(cfg.Tiny, store, logger)
	paymentEngine := payments.NewEngine(store, tinyClient, metrics, logger)

	serverCfg := api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	server := api.NewServer(serverCfg, store, linkEngine, paymentEngine, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("Shutting down", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("Server stopped")
}
