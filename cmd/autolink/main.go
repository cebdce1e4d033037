package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lojaops/marketplace-recon-backend/internal/application/linking"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/marketplace"
	"github.com/lojaops/marketplace-recon-backend/internal/domain/verifier"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/config"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/logging"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		daysBack   = flag.Int("days", 0, "Number of days to look back (0 = configured default)")
		mpFlag     = flag.String("marketplace", "", "Specific marketplace to link (empty = all)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := logging.NewLogger(cfg.Observability.Logging)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	engine := linking.NewEngine(store, verifier.NewRegistry(store), nil, logger)

	days := *daysBack
	if days <= 0 {
		days = cfg.Linking.DefaultDaysBack
	}

	ctx := context.Background()

	var result *linking.Result
	if *mpFlag != "" {
		mp, err := marketplace.Parse(*mpFlag)
		if err != nil {
			logger.Error("Unknown marketplace", slog.String("marketplace", *mpFlag))
			os.Exit(1)
		}
		result, err = engine.RunMarketplace(ctx, mp, days)
		if err != nil {
			logger.Error("Linking failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		result, err = engine.Run(ctx, days)
		if err != nil {
			logger.Error("Linking failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	fmt.Printf("Processed: %d\n", result.TotalProcessed)
	fmt.Printf("Linked:    %d\n", result.TotalLinked)
	fmt.Printf("Existing:  %d\n", result.TotalAlreadyLinked)
	fmt.Printf("Not found: %d\n", result.TotalNotFound)
	for _, lo := range result.LinkedOrders {
		fmt.Printf("  %s %s -> tiny order %d\n", lo.Marketplace, lo.MarketplaceOrderID, lo.TinyOrderID)
	}
	if len(result.Errors) > 0 {
		fmt.Printf("Errors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  %s\n", e)
		}
		os.Exit(1)
	}
}
