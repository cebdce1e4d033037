package main

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/config"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// Read-only dashboard API for the reconciliation frontend. The main server
// owns all the write paths; this binary only surfaces aggregates.

type DashboardServer struct {
	storage *storage.Storage
	logger  *slog.Logger
}

func NewDashboardServer(storage *storage.Storage, logger *slog.Logger) *DashboardServer {
	return &DashboardServer{
		storage: storage,
		logger:  logger,
	}
}

func (s *DashboardServer) getSummary(c *gin.Context) {
	summary, err := s.storage.GetPaymentsSummary()
	if err != nil {
		s.logger.Error("Failed to fetch summary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *DashboardServer) getBatches(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	batches, err := s.storage.ListBatches(limit)
	if err != nil {
		s.logger.Error("Failed to fetch batches", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch batches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

func (s *DashboardServer) getUnmatched(c *gin.Context) {
	filters := storage.PaymentFilters{
		Marketplace: c.Query("marketplace"),
		Unmatched:   true,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filters.Limit = n
		}
	}

	payments, err := s.storage.ListPayments(filters)
	if err != nil {
		s.logger.Error("Failed to fetch unmatched payments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch unmatched payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

func (s *DashboardServer) getLinks(c *gin.Context) {
	links, err := s.storage.ListLinks(storage.LinkFilters{Marketplace: c.Query("marketplace")})
	if err != nil {
		s.logger.Error("Failed to fetch links", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.LoadOrEnv()

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	server := NewDashboardServer(store, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/health"},
	}))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
		api.GET("/summary", server.getSummary)
		api.GET("/batches", server.getBatches)
		api.GET("/unmatched", server.getUnmatched)
		api.GET("/links", server.getLinks)
	}

	port := os.Getenv("DASHBOARD_PORT")
	if port == "" {
		port = "8081"
	}

	logger.Info("Starting dashboard API", "port", port)
	if err := router.Run(":" + port); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
