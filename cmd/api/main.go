package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/agreement"
	"endless-wallet/lending-backend/internal/config"
	"endless-wallet/lending-backend/internal/funding"
	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/marketplace"
	"endless-wallet/lending-backend/internal/notifications"
	"endless-wallet/lending-backend/internal/petition"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Load .env if present
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&ledger.Account{},
		&ledger.Entry{},
		&petition.Petition{},
		&funding.Contribution{},
		&loan.Loan{},
		&loan.ScheduledPayment{},
		&marketplace.Listing{},
	); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Wire services
	store := ledger.NewStore(db)

	petitionRepo := petition.NewRepository(db)
	loanRepo := loan.NewRepository(db)
	fundingRepo := funding.NewRepository(db)
	listingRepo := marketplace.NewRepository(db)

	petitionSvc := petition.NewService(petitionRepo, loanRepo, store, logger,
		cfg.Lending.SupportedCurrencies, cfg.Lending.PetitionTTL)
	coordinator := funding.NewCoordinator(store, fundingRepo, petitionSvc, logger)
	petitionSvc.SetCommitter(coordinator)

	loanSvc := loan.NewService(loanRepo, store, logger)
	marketSvc := marketplace.NewService(listingRepo, loanRepo, store, logger,
		cfg.Lending.MaxDiscountTolerance)

	hub := notifications.NewHub(logger)
	defer hub.Close()
	events := notifications.NewService(hub, logger)
	petitionSvc.SetEvents(events)
	marketSvc.SetEvents(events)

	agreementGen := agreement.NewGenerator()

	// Setup Router
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	{
		ledger.NewHandler(store, logger).RegisterRoutes(api)
		petition.NewHandler(petitionSvc, logger).RegisterRoutes(api)
		funding.NewHandler(coordinator, logger).RegisterRoutes(api)
		loan.NewHandler(loanSvc, logger).RegisterRoutes(api)
		marketplace.NewHandler(marketSvc, logger).RegisterRoutes(api)
		agreement.NewHandler(agreementGen, loanSvc, petitionSvc, store, logger).RegisterRoutes(api)
	}

	// WebSocket endpoint for lifecycle events
	router.GET("/ws", func(c *gin.Context) {
		if _, err := hub.HandleConnection(c.Writer, c.Request); err != nil {
			logger.Warn("WebSocket upgrade failed", zap.Error(err))
		}
	})

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
