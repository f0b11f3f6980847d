package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/config"
	"endless-wallet/lending-backend/internal/funding"
	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/petition"
)

// ExpiryWorker closes open petitions whose funding window has lapsed,
// releasing any reserved lender funds.
type ExpiryWorker struct {
	petitions *petition.Service
	logger    *zap.Logger
}

func NewExpiryWorker(petitions *petition.Service, logger *zap.Logger) *ExpiryWorker {
	return &ExpiryWorker{petitions: petitions, logger: logger}
}

// Run performs one expiry sweep.
func (w *ExpiryWorker) Run(ctx context.Context) {
	expired, err := w.petitions.ExpireStale(ctx, time.Now())
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		w.logger.Info("Expired stale petitions", zap.Int("count", expired))
	}
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	store := ledger.NewStore(db)
	petitionRepo := petition.NewRepository(db)
	loanRepo := loan.NewRepository(db)
	fundingRepo := funding.NewRepository(db)

	petitionSvc := petition.NewService(petitionRepo, loanRepo, store, logger,
		cfg.Lending.SupportedCurrencies, cfg.Lending.PetitionTTL)
	coordinator := funding.NewCoordinator(store, fundingRepo, petitionSvc, logger)
	petitionSvc.SetCommitter(coordinator)

	worker := NewExpiryWorker(petitionSvc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Lending.ExpirySchedule, func() {
		worker.Run(ctx)
	}); err != nil {
		logger.Fatal("Invalid expiry schedule", zap.String("schedule", cfg.Lending.ExpirySchedule), zap.Error(err))
	}

	// Sweep once on startup, then follow the schedule
	worker.Run(ctx)
	scheduler.Start()

	logger.Info("Expiry worker started", zap.String("schedule", cfg.Lending.ExpirySchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down expiry worker...")
	cancel()
	<-scheduler.Stop().Done()
	logger.Info("Expiry worker exiting")
}
