package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mwork/mwork-rewards/internal/config"
	"github.com/mwork/mwork-rewards/internal/domain/campaign"
	"github.com/mwork/mwork-rewards/internal/domain/cashback"
	"github.com/mwork/mwork-rewards/internal/domain/coin"
	"github.com/mwork/mwork-rewards/internal/domain/funds"
	"github.com/mwork/mwork-rewards/internal/domain/rewards"
	"github.com/mwork/mwork-rewards/internal/domain/scheduler"
	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/database"
	"github.com/mwork/mwork-rewards/internal/pkg/lock"
	"github.com/mwork/mwork-rewards/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting MWork rewards worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	// ---------- Repositories ----------
	walletRepo := wallet.NewRepository(db)
	fundsRepo := funds.NewRepository(db)
	fundsService := funds.NewService(fundsRepo)
	coinRepo := coin.NewRepository(db, walletRepo)
	cashbackRepo := cashback.NewRepository(db, walletRepo, fundsService)
	campaignRepo := campaign.NewRepository(db)

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo)
	coinService := coin.NewService(coinRepo, walletRepo, coin.Config{
		BatchSize:         cfg.SweepBatchSize,
		BrandedExpiryDays: cfg.BrandedCoinExpiryDays,
	})
	cashbackService := cashback.NewService(cashbackRepo, cashback.Config{
		PendingDays: cfg.CashbackPendingDays,
	})
	campaignService := campaign.NewService(campaignRepo, campaign.NewOrderStats(db), campaign.Config{
		VIPLifetimeSpend: cfg.VIPLifetimeSpendFils,
	})
	rewardsService := rewards.NewService(coinService, cashbackService, campaignService)

	// ---------- Scheduler ----------
	sched := scheduler.New(
		lock.New(redis, cfg.SchedulerLockTTL),
		cfg.SweepTimeout,
		scheduler.CoinExpiryJob(coinService, cfg.CoinExpiryInterval),
		scheduler.CashbackExpiryJob(cashbackService, cfg.CashbackExpiryInterval),
		scheduler.CampaignExpiryJob(campaignService, cfg.CampaignExpiryInterval),
	)
	sched.Start()

	// ---------- Ops server ----------
	checks := []readinessCheck{{name: "postgres", ping: db.PingContext}}
	if redis != nil {
		checks = append(checks, readinessCheck{name: "redis", ping: func(ctx context.Context) error {
			return redis.Ping(ctx).Err()
		}})
	}

	r := newRouter(routerDeps{
		checks:  checks,
		jobs:    sched,
		wallets: walletService,
		funds:   fundsService,
		orders:  rewards.NewHandler(rewardsService),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SweepTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Ops server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Ops server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Ops server forced to shutdown")
	}
	sched.Stop()

	log.Info().Msg("Worker exited properly")
}
