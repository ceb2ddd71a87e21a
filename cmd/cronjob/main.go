package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rentalshop-backend/internal/config"
	"rentalshop-backend/internal/jobs"
	"rentalshop-backend/internal/logger"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/repository"
	"rentalshop-backend/internal/repository/jsonstore"
	"rentalshop-backend/internal/repository/postgres"
	"rentalshop-backend/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run one pass and exit ('late-fees', 'deposit-release', 'all')")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting reconciliation scheduler...", "log_level", cfg.Log.Level, "backend", cfg.Storage.Backend)

	backend, err := repository.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		log.Fatalf("Invalid storage backend: %v", err)
	}
	resolver := repository.NewResolver(backend, repository.Options{
		DSN:     cfg.GetDatabaseConnectionString(),
		DataDir: cfg.Storage.DataDir,
	}, postgres.Loader, jsonstore.Loader)

	store, err := resolver.Store()
	if err != nil {
		log.Fatalf("Failed to initialize repository backend: %v", err)
	}

	provider, err := payments.NewStripeProvider(cfg.Stripe.APIKey)
	if err != nil {
		log.Fatalf("Failed to initialize payment provider: %v", err)
	}

	lateFees := jobs.NewLateFeeRunner(store, provider)
	depositRelease := jobs.NewDepositReleaseRunner(store, provider)

	if *runOnce != "" {
		runOncePass(*runOnce, store, lateFees, depositRelease)
		return
	}

	sched := scheduler.New()

	lateFeeService := jobs.NewLateFeeService(sched, lateFees, store, cfg.LateFeeIntervalDefault())
	if err := lateFeeService.Register(context.Background()); err != nil {
		log.Fatalf("Failed to register late-fee timers: %v", err)
	}
	depositService := jobs.NewDepositReleaseService(sched, depositRelease)
	if err := depositService.Register(cfg.DepositReleaseIntervalDefault()); err != nil {
		log.Fatalf("Failed to register deposit-release timer: %v", err)
	}

	sched.Start()
	logger.Info("Scheduler started", "jobs", len(sched.Jobs()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping scheduler...")
	sched.Stop()
	logger.Info("Scheduler stopped")
}

func runOncePass(which string, store *repository.Store, lateFees *jobs.LateFeeRunner, depositRelease *jobs.DepositReleaseRunner) {
	ctx := context.Background()
	switch which {
	case "late-fees", "all":
		shops, err := store.ListShops(ctx)
		if err != nil {
			log.Fatalf("Failed to list shops: %v", err)
		}
		for _, shop := range shops {
			if err := lateFees.RunShopOnce(ctx, shop); err != nil {
				logger.Error("late-fee pass failed", "shop_id", shop, "error", err)
			}
		}
		if which != "all" {
			return
		}
		fallthrough
	case "deposit-release":
		if err := depositRelease.ReleaseDepositsOnce(ctx); err != nil {
			logger.Error("deposit-release pass failed", "error", err)
		}
	default:
		log.Fatalf("Unknown -run-once job: %q", which)
	}
}
