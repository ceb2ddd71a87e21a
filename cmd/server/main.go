package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentalshop-backend/internal/analytics"
	httpapi "rentalshop-backend/internal/api/http"
	"rentalshop-backend/internal/checkout"
	"rentalshop-backend/internal/config"
	"rentalshop-backend/internal/logger"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/pricing"
	"rentalshop-backend/internal/repository"
	"rentalshop-backend/internal/repository/jsonstore"
	"rentalshop-backend/internal/repository/postgres"
	"rentalshop-backend/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting storefront backend...", "log_level", cfg.Log.Level, "backend", cfg.Storage.Backend)

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
		logger.Error("Failed to initialize repository backend", "backend", backend.String(), "error", err)
		log.Fatalf("Failed to initialize repository backend: %v", err)
	}
	logger.Info("Repository backend ready", "backend", backend.String())

	provider, err := payments.NewStripeProvider(cfg.Stripe.APIKey)
	if err != nil {
		log.Fatalf("Failed to initialize payment provider: %v", err)
	}

	catalog := pricing.NewCatalog(cfg.Pricing.TablePath)
	builder := checkout.NewBuilder(store, catalog, provider, analytics.LogSink{})
	processor := webhook.NewProcessor(store, store)

	handler := httpapi.NewHandler(builder, processor, cfg.Stripe.WebhookSecret)
	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}
