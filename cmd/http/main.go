package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"infrastreet/marketplace/internal/config"
	"infrastreet/marketplace/internal/handler"
	"infrastreet/marketplace/internal/logging"
	"infrastreet/marketplace/internal/service"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/tools"
)

var version = "dev"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 2. Setup backend client
	client := backend.NewClient(backend.Config{
		APIURL:        cfg.Backend.URL,
		Timeout:       cfg.Backend.Timeout,
		UploadTimeout: cfg.Backend.UploadTimeout,
	}, logger)

	// 3. Setup Logic
	registry := tools.NewRegistry(client, logger)
	mcp := tools.NewServer(registry, "infrastreet", version, logger)

	marketService := service.NewMarketService(client, logger)
	historyHandler := handler.NewHistoryHandler(marketService)

	h := handler.NewHandler(mcp, historyHandler, logger)

	// 4. Setup Server
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Run Server with Graceful Shutdown
	go func() {
		logger.Info("starting tool server",
			zap.String("port", cfg.ServerPort),
			zap.String("backend", cfg.Backend.URL),
			zap.Int("tools", len(registry.List())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
