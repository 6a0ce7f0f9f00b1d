package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nialthony/Campuss-Blink-Pass/internal/config"
	"github.com/nialthony/Campuss-Blink-Pass/internal/logger"
	"github.com/nialthony/Campuss-Blink-Pass/internal/server"
	"github.com/nialthony/Campuss-Blink-Pass/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	logger.Initialize(logger.Configuration{
		Level:   cfg.LogLevel,
		LogFile: cfg.LogFile,
		Console: cfg.LogConsole,
	})

	eventStore, err := store.New(cfg.DatabasePath, cfg.FallbackToMemory)
	if err != nil {
		logger.Fatal("store initialization failed", zap.Error(err))
	}

	srv := server.New(cfg.HTTPAddr, eventStore, cfg.OrganizerAPIKey)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("actions-api listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("storeMode", eventStore.Mode()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal("server stopped", zap.Error(err))
	case sig := <-waitForInterrupt():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
