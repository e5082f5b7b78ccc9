// Package cli provides the fintrack command tree and the initialization
// shared by its commands.
package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	applog "fintrack/internal/log"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level string) (*applog.Logger, error) {
	lvl, err := applog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := applog.DefaultConfig()
	cfg.Level = lvl
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger, nil
}

// LoadEnvFile loads environment files for local development. A missing
// file is not an error; a malformed one is. Variables already set in the
// environment win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GracefulShutdown waits for ctx to end or for SIGINT/SIGTERM, then runs
// cleanup with a context bounded by timeout. The returned channel is closed
// once cleanup has returned.
func GracefulShutdown(ctx context.Context, logger *applog.Logger, timeout time.Duration, cleanup func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if cleanup != nil {
			if err := cleanup(shutdownCtx); err != nil {
				logger.Error("Shutdown error", applog.FieldOperation, applog.OpShutdown, applog.FieldError, err)
				return
			}
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return done
}
