package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/chat"
	"fintrack/internal/config"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/ledger"
	"fintrack/internal/ledger/google"
	applog "fintrack/internal/log"
)

const (
	maxSessions          = 1000
	cacheCleanupInterval = time.Minute
	shutdownTimeout      = 30 * time.Second
)

func newServeCommand(a *app) *cobra.Command {
	var secureCookies bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat and dashboard web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, a.logger, secureCookies)
		},
	}

	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "always mark the session cookie Secure (set behind a TLS proxy)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *applog.Logger, secureCookies bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	categories, err := cfg.LoadCategories()
	if err != nil {
		return err
	}
	bcfg, err := backend.FromAppConfig(cfg, categories)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	// A store that cannot be prepared yet is not fatal; /readyz reports it.
	if sc, ok := res.Store.(ledger.SetupChecker); ok {
		readyCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		if err := sc.EnsureReady(readyCtx); err != nil {
			logger.Warn("Ledger not ready at startup", applog.FieldOperation, applog.OpStartup, applog.FieldError, err)
		}
		cancel()
	}

	ledgerCtx := chat.NewLedger(res.Store, chat.LedgerConfig{
		CacheSize:    cfg.CacheSize,
		CacheTTL:     cfg.CacheTTL,
		StoreTimeout: cfg.StoreTimeout,
		Publisher:    res.Publisher,
		Logger:       logger.WithComponent(applog.ComponentLedger).Logger,
	})
	normalizer := core.NewNormalizer(categories, core.WithMaxFutureDays(cfg.MaxFutureDays))
	controller := chat.NewController(res.Extractor, normalizer, ledgerCtx,
		chat.WithCurrencySymbol(cfg.CurrencySymbol),
		chat.WithLogger(logger.WithComponent(applog.ComponentChat).Logger))
	sessions := chat.NewSessionStore(maxSessions, cfg.SessionTTL)

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register("analytics", ledgerCtx)
	caches.Register("sessions", sessions)
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Controller:         controller,
		Sessions:           sessions,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SecureCookies:      secureCookies,
		SheetURL:           sheetURL(cfg),
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	done := GracefulShutdown(ctx, logger, shutdownTimeout, srv.Shutdown)

	logger.Info("Starting fintrack server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"ledger_backend", cfg.LedgerBackend,
		"nlu_backend", cfg.NLUBackend,
		"categories", categories.Len())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped gracefully")
	return nil
}

// sheetURL links the chat page to the spreadsheet when it is the ledger.
func sheetURL(cfg *config.Config) string {
	if cfg.LedgerBackend != "sheets" {
		return ""
	}
	return google.SheetURL(cfg.GoogleSheetID)
}
