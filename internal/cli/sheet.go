package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/ledger/google"
	applog "fintrack/internal/log"
)

func newSheetCommand(a *app) *cobra.Command {
	sheetCmd := &cobra.Command{
		Use:   "sheet",
		Short: "Manage the ledger's backing store",
	}
	sheetCmd.AddCommand(newSheetInitCommand(a))
	return sheetCmd
}

func newSheetInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger tab and header row (or the SQLite schema) and the categories file if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := seedCategoriesFile(cmd, config.Load().CategoriesFile); err != nil {
				return err
			}
			cfg, err := loadStoreConfig()
			if err != nil {
				return err
			}
			return runSheetInit(cmd, cfg, a.logger)
		},
	}
}

func runSheetInit(cmd *cobra.Command, cfg *config.Config, logger *applog.Logger) error {
	ctx, cancel := context.WithTimeout(commandContext(cmd), cfg.StoreTimeout)
	defer cancel()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runCleanup(cleanup) }()

	sc, ok := store.(ledger.SetupChecker)
	if !ok {
		return fmt.Errorf("%s backend has nothing to initialize", cfg.LedgerBackend)
	}
	if err := sc.EnsureReady(ctx); err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}

	target := cfg.LedgerBackend
	if c, ok := store.(*google.Client); ok {
		target = fmt.Sprintf("sheet %q", c.SheetName())
	} else if cfg.LedgerBackend == "sqlite" {
		target = cfg.SQLiteDBPath
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ledger ready: %s\n", target)
	return nil
}

// seedCategoriesFile writes the stock category set to path when
// CATEGORIES_FILE names a file that does not exist yet.
func seedCategoriesFile(cmd *cobra.Command, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	stock := core.DefaultCategories()
	if err := config.SaveCategoriesFile(path, &config.CategoriesFile{
		Expense: stock.ForType(core.Expense),
		Income:  stock.ForType(core.Income),
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default categories to %s\n", path)
	return nil
}

// loadStoreConfig validates the configuration for commands that only read
// or prepare the ledger. They never extract, so the language service is
// not required.
func loadStoreConfig() (*config.Config, error) {
	cfg := config.Load()
	cfg.NLUBackend = string(backend.RulesNLU)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *applog.Logger) (ledger.Store, backend.CleanupFunc, error) {
	categories, err := cfg.LoadCategories()
	if err != nil {
		return nil, nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg, categories)
	if err != nil {
		return nil, nil, err
	}
	return backend.NewFactory(logger.Logger).CreateStore(ctx, bcfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runCleanup(fn backend.CleanupFunc) error {
	if fn == nil {
		return nil
	}
	return fn()
}
