package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/events"
	"fintrack/internal/ledger"
	gsheet "fintrack/internal/ledger/google"
	"fintrack/internal/ledger/memory"
	applog "fintrack/internal/log"
	"fintrack/internal/nlu"
	"fintrack/internal/nlu/gemini"
	"fintrack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}

	store, storeCleanup, err := f.CreateStore(ctx, config)
	if err != nil {
		return nil, err
	}

	extractor, err := f.createExtractor(ctx, config)
	if err != nil {
		_ = runCleanup(storeCleanup)
		return nil, err
	}

	publisher := f.createPublisher(config)

	return &BackendResult{
		Store:     store,
		Extractor: extractor,
		Publisher: publisher,
		Cleanup: func() error {
			return errors.Join(publisher.Close(), runCleanup(storeCleanup))
		},
	}, nil
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (ledger.Store, CleanupFunc, error) {
	if !config.Type.IsValid() {
		return nil, nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteStore(config)
	case SheetsBackend:
		return f.createSheetsStore(ctx, config)
	case MemoryBackend:
		f.logger.Warn("Using in-memory ledger, transactions are lost on restart")
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteStore(config Config) (ledger.Store, CleanupFunc, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, repo.Close, nil
}

func (f *DefaultFactory) createSheetsStore(ctx context.Context, config Config) (ledger.Store, CleanupFunc, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsFile: config.GoogleCredentialsFile,
		CredentialsJSON: config.GoogleCredentialsJSON,
	}, f.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "sheet", cli.SheetName())
	return cli, nil, nil
}

func (f *DefaultFactory) createExtractor(ctx context.Context, config Config) (nlu.Extractor, error) {
	switch config.NLU {
	case GeminiNLU:
		x, err := gemini.New(ctx, gemini.Config{
			APIKey:  config.GeminiAPIKey,
			Model:   config.GeminiModel,
			Timeout: config.NLUTimeout,
		}, config.Categories, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini extractor: %w", err)
		}
		f.logger.Info("Initialized Gemini extractor", "model", config.GeminiModel)
		return x, nil
	case RulesNLU:
		f.logger.Info("Initialized rule-based extractor")
		return nlu.NewRuleExtractor(config.Categories), nil
	default:
		return nil, fmt.Errorf("unsupported nlu backend: %s", config.NLU)
	}
}

// createPublisher connects to the broker when one is configured. A broker
// that cannot be reached only disables events; transactions are still
// recorded.
func (f *DefaultFactory) createPublisher(config Config) events.Publisher {
	if config.AMQPURL == "" {
		return events.Noop{}
	}

	client, err := events.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPRoutingKey, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		return events.Noop{}
	}

	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"routing_key", config.AMQPRoutingKey)
	return client
}

func runCleanup(fn CleanupFunc) error {
	if fn == nil {
		return nil
	}
	return fn()
}
