package backend

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/ledger"
	"fintrack/internal/nlu"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds everything the conversation needs from the outside
// world. Cleanup releases them in reverse order of creation.
type BackendResult struct {
	Store     ledger.Store
	Extractor nlu.Extractor
	Publisher events.Publisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates the ledger store, extractor and publisher.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateStore creates only the ledger store, for commands that never
	// talk to the language service.
	CreateStore(ctx context.Context, config Config) (ledger.Store, CleanupFunc, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Ledger store
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Extraction
	NLU          NLUType
	GeminiAPIKey string
	GeminiModel  string
	NLUTimeout   time.Duration
	Categories   *core.Categories

	// Event publishing, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

// BackendType represents the type of ledger store
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// NLUType selects the extractor.
type NLUType string

const (
	GeminiNLU NLUType = "gemini"
	RulesNLU  NLUType = "rules"
)

func (t NLUType) IsValid() bool {
	return t == GeminiNLU || t == RulesNLU
}
