package backend

import (
	"errors"
	"fmt"

	"fintrack/internal/config"
	"fintrack/internal/core"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config, categories *core.Categories) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.LedgerBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.LedgerBackend)
	}
	nluType := NLUType(appConfig.NLUBackend)
	if !nluType.IsValid() {
		return Config{}, fmt.Errorf("invalid nlu backend in config: %s", appConfig.NLUBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		GoogleSpreadsheetID:   appConfig.GoogleSheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,

		NLU:          nluType,
		GeminiAPIKey: appConfig.GeminiAPIKey,
		GeminiModel:  appConfig.GeminiModel,
		NLUTimeout:   appConfig.NLUTimeout,
		Categories:   categories,

		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		AMQPRoutingKey: appConfig.AMQPRoutingKey,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	var errs []error

	if !c.Type.IsValid() {
		errs = append(errs, fmt.Errorf("invalid backend type: %s", c.Type))
	}
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			errs = append(errs, errors.New("SQLite database path is required for sqlite backend"))
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, errors.New("Google Spreadsheet ID is required for sheets backend"))
		}
	}

	if !c.NLU.IsValid() {
		errs = append(errs, fmt.Errorf("invalid nlu backend: %s", c.NLU))
	}
	if c.NLU == GeminiNLU && c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("Gemini API key is required for gemini extraction"))
	}

	return errors.Join(errs...)
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
