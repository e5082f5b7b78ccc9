package log

import (
	"fintrack/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldSessionID  = "session_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldState      = "state"

	FieldTxID     = "tx_id"
	FieldAmount   = "amount"
	FieldCategory = "category"
	FieldTxType   = "tx_type"
	FieldTxDate   = "tx_date"

	FieldFingerprint = "fingerprint"
	FieldVersion     = "version"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentChat      = "chat"
	ComponentLedger    = "ledger"
	ComponentNLU       = "nlu"
	ComponentStorage   = "storage"
	ComponentEvents    = "events"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentTemplate  = "template"
)

// Operations defines standard operation names
const (
	OpSubmit      = "submit"
	OpConfirm     = "confirm"
	OpCancel      = "cancel"
	OpAmend       = "amend"
	OpAcknowledge = "acknowledge"
	OpAppend      = "append"
	OpRead        = "read"
	OpSummary     = "summary"
	OpExtract     = "extract"
	OpValidate    = "validate"
	OpRender      = "render"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithSessionID(id string) LogFields {
	f[FieldSessionID] = id
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; nil errors are ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds the identifying fields of tx. Raw text is left out
// of logs.
func (f LogFields) WithTransaction(tx core.Transaction) LogFields {
	f[FieldTxID] = tx.ID.String()
	f[FieldAmount] = tx.Amount.StringFixed(2)
	f[FieldCategory] = tx.Category
	f[FieldTxType] = string(tx.Type)
	f[FieldTxDate] = tx.Date.String()
	return f
}

func (f LogFields) WithCache(fingerprint string, version uint64) LogFields {
	f[FieldFingerprint] = fingerprint
	f[FieldVersion] = version
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
