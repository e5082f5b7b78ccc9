package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: ComponentApp, Output: &buf}), &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestWithComponentDoesNotRepeatKey(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	logger.WithComponent(ComponentChat).Info("hello")

	line := buf.String()
	if strings.Count(line, "component=") != 1 {
		t.Fatalf("expected a single component attribute, got %q", line)
	}
	if !strings.Contains(line, "component=chat") {
		t.Fatalf("expected chat component, got %q", line)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	logger := FromContext(context.Background())
	if logger.Component() != "unknown" {
		t.Fatalf("component = %q", logger.Component())
	}
	// Must not panic.
	_ = logger.WithComponent(ComponentHTTP)
}

func TestMiddlewareChain(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)

	ctx := WithLogger(context.Background(), logger.With(FieldRequestID, "req_1"))
	h := ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	line := buf.String()
	if !strings.Contains(line, "request_id=req_1") || !strings.Contains(line, "component=http") {
		t.Fatalf("unexpected log line %q", line)
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelDebug)
	sl := NewStructuredLogger(logger)

	tx := core.Transaction{
		ID:       uuid.New(),
		Date:     core.NewDate(2025, 3, 14),
		Amount:   decimal.NewFromInt(-250),
		Category: "groceries",
		Type:     core.Expense,
		RawText:  "secret note",
	}
	sl.LogTransactionRecorded(context.Background(), tx, 3)
	out := buf.String()
	for _, want := range []string{"tx_id=" + tx.ID.String(), "amount=-250.00", "category=groceries", "version=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "secret note") {
		t.Error("raw text must not be logged")
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("bad"), ComponentLedger, OpAppend, nil)
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "error=bad") {
		t.Errorf("unexpected error line %q", buf.String())
	}

	buf.Reset()
	r := httptest.NewRequest(http.MethodPost, "/chat", nil)
	sl.LogHTTPEnd(context.Background(), r, http.StatusBadGateway, 12, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status_code=502") {
		t.Errorf("unexpected http line %q", buf.String())
	}
}
