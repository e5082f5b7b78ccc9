package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyHTML("<p>test</p>").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "<p>test</p>" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "<p>test</p>")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerLedgerUpdated(7).
		TriggerFormReset().
		TriggerSuccessNotification("Transaction saved").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}

	expectedParts := []string{
		`"ledger:updated"`,
		`"version":7`,
		`"form:reset"`,
		`"show-notification"`,
		`"type":"success"`,
		`"message":"Transaction saved"`,
	}
	for _, part := range expectedParts {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
}

func TestHTMXResponseBuilder_NoTriggers(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Body([]byte("ok")).Write(w)

	if _, ok := w.Header()["Hx-Trigger"]; ok {
		t.Error("HX-Trigger should not be set without triggers")
	}
	if w.Body.String() != "ok" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Invalid input"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `<div class="error">Invalid input</div>`,
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("Something broke"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `<div class="error">Something broke</div>`,
		},
		{
			name:       "too many requests",
			builder:    ErrorResponse(http.StatusTooManyRequests, "Slow down"),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   `<div class="error">Slow down</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		notifType NotificationType
		want      string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		NewHTMXResponse().
			TriggerNotification(tt.notifType, "test", 1000).
			Write(w)

		trigger := w.Header().Get("HX-Trigger")
		if !strings.Contains(trigger, `"type":"`+tt.want+`"`) {
			t.Errorf("Notification type %q not found in trigger: %s", tt.want, trigger)
		}
	}
}
