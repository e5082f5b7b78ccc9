package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
)

// fakeSheets serves the subset of the Sheets REST API the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	values   [][]any
	titles   []string
	status   int
	appended [][]any
	added    []string
	updated  [][]any
	query    map[string]string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"code":`+itoa(f.status)+`,"message":"fake failure"}}`)
		return
	}

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		f.values = append(f.values, vr.Values...)
		f.query = map[string]string{
			"valueInputOption": r.URL.Query().Get("valueInputOption"),
			"insertDataOption": r.URL.Query().Get("insertDataOption"),
		}
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.added = append(f.added, rq.AddSheet.Properties.Title)
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
			}
		}
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.updated = append(f.updated, vr.Values...)
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		rows := f.values
		if strings.HasSuffix(path, "A1:F1") && len(rows) > 1 {
			rows = rows[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": rows})
	case r.Method == http.MethodGet:
		sheets := make([]map[string]any, 0, len(f.titles))
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	default:
		http.NotFound(w, r)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-1", "", nil)
}

func sampleTx() core.Transaction {
	return core.Transaction{
		ID:       uuid.MustParse("2f1d1c1e-8a57-4d55-9a0c-7d1f3c1b2a10"),
		Date:     core.NewDate(2025, 3, 14),
		Amount:   decimal.NewFromInt(-250),
		Category: "groceries",
		Type:     core.Expense,
		RawText:  "Spent 250 on groceries yesterday",
	}
}

func TestAppend(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f)

	if err := c.Append(context.Background(), sampleTx()); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(f.appended) != 1 {
		t.Fatalf("appended %d rows, want 1", len(f.appended))
	}
	row := toStrings(f.appended[0])
	want := []string{"2025-03-14", "-250.00", "groceries", "expense", "Spent 250 on groceries yesterday", "2f1d1c1e-8a57-4d55-9a0c-7d1f3c1b2a10"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("col %d = %q, want %q", i, row[i], want[i])
		}
	}
	if f.query["valueInputOption"] != "USER_ENTERED" || f.query["insertDataOption"] != "INSERT_ROWS" {
		t.Errorf("unexpected append options: %v", f.query)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f)

	tx := sampleTx()
	tx.Amount = decimal.Zero
	if err := c.Append(context.Background(), tx); err == nil {
		t.Fatal("expected validation error")
	}
	if len(f.appended) != 0 {
		t.Fatal("invalid transaction reached the sheet")
	}
}

func TestReadAll(t *testing.T) {
	f := &fakeSheets{values: [][]any{
		{"date", "amount", "category", "type", "raw_text", "id"},
		{"2025-03-14", -250.0, "groceries", "expense", "Spent 250 on groceries yesterday", "2f1d1c1e-8a57-4d55-9a0c-7d1f3c1b2a10"},
		{},
		{"2025-03-01", 3000.0, "salary", "income", "salary"},
		{"not a date", 1.0, "x", "expense"},
		{45736.0, "42.50", "Food", "Expense", "legacy"},
	}}
	c := newTestClient(t, f)

	got, err := c.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3: %+v", len(got), got)
	}
	if got[0].ID != sampleTx().ID || !got[0].Amount.Equal(decimal.NewFromInt(-250)) {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].ID != uuid.Nil || got[1].Type != core.Income {
		t.Errorf("row 1 = %+v", got[1])
	}
	legacy := got[2]
	if legacy.Date.String() != "2025-03-20" {
		t.Errorf("serial date = %s, want 2025-03-20", legacy.Date)
	}
	if !legacy.Amount.Equal(decimal.RequireFromString("-42.50")) {
		t.Errorf("legacy expense amount = %s, want -42.50", legacy.Amount)
	}
}

func TestReadAllEmptySheet(t *testing.T) {
	c := newTestClient(t, &fakeSheets{})
	got, err := c.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d rows, want 0", len(got))
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		kind      error
		ambiguous bool
	}{
		{http.StatusUnauthorized, core.ErrAuthFailure, false},
		{http.StatusForbidden, core.ErrAuthFailure, false},
		{http.StatusTooManyRequests, core.ErrRateLimited, false},
		{http.StatusServiceUnavailable, core.ErrUnavailable, true},
		{http.StatusBadRequest, core.ErrUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, &fakeSheets{status: tt.status})
			err := c.Append(context.Background(), sampleTx())
			if !errors.Is(err, tt.kind) {
				t.Fatalf("append error %v, want %v", err, tt.kind)
			}
			if core.IsAmbiguous(err) != tt.ambiguous {
				t.Errorf("ambiguous = %v, want %v", core.IsAmbiguous(err), tt.ambiguous)
			}

			_, err = c.ReadAll(context.Background())
			if !errors.Is(err, tt.kind) {
				t.Fatalf("read error %v, want %v", err, tt.kind)
			}
			if core.IsAmbiguous(err) {
				t.Error("reads are never ambiguous")
			}
		})
	}
}

func TestClassifyDeadline(t *testing.T) {
	err := classify("append", context.DeadlineExceeded, true)
	if !errors.Is(err, core.ErrUnavailable) || !core.IsAmbiguous(err) {
		t.Fatalf("deadline after send should be ambiguous unavailable, got %v", err)
	}
	err = classify("read", context.DeadlineExceeded, false)
	if core.IsAmbiguous(err) {
		t.Fatalf("read deadline should not be ambiguous")
	}
}

func TestEnsureReadyCreatesSheetAndHeader(t *testing.T) {
	f := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, f)

	if err := c.EnsureReady(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(f.added) != 1 || f.added[0] != DefaultSheetName {
		t.Fatalf("added sheets = %v", f.added)
	}
	if len(f.updated) != 1 || toStrings(f.updated[0])[0] != "date" {
		t.Fatalf("header not written: %v", f.updated)
	}
}

func TestEnsureReadyIsIdempotent(t *testing.T) {
	f := &fakeSheets{
		titles: []string{DefaultSheetName},
		values: [][]any{{"date", "amount", "category", "type", "raw_text", "id"}},
	}
	c := newTestClient(t, f)

	if err := c.EnsureReady(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(f.added) != 0 || len(f.updated) != 0 {
		t.Fatalf("expected no changes, added=%v updated=%v", f.added, f.updated)
	}
}

func TestCheckNeverWrites(t *testing.T) {
	f := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, f)

	for i := 0; i < 3; i++ {
		err := c.Check(context.Background())
		if !errors.Is(err, core.ErrUnavailable) {
			t.Fatalf("check %d = %v, want unavailable for a missing tab", i, err)
		}
	}

	f.mu.Lock()
	f.titles = append(f.titles, DefaultSheetName)
	f.mu.Unlock()
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("check with tab present: %v", err)
	}

	if len(f.added) != 0 || len(f.updated) != 0 || len(f.appended) != 0 {
		t.Fatalf("check wrote to the spreadsheet: added=%v updated=%v appended=%v", f.added, f.updated, f.appended)
	}
}

func TestCheckMapsErrors(t *testing.T) {
	f := &fakeSheets{status: http.StatusForbidden}
	c := newTestClient(t, f)
	if err := c.Check(context.Background()); !errors.Is(err, core.ErrAuthFailure) {
		t.Fatalf("check = %v, want auth failure", err)
	}
}

func TestSanitizeCell(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"coffee":       "coffee",
		"=SUM(A1:A9)":  "'=SUM(A1:A9)",
		"+1 for lunch": "'+1 for lunch",
		"@everyone":    "'@everyone",
		"-5 refund":    "'-5 refund",
	}
	for in, want := range tests {
		if got := sanitizeCell(in); got != want {
			t.Errorf("sanitizeCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Transactions"); got != "Transactions" {
		t.Errorf("got %q", got)
	}
	if got := quoteSheet("2025 Ledger"); got != "'2025 Ledger'" {
		t.Errorf("got %q", got)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := loadCredentials(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	data, err := loadCredentials(context.Background(), Config{CredentialsJSON: `{"type":"service_account"}`, CredentialsFile: "/nope"}, nil)
	if err != nil {
		t.Fatalf("inline credentials: %v", err)
	}
	if !strings.Contains(string(data), "service_account") {
		t.Fatalf("unexpected credentials %q", data)
	}
	if _, err := loadCredentials(context.Background(), Config{CredentialsFile: "/does/not/exist.json"}, nil); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{CredentialsJSON: "{}"}, nil); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestSheetURL(t *testing.T) {
	if got := SheetURL(""); got != "" {
		t.Errorf("SheetURL(\"\") = %q, want empty", got)
	}
	want := "https://docs.google.com/spreadsheets/d/abc123"
	if got := SheetURL("abc123"); got != want {
		t.Errorf("SheetURL = %q, want %q", got, want)
	}
}
