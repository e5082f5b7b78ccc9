// Package google stores the ledger in a Google Sheets tab, one transaction
// per row.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// DefaultSheetName is the tab used when none is configured.
const DefaultSheetName = "Transactions"

// Config selects the spreadsheet and how to authenticate against it.
// CredentialsJSON wins over CredentialsFile; when both are empty
// GOOGLE_APPLICATION_CREDENTIALS is consulted.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

var (
	_ ledger.Store        = (*Client)(nil)
	_ ledger.SetupChecker = (*Client)(nil)
	_ ledger.Checker      = (*Client)(nil)
)

// SheetURL is the browser address of a spreadsheet.
func SheetURL(spreadsheetID string) string {
	if strings.TrimSpace(spreadsheetID) == "" {
		return ""
	}
	return "https://docs.google.com/spreadsheets/d/" + url.PathEscape(spreadsheetID)
}

// New creates a Sheets ledger using service account credentials. Extra
// client options are appended after the credentials.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := loadCredentials(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	all := append([]goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *slog.Logger) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}
}

func loadCredentials(ctx context.Context, cfg Config, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SHEETS_CREDENTIALS, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// SheetName returns the tab the client reads and writes.
func (c *Client) SheetName() string { return c.sheetName }

func (c *Client) dataRange() string {
	return fmt.Sprintf("%s!A:F", quoteSheet(c.sheetName))
}

// Append writes tx as a new row below the existing data.
func (c *Client) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if c.svc == nil {
		return &core.StoreError{Op: "append", Kind: core.ErrUnavailable, Err: errors.New("sheets service not initialized")}
	}

	vr := &gsheet.ValueRange{Values: [][]any{toRow(tx)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.dataRange(), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		c.logger.WarnContext(ctx, "Sheet append failed", "tx_id", tx.ID, "error", err)
		return classify("append", err, true)
	}
	c.logger.DebugContext(ctx, "Sheet row appended", "tx_id", tx.ID, "sheet", c.sheetName)
	return nil
}

// ReadAll returns every parseable row in sheet order. Rows that cannot be
// parsed are logged and skipped.
func (c *Client) ReadAll(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, &core.StoreError{Op: "read", Kind: core.ErrUnavailable, Err: errors.New("sheets service not initialized")}
	}
	rng := c.dataRange()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, classify("read", fmt.Errorf("read %s: %w", rng, err), false)
	}

	out := make([]core.Transaction, 0, len(resp.Values))
	skipped := 0
	for i, row := range resp.Values {
		if isBlank(row) || (i == 0 && isHeader(row)) {
			continue
		}
		tx, err := parseRow(row)
		if err != nil {
			skipped++
			c.logger.WarnContext(ctx, "Skipping malformed sheet row", "row", i+1, "error", err)
			continue
		}
		out = append(out, tx)
	}
	c.logger.DebugContext(ctx, "Sheet read completed", "rows", len(out), "skipped", skipped)
	return out, nil
}

// EnsureReady creates the ledger tab and its header row when missing.
func (c *Client) EnsureReady(ctx context.Context) error {
	if c.svc == nil {
		return &core.StoreError{Op: "setup", Kind: core.ErrUnavailable, Err: errors.New("sheets service not initialized")}
	}

	found, err := c.hasSheet(ctx, "setup")
	if err != nil {
		return err
	}
	if !found {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{
			{AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: c.sheetName}}},
		}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return classify("setup", fmt.Errorf("add sheet %s: %w", c.sheetName, err), false)
		}
		c.logger.InfoContext(ctx, "Created ledger sheet", "sheet", c.sheetName)
	}

	headerRange := fmt.Sprintf("%s!A1:F1", quoteSheet(c.sheetName))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return classify("setup", fmt.Errorf("read %s: %w", headerRange, err), false)
	}
	if len(resp.Values) > 0 && isHeader(resp.Values[0]) {
		return nil
	}
	if len(resp.Values) > 0 && !isBlank(resp.Values[0]) {
		c.logger.WarnContext(ctx, "Ledger sheet has data but no header row", "sheet", c.sheetName)
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{headerRow()}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, headerRange, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return classify("setup", fmt.Errorf("write header: %w", err), false)
	}
	c.logger.InfoContext(ctx, "Wrote ledger header row", "sheet", c.sheetName)
	return nil
}

// Check verifies the ledger tab exists and its header row can be read.
// Unlike EnsureReady it never writes.
func (c *Client) Check(ctx context.Context) error {
	if c.svc == nil {
		return &core.StoreError{Op: "check", Kind: core.ErrUnavailable, Err: errors.New("sheets service not initialized")}
	}

	found, err := c.hasSheet(ctx, "check")
	if err != nil {
		return err
	}
	if !found {
		return &core.StoreError{Op: "check", Kind: core.ErrUnavailable,
			Err: fmt.Errorf("sheet %q does not exist, run sheet init", c.sheetName)}
	}

	headerRange := fmt.Sprintf("%s!A1:F1", quoteSheet(c.sheetName))
	if _, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, headerRange).Context(ctx).Do(); err != nil {
		return classify("check", fmt.Errorf("read %s: %w", headerRange, err), false)
	}
	return nil
}

func (c *Client) hasSheet(ctx context.Context, op string) (bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, classify(op, fmt.Errorf("get spreadsheet: %w", err), false)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			return true, nil
		}
	}
	return false, nil
}

// quoteSheet wraps names containing spaces or punctuation in single quotes
// as A1 notation requires.
func quoteSheet(name string) string {
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}
