package google

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Column order of a ledger row.
const (
	colDate = iota
	colAmount
	colCategory
	colType
	colRawText
	colID
)

var header = []string{"date", "amount", "category", "type", "raw_text", "id"}

// Layouts accepted for the date column besides serial numbers. Sheets may
// render a date cell using the spreadsheet locale.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"2/1/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// Day zero of the spreadsheet serial date system.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func headerRow() []any {
	out := make([]any, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}

func toRow(tx core.Transaction) []any {
	id := ""
	if tx.ID != uuid.Nil {
		id = tx.ID.String()
	}
	return []any{
		tx.Date.String(),
		tx.Amount.StringFixed(2),
		sanitizeCell(tx.Category),
		string(tx.Type),
		sanitizeCell(tx.RawText),
		id,
	}
}

// sanitizeCell keeps user text from being interpreted as a formula.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func safeGet(arr []any, idx int) any {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return nil
}

func isBlank(row []any) bool {
	for _, s := range toStrings(row) {
		if s != "" {
			return false
		}
	}
	return true
}

func isHeader(row []any) bool {
	return strings.EqualFold(cellString(safeGet(row, colDate)), header[colDate])
}

// parseRow converts a sheet row into a transaction. Legacy rows without an
// id column get uuid.Nil, and legacy expense rows stored as positive
// amounts are flipped so the sign matches the type.
func parseRow(row []any) (core.Transaction, error) {
	date, err := parseSheetDate(safeGet(row, colDate))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := parseSheetAmount(safeGet(row, colAmount))
	if err != nil {
		return core.Transaction{}, err
	}

	typ, ok := core.ParseTxType(cellString(safeGet(row, colType)))
	if !ok {
		typ = core.Expense
		if amount.IsPositive() {
			typ = core.Income
		}
	}
	if typ == core.Expense {
		amount = amount.Abs().Neg()
	} else {
		amount = amount.Abs()
	}

	category := cellString(safeGet(row, colCategory))
	if category == "" {
		category = core.Uncategorized
	}

	var id uuid.UUID
	if raw := cellString(safeGet(row, colID)); raw != "" {
		if id, err = uuid.Parse(raw); err != nil {
			return core.Transaction{}, fmt.Errorf("id %q: %w", raw, err)
		}
	}

	tx := core.Transaction{
		ID:       id,
		Date:     date,
		Amount:   amount,
		Category: category,
		Type:     typ,
		RawText:  cellString(safeGet(row, colRawText)),
	}
	if tx.Amount.IsZero() {
		return core.Transaction{}, core.ErrZeroAmount
	}
	return tx, nil
}

func parseSheetDate(v any) (core.Date, error) {
	switch x := v.(type) {
	case float64:
		if x <= 0 || x != math.Trunc(x) {
			return core.Date{}, fmt.Errorf("%w: serial %v", core.ErrInvalidDate, x)
		}
		return core.DateOf(serialEpoch.AddDate(0, 0, int(x))), nil
	default:
		s := cellString(v)
		if s == "" {
			return core.Date{}, fmt.Errorf("%w: empty", core.ErrInvalidDate)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return core.DateOf(t), nil
			}
		}
		return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
	}
}

func parseSheetAmount(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x).Round(2), nil
	case nil:
		return decimal.Decimal{}, errors.New("missing amount")
	default:
		d, err := core.ParseAmount(cellString(v))
		if err != nil {
			return decimal.Decimal{}, err
		}
		return d.Round(2), nil
	}
}
