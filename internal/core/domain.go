package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"

	// Uncategorized is assigned when no configured category matches.
	Uncategorized = "uncategorized"

	dateLayout = "2006-01-02"
)

type (
	TxType string

	Date struct {
		time.Time
	}

	// Transaction is a normalized ledger row. Once appended it is never
	// modified or deleted.
	Transaction struct {
		ID       uuid.UUID       `json:"id"`
		Date     Date            `json:"date"`
		Amount   decimal.Decimal `json:"amount"`
		Category string          `json:"category"`
		Type     TxType          `json:"type"`
		RawText  string          `json:"raw_text"`
	}

	// PartialTransaction is what extraction produced. Unset fields stay at
	// their zero value: a nil Amount, an empty Date, Category or Type.
	PartialTransaction struct {
		Amount   *decimal.Decimal
		Date     string
		Category string
		Type     TxType
		RawText  string
	}
)

// ParseTxType accepts the common spellings of a transaction type.
func ParseTxType(s string) (TxType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "credit", "in", "earning", "earnings":
		return Income, true
	case "expense", "expenses", "debit", "out", "spending":
		return Expense, true
	}
	return "", false
}

func (t TxType) IsValid() bool {
	return t == Income || t == Expense
}

func (t TxType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses the ledger's YYYY-MM-DD date format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MonthKey returns the YYYY-MM bucket the date belongs to.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the invariants every stored transaction must satisfy.
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if t.Type == Expense && t.Amount.IsPositive() {
		return errors.New("expense amount must be negative")
	}
	if t.Type == Income && t.Amount.IsNegative() {
		return errors.New("income amount must be positive")
	}
	if strings.TrimSpace(t.Category) == "" {
		return errors.New("empty category")
	}
	return nil
}

// HasAmount reports whether extraction produced an amount.
func (p PartialTransaction) HasAmount() bool {
	return p.Amount != nil
}
