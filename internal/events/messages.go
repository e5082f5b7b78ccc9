package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// ErrMalformedMessage marks a message that can never be processed.
// Consumers drop such messages instead of requeueing them.
var ErrMalformedMessage = errors.New("malformed message")

// TransactionRecorded is published after a transaction has been appended
// to the ledger. Version is the ledger write-counter after the append.
type TransactionRecorded struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Amount    string    `json:"amount"`
	Category  string    `json:"category"`
	Type      string    `json:"type"`
	RawText   string    `json:"raw_text,omitempty"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionRecorded(tx core.Transaction, version uint64) *TransactionRecorded {
	return &TransactionRecorded{
		ID:        tx.ID.String(),
		Date:      tx.Date.String(),
		Amount:    tx.Amount.StringFixed(2),
		Category:  tx.Category,
		Type:      string(tx.Type),
		RawText:   tx.RawText,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TransactionRecorded) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedFromJSON(data []byte) (*TransactionRecorded, error) {
	var msg TransactionRecorded
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// Transaction rebuilds the recorded transaction. Errors wrap
// ErrMalformedMessage.
func (m *TransactionRecorded) Transaction() (core.Transaction, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil || id == uuid.Nil {
		return core.Transaction{}, fmt.Errorf("%w: id %q", ErrMalformedMessage, m.ID)
	}
	date, err := core.ParseDate(m.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: amount %q", ErrMalformedMessage, m.Amount)
	}

	tx := core.Transaction{
		ID:       id,
		Date:     date,
		Amount:   amount,
		Category: m.Category,
		Type:     core.TxType(m.Type),
		RawText:  m.RawText,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return tx, nil
}
