package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"fintrack/internal/core"
)

// Query selects a date range and grouping. Zero From or To leaves that end
// of the range open.
type Query struct {
	From    core.Date
	To      core.Date
	GroupBy GroupBy
}

// Fingerprint identifies the query in the analytics cache. Equal queries
// always produce equal fingerprints.
func (q Query) Fingerprint() string {
	canonical := fmt.Sprintf("summary|group_by=%s|from=%s|to=%s", q.GroupBy, q.From, q.To)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func (q Query) Validate() error {
	if _, err := keyFunc(q.GroupBy); err != nil {
		return err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From.Time) {
		return fmt.Errorf("%w: range ends (%s) before it starts (%s)", core.ErrInvalidDate, q.To, q.From)
	}
	return nil
}

// Filter keeps the transactions whose date falls inside the range,
// inclusive on both ends.
func (q Query) Filter(txs []core.Transaction) []core.Transaction {
	if q.From.IsZero() && q.To.IsZero() {
		return txs
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !q.From.IsZero() && tx.Date.Before(q.From.Time) {
			continue
		}
		if !q.To.IsZero() && tx.Date.After(q.To.Time) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Run filters txs and summarizes them.
func (q Query) Run(txs []core.Transaction) (Result, error) {
	return Summarize(q.Filter(txs), q.GroupBy)
}
