// Package worker copies recorded transactions into a replica ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

// Mirror appends each recorded transaction to a target store exactly once.
// Redelivered events and rows copied by Backfill are recognised by ID.
type Mirror struct {
	target ledger.Store
	logger *slog.Logger

	mirrored atomic.Int64
	skipped  atomic.Int64
}

// MirrorStats counts what the mirror has done since it started.
type MirrorStats struct {
	Mirrored int64 `json:"mirrored"`
	Skipped  int64 `json:"skipped"`
}

func NewMirror(target ledger.Store, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{target: target, logger: logger}
}

// HandleTransactionRecorded is an events.Handler.
func (m *Mirror) HandleTransactionRecorded(ctx context.Context, msg *events.TransactionRecorded) error {
	tx, err := msg.Transaction()
	if err != nil {
		return err
	}

	copied, err := m.copy(ctx, tx)
	if err != nil {
		return err
	}
	if copied {
		m.logger.InfoContext(ctx, "Mirrored transaction",
			applog.FieldTxID, tx.ID,
			applog.FieldVersion, msg.Version,
			applog.FieldAmount, tx.Amount.StringFixed(2),
			applog.FieldCategory, tx.Category)
	}
	return nil
}

// Backfill copies every source row missing from the target, in source
// order. It returns the number of rows copied.
func (m *Mirror) Backfill(ctx context.Context, source ledger.Reader) (int, error) {
	rows, err := source.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read source ledger: %w", err)
	}
	existing, err := m.target.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read target ledger: %w", err)
	}

	have := make(map[uuid.UUID]struct{}, len(existing))
	for _, tx := range existing {
		have[tx.ID] = struct{}{}
	}

	copied := 0
	for _, tx := range rows {
		if _, ok := have[tx.ID]; ok || tx.ID == uuid.Nil {
			continue
		}
		if err := m.target.Append(ctx, tx); err != nil {
			return copied, fmt.Errorf("append %s: %w", tx.ID, err)
		}
		have[tx.ID] = struct{}{}
		copied++
		m.mirrored.Add(1)
	}

	m.logger.InfoContext(ctx, "Backfill complete", "copied", copied, "source_rows", len(rows))
	return copied, nil
}

func (m *Mirror) Stats() MirrorStats {
	return MirrorStats{Mirrored: m.mirrored.Load(), Skipped: m.skipped.Load()}
}

// copy appends tx unless the target already has it. An ambiguous append
// is resolved by looking the ID up again.
func (m *Mirror) copy(ctx context.Context, tx core.Transaction) (bool, error) {
	found, err := m.has(ctx, tx.ID)
	if err != nil {
		return false, err
	}
	if found {
		m.skipped.Add(1)
		m.logger.DebugContext(ctx, "Transaction already mirrored", applog.FieldTxID, tx.ID)
		return false, nil
	}

	if err := m.target.Append(ctx, tx); err != nil {
		if !core.IsAmbiguous(err) {
			return false, err
		}
		if found, lookupErr := m.has(ctx, tx.ID); lookupErr != nil || !found {
			return false, err
		}
	}
	m.mirrored.Add(1)
	return true, nil
}

func (m *Mirror) has(ctx context.Context, id uuid.UUID) (bool, error) {
	if f, ok := m.target.(ledger.Finder); ok {
		return f.Has(ctx, id)
	}
	return ledger.Contains(ctx, m.target, id)
}
