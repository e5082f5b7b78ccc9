// Package ledger defines the ports for the append-only transaction ledger.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// Appender writes one transaction. Failures are *core.StoreError.
	Appender interface {
		Append(ctx context.Context, tx core.Transaction) error
	}

	// Reader returns every transaction in storage order.
	Reader interface {
		ReadAll(ctx context.Context) ([]core.Transaction, error)
	}

	Store interface {
		Appender
		Reader
	}

	// SetupChecker is implemented by stores that can verify or create their
	// backing structure (sheet tab, header row, schema).
	SetupChecker interface {
		EnsureReady(ctx context.Context) error
	}

	// Checker is implemented by stores that can verify they are reachable
	// and set up without changing anything. /readyz uses it.
	Checker interface {
		Check(ctx context.Context) error
	}

	// Finder is implemented by stores that can look up a single id without
	// reading the whole ledger.
	Finder interface {
		Has(ctx context.Context, id uuid.UUID) (bool, error)
	}
)

// Contains re-reads the ledger looking for id. It is used after an append
// whose outcome is unknown, before deciding whether to report failure.
func Contains(ctx context.Context, r Reader, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if f, ok := r.(Finder); ok {
		return f.Has(ctx, id)
	}
	txs, err := r.ReadAll(ctx)
	if err != nil {
		return false, fmt.Errorf("re-read ledger: %w", err)
	}
	for _, tx := range txs {
		if tx.ID == id {
			return true, nil
		}
	}
	return false, nil
}
