package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// Store is an in-process ledger. Appends with an ID already present are
// accepted without adding a second row.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	ids   map[uuid.UUID]struct{}

	// failAppend, when set, is consulted before every append. Returning a
	// non-nil error fails the call; applied reports whether the row is
	// stored anyway.
	failAppend func(tx core.Transaction) (applied bool, err error)
	failRead   func() error
}

var (
	_ ledger.Store        = (*Store)(nil)
	_ ledger.SetupChecker = (*Store)(nil)
)

func New(seed ...core.Transaction) *Store {
	s := &Store{ids: make(map[uuid.UUID]struct{})}
	for _, tx := range seed {
		s.add(tx)
	}
	return s
}

func (s *Store) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return &core.StoreError{Op: "append", Kind: core.ErrUnavailable, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppend != nil {
		if applied, err := s.failAppend(tx); err != nil {
			if applied {
				s.add(tx)
			}
			return err
		}
	}
	s.add(tx)
	return nil
}

func (s *Store) add(tx core.Transaction) {
	if tx.ID != uuid.Nil {
		if _, dup := s.ids[tx.ID]; dup {
			return
		}
		s.ids[tx.ID] = struct{}{}
	}
	s.items = append(s.items, tx)
}

func (s *Store) ReadAll(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.StoreError{Op: "read", Kind: core.ErrUnavailable, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRead != nil {
		if err := s.failRead(); err != nil {
			return nil, err
		}
	}
	out := make([]core.Transaction, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Check reports the same fault a read would.
func (s *Store) Check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead != nil {
		return s.failRead()
	}
	return nil
}

// EnsureReady has nothing to create.
func (s *Store) EnsureReady(ctx context.Context) error {
	return s.Check(ctx)
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// FailAppends installs a hook that can fail appends. Pass nil to clear it.
func (s *Store) FailAppends(fn func(tx core.Transaction) (applied bool, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = fn
}

// FailReads installs a hook that can fail reads. Pass nil to clear it.
func (s *Store) FailReads(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRead = fn
}
