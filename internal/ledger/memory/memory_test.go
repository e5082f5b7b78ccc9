package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

func expense(amount int64, category string) core.Transaction {
	return core.Transaction{
		ID:       uuid.New(),
		Date:     core.NewDate(2025, 3, 14),
		Amount:   decimal.NewFromInt(-amount),
		Category: category,
		Type:     core.Expense,
		RawText:  "test",
	}
}

func TestMemoryStoreAppendAndReadAll(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, b := expense(250, "groceries"), expense(50, "groceries")
	if err := s.Append(ctx, a); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, b); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("unexpected rows: %+v", got)
	}

	// Returned slice is a copy.
	got[0].Category = "mutated"
	again, _ := s.ReadAll(ctx)
	if again[0].Category != "groceries" {
		t.Fatalf("store mutated through returned slice")
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	bad := expense(10, "rent")
	bad.Amount = bad.Amount.Neg() // positive expense
	if err := New().Append(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMemoryStoreDuplicateIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx := expense(10, "rent")
	_ = s.Append(ctx, tx)
	_ = s.Append(ctx, tx)
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestMemoryStoreFailureHooks(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx := expense(10, "rent")

	s.FailAppends(func(core.Transaction) (bool, error) {
		return true, &core.StoreError{Op: "append", Kind: core.ErrUnavailable, Ambiguous: true}
	})
	err := s.Append(ctx, tx)
	if !core.IsAmbiguous(err) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	found, err := ledger.Contains(ctx, s, tx.ID)
	if err != nil || !found {
		t.Fatalf("Contains = %v, %v; want true", found, err)
	}

	s.FailAppends(nil)
	s.FailReads(func() error { return &core.StoreError{Op: "read", Kind: core.ErrRateLimited} })
	if _, err := s.ReadAll(ctx); !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if err := s.EnsureReady(ctx); !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("EnsureReady = %v, want rate limited", err)
	}
	if err := s.Check(ctx); !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("Check = %v, want rate limited", err)
	}
	s.FailReads(nil)
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady = %v, want nil", err)
	}
}

func TestContainsNilID(t *testing.T) {
	found, err := ledger.Contains(context.Background(), New(), uuid.Nil)
	if err != nil || found {
		t.Fatalf("Contains(nil) = %v, %v", found, err)
	}
}
