package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/nlu"
)

var fixedNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func groceriesExtractor() nlu.Extractor {
	return nlu.ExtractorFunc(func(_ context.Context, text string) (core.PartialTransaction, error) {
		return core.PartialTransaction{
			Amount:   decimalPtr("250"),
			Date:     "yesterday",
			Category: "groceries",
			Type:     core.Expense,
			RawText:  text,
		}, nil
	})
}

func newTestController(x nlu.Extractor) (*Controller, *memory.Store) {
	store := memory.New()
	normalizer := core.NewNormalizer(
		core.NewCategories("groceries", "rent", "salary", "other"),
		core.WithClock(func() time.Time { return fixedNow }),
	)
	l := NewLedger(store, LedgerConfig{})
	return NewController(x, normalizer, l, WithClock(func() time.Time { return fixedNow })), store
}

func TestSubmitConfirm(t *testing.T) {
	ctx := context.Background()
	c, store := newTestController(groceriesExtractor())
	s := NewSession("s1")

	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	require.Equal(t, StateConfirming, s.State)
	require.NotNil(t, s.Pending)

	p := *s.Pending
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(-250)))
	assert.Equal(t, "groceries", p.Category)
	assert.Equal(t, core.Expense, p.Type)
	assert.Equal(t, core.NewDate(2025, 3, 14), p.Date)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Zero(t, store.Len(), "nothing is written before confirmation")

	require.NoError(t, c.Confirm(ctx, s))
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Pending)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, uint64(1), c.Ledger().Version())

	txs, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, txs[0].ID)

	v := s.View()
	require.Len(t, v.History, 3)
	assert.Equal(t, RoleUser, v.History[0].Role)
	assert.Contains(t, v.History[2].Text, "Saved.")
}

func TestConfirmTwiceWritesOnce(t *testing.T) {
	ctx := context.Background()
	c, store := newTestController(groceriesExtractor())
	s := NewSession("s1")
	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Confirm(ctx, s)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidTransition)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	c, store := newTestController(groceriesExtractor())
	s := NewSession("s1")

	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	require.NoError(t, c.Cancel(ctx, s))
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Pending)
	assert.Zero(t, store.Len())

	assert.ErrorIs(t, c.Confirm(ctx, s), ErrInvalidTransition)
	assert.ErrorIs(t, c.Cancel(ctx, s), ErrInvalidTransition)
}

func TestAmendBeforeConfirm(t *testing.T) {
	ctx := context.Background()
	c, store := newTestController(groceriesExtractor())
	s := NewSession("s1")

	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	id := s.Pending.ID

	require.NoError(t, c.Amend(ctx, s, "2025-03-10", "rent"))
	require.Equal(t, StateConfirming, s.State)
	p := *s.Pending
	assert.Equal(t, id, p.ID)
	assert.Equal(t, core.NewDate(2025, 3, 10), p.Date)
	assert.Equal(t, "rent", p.Category)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(-250)))
	assert.Equal(t, core.Expense, p.Type)
	assert.Zero(t, store.Len())

	// Blank fields keep what is already pending.
	require.NoError(t, c.Amend(ctx, s, "", ""))
	assert.Equal(t, core.NewDate(2025, 3, 10), s.Pending.Date)
	assert.Equal(t, "rent", s.Pending.Category)

	require.NoError(t, c.Confirm(ctx, s))
	txs, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, id, txs[0].ID)
	assert.Equal(t, core.NewDate(2025, 3, 10), txs[0].Date)
	assert.Equal(t, "rent", txs[0].Category)
}

func TestAmendUnknownCategory(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(groceriesExtractor())
	s := NewSession("s1")

	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	require.NoError(t, c.Amend(ctx, s, "", "spaceships"))
	assert.Equal(t, core.Uncategorized, s.Pending.Category)
	assert.Equal(t, core.NewDate(2025, 3, 14), s.Pending.Date)
}

func TestAmendInvalidDateKeepsPending(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(groceriesExtractor())
	s := NewSession("s1")

	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	before := *s.Pending

	err := c.Amend(ctx, s, "not a date", "rent")
	require.ErrorIs(t, err, core.ErrInvalidDate)
	assert.Equal(t, StateConfirming, s.State)
	assert.Equal(t, before, *s.Pending)
	assert.NotEmpty(t, s.Notice)

	err = c.Amend(ctx, s, "2025-12-31", "")
	require.ErrorIs(t, err, core.ErrInvalidDate, "too far in the future")
	assert.Equal(t, before, *s.Pending)

	require.NoError(t, c.Amend(ctx, s, "2025-03-01", ""))
	assert.Empty(t, s.Notice)
}

func TestAmendOutsideConfirmingIsRejected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(groceriesExtractor())
	s := NewSession("s1")

	assert.ErrorIs(t, c.Amend(ctx, s, "2025-03-10", "rent"), ErrInvalidTransition)
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Pending)
}

func TestSubmitWhileConfirmingIsRejected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(groceriesExtractor())
	s := NewSession("s1")
	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))

	err := c.Submit(ctx, s, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateConfirming, s.State, "pending transaction is kept")
}

func TestSubmitMissingAmount(t *testing.T) {
	ctx := context.Background()
	x := nlu.ExtractorFunc(func(_ context.Context, text string) (core.PartialTransaction, error) {
		return core.PartialTransaction{Category: "groceries", RawText: text}, nil
	})
	c, _ := newTestController(x)
	s := NewSession("s1")

	err := c.Submit(ctx, s, "bought groceries")
	assert.ErrorIs(t, err, core.ErrMissingAmount)
	assert.Equal(t, StateError, s.State)
	assert.Contains(t, s.Notice, "amount")

	require.NoError(t, c.Acknowledge(ctx, s))
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Notice)
}

func TestSubmitFromErrorAcknowledgesImplicitly(t *testing.T) {
	ctx := context.Background()
	calls := 0
	x := nlu.ExtractorFunc(func(ctx context.Context, text string) (core.PartialTransaction, error) {
		calls++
		if calls == 1 {
			return core.PartialTransaction{}, core.ErrServiceUnavailable
		}
		return groceriesExtractor().Extract(ctx, text)
	})
	c, _ := newTestController(x)
	s := NewSession("s1")

	assert.ErrorIs(t, c.Submit(ctx, s, "Spent 250"), core.ErrServiceUnavailable)
	assert.Equal(t, StateError, s.State)

	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	assert.Equal(t, StateConfirming, s.State)
}

func TestSubmitEmpty(t *testing.T) {
	called := false
	x := nlu.ExtractorFunc(func(context.Context, string) (core.PartialTransaction, error) {
		called = true
		return core.PartialTransaction{}, nil
	})
	c, _ := newTestController(x)
	s := NewSession("s1")

	assert.ErrorIs(t, c.Submit(context.Background(), s, "   "), core.ErrEmptyInput)
	assert.False(t, called)
	assert.Equal(t, StateError, s.State)
}

func TestConfirmStoreFailure(t *testing.T) {
	ctx := context.Background()
	c, store := newTestController(groceriesExtractor())
	store.FailAppends(func(core.Transaction) (bool, error) {
		return false, &core.StoreError{Op: "append", Kind: core.ErrAuthFailure}
	})
	s := NewSession("s1")
	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))

	err := c.Confirm(ctx, s)
	assert.ErrorIs(t, err, core.ErrAuthFailure)
	assert.Equal(t, StateError, s.State)
	assert.Nil(t, s.Pending)
	assert.Equal(t, uint64(0), c.Ledger().Version())
}

func TestAcknowledgeStates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(groceriesExtractor())
	s := NewSession("s1")

	assert.NoError(t, c.Acknowledge(ctx, s), "idle acknowledge is a no-op")
	require.NoError(t, c.Submit(ctx, s, "Spent 250 on groceries yesterday"))
	assert.ErrorIs(t, c.Acknowledge(ctx, s), ErrInvalidTransition)
}

func TestUserMessage(t *testing.T) {
	cases := map[error]string{
		core.ErrServiceUnavailable: "unavailable",
		core.ErrUnparseable:        "couldn't read",
		core.ErrInvalidDate:        "date",
		&core.StoreError{Op: "append", Kind: core.ErrRateLimited}:                  "busy",
		&core.StoreError{Op: "append", Kind: core.ErrUnavailable, Ambiguous: true}: "may or may not",
		&core.StoreError{Op: "append", Kind: core.ErrUnavailable}:                  "unavailable",
	}
	for err, want := range cases {
		assert.Contains(t, UserMessage(err), want, "error %v", err)
	}
	assert.Empty(t, UserMessage(nil))
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(2, time.Hour)

	s, created := store.Get("")
	require.True(t, created)
	again, created := store.Get(s.ID)
	assert.False(t, created)
	assert.Same(t, s, again)

	_, created = store.Get("unknown")
	assert.True(t, created)
	assert.Equal(t, 2, store.Len())

	store.Delete(s.ID)
	_, created = store.Get(s.ID)
	assert.True(t, created)
}

func TestHistoryIsBounded(t *testing.T) {
	s := NewSession("s1")
	for i := 0; i < maxHistory+10; i++ {
		s.say(RoleUser, "hi", fixedNow)
	}
	assert.Len(t, s.History, maxHistory)
}
