package chat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

const rowsFingerprint = "ledger|rows"

// Ledger owns the store, the write-counter and the caches derived from the
// ledger. Every successful append bumps the counter and drops every cached
// value, so cached analytics never outlive the data they were computed
// from.
type Ledger struct {
	store        ledger.Store
	results      *cache.Analytics[analytics.Result]
	rows         *cache.Analytics[[]core.Transaction]
	publisher    events.Publisher
	storeTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	version atomic.Uint64
}

type LedgerConfig struct {
	CacheSize    int
	CacheTTL     time.Duration
	StoreTimeout time.Duration
	Publisher    events.Publisher
	Logger       *slog.Logger
}

func NewLedger(store ledger.Store, cfg LedgerConfig) *Ledger {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ledger{
		store:        store,
		results:      cache.NewAnalytics[analytics.Result](cfg.CacheSize, cfg.CacheTTL),
		rows:         cache.NewAnalytics[[]core.Transaction](1, cfg.CacheTTL),
		publisher:    cfg.Publisher,
		storeTimeout: cfg.StoreTimeout,
		logger:       cfg.Logger,
	}
}

// Version returns the current write-counter.
func (l *Ledger) Version() uint64 {
	return l.version.Load()
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.storeTimeout > 0 {
		return context.WithTimeout(ctx, l.storeTimeout)
	}
	return context.WithCancel(ctx)
}

// Append writes tx and, on success, bumps the write-counter, invalidates
// the caches and publishes an event. When the store cannot tell whether
// the write landed, the ledger is re-read for tx.ID before reporting a
// failure. The write is detached from ctx cancellation so a client that
// goes away mid-request cannot leave the outcome unknown.
func (l *Ledger) Append(ctx context.Context, tx core.Transaction) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wctx, cancel := l.withTimeout(context.WithoutCancel(ctx))
	err := l.store.Append(wctx, tx)
	cancel()

	if err != nil && core.IsAmbiguous(err) {
		rctx, cancel := l.withTimeout(context.WithoutCancel(ctx))
		found, rerr := ledger.Contains(rctx, l.store, tx.ID)
		cancel()
		switch {
		case rerr != nil:
			l.logger.WarnContext(ctx, "Re-read after ambiguous append failed", applog.FieldTxID, tx.ID, applog.FieldError, rerr)
		case found:
			l.logger.InfoContext(ctx, "Ambiguous append was applied", applog.FieldTxID, tx.ID)
			err = nil
		}
	}
	if err != nil {
		return l.version.Load(), err
	}

	v := l.version.Add(1)
	l.results.InvalidateAll()
	l.rows.InvalidateAll()

	if perr := l.publisher.PublishTransactionRecorded(ctx, tx, v); perr != nil {
		l.logger.WarnContext(ctx, "Failed to publish transaction event", applog.FieldTxID, tx.ID, applog.FieldError, perr)
	}
	return v, nil
}

// Transactions returns every ledger row, reading the store at most once
// per write-counter value.
func (l *Ledger) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return l.rows.GetOrCompute(ctx, l.Version(), rowsFingerprint, func(ctx context.Context) ([]core.Transaction, error) {
		rctx, cancel := l.withTimeout(ctx)
		defer cancel()
		start := time.Now()
		txs, err := l.store.ReadAll(rctx)
		if err != nil {
			return nil, err
		}
		l.logger.DebugContext(ctx, "Ledger read", "rows", len(txs), applog.FieldDuration, time.Since(start).Milliseconds())
		return txs, nil
	})
}

// Summary answers q from the analytics cache, computing it from a fresh
// ledger read on a miss.
func (l *Ledger) Summary(ctx context.Context, q analytics.Query) (analytics.Result, error) {
	if q.GroupBy == "" {
		q.GroupBy = analytics.ByCategory
	}
	if err := q.Validate(); err != nil {
		return analytics.Result{}, err
	}
	version := l.Version()
	fp := q.Fingerprint()
	return l.results.GetOrCompute(ctx, version, fp, func(ctx context.Context) (analytics.Result, error) {
		l.logger.DebugContext(ctx, "Computing summary", applog.NewFields().WithCache(fp[:12], version).ToSlice()...)
		txs, err := l.Transactions(ctx)
		if err != nil {
			return analytics.Result{}, err
		}
		return q.Run(txs)
	})
}

// Recent returns the n newest transactions.
func (l *Ledger) Recent(ctx context.Context, n int) ([]core.Transaction, error) {
	txs, err := l.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.Recent(txs, n), nil
}

// Ready checks the backing store without modifying it.
func (l *Ledger) Ready(ctx context.Context) error {
	c, ok := l.store.(ledger.Checker)
	if !ok {
		return nil
	}
	rctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return c.Check(rctx)
}

// Stats reports cache counters and the write-counter.
type Stats struct {
	Version uint64      `json:"version"`
	Results cache.Stats `json:"results"`
	Rows    cache.Stats `json:"rows"`
}

func (l *Ledger) Stats() Stats {
	return Stats{Version: l.Version(), Results: l.results.Stats(), Rows: l.rows.Stats()}
}

// CleanExpired sweeps expired cache entries.
func (l *Ledger) CleanExpired() int {
	return l.results.CleanExpired() + l.rows.CleanExpired()
}
