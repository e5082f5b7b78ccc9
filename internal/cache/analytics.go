package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces a fresh value on a cache miss.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

type versioned[T any] struct {
	version uint64
	value   T
}

// Analytics memoizes derived values keyed by a query fingerprint. Every
// entry is tagged with the ledger write-counter it was computed under and
// is only served while the caller presents the same version.
type Analytics[T any] struct {
	entries *LRUCache[versioned[T]]
	group   singleflight.Group

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}

func NewAnalytics[T any](maxSize int, ttl time.Duration) *Analytics[T] {
	return &Analytics[T]{
		entries: NewLRUCache[versioned[T]](maxSize, ttl),
	}
}

// GetOrCompute returns the value cached for fingerprint if it was computed
// under version. Otherwise it runs compute, stores the result tagged with
// version and returns it. Concurrent misses for the same key share a single
// compute call. Errors are never cached.
func (a *Analytics[T]) GetOrCompute(ctx context.Context, version uint64, fingerprint string, compute ComputeFunc[T]) (T, error) {
	if e, ok := a.entries.Get(fingerprint); ok && e.version == version {
		a.hits.Add(1)
		return e.value, nil
	}
	a.misses.Add(1)

	key := fmt.Sprintf("%s@%d", fingerprint, version)
	v, err, _ := a.group.Do(key, func() (any, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		a.store(fingerprint, version, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// store keeps the newest version when computes for different versions race.
func (a *Analytics[T]) store(fingerprint string, version uint64, value T) {
	if e, ok := a.entries.Get(fingerprint); ok && e.version > version {
		return
	}
	a.entries.Set(fingerprint, versioned[T]{version: version, value: value})
}

// InvalidateAll drops every cached entry.
func (a *Analytics[T]) InvalidateAll() {
	a.entries.Purge()
	a.invalidations.Add(1)
}

func (a *Analytics[T]) CleanExpired() int {
	return a.entries.CleanExpired()
}

func (a *Analytics[T]) Stats() Stats {
	return Stats{
		Hits:          a.hits.Load(),
		Misses:        a.misses.Load(),
		Invalidations: a.invalidations.Load(),
		Entries:       a.entries.Size(),
	}
}
