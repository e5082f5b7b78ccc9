// Package analytics aggregates ledger transactions for the dashboard.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type GroupBy string

const (
	ByCategory GroupBy = "category"
	ByMonth    GroupBy = "month"
	ByType     GroupBy = "type"
)

var ErrInvalidGroupBy = errors.New("invalid group_by")

// ParseGroupBy accepts category, month or type. Empty defaults to category.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return ByCategory, nil
	case ByCategory, ByMonth, ByType:
		return g, nil
	}
	return "", fmt.Errorf("%w %q: must be one of category, month, type", ErrInvalidGroupBy, s)
}

func GroupByValues() []GroupBy {
	return []GroupBy{ByCategory, ByMonth, ByType}
}

// Group is one bucket of a summary. Total is the signed sum; Running is
// the cumulative Total over the groups up to and including this one.
type Group struct {
	Key      string          `json:"key"`
	Total    decimal.Decimal `json:"total"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Count    int             `json:"count"`
	Running  decimal.Decimal `json:"running"`
}

// Result is the output of Summarize. Expenses is reported as a negative
// sum, matching the ledger's sign convention.
type Result struct {
	GroupBy  GroupBy         `json:"group_by"`
	Groups   []Group         `json:"groups"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
	Count    int             `json:"count"`
}

func (r Result) IsEmpty() bool {
	return r.Count == 0
}

// Group returns the bucket with the given key.
func (r Result) Group(key string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

// Summarize groups txs by the requested dimension and sums each group.
// Month groups are chronological, other groups are sorted by key. An empty
// input yields an empty result.
func Summarize(txs []core.Transaction, groupBy GroupBy) (Result, error) {
	keyOf, err := keyFunc(groupBy)
	if err != nil {
		return Result{}, err
	}

	res := Result{GroupBy: groupBy, Groups: []Group{}}
	if len(txs) == 0 {
		return res, nil
	}

	buckets := make(map[string]*Group)
	for _, tx := range txs {
		key := keyOf(tx)
		g, ok := buckets[key]
		if !ok {
			g = &Group{Key: key}
			buckets[key] = g
		}
		g.Total = g.Total.Add(tx.Amount)
		g.Count++
		if tx.Type == core.Income {
			g.Income = g.Income.Add(tx.Amount)
			res.Income = res.Income.Add(tx.Amount)
		} else {
			g.Expenses = g.Expenses.Add(tx.Amount)
			res.Expenses = res.Expenses.Add(tx.Amount)
		}
		res.Count++
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	// YYYY-MM keys sort chronologically as strings.
	sort.Strings(keys)

	running := decimal.Zero
	for _, k := range keys {
		g := *buckets[k]
		running = running.Add(g.Total)
		g.Running = running
		res.Groups = append(res.Groups, g)
	}
	res.Net = res.Income.Add(res.Expenses)
	return res, nil
}

func keyFunc(groupBy GroupBy) (func(core.Transaction) string, error) {
	switch groupBy {
	case ByCategory:
		return func(tx core.Transaction) string { return tx.Category }, nil
	case ByMonth:
		return func(tx core.Transaction) string { return tx.Date.MonthKey() }, nil
	case ByType:
		return func(tx core.Transaction) string { return string(tx.Type) }, nil
	}
	return nil, fmt.Errorf("%w %q", ErrInvalidGroupBy, groupBy)
}

// Recent returns up to n transactions, newest first.
func Recent(txs []core.Transaction, n int) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
