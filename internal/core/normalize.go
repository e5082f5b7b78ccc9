package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxFutureDays is how far ahead of today a date may lie.
const DefaultMaxFutureDays = 31

var (
	relativeDays = []struct {
		phrase string
		offset int
	}{
		{"day before yesterday", -2},
		{"day after tomorrow", 2},
		{"yesterday", -1},
		{"tomorrow", 1},
		{"today", 0},
		{"tonight", 0},
		{"this morning", 0},
	}

	agoPattern  = regexp.MustCompile(`(\d+)\s+(day|week|month)s?\s+ago`)
	lastPattern = regexp.MustCompile(`last\s+(\d+)?\s*(day|week|month)s?`)
	nextPattern = regexp.MustCompile(`(?:next|in)\s+(\d+)\s+(day|week|month)s?`)

	dateLayouts = []string{
		"2006-01-02",
		"2006/01/02",
		"2006-1-2",
		"02/01/2006",
		"2/1/2006",
		"02-01-2006",
		"2-1-2006",
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"Jan 2 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
)

// Normalizer turns a PartialTransaction into a valid Transaction. It is
// pure given its clock.
type Normalizer struct {
	categories    *Categories
	now           func() time.Time
	maxFutureDays int
}

type NormalizerOption func(*Normalizer)

// WithClock overrides the time source used to resolve relative dates.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

// WithMaxFutureDays sets how far in the future a date may be.
func WithMaxFutureDays(days int) NormalizerOption {
	return func(n *Normalizer) { n.maxFutureDays = days }
}

func NewNormalizer(categories *Categories, opts ...NormalizerOption) *Normalizer {
	if categories == nil {
		categories = DefaultCategories()
	}
	n := &Normalizer{
		categories:    categories,
		now:           time.Now,
		maxFutureDays: DefaultMaxFutureDays,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Categories() *Categories {
	return n.categories
}

// Normalize validates p and produces a ledger-ready transaction. The ID is
// left empty; callers mint one per submission.
func (n *Normalizer) Normalize(p PartialTransaction) (Transaction, error) {
	if p.Amount == nil {
		return Transaction{}, ErrMissingAmount
	}
	amount := p.Amount.Round(2)
	if amount.IsZero() {
		return Transaction{}, ErrZeroAmount
	}

	today := DateOf(n.now())
	date, err := ResolveDate(p.Date, today)
	if err != nil {
		return Transaction{}, err
	}
	if date.After(today.AddDate(0, 0, n.maxFutureDays)) {
		return Transaction{}, fmt.Errorf("%w: %s is too far in the future", ErrInvalidDate, date)
	}

	txType := p.Type
	if !txType.IsValid() {
		// An untyped statement is read as spending.
		txType = Expense
	}

	amount = amount.Abs()
	if txType == Expense {
		amount = amount.Neg()
	}

	return Transaction{
		Date:     date,
		Amount:   amount,
		Category: n.categories.MatchFor(txType, p.Category),
		Type:     txType,
		RawText:  strings.TrimSpace(p.RawText),
	}, nil
}

// ResolveDate interprets raw relative to today. An empty string means
// today. Relative phrases ("yesterday", "3 days ago", "last week") and the
// common explicit layouts are accepted; anything else is ErrInvalidDate.
func ResolveDate(raw string, today Date) (Date, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return today, nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return validYear(DateOf(t), raw)
		}
	}

	for _, rel := range relativeDays {
		if strings.Contains(text, rel.phrase) {
			return Date{Time: today.AddDate(0, 0, rel.offset)}, nil
		}
	}

	if m := agoPattern.FindStringSubmatch(text); m != nil {
		return shift(today, m[1], m[2], -1)
	}
	if m := lastPattern.FindStringSubmatch(text); m != nil {
		return shift(today, m[1], m[2], -1)
	}
	if m := nextPattern.FindStringSubmatch(text); m != nil {
		return shift(today, m[1], m[2], 1)
	}

	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func shift(today Date, count, unit string, sign int) (Date, error) {
	n := 1
	if count != "" {
		v, err := strconv.Atoi(count)
		if err != nil || v > 3650 {
			return Date{}, fmt.Errorf("%w: offset %q", ErrInvalidDate, count)
		}
		n = v
	}
	switch unit {
	case "week":
		n *= 7
	case "month":
		// Months are approximated as 30 days, like the sheet template does.
		n *= 30
	}
	return Date{Time: today.AddDate(0, 0, sign*n)}, nil
}

func validYear(d Date, raw string) (Date, error) {
	if d.Year() < 1900 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}
