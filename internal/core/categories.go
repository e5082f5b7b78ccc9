package core

import (
	"strings"
)

// maxCategoryDistance bounds the edit distance accepted as a typo match.
const maxCategoryDistance = 2

// Categories is the configured category set. Names keep their configured
// spelling; matching is case-insensitive.
type Categories struct {
	names  []string
	byType map[TxType][]string
	index  map[string]string
}

// NewCategories builds a set valid for both transaction types.
func NewCategories(names ...string) *Categories {
	return NewTypedCategories(names, names)
}

// NewTypedCategories builds a set from separate expense and income lists.
// A name may appear in both.
func NewTypedCategories(expense, income []string) *Categories {
	c := &Categories{
		byType: make(map[TxType][]string),
		index:  make(map[string]string),
	}
	add := func(t TxType, names []string) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			key := categoryKey(n)
			if _, ok := c.index[key]; !ok {
				c.index[key] = n
				c.names = append(c.names, n)
			}
			c.byType[t] = appendUnique(c.byType[t], c.index[key])
		}
	}
	add(Expense, expense)
	add(Income, income)
	return c
}

// DefaultCategories mirrors the stock spreadsheet template.
func DefaultCategories() *Categories {
	return NewTypedCategories(
		[]string{"Food", "Groceries", "Transportation", "Housing", "Rent", "Entertainment", "Shopping",
			"Healthcare", "Bills", "Academic", "Personal", "Travel", "Investment", "Others"},
		[]string{"Salary", "Investments", "Freelance", "Gifts", "Academic", "Business", "Others"},
	)
}

// Names returns every configured category in configuration order.
func (c *Categories) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// ForType returns the categories configured for t.
func (c *Categories) ForType(t TxType) []string {
	out := make([]string, len(c.byType[t]))
	copy(out, c.byType[t])
	return out
}

func (c *Categories) Len() int {
	return len(c.names)
}

// Contains reports whether name is configured, ignoring case.
func (c *Categories) Contains(name string) bool {
	_, ok := c.index[categoryKey(name)]
	return ok
}

// Match maps a free-form category to a configured one of either type. It
// tries an exact match, then singular/plural variants, then word
// containment, then the closest name within a small edit distance.
// Anything else is Uncategorized.
func (c *Categories) Match(raw string) string {
	return match(c.names, raw)
}

// MatchFor is Match restricted to the categories configured for t, so an
// expense never lands in an income-only category.
func (c *Categories) MatchFor(t TxType, raw string) string {
	return match(c.byType[t], raw)
}

func match(names []string, raw string) string {
	key := categoryKey(raw)
	if key == "" || key == Uncategorized {
		return Uncategorized
	}
	for _, name := range names {
		if categoryKey(name) == key {
			return name
		}
	}

	stem := singular(key)
	for _, name := range names {
		if singular(categoryKey(name)) == stem {
			return name
		}
	}

	words := strings.Fields(key)
	for _, name := range names {
		nk := categoryKey(name)
		if len(nk) < 3 {
			continue
		}
		for _, w := range words {
			if singular(w) == singular(nk) {
				return name
			}
		}
		if len(key) >= 3 && strings.Contains(nk, key) {
			return name
		}
	}

	if len(key) < 4 {
		return Uncategorized
	}
	best, bestDist := "", maxCategoryDistance+1
	for _, name := range names {
		if d := levenshtein(key, categoryKey(name)); d < bestDist {
			best, bestDist = name, d
		}
	}
	if best == "" {
		return Uncategorized
	}
	return best
}

// MatchText looks for any configured category mentioned in free text.
func (c *Categories) MatchText(text string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-'
	})
	for _, name := range c.names {
		nk := singular(categoryKey(name))
		for _, w := range words {
			if singular(w) == nk {
				return name, true
			}
		}
	}
	return "", false
}

func categoryKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 4:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") && len(s) > 3:
		return s[:len(s)-1]
	}
	return s
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
