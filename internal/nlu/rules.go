package nlu

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var (
	// Matches: 250, 1,250.50, Rs. 300, ₹99, $12.5, 2.5k
	amountPattern = regexp.MustCompile(`(?i)(rs\.?|₹|\$|€|inr|usd|eur)?\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(k\b)?`)
	isoDate       = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`)
	slashDate     = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	relativeDate  = regexp.MustCompile(`(?i)\b(day before yesterday|yesterday|today|tomorrow|\d+\s+(?:day|week|month)s?\s+ago|last\s+(?:\d+\s+)?(?:day|week|month)s?)\b`)

	incomeWords = []string{
		"received", "receive", "got paid", "earned", "earn", "salary", "income",
		"refund", "cashback", "bonus", "dividend", "interest", "credited", "sold",
	}
	expenseWords = []string{
		"spent", "spend", "paid", "pay", "bought", "buy", "purchased", "cost",
		"debited", "expense", "bill", "fee",
	}
	months = map[string]bool{
		"jan": true, "january": true, "feb": true, "february": true, "mar": true, "march": true,
		"apr": true, "april": true, "may": true, "jun": true, "june": true, "jul": true, "july": true,
		"aug": true, "august": true, "sep": true, "sept": true, "september": true,
		"oct": true, "october": true, "nov": true, "november": true, "dec": true, "december": true,
	}
)

// RuleExtractor is an offline extractor built on keyword and pattern
// matching. It never fails with ErrServiceUnavailable.
type RuleExtractor struct {
	categories *core.Categories
}

var _ Extractor = (*RuleExtractor)(nil)

func NewRuleExtractor(categories *core.Categories) *RuleExtractor {
	if categories == nil {
		categories = core.DefaultCategories()
	}
	return &RuleExtractor{categories: categories}
}

func (r *RuleExtractor) Extract(ctx context.Context, text string) (core.PartialTransaction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.PartialTransaction{}, core.ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return core.PartialTransaction{}, err
	}

	out := core.PartialTransaction{RawText: text}

	// Dates are found first so their digits are not taken for amounts.
	rest := text
	if m := isoDate.FindString(rest); m != "" {
		out.Date = m
		rest = strings.Replace(rest, m, " ", 1)
	} else if m := slashDate.FindString(rest); m != "" {
		out.Date = m
		rest = strings.Replace(rest, m, " ", 1)
	} else if m := relativeDate.FindString(rest); m != "" {
		out.Date = strings.ToLower(m)
		rest = strings.Replace(rest, m, " ", 1)
	}

	if d, ok := pickAmount(rest); ok {
		out.Amount = &d
	}

	out.Type = r.classify(text)
	if name, ok := r.categories.MatchText(text); ok {
		out.Category = name
	}
	return out, nil
}

// pickAmount chooses among the numbers in text. A number with a currency
// marker or a k suffix wins, then one right after a spend or earn verb,
// then the first. Numbers next to a month name are read as part of a date.
func pickAmount(text string) (decimal.Decimal, bool) {
	var (
		best      decimal.Decimal
		bestScore = -1
	)
	for _, m := range amountPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		number := text[m[4]:m[5]]
		hasCurrency := m[2] >= 0
		hasK := m[6] >= 0

		prev, next := lastWord(text[:start]), firstWord(text[end:])
		if !hasCurrency && !hasK && (months[prev] || months[next] && len(number) <= 2) {
			continue
		}

		raw := number
		if hasK {
			raw += "k"
		}
		d, err := core.ParseAmount(raw)
		if err != nil {
			continue
		}

		score := 0
		switch {
		case hasCurrency || hasK:
			score = 2
		case slices.Contains(expenseWords, prev) || slices.Contains(incomeWords, prev):
			score = 1
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best, bestScore >= 0
}

func lastWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(f[len(f)-1], ",.:;"))
}

func firstWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(f[0], ",.:;"))
}

func (r *RuleExtractor) classify(text string) core.TxType {
	lower := strings.ToLower(text)
	for _, w := range incomeWords {
		if containsWord(lower, w) {
			return core.Income
		}
	}
	for _, w := range expenseWords {
		if containsWord(lower, w) {
			return core.Expense
		}
	}
	return ""
}

func containsWord(text, word string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		i = end
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
