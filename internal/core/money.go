// Package core provides money parsing and formatting utilities.
//
// Amounts are shopspring decimals. Parsing tolerates the noise found in
// spreadsheet cells and chat messages: currency symbols, thousands
// separators and a trailing "k" multiplier.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

// ParseAmount converts a human-written amount into a decimal.
//
// Examples:
//
//	ParseAmount("1,250.50") -> 1250.50
//	ParseAmount("Rs. 250")  -> 250
//	ParseAmount("-42")      -> -42
//	ParseAmount("2.5k")     -> 2500
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "rs.")
	s = strings.TrimPrefix(s, "rs")
	s = strings.TrimSpace(s)

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	multiplier := decimal.NewFromInt(1)
	if strings.HasSuffix(s, "k") {
		multiplier = thousand
		s = strings.TrimSuffix(s, "k")
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.':
			b.WriteRune(r)
		case r == ',', r == ' ', r == '_':
			// thousands separators
		case unicode.IsSymbol(r), r == '$':
			// currency symbols
		default:
			return decimal.Zero, ErrUnparseable
		}
	}
	if b.Len() == 0 {
		return decimal.Zero, ErrUnparseable
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero, ErrUnparseable
	}
	d = d.Mul(multiplier)
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// FormatAmount renders d with two decimals, grouped thousands and the given
// currency symbol, e.g. "Rs. 1,250.00" or "-Rs. 42.50".
func FormatAmount(d decimal.Decimal, symbol string) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")
	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String() + "." + frac
	if symbol != "" {
		out = symbol + " " + out
	}
	if neg {
		return "-" + out
	}
	return out
}
