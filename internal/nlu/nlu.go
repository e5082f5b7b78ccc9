// Package nlu turns free-text statements into partial transactions.
//
// Extractors make a single attempt per call. Failures are reported as
// core.ErrServiceUnavailable when the backing service could not be reached
// and core.ErrUnparseable when it answered with something that does not
// fit the transaction schema.
package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type Extractor interface {
	Extract(ctx context.Context, text string) (core.PartialTransaction, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, text string) (core.PartialTransaction, error)

func (f ExtractorFunc) Extract(ctx context.Context, text string) (core.PartialTransaction, error) {
	return f(ctx, text)
}

// Payload is the JSON object extractors are asked to produce. Every field
// is optional.
type Payload struct {
	Amount   json.RawMessage `json:"amount,omitempty"`
	Date     *string         `json:"date,omitempty"`
	Category *string         `json:"category,omitempty"`
	Type     *string         `json:"type,omitempty"`
}

// DecodePayload validates a model answer against the payload schema and
// converts it into a PartialTransaction. rawText is carried through.
func DecodePayload(answer, rawText string) (core.PartialTransaction, error) {
	clean := CleanModelJSON(answer)
	if clean == "" {
		return core.PartialTransaction{}, fmt.Errorf("%w: empty answer", core.ErrUnparseable)
	}

	var p Payload
	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return core.PartialTransaction{}, fmt.Errorf("%w: %v", core.ErrUnparseable, err)
	}

	out := core.PartialTransaction{RawText: rawText}

	amount, err := decodeAmount(p.Amount)
	if err != nil {
		return core.PartialTransaction{}, err
	}
	out.Amount = amount

	if p.Date != nil {
		out.Date = strings.TrimSpace(*p.Date)
	}
	if p.Category != nil {
		out.Category = strings.TrimSpace(*p.Category)
	}
	if p.Type != nil && strings.TrimSpace(*p.Type) != "" {
		t, ok := core.ParseTxType(*p.Type)
		if !ok {
			return core.PartialTransaction{}, fmt.Errorf("%w: unknown type %q", core.ErrUnparseable, *p.Type)
		}
		out.Type = t
	}
	return out, nil
}

func decodeAmount(raw json.RawMessage) (*decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: amount: %v", core.ErrUnparseable, err)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		d, err := core.ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", core.ErrUnparseable, s)
		}
		return &d, nil
	case '{', '[', 't', 'f':
		return nil, fmt.Errorf("%w: amount must be a number, got %s", core.ErrUnparseable, raw)
	}

	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %s", core.ErrUnparseable, raw)
	}
	return &d, nil
}

// CleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
