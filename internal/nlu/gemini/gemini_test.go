package gemini

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"fintrack/internal/core"
)

type fakeModels struct {
	answer string
	err    error

	gotModel  string
	gotPrompt string
	gotConfig *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.answer}}}},
		},
	}, nil
}

func newTestExtractor(f *fakeModels) *Extractor {
	x := NewWithGenerator(f, Config{Model: "test-model"}, core.NewCategories("groceries", "rent", "salary", "other"), nil)
	x.now = func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }
	return x
}

func TestExtract(t *testing.T) {
	f := &fakeModels{answer: `{"amount": 250, "category": "groceries", "type": "expense", "date": "yesterday"}`}
	x := newTestExtractor(f)

	p, err := x.Extract(context.Background(), "Spent 250 on groceries yesterday")
	require.NoError(t, err)

	require.NotNil(t, p.Amount)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "groceries", p.Category)
	assert.Equal(t, core.Expense, p.Type)
	assert.Equal(t, "yesterday", p.Date)

	assert.Equal(t, "test-model", f.gotModel)
	assert.Contains(t, f.gotPrompt, "2025-03-15")
	assert.Contains(t, f.gotPrompt, "- groceries")
	assert.Contains(t, f.gotPrompt, "Spent 250 on groceries yesterday")
	require.NotNil(t, f.gotConfig)
	assert.Equal(t, "application/json", f.gotConfig.ResponseMIMEType)
}

func TestExtract_ServiceUnavailable(t *testing.T) {
	x := newTestExtractor(&fakeModels{err: errors.New("dial tcp: i/o timeout")})

	_, err := x.Extract(context.Background(), "Spent 250")
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
}

func TestExtract_Unparseable(t *testing.T) {
	x := newTestExtractor(&fakeModels{answer: "Sorry, I can't help with that."})

	_, err := x.Extract(context.Background(), "Spent 250")
	assert.ErrorIs(t, err, core.ErrUnparseable)
}

func TestExtract_EmptyInput(t *testing.T) {
	f := &fakeModels{}
	_, err := newTestExtractor(f).Extract(context.Background(), "  ")
	assert.ErrorIs(t, err, core.ErrEmptyInput)
	assert.Empty(t, f.gotModel, "no request for empty input")
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil, nil)
	assert.Error(t, err)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	got := truncate("₹₹₹₹", 2)
	assert.Equal(t, "₹₹...", got)
	assert.True(t, utf8.ValidString(got))
}
