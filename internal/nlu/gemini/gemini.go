// Package gemini extracts transactions with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"fintrack/internal/core"
	"fintrack/internal/nlu"
)

const DefaultModel = "gemini-2.5-flash"

// Generator is the slice of the genai client the extractor uses.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Extractor asks Gemini for a JSON payload and decodes it into a partial
// transaction.
type Extractor struct {
	models     Generator
	model      string
	timeout    time.Duration
	categories *core.Categories
	now        func() time.Time
	logger     *slog.Logger
}

var _ nlu.Extractor = (*Extractor)(nil)

// New creates a Gemini client for the Developer API.
func New(ctx context.Context, cfg Config, categories *core.Categories, logger *slog.Logger) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing Gemini API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewWithGenerator(client.Models, cfg, categories, logger), nil
}

// NewWithGenerator wires an existing generator, typically a fake in tests.
func NewWithGenerator(models Generator, cfg Config, categories *core.Categories, logger *slog.Logger) *Extractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if categories == nil {
		categories = core.DefaultCategories()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		models:     models,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		categories: categories,
		now:        time.Now,
		logger:     logger,
	}
}

func (e *Extractor) Extract(ctx context.Context, text string) (core.PartialTransaction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.PartialTransaction{}, core.ErrEmptyInput
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: e.prompt(text)}},
		},
	}

	start := time.Now()
	resp, err := e.models.GenerateContent(ctx, e.model, contents, generationConfig())
	if err != nil {
		e.logger.WarnContext(ctx, "Gemini request failed", "model", e.model, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return core.PartialTransaction{}, fmt.Errorf("%w: %v", core.ErrServiceUnavailable, err)
	}

	answer := ""
	if resp != nil {
		answer = resp.Text()
	}
	partial, err := nlu.DecodePayload(answer, text)
	if err != nil {
		e.logger.WarnContext(ctx, "Gemini answer rejected", "model", e.model, "error", err, "answer", truncate(answer, 200))
		return core.PartialTransaction{}, err
	}

	e.logger.DebugContext(ctx, "Gemini extraction completed",
		"model", e.model,
		"has_amount", partial.HasAmount(),
		"category", partial.Category,
		"tx_type", partial.Type,
		"duration_ms", time.Since(start).Milliseconds())
	return partial, nil
}

func (e *Extractor) prompt(text string) string {
	var b strings.Builder
	b.WriteString("You extract a single financial transaction from a user's message.\n\n")
	fmt.Fprintf(&b, "Today's date is %s.\n\n", e.now().Format("2006-01-02"))
	b.WriteString("Return a JSON object with these optional fields:\n")
	b.WriteString("- \"amount\": number, always positive, without currency symbols\n")
	b.WriteString("- \"type\": \"income\" or \"expense\"\n")
	b.WriteString("- \"category\": one of the allowed categories below\n")
	b.WriteString("- \"date\": \"YYYY-MM-DD\", or the relative phrase used by the user (e.g. \"yesterday\")\n\n")
	b.WriteString("Allowed expense categories:\n")
	for _, c := range e.categories.ForType(core.Expense) {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("Allowed income categories:\n")
	for _, c := range e.categories.ForType(core.Income) {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nOmit any field the message does not state. Do not guess amounts.\n")
	b.WriteString("Return ONLY raw JSON. Do NOT wrap the response in code fences.\n\n")
	fmt.Fprintf(&b, "Message: %q\n", text)
	return b.String()
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"amount":   {Type: genai.TypeNumber},
				"type":     {Type: genai.TypeString, Enum: []string{"income", "expense"}},
				"category": {Type: genai.TypeString},
				"date":     {Type: genai.TypeString},
			},
		},
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
