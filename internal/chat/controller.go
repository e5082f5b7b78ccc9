// Package chat drives the conversation that turns a typed statement into a
// confirmed ledger row.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/nlu"
)

var ErrInvalidTransition = errors.New("action not allowed in the current state")

// Controller moves sessions through idle, extracting, confirming and
// persisting. Any failure parks the session in the error state until it is
// acknowledged.
type Controller struct {
	extractor  nlu.Extractor
	normalizer *core.Normalizer
	ledger     *Ledger
	newID      func() uuid.UUID
	now        func() time.Time
	currency   string
	logger     *slog.Logger
}

type Option func(*Controller)

// WithIDGenerator replaces the per-submission id source.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(c *Controller) { c.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithCurrencySymbol sets the symbol used in assistant messages.
func WithCurrencySymbol(symbol string) Option {
	return func(c *Controller) { c.currency = symbol }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func NewController(extractor nlu.Extractor, normalizer *core.Normalizer, ledger *Ledger, opts ...Option) *Controller {
	c := &Controller{
		extractor:  extractor,
		normalizer: normalizer,
		ledger:     ledger,
		newID:      uuid.New,
		now:        time.Now,
		currency:   "Rs.",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Ledger() *Ledger {
	return c.ledger
}

// Categories returns the configured category set.
func (c *Controller) Categories() *core.Categories {
	return c.normalizer.Categories()
}

// CurrencySymbol is the symbol used when rendering amounts.
func (c *Controller) CurrencySymbol() string {
	return c.currency
}

// Submit extracts and normalizes text. On success the session waits in
// confirming with the pending transaction; on failure it moves to error.
// A session left in error is acknowledged implicitly.
func (c *Controller) Submit(ctx context.Context, s *Session, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateError {
		c.reset(s)
	}
	if s.State != StateIdle {
		return c.reject(ctx, s, applog.OpSubmit)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return c.fail(ctx, s, applog.OpSubmit, core.ErrEmptyInput)
	}
	s.say(RoleUser, text, c.now())

	s.State = StateExtracting
	partial, err := c.extractor.Extract(ctx, text)
	if err != nil {
		return c.fail(ctx, s, applog.OpExtract, err)
	}
	tx, err := c.normalizer.Normalize(partial)
	if err != nil {
		return c.fail(ctx, s, applog.OpValidate, err)
	}
	tx.ID = c.newID()

	s.Pending = &tx
	s.State = StateConfirming
	s.Notice = ""
	s.say(RoleAssistant, c.describe(tx)+" Confirm to save it.", c.now())
	s.UpdatedAt = c.now()

	c.logger.InfoContext(ctx, "Transaction awaiting confirmation",
		applog.FieldSessionID, s.ID,
		applog.FieldTxID, tx.ID,
		applog.FieldAmount, tx.Amount.StringFixed(2),
		applog.FieldCategory, tx.Category,
		applog.FieldTxType, tx.Type)
	return nil
}

// Confirm persists the pending transaction. Only valid in confirming, so a
// repeated confirmation for the same submission is rejected instead of
// writing a second row.
func (c *Controller) Confirm(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateConfirming || s.Pending == nil {
		return c.reject(ctx, s, applog.OpConfirm)
	}

	tx := *s.Pending
	s.State = StatePersisting
	version, err := c.ledger.Append(ctx, tx)
	if err != nil {
		s.Pending = nil
		return c.fail(ctx, s, applog.OpAppend, err)
	}

	s.Pending = nil
	s.State = StateIdle
	s.Notice = ""
	s.say(RoleAssistant, "Saved. "+c.describe(tx), c.now())
	s.UpdatedAt = c.now()

	c.logger.DebugContext(ctx, "Confirmed transaction appended",
		applog.FieldSessionID, s.ID,
		applog.FieldTxID, tx.ID,
		applog.FieldVersion, version)
	return nil
}

// Amend corrects the date or category of the pending transaction before it
// is saved. Empty fields keep their current value; amount, type and ID never
// change. An edit that does not normalize leaves the pending transaction as
// it was and reports the problem in the session notice.
func (c *Controller) Amend(ctx context.Context, s *Session, date, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateConfirming || s.Pending == nil {
		return c.reject(ctx, s, applog.OpAmend)
	}

	cur := *s.Pending
	partial := core.PartialTransaction{
		Amount:   &cur.Amount,
		Date:     cur.Date.String(),
		Category: cur.Category,
		Type:     cur.Type,
		RawText:  cur.RawText,
	}
	if d := strings.TrimSpace(date); d != "" {
		partial.Date = d
	}
	if cat := strings.TrimSpace(category); cat != "" {
		partial.Category = cat
	}

	tx, err := c.normalizer.Normalize(partial)
	if err != nil {
		s.Notice = UserMessage(err)
		s.UpdatedAt = c.now()
		c.logger.InfoContext(ctx, "Amendment rejected",
			applog.FieldSessionID, s.ID,
			applog.FieldTxID, cur.ID,
			applog.FieldError, err)
		return err
	}
	tx.ID = cur.ID

	s.Pending = &tx
	s.Notice = ""
	s.say(RoleAssistant, "Updated. "+c.describe(tx)+" Confirm to save it.", c.now())
	s.UpdatedAt = c.now()

	c.logger.InfoContext(ctx, "Pending transaction amended",
		applog.FieldSessionID, s.ID,
		applog.FieldTxID, tx.ID,
		applog.FieldTxDate, tx.Date,
		applog.FieldCategory, tx.Category)
	return nil
}

// Cancel drops the pending transaction.
func (c *Controller) Cancel(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateConfirming {
		return c.reject(ctx, s, applog.OpCancel)
	}
	s.Pending = nil
	s.State = StateIdle
	s.Notice = ""
	s.say(RoleAssistant, "Cancelled. Nothing was saved.", c.now())
	s.UpdatedAt = c.now()
	return nil
}

// Acknowledge clears an error. It is a no-op when the session is idle.
func (c *Controller) Acknowledge(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State {
	case StateError:
		c.reset(s)
		return nil
	case StateIdle:
		return nil
	}
	return c.reject(ctx, s, applog.OpAcknowledge)
}

func (c *Controller) reset(s *Session) {
	s.State = StateIdle
	s.Notice = ""
	s.Pending = nil
	s.UpdatedAt = c.now()
}

// reject reports an action that the current state does not allow. The
// session is left untouched.
func (c *Controller) reject(ctx context.Context, s *Session, op string) error {
	c.logger.DebugContext(ctx, "Rejected conversation action",
		applog.FieldSessionID, s.ID,
		applog.FieldOperation, op,
		applog.FieldState, s.State)
	return fmt.Errorf("%s in state %s: %w", op, s.State, ErrInvalidTransition)
}

func (c *Controller) fail(ctx context.Context, s *Session, op string, err error) error {
	s.State = StateError
	s.Notice = UserMessage(err)
	s.say(RoleAssistant, s.Notice, c.now())
	s.UpdatedAt = c.now()

	level := slog.LevelWarn
	if errors.Is(err, core.ErrEmptyInput) || errors.Is(err, core.ErrMissingAmount) {
		level = slog.LevelInfo
	}
	c.logger.Log(ctx, level, "Conversation step failed",
		applog.FieldSessionID, s.ID,
		applog.FieldOperation, op,
		applog.FieldError, err)
	return err
}

func (c *Controller) describe(tx core.Transaction) string {
	amount := core.FormatAmount(tx.Amount.Abs(), c.currency)
	if tx.Type == core.Income {
		return fmt.Sprintf("Income of %s (%s) on %s.", amount, tx.Category, tx.Date)
	}
	return fmt.Sprintf("Expense of %s for %s on %s.", amount, tx.Category, tx.Date)
}

// UserMessage turns an error from any pipeline step into the text shown to
// the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTransition):
		return "That action isn't available right now."
	case errors.Is(err, core.ErrEmptyInput):
		return `Please describe a transaction, for example "Spent 250 on groceries yesterday".`
	case errors.Is(err, core.ErrServiceUnavailable):
		return "The language service is unavailable right now. Please try again in a moment."
	case errors.Is(err, core.ErrUnparseable):
		return "Sorry, I couldn't read that as a transaction. Try including an amount and what it was for."
	case errors.Is(err, core.ErrMissingAmount):
		return "I couldn't find an amount. Please restate the transaction with the amount, for example \"Spent 250 on groceries\"."
	case errors.Is(err, core.ErrZeroAmount):
		return "The amount can't be zero."
	case errors.Is(err, core.ErrInvalidDate):
		return `That date doesn't look right. Use a date like 2025-03-14 or a phrase like "yesterday".`
	case errors.Is(err, core.ErrAuthFailure):
		return "The ledger rejected the service credentials. Nothing was saved."
	case errors.Is(err, core.ErrRateLimited):
		return "The ledger is busy. Nothing was saved; please try again in a minute."
	case core.IsAmbiguous(err):
		return "The ledger didn't answer in time and the transaction may or may not have been saved. Check the dashboard before entering it again."
	case errors.Is(err, core.ErrUnavailable):
		return "The ledger is unavailable right now. Nothing was saved; please try again."
	}
	return "Something went wrong. Please try again."
}
