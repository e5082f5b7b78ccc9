// Package events publishes ledger notifications to an AMQP exchange.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/core"
)

// Publisher announces recorded transactions. Publishing is best effort:
// callers log failures and carry on.
type Publisher interface {
	PublishTransactionRecorded(ctx context.Context, tx core.Transaction, version uint64) error
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishTransactionRecorded(context.Context, core.Transaction, uint64) error { return nil }
func (Noop) Close() error                                                               { return nil }

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	Close() error
}

type dialFunc func(url string) (connection, error)

type amqpConnection struct{ *amqp091.Connection }

func (c amqpConnection) Channel() (channel, error) { return c.Connection.Channel() }

func dialAMQP(url string) (connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Client publishes to a durable direct exchange. A queue named after the
// routing key is declared and bound so events are kept until consumed.
// The connection is opened lazily and re-dialled after connection errors.
type Client struct {
	url          string
	exchangeName string
	routingKey   string
	dial         dialFunc
	logger       *slog.Logger

	mu       sync.Mutex
	conn     connection
	channel  channel
	attempts int
	lastDial time.Time

	state        int32
	failureCount int64
	lastFailure  time.Time
}

var _ Publisher = (*Client)(nil)

// NewClient connects to url and declares the exchange and queue.
func NewClient(url, exchangeName, routingKey string, logger *slog.Logger) (*Client, error) {
	c := newClient(url, exchangeName, routingKey, dialAMQP, logger)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchangeName, routingKey string, dial dialFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		dial:         dial,
		logger:       logger,
	}
}

func (c *Client) connectLocked() error {
	if c.channel != nil {
		return nil
	}
	if c.attempts > 0 {
		if wait := exponentialBackoff(c.attempts - 1); time.Since(c.lastDial) < wait {
			return fmt.Errorf("reconnect backoff: retry in %s", (wait - time.Since(c.lastDial)).Round(time.Millisecond))
		}
	}
	c.lastDial = time.Now()
	c.attempts++

	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(ch, c.exchangeName, c.routingKey); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn, c.channel = conn, ch
	c.attempts = 0
	return nil
}

func setup(ch channel, exchange, key string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(
		key,   // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(key, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishTransactionRecorded sends a persistent JSON message for tx.
func (c *Client) PublishTransactionRecorded(ctx context.Context, tx core.Transaction, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	body, err := NewTransactionRecorded(tx, version).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		c.recordFailure()
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(pctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    tx.ID.String(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.dropLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published transaction recorded event",
		"tx_id", tx.ID,
		"version", version,
		"exchange", c.exchangeName,
		"routing_key", c.routingKey)
	return nil
}

func (c *Client) dropLocked() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.channel, c.conn = nil, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.channel, c.conn = nil, nil
	return err
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

// recordFailure and recordSuccess are called with c.mu held.
func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.logger.Warn("Event publishing suspended", "failures", n, "retry_after", openTimeout)
		}
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection closed", "EOF", "broken pipe", "use of closed network connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
