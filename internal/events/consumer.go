package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rabbitmq/amqp091-go"
)

const prefetchCount = 10

// Handler processes one event. A returned error wrapping
// ErrMalformedMessage drops the message; any other error requeues it once.
type Handler func(ctx context.Context, msg *TransactionRecorded) error

// Consumer reads TransactionRecorded events from the queue the publisher
// declares.
type Consumer struct {
	queue  string
	logger *slog.Logger

	conn *amqp091.Connection
	ch   *amqp091.Channel

	acked, requeued, dropped atomic.Int64
}

// ConsumerStats counts how deliveries were settled.
type ConsumerStats struct {
	Acked    int64 `json:"acked"`
	Requeued int64 `json:"requeued"`
	Dropped  int64 `json:"dropped"`
}

// NewConsumer connects to url and declares the same exchange, queue and
// binding as the publisher, so either side may start first.
func NewConsumer(url, exchangeName, routingKey string, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := setup(ch, exchangeName, routingKey); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	return &Consumer{queue: routingKey, logger: logger, conn: conn, ch: ch}, nil
}

// Consume blocks handling deliveries until ctx is done or the broker
// closes the channel.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.ch.Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack (we want manual ack)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming transaction events", "queue", c.queue)
	return c.process(ctx, msgs, handler)
}

func (c *Consumer) process(ctx context.Context, msgs <-chan amqp091.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.settle(ctx, delivery, handler)
		}
	}
}

func (c *Consumer) settle(ctx context.Context, delivery amqp091.Delivery, handler Handler) {
	msg, err := TransactionRecordedFromJSON(delivery.Body)
	if err == nil {
		err = handler(ctx, msg)
	}

	switch {
	case err == nil:
		_ = delivery.Ack(false)
		c.acked.Add(1)
	case errors.Is(err, ErrMalformedMessage):
		c.logger.ErrorContext(ctx, "Dropping malformed message",
			"message_id", delivery.MessageId, "error", err)
		_ = delivery.Nack(false, false)
		c.dropped.Add(1)
	case delivery.Redelivered:
		// Already retried once; a second failure would loop forever.
		c.logger.ErrorContext(ctx, "Dropping message after retry",
			"message_id", delivery.MessageId, "error", err)
		_ = delivery.Nack(false, false)
		c.dropped.Add(1)
	default:
		c.logger.WarnContext(ctx, "Failed to handle message, requeueing",
			"message_id", delivery.MessageId, "error", err)
		_ = delivery.Nack(false, true)
		c.requeued.Add(1)
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Acked:    c.acked.Load(),
		Requeued: c.requeued.Load(),
		Dropped:  c.dropped.Load(),
	}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
