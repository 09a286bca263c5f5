// Package consumer reacts to order-placed events from other storefront
// instances by dropping everything still pointing at the completed cart.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/outbox"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type CartForgetter interface {
	ForgetCart(ctx context.Context, cartID string) (int64, error)
}

type Releaser interface {
	Release(cartID string)
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	carts     CartForgetter
	releasers []Releaser
	reader    MessageReader
	logger    *zap.Logger
}

func NewConsumer(carts CartForgetter, logger *zap.Logger, topic, groupID string, brokers []string, releasers ...Releaser) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{carts: carts, releasers: releasers, reader: reader, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !c.processMessage(ctx) {
			return
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

// processMessage handles one message and reports whether the reader can
// still be used.
func (c *Consumer) processMessage(ctx context.Context) bool {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return false
		}
		c.logger.Error("error reading message", zap.Error(err))
		return true
	}

	if eventType(m) != outbox.EventOrderPlaced {
		return true
	}

	var event outbox.OrderPlaced
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}
	if event.CartID == "" {
		c.logger.Warn("order placed event without cart id", zap.String("event_id", event.EventID))
		return true
	}

	deleted, err := c.carts.ForgetCart(ctx, event.CartID)
	if err != nil {
		c.logger.Error("failed to forget placed cart", zap.String("cart_id", event.CartID), zap.Error(err))
		return true
	}
	for _, r := range c.releasers {
		r.Release(event.CartID)
	}

	c.logger.Info("placed cart forgotten",
		zap.String("cart_id", event.CartID),
		zap.String("order_id", event.OrderID),
		zap.Int64("references", deleted))
	return true
}

// eventType reads the event_type header. Messages without one are taken as
// order-placed events.
func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return outbox.EventOrderPlaced
}
