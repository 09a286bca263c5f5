package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller publishes outbox events that have not been published yet.
type Poller struct {
	repo      RepoInterface
	writer    MessageWriter
	eventTick time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewPoller(repo RepoInterface, logger *zap.Logger, topic string, brokers ...string) *Poller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &Poller{
		repo:      repo,
		writer:    w,
		eventTick: time.Second,
		batchSize: 100,
		logger:    logger,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.eventTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) Close() error {
	return p.writer.Close()
}

func (p *Poller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Warn("failed to publish outbox event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Warn("failed to mark outbox event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		p.logger.Debug("outbox event published",
			zap.Int64("event_id", event.ID),
			zap.String("aggregate_id", event.AggregateID),
			zap.String("event_type", event.EventType))
	}
}

func (p *Poller) publish(ctx context.Context, event *Event) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // cart id keeps a cart's events ordered
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID.String())},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
