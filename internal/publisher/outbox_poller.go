package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/segmentio/kafka-go"
)

const batchSize = 100

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller relays order events from the outbox collection to Kafka. Events are marked
// published only after the broker accepts them, so delivery is at least once.
type OutboxPoller struct {
	tick   time.Duration
	repo   repository.OutboxRepository
	writer messageWriter
	log    *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo repository.OutboxRepository, writer messageWriter, tick time.Duration, log *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		tick:   tick,
		repo:   repo,
		writer: writer,
		log:    log.With("component", "outbox_poller"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
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

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnpublishedEvents(ctx, batchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch events", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.ErrorContext(ctx, "failed to publish event", "event_id", event.ID, "error", err)
			// later events never overtake a failed one
			return published
		}

		// an unmarked event is sent again next tick, so nothing after it goes out first
		if err := p.repo.MarkEventAsPublished(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark event as published", "event_id", event.ID, "error", err)
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OrderEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
