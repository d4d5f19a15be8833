package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const outboxCollection = "order_outbox"

type eventDocument struct {
	ID          string                `bson:"_id"`
	OrderID     string                `bson:"orderId"`
	Type        domain.OrderEventType `bson:"type"`
	Payload     string                `bson:"payload"`
	CreatedAt   time.Time             `bson:"createdAt"`
	Published   bool                  `bson:"published"`
	PublishedAt *time.Time            `bson:"publishedAt,omitempty"`
}

func newEventDocument(e *domain.OrderEvent) *eventDocument {
	return &eventDocument{
		ID:        e.ID,
		OrderID:   e.OrderID,
		Type:      e.Type,
		Payload:   string(e.Payload),
		CreatedAt: e.CreatedAt,
	}
}

func (d *eventDocument) toDomain() *domain.OrderEvent {
	return &domain.OrderEvent{
		ID:        d.ID,
		OrderID:   d.OrderID,
		Type:      d.Type,
		Payload:   json.RawMessage(d.Payload),
		CreatedAt: d.CreatedAt,
	}
}

type mongoOutboxRepository struct {
	collection *mongo.Collection
}

func NewOutboxRepository(db *mongo.Database) OutboxRepository {
	return &mongoOutboxRepository{collection: db.Collection(outboxCollection)}
}

func (m *mongoOutboxRepository) GetUnpublishedEvents(ctx context.Context, limit int64) ([]*domain.OrderEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(limit)

	cursor, err := m.collection.Find(ctx, bson.M{"published": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}

	events := make([]*domain.OrderEvent, 0, len(docs))
	for i := range docs {
		events = append(events, docs[i].toDomain())
	}
	return events, nil
}

func (m *mongoOutboxRepository) MarkEventAsPublished(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{"published": true, "publishedAt": timestamp()}}
	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to mark event %s as published: %w", id, err)
	}
	return nil
}
