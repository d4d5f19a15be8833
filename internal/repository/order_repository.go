package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type orderDocument struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty"`
	UserID            string               `bson:"userId"`
	Items             []domain.LineItem    `bson:"items"`
	Address           domain.Address       `bson:"address"`
	Amount            float64              `bson:"amount"`
	PaymentMethod     domain.PaymentMethod `bson:"paymentMethod"`
	Payment           bool                 `bson:"payment"`
	Status            domain.OrderStatus   `bson:"status"`
	Date              time.Time            `bson:"date"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
	SessionID         string               `bson:"sessionId,omitempty"`
	ConfirmationToken string               `bson:"confirmationToken,omitempty"`
	ExpiredAt         *time.Time           `bson:"expiredAt,omitempty"`
}

func (d *orderDocument) toDomain() *domain.Order {
	return &domain.Order{
		ID:                d.ID.Hex(),
		UserID:            d.UserID,
		Items:             d.Items,
		Address:           d.Address,
		Amount:            d.Amount,
		PaymentMethod:     d.PaymentMethod,
		Payment:           d.Payment,
		Status:            d.Status,
		Date:              d.Date,
		UpdatedAt:         d.UpdatedAt,
		SessionID:         d.SessionID,
		ConfirmationToken: d.ConfirmationToken,
		ExpiredAt:         d.ExpiredAt,
	}
}

type mongoOrderRepository struct {
	client *mongo.Client
	orders *mongo.Collection
	outbox *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{
		client: db.Client(),
		orders: db.Collection("orders"),
		outbox: db.Collection(outboxCollection),
	}
}

func (m *mongoOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	now := timestamp()
	if order.Date.IsZero() {
		order.Date = now
	}
	order.UpdatedAt = now

	id := primitive.NewObjectID()
	order.ID = id.Hex()
	doc := &orderDocument{
		ID:                id,
		UserID:            order.UserID,
		Items:             order.Items,
		Address:           order.Address,
		Amount:            order.Amount,
		PaymentMethod:     order.PaymentMethod,
		Payment:           order.Payment,
		Status:            order.Status,
		Date:              order.Date,
		UpdatedAt:         order.UpdatedAt,
		SessionID:         order.SessionID,
		ConfirmationToken: order.ConfirmationToken,
	}

	err := m.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := m.orders.InsertOne(sc, doc); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return m.appendEvent(sc, domain.OrderEventPlaced, order)
	})
	if err != nil {
		order.ID = ""
		return err
	}

	return nil
}

func (m *mongoOrderRepository) AttachSession(ctx context.Context, orderID, sessionID string) error {
	id, err := objectID(orderID)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"sessionId": sessionID, "updatedAt": timestamp()}}
	result, err := m.orders.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to attach session: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *mongoOrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	id, err := objectID(orderID)
	if err != nil {
		return nil, err
	}

	var doc orderDocument
	if err := m.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return doc.toDomain(), nil
}

func (m *mongoOrderRepository) ConfirmPayment(ctx context.Context, orderID, userID, token string) (*domain.Order, error) {
	id, err := objectID(orderID)
	if err != nil {
		return nil, err
	}

	// An admin cancellation is final; only a sweeper-expired order may be revived.
	filter := bson.M{
		"_id":               id,
		"userId":            userID,
		"confirmationToken": token,
		"payment":           false,
		"$or": bson.A{
			bson.M{"status": domain.OrderStatusPlaced},
			bson.M{"status": domain.OrderStatusCancelled, "expiredAt": bson.M{"$exists": true}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"payment":   true,
			"status":    domain.OrderStatusPlaced,
			"updatedAt": timestamp(),
		},
		"$unset": bson.M{"confirmationToken": "", "expiredAt": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order *domain.Order
	err = m.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var doc orderDocument
		if err := m.orders.FindOneAndUpdate(sc, filter, update, opts).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to confirm payment: %w", err)
		}
		order = doc.toDomain()
		return m.appendEvent(sc, domain.OrderEventPaid, order)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (m *mongoOrderRepository) DiscardUnpaid(ctx context.Context, orderID, userID, token string) error {
	id, err := objectID(orderID)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id":               id,
		"userId":            userID,
		"confirmationToken": token,
		"payment":           false,
	}

	return m.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var doc orderDocument
		if err := m.orders.FindOneAndDelete(sc, filter).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to delete order: %w", err)
		}
		return m.appendEvent(sc, domain.OrderEventPaymentFailed, doc.toDomain())
	})
}

func (m *mongoOrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (*domain.Order, error) {
	id, err := objectID(orderID)
	if err != nil {
		return nil, err
	}

	// Matching on the current status makes concurrent admin updates fail instead of overwrite.
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updatedAt": timestamp()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order *domain.Order
	err = m.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var doc orderDocument
		if err := m.orders.FindOneAndUpdate(sc, filter, update, opts).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrStatusConflict
			}
			return fmt.Errorf("failed to update status: %w", err)
		}
		order = doc.toDomain()
		return m.appendEvent(sc, domain.OrderEventStatusChanged, order)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (m *mongoOrderRepository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return m.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

func (m *mongoOrderRepository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	return m.find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

func (m *mongoOrderRepository) FindStaleUnpaid(ctx context.Context, placedBefore time.Time, limit int64) ([]*domain.Order, error) {
	filter := bson.M{
		"paymentMethod": domain.PaymentMethodStripe,
		"payment":       false,
		"status":        domain.OrderStatusPlaced,
		"date":          bson.M{"$lt": placedBefore},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}}).
		SetLimit(limit)

	return m.find(ctx, filter, opts)
}

func (m *mongoOrderRepository) CancelUnpaid(ctx context.Context, orderID string) (*domain.Order, error) {
	id, err := objectID(orderID)
	if err != nil {
		return nil, err
	}

	// The confirmation token is kept so a late gateway success can still settle the order.
	filter := bson.M{
		"_id":           id,
		"paymentMethod": domain.PaymentMethodStripe,
		"payment":       false,
		"status":        domain.OrderStatusPlaced,
	}
	now := timestamp()
	update := bson.M{"$set": bson.M{"status": domain.OrderStatusCancelled, "expiredAt": now, "updatedAt": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order *domain.Order
	err = m.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var doc orderDocument
		if err := m.orders.FindOneAndUpdate(sc, filter, update, opts).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		order = doc.toDomain()
		return m.appendEvent(sc, domain.OrderEventExpired, order)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (m *mongoOrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Order, error) {
	cursor, err := m.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(docs))
	for i := range docs {
		orders = append(orders, docs[i].toDomain())
	}
	return orders, nil
}

func (m *mongoOrderRepository) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (m *mongoOrderRepository) appendEvent(ctx context.Context, eventType domain.OrderEventType, order *domain.Order) error {
	event, err := domain.NewOrderEvent(eventType, order)
	if err != nil {
		return err
	}
	if _, err := m.outbox.InsertOne(ctx, newEventDocument(event)); err != nil {
		return fmt.Errorf("failed to write %s to outbox: %w", eventType, err)
	}
	return nil
}

func objectID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrOrderNotFound
	}
	return id, nil
}

// timestamp matches the millisecond precision MongoDB stores dates with.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
