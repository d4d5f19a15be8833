package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/domain"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrStatusConflict  = errors.New("order status was changed concurrently")
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
)

// OrderRepository persists orders. Every mutating call records its outbox event
// in the same transaction as the order write.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	AttachSession(ctx context.Context, orderID, sessionID string) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// ConfirmPayment marks an unpaid order paid, keyed by the one-time confirmation token.
	ConfirmPayment(ctx context.Context, orderID, userID, token string) (*domain.Order, error)
	// DiscardUnpaid deletes an unpaid order whose payment the gateway rejected.
	DiscardUnpaid(ctx context.Context, orderID, userID, token string) error
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	FindStaleUnpaid(ctx context.Context, placedBefore time.Time, limit int64) ([]*domain.Order, error)
	CancelUnpaid(ctx context.Context, orderID string) (*domain.Order, error)
}

type OutboxRepository interface {
	GetUnpublishedEvents(ctx context.Context, limit int64) ([]*domain.OrderEvent, error)
	MarkEventAsPublished(ctx context.Context, id string) error
}

type UserRepository interface {
	ClearCart(ctx context.Context, userID string) error
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}
