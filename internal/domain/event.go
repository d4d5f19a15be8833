package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderEventType string

const (
	OrderEventPlaced        OrderEventType = "order.placed"
	OrderEventPaid          OrderEventType = "order.paid"
	OrderEventPaymentFailed OrderEventType = "order.payment_failed"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
	OrderEventExpired       OrderEventType = "order.expired"
)

// OrderEvent is an outbox record describing one order mutation.
type OrderEvent struct {
	ID        string
	OrderID   string
	Type      OrderEventType
	Payload   json.RawMessage
	CreatedAt time.Time
}

type orderEventPayload struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Status        OrderStatus   `json:"status"`
	Payment       bool          `json:"payment"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        float64       `json:"amount"`
	Items         []LineItem    `json:"items"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewOrderEvent(eventType OrderEventType, order *Order) (*OrderEvent, error) {
	now := time.Now().UTC()
	payload, err := json.Marshal(orderEventPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		Payment:       order.Payment,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.Amount,
		Items:         order.Items,
		OccurredAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &OrderEvent{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: now,
	}, nil
}
