package payment

import (
	"context"
	"errors"
	"time"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// LineItem is one row on the hosted checkout page. UnitAmount is in minor currency units.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type SessionRequest struct {
	OrderID    string
	Currency   string
	SuccessURL string
	CancelURL  string
	Items      []LineItem
	// ExpiresAt closes the hosted page. Zero leaves the gateway default.
	ExpiresAt time.Time
}

// Total is the amount the buyer will be charged, in minor units.
func (r SessionRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.UnitAmount * item.Quantity
	}
	return total
}

type Session struct {
	ID          string
	URL         string
	AmountTotal int64
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// SessionPaid reports whether the buyer completed payment on the hosted page.
	SessionPaid(ctx context.Context, sessionID string) (bool, error)
}
