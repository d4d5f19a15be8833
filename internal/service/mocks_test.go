package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/payment"
	"github.com/fjod/go_shop/internal/repository"
)

// MockOrderRepository keeps orders in memory and applies the same conditional
// filters as the Mongo repository.
type MockOrderRepository struct {
	Orders    map[string]*domain.Order
	Events    []domain.OrderEventType
	CreateErr error
	AttachErr error
	FindErr   error
	CancelErr error
	nextID    int
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{Orders: map[string]*domain.Order{}}
}

func (m *MockOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.nextID++
	order.ID = fmt.Sprintf("order-%d", m.nextID)
	if order.Date.IsZero() {
		order.Date = time.Now()
	}
	stored := *order
	m.Orders[order.ID] = &stored
	m.Events = append(m.Events, domain.OrderEventPlaced)
	return nil
}

func (m *MockOrderRepository) AttachSession(_ context.Context, orderID, sessionID string) error {
	if m.AttachErr != nil {
		return m.AttachErr
	}
	o, ok := m.Orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.SessionID = sessionID
	return nil
}

func (m *MockOrderRepository) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	o, ok := m.Orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *MockOrderRepository) matchUnpaid(orderID, userID, token string) (*domain.Order, bool) {
	o, ok := m.Orders[orderID]
	if !ok || o.UserID != userID || o.ConfirmationToken != token || o.Payment {
		return nil, false
	}
	return o, true
}

func (m *MockOrderRepository) ConfirmPayment(_ context.Context, orderID, userID, token string) (*domain.Order, error) {
	o, ok := m.matchUnpaid(orderID, userID, token)
	if !ok || !o.Settleable() {
		return nil, repository.ErrOrderNotFound
	}
	o.Payment = true
	o.Status = domain.OrderStatusPlaced
	o.ConfirmationToken = ""
	o.ExpiredAt = nil
	m.Events = append(m.Events, domain.OrderEventPaid)
	c := *o
	return &c, nil
}

func (m *MockOrderRepository) DiscardUnpaid(_ context.Context, orderID, userID, token string) error {
	if _, ok := m.matchUnpaid(orderID, userID, token); !ok {
		return repository.ErrOrderNotFound
	}
	delete(m.Orders, orderID)
	m.Events = append(m.Events, domain.OrderEventPaymentFailed)
	return nil
}

func (m *MockOrderRepository) UpdateStatus(_ context.Context, orderID string, from, to domain.OrderStatus) (*domain.Order, error) {
	o, ok := m.Orders[orderID]
	if !ok || o.Status != from {
		return nil, repository.ErrStatusConflict
	}
	o.Status = to
	m.Events = append(m.Events, domain.OrderEventStatusChanged)
	c := *o
	return &c, nil
}

func (m *MockOrderRepository) list(keep func(*domain.Order) bool) []*domain.Order {
	out := []*domain.Order{}
	for _, o := range m.Orders {
		if keep(o) {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (m *MockOrderRepository) ListOrders(_ context.Context) ([]*domain.Order, error) {
	return m.list(func(*domain.Order) bool { return true }), nil
}

func (m *MockOrderRepository) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	return m.list(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m *MockOrderRepository) FindStaleUnpaid(_ context.Context, placedBefore time.Time, _ int64) ([]*domain.Order, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	return m.list(func(o *domain.Order) bool {
		return o.AwaitingPayment() && o.Status == domain.OrderStatusPlaced && o.Date.Before(placedBefore)
	}), nil
}

func (m *MockOrderRepository) CancelUnpaid(_ context.Context, orderID string) (*domain.Order, error) {
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	o, ok := m.Orders[orderID]
	if !ok || !o.AwaitingPayment() || o.Status != domain.OrderStatusPlaced {
		return nil, repository.ErrOrderNotFound
	}
	now := time.Now()
	o.Status = domain.OrderStatusCancelled
	o.ExpiredAt = &now
	m.Events = append(m.Events, domain.OrderEventExpired)
	c := *o
	return &c, nil
}

type MockUserRepository struct {
	Cleared  []string
	ClearErr error
}

func (m *MockUserRepository) ClearCart(_ context.Context, userID string) error {
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.Cleared = append(m.Cleared, userID)
	return nil
}

type MockCatalog struct {
	Products map[string]*domain.Product
	Err      error
}

func (m *MockCatalog) Product(_ context.Context, id string) (*domain.Product, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

type MockGateway struct {
	Requests   []payment.SessionRequest
	CreateErr  error
	Paid       bool
	PaidErr    error
	PaidChecks int
}

func (m *MockGateway) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	m.Requests = append(m.Requests, req)
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	id := "cs_" + req.OrderID
	return &payment.Session{ID: id, URL: "https://pay.example/" + id, AmountTotal: req.Total()}, nil
}

func (m *MockGateway) SessionPaid(_ context.Context, _ string) (bool, error) {
	m.PaidChecks++
	return m.Paid, m.PaidErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
