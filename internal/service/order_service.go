package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/payment"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const sweepBatchSize = 100

// Stripe accepts checkout session lifetimes between 30 minutes and 24 hours.
const (
	minSessionLifetime = 30 * time.Minute
	maxSessionLifetime = 24 * time.Hour
)

type ProductCatalog interface {
	Product(ctx context.Context, productID string) (*domain.Product, error)
}

type Settings struct {
	Currency        string
	DeliveryCharge  decimal.Decimal
	StorefrontURL   string
	PendingOrderTTL time.Duration
}

type ItemRequest struct {
	ProductID string
	Size      string
	Quantity  int
}

type PlaceOrderRequest struct {
	UserID  string
	Items   []ItemRequest
	Amount  float64
	Address domain.Address
}

type HostedCheckout struct {
	Order      *domain.Order
	SessionURL string
}

type VerifyRequest struct {
	UserID  string
	OrderID string
	Success bool
	Token   string
}

type OrderService struct {
	orders   repository.OrderRepository
	users    repository.UserRepository
	catalog  ProductCatalog
	gateway  payment.Gateway
	settings Settings
	log      *slog.Logger
	newToken func() string
	now      func() time.Time
}

func NewOrderService(
	orders repository.OrderRepository,
	users repository.UserRepository,
	catalog ProductCatalog,
	gateway payment.Gateway,
	settings Settings,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		users:    users,
		catalog:  catalog,
		gateway:  gateway,
		settings: settings,
		log:      log.With("component", "order_service"),
		newToken: uuid.NewString,
		now:      time.Now,
	}
}

// PlaceOrder records a cash-on-delivery order and empties the buyer's cart.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	order, _, err := s.newOrder(ctx, req, domain.PaymentMethodCOD)
	if err != nil {
		return nil, err
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	s.log.InfoContext(ctx, "order placed", "order_id", order.ID, "user_id", order.UserID, "amount", order.Amount)

	s.clearCart(ctx, order.UserID)
	return order, nil
}

// PlaceHostedOrder records an unpaid order and opens a hosted checkout session for it.
// The order stays unpaid until VerifyPayment settles it or the sweeper expires it.
func (s *OrderService) PlaceHostedOrder(ctx context.Context, req PlaceOrderRequest, origin string) (*HostedCheckout, error) {
	base := strings.TrimRight(s.settings.StorefrontURL, "/")
	if base == "" {
		base = strings.TrimRight(origin, "/")
	}
	if base == "" {
		return nil, fmt.Errorf("%w: no storefront origin to return the buyer to", ErrInvalidOrder)
	}

	order, q, err := s.newOrder(ctx, req, domain.PaymentMethodStripe)
	if err != nil {
		return nil, err
	}
	order.ConfirmationToken = s.newToken()

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	sessionReq := payment.SessionRequest{
		OrderID:    order.ID,
		Currency:   s.settings.Currency,
		SuccessURL: verifyURL(base, order, true),
		CancelURL:  verifyURL(base, order, false),
		Items:      checkoutItems(q),
		ExpiresAt:  s.now().Add(s.sessionLifetime()),
	}
	session, err := s.gateway.CreateSession(ctx, sessionReq)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to create checkout session", "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if session.AmountTotal != 0 && session.AmountTotal != sessionReq.Total() {
		s.log.WarnContext(ctx, "checkout session total differs from order",
			"order_id", order.ID, "session_total", session.AmountTotal, "order_total", sessionReq.Total())
	}

	if err := s.orders.AttachSession(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("failed to attach checkout session: %w", err)
	}
	order.SessionID = session.ID
	s.log.InfoContext(ctx, "hosted order placed", "order_id", order.ID, "user_id", order.UserID, "session_id", session.ID)

	return &HostedCheckout{Order: order, SessionURL: session.URL}, nil
}

// VerifyPayment records the outcome the buyer was redirected back with. It returns whether the
// order is now paid. Repeating a successful confirmation is a no-op.
func (s *OrderService) VerifyPayment(ctx context.Context, req VerifyRequest) (bool, error) {
	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return false, err
	}
	if order.UserID != req.UserID {
		return false, repository.ErrOrderNotFound
	}
	if order.Payment {
		return true, nil
	}
	if !order.Settleable() {
		return false, ErrNotAwaitingPayment
	}
	if order.ConfirmationToken == "" ||
		subtle.ConstantTimeCompare([]byte(order.ConfirmationToken), []byte(req.Token)) != 1 {
		return false, ErrInvalidToken
	}

	paid := false
	if order.SessionID != "" {
		paid, err = s.gateway.SessionPaid(ctx, order.SessionID)
		if err != nil {
			return false, fmt.Errorf("failed to check checkout session: %w", err)
		}
	}

	if !req.Success && !paid {
		if err := s.orders.DiscardUnpaid(ctx, order.ID, order.UserID, req.Token); err != nil {
			return false, fmt.Errorf("failed to discard unpaid order: %w", err)
		}
		s.log.InfoContext(ctx, "unpaid order discarded", "order_id", order.ID, "user_id", order.UserID)
		return false, nil
	}
	if !paid {
		return false, ErrPaymentNotSettled
	}

	if _, err := s.orders.ConfirmPayment(ctx, order.ID, order.UserID, req.Token); err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return false, fmt.Errorf("failed to confirm payment: %w", err)
		}
		// a concurrent callback may have settled it first
		current, getErr := s.orders.GetOrder(ctx, order.ID)
		if getErr == nil && current.Payment {
			return true, nil
		}
		return false, err
	}
	s.log.InfoContext(ctx, "order paid", "order_id", order.ID, "user_id", order.UserID)

	s.clearCart(ctx, order.UserID)
	return true, nil
}

// UpdateStatus moves an order to the next fulfillment stage. Setting the current stage again is a no-op.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	to, ok := domain.ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == to {
		return order, nil
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order is already %s", ErrIllegalTransition, order.Status)
	}
	if !domain.CanTransitionTo(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, to)
	}
	if order.AwaitingPayment() && to != domain.OrderStatusCancelled {
		return nil, ErrPaymentRequired
	}

	updated, err := s.orders.UpdateStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "order status updated", "order_id", order.ID, "from", order.Status, "to", to)

	return updated, nil
}

func (s *OrderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.orders.ListOrdersByUserID(ctx, userID)
}

// ExpireStaleOrders cancels hosted orders left unpaid for longer than the pending TTL.
// An order whose checkout session was paid without the buyer returning is settled instead.
func (s *OrderService) ExpireStaleOrders(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.orders.FindStaleUnpaid(ctx, now.Add(-s.settings.PendingOrderTTL), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale orders: %w", err)
	}

	expired := 0
	for _, order := range stale {
		if order.SessionID != "" {
			paid, err := s.gateway.SessionPaid(ctx, order.SessionID)
			if err != nil {
				s.log.WarnContext(ctx, "failed to check checkout session, order kept", "order_id", order.ID, "error", err)
				continue
			}
			if paid {
				s.settleStale(ctx, order)
				continue
			}
		}

		if _, err := s.orders.CancelUnpaid(ctx, order.ID); err != nil {
			if !errors.Is(err, repository.ErrOrderNotFound) {
				s.log.ErrorContext(ctx, "failed to expire order", "order_id", order.ID, "error", err)
			}
			continue
		}
		expired++
		s.log.InfoContext(ctx, "unpaid order expired", "order_id", order.ID, "placed_at", order.Date)
	}

	return expired, nil
}

func (s *OrderService) settleStale(ctx context.Context, order *domain.Order) {
	if _, err := s.orders.ConfirmPayment(ctx, order.ID, order.UserID, order.ConfirmationToken); err != nil {
		// a callback may have settled it in the meantime
		if !errors.Is(err, repository.ErrOrderNotFound) {
			s.log.ErrorContext(ctx, "failed to settle paid order", "order_id", order.ID, "error", err)
		}
		return
	}
	s.log.InfoContext(ctx, "order paid without callback", "order_id", order.ID, "user_id", order.UserID)

	s.clearCart(ctx, order.UserID)
}

func (s *OrderService) sessionLifetime() time.Duration {
	return min(max(s.settings.PendingOrderTTL, minSessionLifetime), maxSessionLifetime)
}

func (s *OrderService) newOrder(ctx context.Context, req PlaceOrderRequest, method domain.PaymentMethod) (*domain.Order, *Quote, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, nil, fmt.Errorf("%w: missing buyer", ErrInvalidOrder)
	}
	if err := validateAddress(req.Address); err != nil {
		return nil, nil, err
	}

	q, err := s.quote(ctx, req.Items)
	if err != nil {
		return nil, nil, err
	}
	if err := checkAmount(req.Amount, q); err != nil {
		return nil, nil, err
	}

	return &domain.Order{
		UserID:        req.UserID,
		Items:         q.Items,
		Address:       req.Address,
		Amount:        q.Total.InexactFloat64(),
		PaymentMethod: method,
		Payment:       false,
		Status:        domain.OrderStatusPlaced,
	}, q, nil
}

func (s *OrderService) clearCart(ctx context.Context, userID string) {
	if err := s.users.ClearCart(ctx, userID); err != nil {
		s.log.WarnContext(ctx, "failed to clear cart", "user_id", userID, "error", err)
	}
}

func validateAddress(a domain.Address) error {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"street", a.Street},
		{"city", a.City},
		{"country", a.Country},
		{"phone", a.Phone},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: address.%s is required", ErrInvalidOrder, f.name)
		}
	}
	return nil
}

func verifyURL(base string, order *domain.Order, success bool) string {
	return fmt.Sprintf("%s/verify?success=%t&orderId=%s&token=%s", base, success, order.ID, order.ConfirmationToken)
}
