package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/service"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*domain.Order, error)
	PlaceHostedOrder(ctx context.Context, req service.PlaceOrderRequest, origin string) (*service.HostedCheckout, error)
	VerifyPayment(ctx context.Context, req service.VerifyRequest) (bool, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *slog.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log.With("component", "http"),
	}
}

// OrderItemDTO accepts the storefront's cart rows, which identify the product by _id.
type OrderItemDTO struct {
	ID        string `json:"_id"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequestDTO struct {
	Items   []OrderItemDTO `json:"items"`
	Amount  float64        `json:"amount"`
	Address domain.Address `json:"address"`
}

type VerifyRequestDTO struct {
	OrderID string   `json:"orderId"`
	Success flexBool `json:"success"`
	Token   string   `json:"token"`
}

type UpdateStatusRequestDTO struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// flexBool decodes both true and "true"; the storefront forwards the redirect query value as a string.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*b = flexBool(s == "true")
	return nil
}

// POST /api/order/place
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodePlaceOrder(w, r)
	if !ok {
		return
	}

	if _, err := h.orders.PlaceOrder(ctx, req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{"success": true, "message": "Order Placed Successfully"})
}

// POST /api/order/stripe
func (h *OrdersHandler) PlaceStripeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodePlaceOrder(w, r)
	if !ok {
		return
	}

	checkout, err := h.orders.PlaceHostedOrder(ctx, req, r.Header.Get("Origin"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{"success": true, "session_url": checkout.SessionURL})
}

// POST /api/order/verifyStripe
func (h *OrdersHandler) VerifyStripe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var dto VerifyRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.OrderID == "" {
		respondError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	paid, err := h.orders.VerifyPayment(ctx, service.VerifyRequest{
		UserID:  getUserIDFromContext(r.Context()),
		OrderID: dto.OrderID,
		Success: bool(dto.Success),
		Token:   dto.Token,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	if !paid {
		respondJSON(w, http.StatusOK, envelope{"success": false, "message": "Payment Failed"})
		return
	}
	respondJSON(w, http.StatusOK, envelope{"success": true, "message": "Payment Success"})
}

// POST /api/order/list
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{"success": true, "orders": nonNil(orders)})
}

// POST /api/order/userorders
func (h *OrdersHandler) UserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListUserOrders(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{"success": true, "orders": nonNil(orders)})
}

// POST /api/order/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var dto UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.OrderID == "" {
		respondError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	if _, err := h.orders.UpdateStatus(ctx, dto.OrderID, dto.Status); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{"success": true, "message": "Status Updated"})
}

func decodePlaceOrder(w http.ResponseWriter, r *http.Request) (service.PlaceOrderRequest, bool) {
	var dto PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return service.PlaceOrderRequest{}, false
	}

	items := make([]service.ItemRequest, 0, len(dto.Items))
	for _, item := range dto.Items {
		productID := item.ProductID
		if productID == "" {
			productID = item.ID
		}
		items = append(items, service.ItemRequest{
			ProductID: productID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}

	return service.PlaceOrderRequest{
		UserID:  getUserIDFromContext(r.Context()),
		Items:   items,
		Amount:  dto.Amount,
		Address: dto.Address,
	}, true
}

func nonNil(orders []*domain.Order) []*domain.Order {
	if orders == nil {
		return []*domain.Order{}
	}
	return orders
}
