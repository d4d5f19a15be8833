package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/payment"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/shopspring/decimal"
)

const deliveryItemName = "Delivery Charges"

// maxQuantity is the largest line item quantity Stripe accepts.
const maxQuantity = 999999

var hundred = decimal.NewFromInt(100)

// Quote is an order priced from the catalog.
type Quote struct {
	Items    []domain.LineItem
	Subtotal decimal.Decimal
	Delivery decimal.Decimal
	Total    decimal.Decimal
}

// MinorUnits converts a two-decimal currency amount to cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func (s *OrderService) quote(ctx context.Context, items []ItemRequest) (*Quote, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	q := &Quote{
		Items:    make([]domain.LineItem, 0, len(items)),
		Subtotal: decimal.Zero,
		Delivery: s.settings.DeliveryCharge,
	}

	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item %d has no product id", ErrInvalidOrder, i)
		}
		if item.Quantity < 1 || item.Quantity > maxQuantity {
			return nil, fmt.Errorf("%w: item %d quantity must be between 1 and %d", ErrInvalidOrder, i, maxQuantity)
		}

		product, err := s.catalog.Product(ctx, productID)
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("%w: unknown product %s", ErrInvalidOrder, productID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve product %s: %w", productID, err)
		}
		if !product.HasSize(item.Size) {
			return nil, fmt.Errorf("%w: product %s has no size %q", ErrInvalidOrder, productID, item.Size)
		}

		price := decimal.NewFromFloat(product.Price).Round(2)
		q.Subtotal = q.Subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		q.Items = append(q.Items, domain.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			Price:     price.InexactFloat64(),
		})
	}

	q.Total = q.Subtotal.Add(q.Delivery)
	return q, nil
}

// checkAmount rejects a client-side total that disagrees with the quote. Zero means the client sent none.
func checkAmount(clientAmount float64, q *Quote) error {
	if clientAmount == 0 {
		return nil
	}
	if !decimal.NewFromFloat(clientAmount).Round(2).Equal(q.Total) {
		return fmt.Errorf("%w: got %.2f, expected %s", ErrAmountMismatch, clientAmount, q.Total.StringFixed(2))
	}
	return nil
}

// checkoutItems lists the order for the hosted checkout page, with delivery as its own row.
func checkoutItems(q *Quote) []payment.LineItem {
	items := make([]payment.LineItem, 0, len(q.Items)+1)
	for _, item := range q.Items {
		items = append(items, payment.LineItem{
			Name:       item.Name,
			UnitAmount: MinorUnits(decimal.NewFromFloat(item.Price)),
			Quantity:   int64(item.Quantity),
		})
	}
	if q.Delivery.IsPositive() {
		items = append(items, payment.LineItem{
			Name:       deliveryItemName,
			UnitAmount: MinorUnits(q.Delivery),
			Quantity:   1,
		})
	}
	return items
}
