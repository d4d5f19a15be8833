package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_shop/internal/domain"
)

type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Set(ctx context.Context, productID string, product *domain.Product) error
}

var ErrCacheMiss = errors.New("cache miss")
