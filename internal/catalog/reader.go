package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"golang.org/x/sync/singleflight"
)

// Reader resolves products for pricing, cache-aside over the products collection.
type Reader struct {
	repo  repository.ProductRepository
	cache cache.ProductCache
	log   *slog.Logger
	sfg   singleflight.Group
}

func NewReader(repo repository.ProductRepository, cache cache.ProductCache, log *slog.Logger) *Reader {
	return &Reader{
		repo:  repo,
		cache: cache,
		log:   log.With("component", "catalog"),
	}
}

func (r *Reader) Product(ctx context.Context, productID string) (*domain.Product, error) {
	v, err, _ := r.sfg.Do(productID, func() (interface{}, error) {
		product, err := r.cache.Get(ctx, productID)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.WarnContext(ctx, "cache get error", "product_id", productID, "error", err)
		}

		product, err = r.repo.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := r.cache.Set(setCtx, productID, product); err != nil {
				r.log.Warn("cache set error", "product_id", productID, "error", err)
			}
		}()

		return product, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Product), nil
}
