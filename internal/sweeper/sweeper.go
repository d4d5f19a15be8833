package sweeper

import (
	"context"
	"log/slog"
	"time"
)

type OrderExpirer interface {
	ExpireStaleOrders(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically cancels hosted-payment orders the buyer never paid for.
type Sweeper struct {
	tick    time.Duration
	orders  OrderExpirer
	log     *slog.Logger
	nowFunc func() time.Time
}

func New(orders OrderExpirer, tick time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		tick:    tick,
		orders:  orders,
		log:     log.With("component", "sweeper"),
		nowFunc: time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.orders.ExpireStaleOrders(ctx, s.nowFunc())
	if err != nil {
		s.log.ErrorContext(ctx, "sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.log.InfoContext(ctx, "expired unpaid orders", "count", expired)
	}
}
