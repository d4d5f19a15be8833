package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjod/go_shop/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

// BreakerGateway fails fast with ErrGatewayUnavailable while the wrapped gateway keeps erroring.
type BreakerGateway struct {
	next     Gateway
	sessions *gobreaker.CircuitBreaker[*Session]
	status   *gobreaker.CircuitBreaker[bool]
}

func NewBreakerGateway(next Gateway, cfg circuitbreaker.Config, log *slog.Logger) *BreakerGateway {
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool {
			return err == nil || isClientError(err)
		}
	}

	createCfg := cfg
	createCfg.Name = cfg.Name + "-create"
	statusCfg := cfg
	statusCfg.Name = cfg.Name + "-status"

	return &BreakerGateway{
		next:     next,
		sessions: circuitbreaker.New[*Session](createCfg, log),
		status:   circuitbreaker.New[bool](statusCfg, log),
	}
}

func (b *BreakerGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	s, err := b.sessions.Execute(func() (*Session, error) {
		return b.next.CreateSession(ctx, req)
	})
	if circuitbreaker.IsRejected(err) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return s, err
}

func (b *BreakerGateway) SessionPaid(ctx context.Context, sessionID string) (bool, error) {
	paid, err := b.status.Execute(func() (bool, error) {
		return b.next.SessionPaid(ctx, sessionID)
	})
	if circuitbreaker.IsRejected(err) {
		return false, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return paid, err
}
