package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// BreakerFetcher stops calling the upstream after consecutive failures and
// fails fast until the open timeout elapses.
type BreakerFetcher struct {
	next providers.PriceFetcher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerFetcher wraps next. maxFailures consecutive upstream errors open
// the breaker for openTimeout.
func NewBreakerFetcher(next providers.PriceFetcher, maxFailures uint32, openTimeout time.Duration) *BreakerFetcher {
	if maxFailures == 0 {
		maxFailures = 1
	}
	settings := gobreaker.Settings{
		Name:        "price-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Price API circuit breaker changed state")
		},
	}
	return &BreakerFetcher{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

var _ providers.PriceFetcher = (*BreakerFetcher)(nil)

// Fetch forwards to the wrapped fetcher. A route with no fares or a caller
// cancellation is not an upstream fault and does not count against the breaker.
func (b *BreakerFetcher) Fetch(ctx context.Context, origin, destination string, date time.Time) (*entities.PriceQuote, error) {
	var callErr error
	result, err := b.cb.Execute(func() (interface{}, error) {
		quote, err := b.next.Fetch(ctx, origin, destination, date)
		if err != nil && (apperrors.IsType(err, apperrors.ErrorTypeNotFound) || errors.Is(err, context.Canceled)) {
			callErr = err
			return nil, nil
		}
		return quote, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.NewUnavailableError(fmt.Sprintf("price API circuit open, skipping %s", entities.RouteKey(origin, destination)), err)
	}
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		return nil, callErr
	}
	return result.(*entities.PriceQuote), nil
}

// State exposes the breaker state for the status endpoint.
func (b *BreakerFetcher) State() string {
	return b.cb.State().String()
}
