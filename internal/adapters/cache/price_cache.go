package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	"github.com/visa2any/fly2any-sub046/pkg/cachekey"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// CachedQuote is the value stored under a flight search key.
type CachedQuote struct {
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureDate string    `json:"departure_date"`
	Price         int64     `json:"price"`
	Currency      string    `json:"currency"`
	Source        string    `json:"source"`
	CachedAt      time.Time `json:"cached_at"`
}

// PriceCache writes pre-warmed quotes where the online search path reads them.
type PriceCache struct {
	cache providers.CacheProvider
	now   func() time.Time
}

// NewPriceCache creates a price cache on top of a key/value provider.
func NewPriceCache(cache providers.CacheProvider) *PriceCache {
	return &PriceCache{cache: cache, now: time.Now}
}

var _ providers.PriceCache = (*PriceCache)(nil)

// StoreQuote writes quote under cachekey.GenerateKey(params) for ttlSeconds.
func (c *PriceCache) StoreQuote(ctx context.Context, params cachekey.FlightSearchParams, quote *entities.PriceQuote, ttlSeconds int) error {
	if quote == nil {
		return apperrors.NewValidationError("quote is required")
	}
	if ttlSeconds <= 0 {
		return apperrors.NewValidationError("ttl must be positive")
	}

	currency := quote.Currency
	if currency == "" {
		currency = params.CurrencyCode
	}
	data, err := json.Marshal(CachedQuote{
		Origin:        params.Origin,
		Destination:   params.Destination,
		DepartureDate: params.DepartureDate,
		Price:         quote.Price,
		Currency:      currency,
		Source:        string(entities.CacheSourcePreWarm),
		CachedAt:      c.now().UTC(),
	})
	if err != nil {
		return apperrors.NewInternalError("failed to encode quote", err)
	}

	key := cachekey.GenerateKey(params)
	if err := c.cache.Set(ctx, key, data, ttlSeconds); err != nil {
		return apperrors.NewUnavailableError(fmt.Sprintf("price cache write failed for %s", key), err)
	}
	return nil
}

// Lookup returns the quote stored for params, or nil on a miss.
func (c *PriceCache) Lookup(ctx context.Context, params cachekey.FlightSearchParams) (*CachedQuote, error) {
	data, err := c.cache.Get(ctx, cachekey.GenerateKey(params))
	if errors.Is(err, providers.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewUnavailableError("price cache read failed", err)
	}

	var quote CachedQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, apperrors.NewInternalError("failed to decode cached quote", err)
	}
	return &quote, nil
}
