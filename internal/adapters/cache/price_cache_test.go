package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visa2any/fly2any-sub046/internal/adapters/cache"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	"github.com/visa2any/fly2any-sub046/pkg/cachekey"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

type fakeCacheProvider struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
	err  error
}

func newFakeCacheProvider() *fakeCacheProvider {
	return &fakeCacheProvider{data: make(map[string][]byte), ttls: make(map[string]int)}
}

func (f *fakeCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	val, ok := f.data[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return val, nil
}

func (f *fakeCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	f.ttls[key] = expirationSeconds
	return nil
}

func oneWay(origin, destination, date string) cachekey.FlightSearchParams {
	return cachekey.FlightSearchParams{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: date,
		Adults:        1,
		TravelClass:   "ECONOMY",
		CurrencyCode:  "USD",
	}
}

func TestPriceCache_StoreQuoteUsesSearchKey(t *testing.T) {
	provider := newFakeCacheProvider()
	priceCache := cache.NewPriceCache(provider)
	params := oneWay("JFK", "LAX", "2025-12-15")

	err := priceCache.StoreQuote(context.Background(), params, &entities.PriceQuote{Price: 34900, Currency: "USD"}, 900)
	require.NoError(t, err)

	key := "flight:search:JFK:LAX:2025-12-15:oneway:1:0:0:ECONOMY:any:USD"
	require.Contains(t, provider.data, key)
	assert.Equal(t, 900, provider.ttls[key])

	var stored cache.CachedQuote
	require.NoError(t, json.Unmarshal(provider.data[key], &stored))
	assert.Equal(t, int64(34900), stored.Price)
	assert.Equal(t, "pre-warm", stored.Source)

	found, err := priceCache.Lookup(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "2025-12-15", found.DepartureDate)
}

func TestPriceCache_CurrencyFallsBackToParams(t *testing.T) {
	provider := newFakeCacheProvider()
	priceCache := cache.NewPriceCache(provider)
	params := oneWay("JFK", "SFO", "2025-12-15")
	params.CurrencyCode = "EUR"

	require.NoError(t, priceCache.StoreQuote(context.Background(), params, &entities.PriceQuote{Price: 100}, 60))

	found, err := priceCache.Lookup(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "EUR", found.Currency)
}

func TestPriceCache_LookupMiss(t *testing.T) {
	priceCache := cache.NewPriceCache(newFakeCacheProvider())

	found, err := priceCache.Lookup(context.Background(), oneWay("JFK", "LAX", "2025-12-22"))
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestPriceCache_Errors(t *testing.T) {
	provider := newFakeCacheProvider()
	priceCache := cache.NewPriceCache(provider)
	ctx := context.Background()
	params := oneWay("JFK", "LAX", "2025-12-15")

	err := priceCache.StoreQuote(ctx, params, nil, 900)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	err = priceCache.StoreQuote(ctx, params, &entities.PriceQuote{Price: 1}, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	provider.err = errors.New("READONLY You can't write against a read only replica")
	err = priceCache.StoreQuote(ctx, params, &entities.PriceQuote{Price: 1}, 900)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
}
