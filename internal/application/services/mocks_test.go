package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/pkg/cachekey"
)

// day is the fixed "now" of the service tests: Monday 2025-12-01, noon UTC.
var day = time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return day }

func date(s string) time.Time {
	t, err := time.Parse(entities.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) ListRecentEvents(ctx context.Context, since time.Time) ([]*entities.SearchEvent, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SearchEvent), args.Error(1)
}

func (m *MockEventRepository) ListRecentSavedSearches(ctx context.Context, since time.Time) ([]*entities.SavedSearch, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SavedSearch), args.Error(1)
}

type MockPriceFetcher struct {
	mock.Mock
}

func (m *MockPriceFetcher) Fetch(ctx context.Context, origin, destination string, date time.Time) (*entities.PriceQuote, error) {
	args := m.Called(ctx, origin, destination, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PriceQuote), args.Error(1)
}

type MockRouteStatisticsRepository struct {
	mock.Mock
}

func (m *MockRouteStatisticsRepository) GetByRoute(ctx context.Context, route string) (*entities.RouteStatistic, error) {
	args := m.Called(ctx, route)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RouteStatistic), args.Error(1)
}

type MockRunLock struct {
	mock.Mock
}

func (m *MockRunLock) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockRunLock) Release(ctx context.Context, owner string) error {
	return m.Called(ctx, owner).Error(0)
}

// recordingPriceCache keeps every stored quote by cache key.
type recordingPriceCache struct {
	mu     sync.Mutex
	quotes map[string]int
	err    error
}

func newRecordingPriceCache() *recordingPriceCache {
	return &recordingPriceCache{quotes: make(map[string]int)}
}

func (c *recordingPriceCache) StoreQuote(ctx context.Context, params cachekey.FlightSearchParams, quote *entities.PriceQuote, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.quotes[cachekey.GenerateKey(params)] = ttlSeconds
	return nil
}

func search(origin, destination, depart string) *entities.SearchEvent {
	return &entities.SearchEvent{
		Origin:      origin,
		Destination: destination,
		DepartDate:  date(depart),
		CreatedAt:   day.AddDate(0, 0, -3),
	}
}

func saved(origin, destination, depart string) *entities.SavedSearch {
	return &entities.SavedSearch{
		Origin:      origin,
		Destination: destination,
		DepartDate:  date(depart),
		UserID:      "user-1",
		CreatedAt:   day.AddDate(0, 0, -3),
	}
}

func routeDate(route, d string) entities.RouteDate {
	origin, destination, _ := entities.SplitRoute(route)
	if origin == "" {
		origin, destination = route[:3], route[4:]
	}
	return entities.RouteDate{Route: route, Origin: origin, Destination: destination, Date: date(d)}
}
