package repositories

import (
	"context"
	"time"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
)

// CacheCoverageRepository persists which (route, date) pairs have a cached price.
type CacheCoverageRepository interface {
	// Upsert inserts the row with searches_count = 1, or refreshes price,
	// timestamps, TTL and source and increments searches_count. Atomic per key.
	Upsert(ctx context.Context, route string, date time.Time, price int64, ttlSeconds int, source entities.CacheSource) error

	// GetCoverage returns rows for route with start <= date <= end, ordered by date.
	GetCoverage(ctx context.Context, route string, start, end time.Time) ([]*entities.CacheCoverageEntry, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
