package providers

import (
	"context"
	"time"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/pkg/cachekey"
)

// PriceFetcher looks up the current price of a one-way flight. Calls are
// expensive and rate limited upstream.
type PriceFetcher interface {
	Fetch(ctx context.Context, origin, destination string, date time.Time) (*entities.PriceQuote, error)
}

// PriceCache stores quotes where the online flight search reads them.
type PriceCache interface {
	StoreQuote(ctx context.Context, params cachekey.FlightSearchParams, quote *entities.PriceQuote, ttlSeconds int) error
}

// RunLock guards a job against concurrent runs across processes.
type RunLock interface {
	// Acquire returns false when another holder owns the lock.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

// ReportArchive keeps finished run reports outside the process.
type ReportArchive interface {
	Archive(ctx context.Context, report *entities.RunReport) error
}
