package entities

import (
	"time"
)

// CacheSource records who populated a coverage row.
type CacheSource string

const (
	CacheSourceUserSearch CacheSource = "user-search"
	CacheSourcePreWarm    CacheSource = "pre-warm"
	CacheSourceDemo       CacheSource = "demo"
)

// Valid reports whether s is a known source.
func (s CacheSource) Valid() bool {
	switch s {
	case CacheSourceUserSearch, CacheSourcePreWarm, CacheSourceDemo:
		return true
	}
	return false
}

// CacheCoverageEntry is the cache state of one (route, date) pair.
// ExpiresAt always equals CachedAt + TTLSeconds.
type CacheCoverageEntry struct {
	Route         string      `json:"route" db:"route_key"`
	Date          time.Time   `json:"date" db:"travel_date"`
	HasCache      bool        `json:"has_cache" db:"has_cache"`
	CachedPrice   int64       `json:"cached_price" db:"cached_price"`
	CacheSource   CacheSource `json:"cache_source" db:"cache_source"`
	CachedAt      time.Time   `json:"cached_at" db:"cached_at"`
	ExpiresAt     time.Time   `json:"expires_at" db:"expires_at"`
	TTLSeconds    int         `json:"ttl_seconds" db:"ttl_seconds"`
	SearchesCount int         `json:"searches_count" db:"searches_count"`
}

// IsFresh reports whether the cached price is still valid at now.
func (e *CacheCoverageEntry) IsFresh(now time.Time) bool {
	return e.HasCache && now.Before(e.ExpiresAt)
}

// RouteStatistic is the per-route analytics row maintained outside this engine.
type RouteStatistic struct {
	Route                 string  `json:"route" db:"route_key"`
	RecommendedTTLSeconds int     `json:"recommended_ttl_seconds" db:"recommended_ttl_seconds"`
	Searches30d           int     `json:"searches_30d" db:"searches_30d"`
	Searches7d            int     `json:"searches_7d" db:"searches_7d"`
	ConversionRate        float64 `json:"conversion_rate" db:"conversion_rate"`
	AvgPrice              float64 `json:"avg_price" db:"avg_price"`
}

// PriceQuote is the upstream price for one route and date, in minor currency units.
type PriceQuote struct {
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}
