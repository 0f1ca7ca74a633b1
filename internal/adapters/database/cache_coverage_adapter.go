package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/postgres"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

const cacheCoverageTable = "cache_coverage"

// CacheCoverageAdapter implements CacheCoverageRepository on PostgreSQL.
type CacheCoverageAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewCacheCoverageAdapter creates a new cache coverage adapter
func NewCacheCoverageAdapter(client *postgres.Client) repositories.CacheCoverageRepository {
	return &CacheCoverageAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		now:    time.Now,
	}
}

// Upsert writes the coverage row in a single statement. The increment is done
// by the database, so concurrent writers for the same key never lose a count.
func (a *CacheCoverageAdapter) Upsert(ctx context.Context, route string, date time.Time, price int64, ttlSeconds int, source entities.CacheSource) error {
	if !source.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown cache source %q", source))
	}
	if ttlSeconds <= 0 {
		return apperrors.NewValidationError("ttl must be positive")
	}

	cachedAt := a.now().UTC()
	expiresAt := cachedAt.Add(time.Duration(ttlSeconds) * time.Second)

	query, args, err := a.db.Insert(cacheCoverageTable).
		Prepared(true).
		Rows(goqu.Record{
			"route_key":      route,
			"travel_date":    entities.CalendarDate(date),
			"has_cache":      true,
			"cached_price":   price,
			"cache_source":   string(source),
			"cached_at":      cachedAt,
			"expires_at":     expiresAt,
			"ttl_seconds":    ttlSeconds,
			"searches_count": 1,
		}).
		OnConflict(goqu.DoUpdate("route_key, travel_date", goqu.Record{
			"has_cache":      goqu.L("EXCLUDED.has_cache"),
			"cached_price":   goqu.L("EXCLUDED.cached_price"),
			"cache_source":   goqu.L("EXCLUDED.cache_source"),
			"cached_at":      goqu.L("EXCLUDED.cached_at"),
			"expires_at":     goqu.L("EXCLUDED.expires_at"),
			"ttl_seconds":    goqu.L("EXCLUDED.ttl_seconds"),
			"searches_count": goqu.L(cacheCoverageTable + ".searches_count + 1"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build coverage upsert", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return storeError(fmt.Sprintf("failed to upsert coverage for %s", route), err)
	}
	return nil
}

// GetCoverage returns the rows for route between start and end inclusive.
func (a *CacheCoverageAdapter) GetCoverage(ctx context.Context, route string, start, end time.Time) ([]*entities.CacheCoverageEntry, error) {
	query, args, err := a.db.From(cacheCoverageTable).
		Prepared(true).
		Select(
			"route_key",
			"travel_date",
			"has_cache",
			"cached_price",
			"cache_source",
			"cached_at",
			"expires_at",
			"ttl_seconds",
			"searches_count",
		).
		Where(
			goqu.Ex{"route_key": route},
			goqu.C("travel_date").Between(goqu.Range(entities.CalendarDate(start), entities.CalendarDate(end))),
		).
		Order(goqu.I("travel_date").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build coverage query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to get coverage", err)
	}
	defer rows.Close()

	now := a.now()
	var entries []*entities.CacheCoverageEntry
	for rows.Next() {
		e := &entities.CacheCoverageEntry{}
		var source string
		if err := rows.Scan(
			&e.Route,
			&e.Date,
			&e.HasCache,
			&e.CachedPrice,
			&source,
			&e.CachedAt,
			&e.ExpiresAt,
			&e.TTLSeconds,
			&e.SearchesCount,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan coverage row", err)
		}
		e.CacheSource = entities.CacheSource(source)
		// Expiry is logical: stale rows stay in the table but report no cache.
		e.HasCache = e.IsFresh(now)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate coverage rows", err)
	}

	return entries, nil
}

// Ping verifies the database is reachable.
func (a *CacheCoverageAdapter) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx); err != nil {
		return apperrors.NewUnavailableError("cache coverage store unreachable", err)
	}
	return nil
}
