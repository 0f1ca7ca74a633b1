package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/postgres"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// RouteStatisticsAdapter implements RouteStatisticsRepository
type RouteStatisticsAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewRouteStatisticsAdapter creates a new route statistics adapter
func NewRouteStatisticsAdapter(client *postgres.Client) repositories.RouteStatisticsRepository {
	return &RouteStatisticsAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByRoute returns the statistics row for route, or nil when there is none.
func (a *RouteStatisticsAdapter) GetByRoute(ctx context.Context, route string) (*entities.RouteStatistic, error) {
	query, args, err := a.db.From("route_statistics").
		Prepared(true).
		Select(
			"route_key",
			"recommended_ttl_seconds",
			"searches_30d",
			"searches_7d",
			"conversion_rate",
			"avg_price",
		).
		Where(goqu.Ex{"route_key": route}).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build route statistics query", err)
	}

	stat := &entities.RouteStatistic{}
	var ttl, searches30d, searches7d sql.NullInt64
	var conversion, avgPrice sql.NullFloat64

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&stat.Route,
		&ttl,
		&searches30d,
		&searches7d,
		&conversion,
		&avgPrice,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("failed to get route statistics", err)
	}

	stat.RecommendedTTLSeconds = int(ttl.Int64)
	stat.Searches30d = int(searches30d.Int64)
	stat.Searches7d = int(searches7d.Int64)
	stat.ConversionRate = conversion.Float64
	stat.AvgPrice = avgPrice.Float64

	return stat, nil
}
