package repositories

import (
	"context"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
)

// RouteStatisticsRepository reads per-route analytics. A route without
// statistics yields (nil, nil).
type RouteStatisticsRepository interface {
	GetByRoute(ctx context.Context, route string) (*entities.RouteStatistic, error)
}
