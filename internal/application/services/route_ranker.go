package services

import (
	"sort"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
)

const (
	DefaultTopRoutes        = 100
	DefaultMaxDatesPerRoute = 4
)

// RouteRanker selects the most popular routes and their dates.
type RouteRanker struct {
	topN     int
	maxDates int
}

// NewRouteRanker creates a ranker keeping topN routes with at most maxDates
// dates each. Non-positive values fall back to the defaults.
func NewRouteRanker(topN, maxDates int) *RouteRanker {
	if topN <= 0 {
		topN = DefaultTopRoutes
	}
	if maxDates <= 0 {
		maxDates = DefaultMaxDatesPerRoute
	}
	return &RouteRanker{topN: topN, maxDates: maxDates}
}

// Rank orders routes by weight descending, ties broken by route key, and
// keeps the first topN. Each route keeps its earliest maxDates candidate dates.
func (r *RouteRanker) Rank(aggregates map[string]*entities.RouteAggregate) []entities.RankedRoute {
	sorted := make([]*entities.RouteAggregate, 0, len(aggregates))
	for _, agg := range aggregates {
		sorted = append(sorted, agg)
	}
	sort.Slice(sorted, func(i, j int) bool {
		wi, wj := sorted[i].Weight(), sorted[j].Weight()
		if wi != wj {
			return wi > wj
		}
		return sorted[i].Route < sorted[j].Route
	})
	if len(sorted) > r.topN {
		sorted = sorted[:r.topN]
	}

	ranked := make([]entities.RankedRoute, 0, len(sorted))
	for i, agg := range sorted {
		dates := agg.CandidateDates()
		if len(dates) > r.maxDates {
			dates = dates[:r.maxDates]
		}
		ranked = append(ranked, entities.RankedRoute{
			Rank:        i + 1,
			Route:       agg.Route,
			Origin:      agg.Origin,
			Destination: agg.Destination,
			Weight:      agg.Weight(),
			Dates:       dates,
		})
	}
	return ranked
}

// Worklist flattens ranked routes into work items in rank then date order.
// A (route, date) pair appears at most once.
func (r *RouteRanker) Worklist(ranked []entities.RankedRoute) []entities.RouteDate {
	seen := make(map[string]struct{})
	var items []entities.RouteDate
	for _, route := range ranked {
		for _, date := range route.Dates {
			item := entities.RouteDate{
				Route:       route.Route,
				Origin:      route.Origin,
				Destination: route.Destination,
				Date:        date,
			}
			if _, dup := seen[item.String()]; dup {
				continue
			}
			seen[item.String()] = struct{}{}
			items = append(items, item)
		}
	}
	return items
}
