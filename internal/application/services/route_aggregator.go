package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// DefaultLookbackDays is the popularity window used when none is configured.
const DefaultLookbackDays = 30

// RouteAggregator turns the raw search log into per-route popularity.
type RouteAggregator struct {
	events repositories.EventRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewRouteAggregator creates a new route aggregator
func NewRouteAggregator(events repositories.EventRepository, logger zerolog.Logger) *RouteAggregator {
	return &RouteAggregator{
		events: events,
		logger: logger.With().Str("component", "route_aggregator").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (a *RouteAggregator) WithClock(now func() time.Time) *RouteAggregator {
	a.now = now
	return a
}

// Aggregate groups searches and saved searches created in the last lookbackDays
// by route. When the event source cannot be read it returns an empty map and
// an UNAVAILABLE error.
func (a *RouteAggregator) Aggregate(ctx context.Context, lookbackDays int) (map[string]*entities.RouteAggregate, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	now := a.now().UTC()
	cutoff := now.AddDate(0, 0, -lookbackDays)
	todayBucket := entities.BucketToWeek(now)

	aggregates := make(map[string]*entities.RouteAggregate)

	events, err := a.events.ListRecentEvents(ctx, cutoff)
	if err != nil {
		return map[string]*entities.RouteAggregate{}, apperrors.NewUnavailableError("event store unavailable: search events", err)
	}
	saved, err := a.events.ListRecentSavedSearches(ctx, cutoff)
	if err != nil {
		return map[string]*entities.RouteAggregate{}, apperrors.NewUnavailableError("event store unavailable: saved searches", err)
	}

	invalid := 0
	add := func(origin, destination string, departDate, createdAt time.Time) *entities.RouteAggregate {
		if createdAt.Before(cutoff) {
			return nil
		}
		origin, destination = entities.NormalizeIATA(origin), entities.NormalizeIATA(destination)
		if !entities.IsIATACode(origin) || !entities.IsIATACode(destination) {
			invalid++
			return nil
		}
		key := origin + "-" + destination
		agg, ok := aggregates[key]
		if !ok {
			agg = entities.NewRouteAggregate(origin, destination)
			aggregates[key] = agg
		}
		if !entities.BucketToWeek(departDate).Before(todayBucket) {
			agg.AddCandidateDate(departDate)
		}
		return agg
	}

	for _, e := range events {
		if agg := add(e.Origin, e.Destination, e.DepartDate, e.CreatedAt); agg != nil {
			agg.SearchCount++
		}
	}
	for _, s := range saved {
		if agg := add(s.Origin, s.Destination, s.DepartDate, s.CreatedAt); agg != nil {
			agg.SavedCount++
		}
	}

	if invalid > 0 {
		a.logger.Debug().Int("skipped", invalid).Msg("Skipped events with invalid airport codes")
	}
	a.logger.Info().
		Int("searches", len(events)).
		Int("saved_searches", len(saved)).
		Int("routes", len(aggregates)).
		Time("since", cutoff).
		Msg("Aggregated route popularity")

	return aggregates, nil
}
