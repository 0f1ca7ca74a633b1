package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/observability"
	"github.com/visa2any/fly2any-sub046/pkg/cachekey"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTTLSeconds = 900
	DefaultCurrency   = "USD"
	archiveTimeout    = 30 * time.Second
)

// PrewarmConfig tunes a PrewarmJob.
type PrewarmConfig struct {
	LookbackDays      int
	TopRoutes         int
	MaxDatesPerRoute  int
	DefaultTTLSeconds int
	Currency          string
	LockTTL           time.Duration
	Batch             BatchConfig
}

// PrewarmDependencies are the collaborators of a PrewarmJob. Statistics,
// PriceCache, Lock, Archive and Metrics are optional.
type PrewarmDependencies struct {
	Events     repositories.EventRepository
	Coverage   repositories.CacheCoverageRepository
	Statistics repositories.RouteStatisticsRepository
	Fetcher    providers.PriceFetcher
	PriceCache providers.PriceCache
	Lock       providers.RunLock
	Archive    providers.ReportArchive
	Metrics    *observability.Metrics
}

// PrewarmJob refreshes cached prices for the most searched routes ahead of
// user traffic. Only one run is in flight at a time.
type PrewarmJob struct {
	deps       PrewarmDependencies
	cfg        PrewarmConfig
	aggregator *RouteAggregator
	ranker     *RouteRanker
	scheduler  *BatchScheduler
	logger     zerolog.Logger
	now        func() time.Time

	running atomic.Bool

	mu      sync.RWMutex
	state   entities.JobState
	current *entities.RunReport
	last    *entities.RunReport
}

// NewPrewarmJob wires a job from its dependencies.
func NewPrewarmJob(deps PrewarmDependencies, cfg PrewarmConfig, logger zerolog.Logger) *PrewarmJob {
	if cfg.DefaultTTLSeconds <= 0 {
		cfg.DefaultTTLSeconds = DefaultTTLSeconds
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &PrewarmJob{
		deps:       deps,
		cfg:        cfg,
		aggregator: NewRouteAggregator(deps.Events, logger),
		ranker:     NewRouteRanker(cfg.TopRoutes, cfg.MaxDatesPerRoute),
		scheduler:  NewBatchScheduler(cfg.Batch, logger),
		logger:     logger.With().Str("component", "prewarm_job").Logger(),
		now:        time.Now,
		state:      entities.JobStateIdle,
	}
}

// WithClock replaces the time source of the job and its aggregator.
func (j *PrewarmJob) WithClock(now func() time.Time) *PrewarmJob {
	j.now = now
	j.aggregator.WithClock(now)
	return j
}

// State returns the current stage.
func (j *PrewarmJob) State() entities.JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Running reports whether a run is in flight in this process.
func (j *PrewarmJob) Running() bool {
	return j.running.Load()
}

// LastReport returns the report of the last finished run, or nil.
func (j *PrewarmJob) LastReport() *entities.RunReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last.Clone()
}

// Progress returns a live snapshot of the run in flight, or the last report
// when idle.
func (j *PrewarmJob) Progress() *entities.RunReport {
	j.mu.RLock()
	state, current, last := j.state, j.current.Clone(), j.last.Clone()
	j.mu.RUnlock()

	if current == nil {
		if last != nil {
			return last
		}
		return &entities.RunReport{State: state, Errors: []entities.ItemError{}}
	}

	if state == entities.JobStateFetching || state == entities.JobStatePersisting {
		p := j.scheduler.Progress()
		current.Items = p.Items
		current.Batches = p.Batches
		current.Attempted = p.Attempted
		current.Sent = p.Sent
		current.Delivered = p.Delivered
		current.Failed = p.Failed
		current.Skipped = p.Skipped
		current.Aborted = p.Aborted
		current.Errors = p.Errors
		current.Latency = p.Latency
	}
	current.State = state
	current.ElapsedMs = j.now().Sub(current.StartedAt).Milliseconds()
	return current
}

// Run executes one pre-warm pass. A second call while a run is in flight
// returns a CONFLICT error. Partial item failures still end in JobStateDone;
// only an unreachable event or coverage store ends in JobStateFailed, in which
// case the report is returned together with the error.
func (j *PrewarmJob) Run(ctx context.Context) (*entities.RunReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, apperrors.NewConflictError("pre-warm run already in progress")
	}
	defer j.running.Store(false)

	runID := uuid.NewString()
	logger := j.logger.With().Str("run_id", runID).Logger()

	if err := ctx.Err(); err != nil {
		return j.interrupted(ctx, logger, j.newReport(runID), err), nil
	}

	if j.deps.Lock != nil {
		acquired, err := j.deps.Lock.Acquire(ctx, runID, j.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, apperrors.NewConflictError("pre-warm run already in progress in another process")
		}
		defer func() {
			if err := j.deps.Lock.Release(context.WithoutCancel(ctx), runID); err != nil {
				logger.Warn().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	ctx, span := observability.StartSpan(ctx, "prewarm.run", attribute.String("run.id", runID))
	defer span.End()
	logger = observability.LoggerFromContext(ctx, logger)

	report := j.newReport(runID)
	j.mu.Lock()
	j.current = report.Clone()
	j.mu.Unlock()
	j.setState(entities.JobStateAggregating)
	logger.Info().Msg("Pre-warm run started")

	if err := j.deps.Coverage.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return j.interrupted(ctx, logger, report, ctx.Err()), nil
		}
		observability.RecordError(span, err)
		return j.fail(ctx, logger, report, apperrors.NewUnavailableError("cache coverage store unreachable", err))
	}

	aggregates, err := j.aggregator.Aggregate(ctx, j.cfg.LookbackDays)
	if err != nil {
		if ctx.Err() != nil {
			return j.interrupted(ctx, logger, report, ctx.Err()), nil
		}
		observability.RecordError(span, err)
		return j.fail(ctx, logger, report, err)
	}

	j.setState(entities.JobStateRanking)
	ranked := j.ranker.Rank(aggregates)
	items := j.ranker.Worklist(ranked)
	report.RoutesRanked = len(ranked)
	j.updateCurrent(func(r *entities.RunReport) { r.RoutesRanked = len(ranked) })
	if len(ranked) > 0 {
		logger.Info().
			Int("routes", len(ranked)).
			Int("items", len(items)).
			Str("top_route", ranked[0].Route).
			Int("top_weight", ranked[0].Weight).
			Msg("Ranked routes")
	}

	j.scheduler.Reset(items)
	j.setState(entities.JobStateFetching)
	ttls := newTTLResolver(j.deps.Statistics, j.cfg.DefaultTTLSeconds, logger)
	result := j.scheduler.Run(ctx, items, func(ctx context.Context, item entities.RouteDate) (bool, error) {
		return j.processItem(ctx, logger, ttls, item)
	})

	j.setState(entities.JobStatePersisting)
	report.Items = result.Items
	report.Batches = result.Batches
	report.Attempted = result.Attempted
	report.Sent = result.Sent
	report.Delivered = result.Delivered
	report.Failed = result.Failed
	report.Skipped = result.Skipped
	report.Aborted = result.Aborted
	report.Errors = result.Errors
	report.Latency = result.Latency
	if err := ctx.Err(); err != nil {
		return j.interrupted(ctx, logger, report, err), nil
	}

	return j.finish(ctx, logger, report, entities.JobStateDone), nil
}

// processItem fetches one price, writes it to the online price cache and
// records coverage. Only a failed fetch or coverage write fails the item.
func (j *PrewarmJob) processItem(ctx context.Context, logger zerolog.Logger, ttls *ttlResolver, item entities.RouteDate) (bool, error) {
	start := time.Now()
	quote, err := j.deps.Fetcher.Fetch(ctx, item.Origin, item.Destination, item.Date)
	j.deps.Metrics.RecordFetch(ctx, item.Route, time.Since(start), err)
	if err != nil {
		return false, err
	}
	if quote == nil {
		return false, apperrors.NewExternalError(fmt.Sprintf("empty quote for %s", item), nil)
	}

	ttl := ttls.resolve(ctx, item.Route)

	delivered := false
	if j.deps.PriceCache != nil {
		params := cachekey.PrewarmParams(item.Origin, item.Destination, item.DateString(), j.cfg.Currency)
		if err := j.deps.PriceCache.StoreQuote(ctx, params, quote, ttl); err != nil {
			logger.Warn().Err(err).Str("item", item.String()).Msg("Price cache write failed")
		} else {
			delivered = true
		}
	}

	if err := j.deps.Coverage.Upsert(ctx, item.Route, item.Date, quote.Price, ttl, entities.CacheSourcePreWarm); err != nil {
		return false, err
	}
	j.deps.Metrics.RecordCoverageUpsert(ctx, string(entities.CacheSourcePreWarm))
	return delivered, nil
}

func (j *PrewarmJob) newReport(runID string) *entities.RunReport {
	return &entities.RunReport{
		RunID:     runID,
		State:     entities.JobStateAggregating,
		StartedAt: j.now().UTC(),
		Errors:    []entities.ItemError{},
	}
}

// interrupted ends a cancelled run as Done with Aborted set, keeping whatever
// counters it gathered.
func (j *PrewarmJob) interrupted(ctx context.Context, logger zerolog.Logger, report *entities.RunReport, cause error) *entities.RunReport {
	report.Aborted = true
	report.Error = fmt.Sprintf("run interrupted: %v", cause)
	logger.Warn().Err(cause).Msg("Pre-warm run interrupted")
	return j.finish(ctx, logger, report, entities.JobStateDone)
}

func (j *PrewarmJob) fail(ctx context.Context, logger zerolog.Logger, report *entities.RunReport, err error) (*entities.RunReport, error) {
	report.Error = err.Error()
	logger.Error().Err(err).Msg("Pre-warm run failed")
	return j.finish(ctx, logger, report, entities.JobStateFailed), err
}

func (j *PrewarmJob) finish(ctx context.Context, logger zerolog.Logger, report *entities.RunReport, state entities.JobState) *entities.RunReport {
	report.State = state
	report.FinishedAt = j.now().UTC()
	report.ElapsedMs = report.FinishedAt.Sub(report.StartedAt).Milliseconds()

	j.mu.Lock()
	j.state = state
	j.current = nil
	j.last = report.Clone()
	j.mu.Unlock()

	j.deps.Metrics.RecordRun(ctx, string(state), time.Duration(report.ElapsedMs)*time.Millisecond, report.Delivered, report.Failed)

	logger.Info().
		Str("state", string(state)).
		Int("routes_ranked", report.RoutesRanked).
		Int("items", report.Items).
		Int("sent", report.Sent).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Bool("aborted", report.Aborted).
		Int64("elapsed_ms", report.ElapsedMs).
		Float64("fetch_p95_ms", report.Latency.P95Ms).
		Msg("Pre-warm run finished")

	if j.deps.Archive != nil {
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := j.deps.Archive.Archive(archiveCtx, report.Clone()); err != nil {
			logger.Warn().Err(err).Msg("Failed to archive run report")
		}
	}
	return report
}

func (j *PrewarmJob) setState(state entities.JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
	if j.current != nil {
		j.current.State = state
	}
}

func (j *PrewarmJob) updateCurrent(fn func(r *entities.RunReport)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.current != nil {
		fn(j.current)
	}
}

// ttlResolver looks up the recommended TTL once per route and run.
type ttlResolver struct {
	stats      repositories.RouteStatisticsRepository
	defaultTTL int
	logger     zerolog.Logger

	mu    sync.Mutex
	cache map[string]int
}

func newTTLResolver(stats repositories.RouteStatisticsRepository, defaultTTL int, logger zerolog.Logger) *ttlResolver {
	return &ttlResolver{stats: stats, defaultTTL: defaultTTL, logger: logger, cache: make(map[string]int)}
}

func (r *ttlResolver) resolve(ctx context.Context, route string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ttl, ok := r.cache[route]; ok {
		return ttl
	}

	ttl := r.defaultTTL
	if r.stats != nil {
		stat, err := r.stats.GetByRoute(ctx, route)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Str("route", route).Msg("Route statistics unavailable, using default TTL")
		case stat != nil && stat.RecommendedTTLSeconds > 0:
			ttl = stat.RecommendedTTLSeconds
		}
	}
	r.cache[route] = ttl
	return ttl
}
