package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/visa2any/fly2any-sub046/internal/adapters/memory"
	"github.com/visa2any/fly2any-sub046/internal/application/services"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

type failingCoverage struct {
	*memory.CoverageStore
	pingErr   error
	upsertErr map[string]error
}

func (f *failingCoverage) Ping(ctx context.Context) error { return f.pingErr }

func (f *failingCoverage) Upsert(ctx context.Context, route string, date time.Time, price int64, ttlSeconds int, source entities.CacheSource) error {
	if err := f.upsertErr[route]; err != nil {
		return err
	}
	return f.CoverageStore.Upsert(ctx, route, date, price, ttlSeconds, source)
}

func scenarioEvents() *MockEventRepository {
	events := new(MockEventRepository)
	events.On("ListRecentEvents", mock.Anything, mock.Anything).Return([]*entities.SearchEvent{
		search("JFK", "LAX", "2025-12-17"),
		search("JFK", "LAX", "2025-12-19"),
		search("JFK", "SFO", "2025-12-20"),
	}, nil)
	events.On("ListRecentSavedSearches", mock.Anything, mock.Anything).Return([]*entities.SavedSearch{
		saved("JFK", "LAX", "2025-12-18"),
	}, nil)
	return events
}

func jobConfig() services.PrewarmConfig {
	return services.PrewarmConfig{
		LookbackDays:     30,
		TopRoutes:        100,
		MaxDatesPerRoute: 4,
		Batch:            services.BatchConfig{BatchSize: 20, BatchDelay: time.Millisecond, FetchTimeout: time.Second},
	}
}

func TestPrewarmJob_EndToEnd(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, "JFK", "LAX", date("2025-12-15")).Return(&entities.PriceQuote{Price: 34900, Currency: "USD"}, nil)
	fetcher.On("Fetch", mock.Anything, "JFK", "SFO", date("2025-12-15")).Return(&entities.PriceQuote{Price: 41200, Currency: "USD"}, nil)

	coverage := memory.NewCoverageStore().WithClock(fixedClock)
	priceCache := newRecordingPriceCache()

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:     scenarioEvents(),
		Coverage:   coverage,
		Fetcher:    fetcher,
		PriceCache: priceCache,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entities.JobStateDone, report.State)
	assert.Equal(t, entities.JobStateDone, job.State())
	assert.Equal(t, 2, report.RoutesRanked)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 2, report.Delivered)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.RunID)

	for _, route := range []string{"JFK-LAX", "JFK-SFO"} {
		entries, err := coverage.GetCoverage(context.Background(), route, date("2025-12-15"), date("2025-12-15"))
		require.NoError(t, err)
		require.Len(t, entries, 1, route)
		assert.Equal(t, entities.CacheSourcePreWarm, entries[0].CacheSource)
		assert.Equal(t, services.DefaultTTLSeconds, entries[0].TTLSeconds)
		assert.True(t, entries[0].HasCache)
	}

	assert.Equal(t, services.DefaultTTLSeconds, priceCache.quotes["flight:search:JFK:LAX:2025-12-15:oneway:1:0:0:ECONOMY:any:USD"])

	calls := fetcher.Calls
	require.Len(t, calls, 2)
	assert.Equal(t, "LAX", calls[0].Arguments.String(2), "JFK-LAX ranks above JFK-SFO")

	assert.Equal(t, report, job.LastReport())
}

func TestPrewarmJob_ResilienceFailedItemDoesNotStopOthers(t *testing.T) {
	events := new(MockEventRepository)
	events.On("ListRecentEvents", mock.Anything, mock.Anything).Return([]*entities.SearchEvent{
		search("JFK", "LAX", "2025-12-17"),
		search("JFK", "SFO", "2025-12-17"),
		search("JFK", "MIA", "2025-12-17"),
	}, nil)
	events.On("ListRecentSavedSearches", mock.Anything, mock.Anything).Return(nil, nil)

	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, "JFK", "MIA", mock.Anything).Return(nil, apperrors.NewExternalError("price API returned 400", nil))
	fetcher.On("Fetch", mock.Anything, "JFK", mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)

	coverage := memory.NewCoverageStore().WithClock(fixedClock)
	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   events,
		Coverage: coverage,
		Fetcher:  fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, report.State)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Delivered)
	assert.Equal(t, 2, coverage.Len())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "JFK-MIA", report.Errors[0].Route)
}

func TestPrewarmJob_PersistenceFailureIsItemFailure(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)

	coverage := &failingCoverage{
		CoverageStore: memory.NewCoverageStore(),
		upsertErr:     map[string]error{"JFK-SFO": apperrors.NewUnavailableError("write failed", errors.New("conn reset"))},
	}
	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: coverage,
		Fetcher:  fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, report.State)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
}

func TestPrewarmJob_EventStoreUnavailableFailsRun(t *testing.T) {
	events := new(MockEventRepository)
	events.On("ListRecentEvents", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	fetcher := new(MockPriceFetcher)
	coverage := memory.NewCoverageStore()

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   events,
		Coverage: coverage,
		Fetcher:  fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
	require.NotNil(t, report)
	assert.Equal(t, entities.JobStateFailed, report.State)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, entities.JobStateFailed, job.State())
	assert.Zero(t, coverage.Len())
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPrewarmJob_CoverageStoreUnreachableFailsRun(t *testing.T) {
	events := new(MockEventRepository)
	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   events,
		Coverage: &failingCoverage{CoverageStore: memory.NewCoverageStore(), pingErr: errors.New("no route to host")},
		Fetcher:  new(MockPriceFetcher),
	}, jobConfig(), zerolog.Nop())

	report, err := job.Run(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
	assert.Equal(t, entities.JobStateFailed, report.State)
	events.AssertNotCalled(t, "ListRecentEvents", mock.Anything, mock.Anything)
}

func TestPrewarmJob_TTLFromRouteStatistics(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)

	stats := new(MockRouteStatisticsRepository)
	stats.On("GetByRoute", mock.Anything, "JFK-LAX").Return(&entities.RouteStatistic{Route: "JFK-LAX", RecommendedTTLSeconds: 3600}, nil)
	stats.On("GetByRoute", mock.Anything, "JFK-SFO").Return(nil, nil)

	coverage := memory.NewCoverageStore().WithClock(fixedClock)
	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:     scenarioEvents(),
		Coverage:   coverage,
		Statistics: stats,
		Fetcher:    fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	lax, _ := coverage.GetCoverage(context.Background(), "JFK-LAX", date("2025-12-15"), date("2025-12-15"))
	sfo, _ := coverage.GetCoverage(context.Background(), "JFK-SFO", date("2025-12-15"), date("2025-12-15"))
	require.Len(t, lax, 1)
	require.Len(t, sfo, 1)
	assert.Equal(t, 3600, lax[0].TTLSeconds)
	assert.Equal(t, services.DefaultTTLSeconds, sfo[0].TTLSeconds)
}

func TestPrewarmJob_PriceCacheFailureStillSends(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)
	priceCache := newRecordingPriceCache()
	priceCache.err = errors.New("redis: connection pool timeout")

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:     scenarioEvents(),
		Coverage:   memory.NewCoverageStore(),
		Fetcher:    fetcher,
		PriceCache: priceCache,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Delivered)
	assert.Zero(t, report.Failed)
}

func TestPrewarmJob_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(&entities.PriceQuote{Price: 100}, nil)

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: memory.NewCoverageStore(),
		Fetcher:  fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return job.Progress().Items == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, job.Running())

	_, err := job.Run(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	progress := job.Progress()
	assert.Equal(t, entities.JobStateFetching, progress.State)
	assert.Zero(t, progress.Sent)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, job.Running())
	assert.Equal(t, 2, job.Progress().Sent)
}

func TestPrewarmJob_DistributedLock(t *testing.T) {
	lock := new(MockRunLock)
	lock.On("Acquire", mock.Anything, mock.Anything, 30*time.Minute).Return(false, nil).Once()

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: memory.NewCoverageStore(),
		Fetcher:  new(MockPriceFetcher),
		Lock:     lock,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	assert.Nil(t, report)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Equal(t, entities.JobStateIdle, job.State())

	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)
	lock.On("Acquire", mock.Anything, mock.Anything, 30*time.Minute).Return(true, nil).Once()
	lock.On("Release", mock.Anything, mock.Anything).Return(nil).Once()

	job = services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: memory.NewCoverageStore(),
		Fetcher:  fetcher,
		Lock:     lock,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	lock.AssertExpectations(t)

	owner := lock.Calls[1].Arguments.String(1)
	assert.Equal(t, report.RunID, owner)
	assert.Equal(t, owner, lock.Calls[2].Arguments.String(1))
}

type recordingArchive struct {
	err     error
	reports []*entities.RunReport
}

func (a *recordingArchive) Archive(ctx context.Context, report *entities.RunReport) error {
	a.reports = append(a.reports, report)
	return a.err
}

func TestPrewarmJob_ArchivesFinishedReport(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, "JFK", mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)
	archive := &recordingArchive{}

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: memory.NewCoverageStore().WithClock(fixedClock),
		Fetcher:  fetcher,
		Archive:  archive,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, archive.reports, 1)
	assert.Equal(t, report.RunID, archive.reports[0].RunID)
	assert.Equal(t, entities.JobStateDone, archive.reports[0].State)
	assert.Equal(t, 2, archive.reports[0].Sent)
}

func TestPrewarmJob_ArchiveFailureDoesNotFailRun(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, "JFK", mock.Anything, mock.Anything).Return(&entities.PriceQuote{Price: 100}, nil)

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: memory.NewCoverageStore().WithClock(fixedClock),
		Fetcher:  fetcher,
		Archive:  &recordingArchive{err: errors.New("bucket missing")},
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, report.State)
}

func TestPrewarmJob_SecondRunProgressStartsFresh(t *testing.T) {
	var snapshots []*entities.RunReport
	var job *services.PrewarmJob
	fetcher := new(MockPriceFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { snapshots = append(snapshots, job.Progress()) }).
		Return(&entities.PriceQuote{Price: 100}, nil)

	job = services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: memory.NewCoverageStore().WithClock(fixedClock),
		Fetcher:  fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Sent)

	_, err = job.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshots, 4)
	second := snapshots[2]
	assert.Equal(t, entities.JobStateFetching, second.State)
	assert.Equal(t, 2, second.Items)
	assert.Zero(t, second.Attempted)
	assert.Zero(t, second.Sent)
	assert.Equal(t, 1, snapshots[3].Sent)
}

func TestPrewarmJob_CancelledContextIsInterruptedNotFailed(t *testing.T) {
	fetcher := new(MockPriceFetcher)
	coverage := &failingCoverage{
		CoverageStore: memory.NewCoverageStore(),
		pingErr:       apperrors.NewUnavailableError("ping failed", context.Canceled),
	}
	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events:   scenarioEvents(),
		Coverage: coverage,
		Fetcher:  fetcher,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := job.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, report.State)
	assert.True(t, report.Aborted)
	assert.Contains(t, report.Error, "run interrupted")
	assert.NotContains(t, report.Error, "unreachable")
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPrewarmJob_CancelledDuringStartupIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lock := new(MockRunLock)
	lock.On("Acquire", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(true, nil)
	lock.On("Release", mock.Anything, mock.Anything).Return(nil)

	job := services.NewPrewarmJob(services.PrewarmDependencies{
		Events: scenarioEvents(),
		Coverage: &failingCoverage{
			CoverageStore: memory.NewCoverageStore(),
			pingErr:       errors.New("context canceled"),
		},
		Fetcher: new(MockPriceFetcher),
		Lock:    lock,
	}, jobConfig(), zerolog.Nop()).WithClock(fixedClock)

	report, err := job.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, entities.JobStateDone, report.State)
	assert.True(t, report.Aborted)
	assert.Equal(t, entities.JobStateDone, job.State())
	lock.AssertExpectations(t)
}
