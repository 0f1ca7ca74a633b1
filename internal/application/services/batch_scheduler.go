package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/observability"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultBatchSize       = 20
	DefaultBatchDelay      = 100 * time.Millisecond
	DefaultFetchTimeout    = 10 * time.Second
	DefaultErrorLimit      = 10
	DefaultMinBatchSamples = 5
)

// ItemFunc processes one work item. delivered reports whether the quote also
// reached the online price cache.
type ItemFunc func(ctx context.Context, item entities.RouteDate) (delivered bool, err error)

// BatchConfig tunes a BatchScheduler.
type BatchConfig struct {
	BatchSize    int
	BatchDelay   time.Duration
	FetchTimeout time.Duration
	Concurrency  int

	// A batch with at least MinBatchSamples attempts and a failure ratio above
	// MaxFailureRate stops the run. MaxFailureRate <= 0 never stops it.
	MaxFailureRate  float64
	MinBatchSamples int

	ErrorLimit int
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MinBatchSamples <= 0 {
		c.MinBatchSamples = DefaultMinBatchSamples
	}
	if c.ErrorLimit <= 0 {
		c.ErrorLimit = DefaultErrorLimit
	}
	return c
}

// BatchScheduler walks a work list in fixed-size batches with a pause between
// batches. One failing item never stops its siblings.
type BatchScheduler struct {
	cfg    BatchConfig
	logger zerolog.Logger

	mu        sync.Mutex
	progress  entities.RunReport
	latencies []float64
}

// NewBatchScheduler creates a new batch scheduler
func NewBatchScheduler(cfg BatchConfig, logger zerolog.Logger) *BatchScheduler {
	return &BatchScheduler{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "batch_scheduler").Logger(),
	}
}

// Batches splits items into consecutive slices of at most size elements.
func Batches(items []entities.RouteDate, size int) [][]entities.RouteDate {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]entities.RouteDate, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// Progress returns a snapshot of the counters of the current or last run.
func (s *BatchScheduler) Progress() *entities.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Clone()
}

// Reset clears the counters of the previous run and sizes them for items.
// Run calls it too; calling it earlier keeps Progress from showing stale counters.
func (s *BatchScheduler) Reset(items []entities.RouteDate) [][]entities.RouteDate {
	batches := Batches(items, s.cfg.BatchSize)

	s.mu.Lock()
	s.progress = entities.RunReport{Items: len(items), Batches: len(batches), Errors: []entities.ItemError{}}
	s.latencies = s.latencies[:0]
	s.mu.Unlock()
	return batches
}

// Run processes items and returns the counters. Cancelling ctx stops
// scheduling; items never attempted are reported as skipped.
func (s *BatchScheduler) Run(ctx context.Context, items []entities.RouteDate, fn ItemFunc) *entities.RunReport {
	batches := s.Reset(items)

	for i, batch := range batches {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Int("batch", i+1).Msg("Run cancelled, remaining batches skipped")
			break
		}

		attempted, failed := s.runBatch(ctx, i, batch, fn)

		if s.shouldAbort(attempted, failed) {
			s.mu.Lock()
			s.progress.Aborted = true
			s.mu.Unlock()
			s.logger.Error().
				Int("batch", i+1).
				Int("attempted", attempted).
				Int("failed", failed).
				Float64("max_failure_rate", s.cfg.MaxFailureRate).
				Msg("Batch failure rate too high, aborting run")
			break
		}

		if i < len(batches)-1 && s.cfg.BatchDelay > 0 {
			timer := time.NewTimer(s.cfg.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Skipped = s.progress.Items - s.progress.Attempted
	s.progress.Latency = summarizeLatency(s.latencies)
	return s.progress.Clone()
}

func (s *BatchScheduler) shouldAbort(attempted, failed int) bool {
	if s.cfg.MaxFailureRate <= 0 || attempted < s.cfg.MinBatchSamples {
		return false
	}
	return float64(failed)/float64(attempted) > s.cfg.MaxFailureRate
}

func (s *BatchScheduler) runBatch(ctx context.Context, index int, batch []entities.RouteDate, fn ItemFunc) (attempted, failed int) {
	ctx, span := observability.StartSpan(ctx, "prewarm.batch",
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(batch)),
	)
	defer span.End()

	var mu sync.Mutex
	process := func(item entities.RouteDate) {
		if ctx.Err() != nil {
			return
		}
		delivered, elapsed, err := s.runItem(ctx, item, fn)
		s.record(item, delivered, elapsed, err)

		mu.Lock()
		attempted++
		if err != nil {
			failed++
		}
		mu.Unlock()
	}

	if s.cfg.Concurrency == 1 {
		for _, item := range batch {
			process(item)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, item := range batch {
			item := item
			g.Go(func() error {
				process(item)
				return nil
			})
		}
		_ = g.Wait()
	}

	s.logger.Debug().
		Int("batch", index+1).
		Int("attempted", attempted).
		Int("failed", failed).
		Msg("Batch finished")
	return attempted, failed
}

// runItem calls fn under the per-item timeout and turns a panic into an error.
func (s *BatchScheduler) runItem(ctx context.Context, item entities.RouteDate, fn ItemFunc) (delivered bool, elapsed time.Duration, err error) {
	itemCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			delivered = false
			err = apperrors.NewInternalError(fmt.Sprintf("panic while processing %s: %v", item, r), nil)
		}
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = apperrors.NewTimeoutError(fmt.Sprintf("%s exceeded %s", item, s.cfg.FetchTimeout), err)
		}
	}()

	delivered, err = fn(itemCtx, item)
	return delivered, 0, err
}

func (s *BatchScheduler) record(item entities.RouteDate, delivered bool, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.Attempted++
	s.latencies = append(s.latencies, float64(elapsed.Microseconds())/1000)
	if err != nil {
		s.progress.Failed++
		if len(s.progress.Errors) < s.cfg.ErrorLimit {
			s.progress.Errors = append(s.progress.Errors, entities.ItemError{
				Route: item.Route,
				Date:  item.DateString(),
				Error: err.Error(),
			})
		}
		s.logger.Warn().Err(err).Str("route", item.Route).Str("date", item.DateString()).Msg("Pre-warm item failed")
		return
	}
	s.progress.Sent++
	if delivered {
		s.progress.Delivered++
	}
}

func summarizeLatency(samples []float64) entities.LatencySummary {
	if len(samples) == 0 {
		return entities.LatencySummary{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return entities.LatencySummary{
		Samples: len(sorted),
		MeanMs:  stat.Mean(sorted, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}
