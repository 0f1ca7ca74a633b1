package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

type coverageKey struct {
	route string
	date  string
}

// CoverageStore is a process-local CacheCoverageRepository. It backs the
// dry-run mode of cmd/prewarm and service tests.
type CoverageStore struct {
	mu      sync.Mutex
	entries map[coverageKey]*entities.CacheCoverageEntry
	now     func() time.Time
}

// NewCoverageStore creates an empty store.
func NewCoverageStore() *CoverageStore {
	return &CoverageStore{
		entries: make(map[coverageKey]*entities.CacheCoverageEntry),
		now:     time.Now,
	}
}

var _ repositories.CacheCoverageRepository = (*CoverageStore)(nil)

// WithClock replaces the time source.
func (s *CoverageStore) WithClock(now func() time.Time) *CoverageStore {
	s.now = now
	return s
}

func (s *CoverageStore) Upsert(ctx context.Context, route string, date time.Time, price int64, ttlSeconds int, source entities.CacheSource) error {
	if !source.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown cache source %q", source))
	}
	if ttlSeconds <= 0 {
		return apperrors.NewValidationError("ttl must be positive")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	day := entities.CalendarDate(date)
	key := coverageKey{route: route, date: day.Format(entities.DateLayout)}

	s.mu.Lock()
	defer s.mu.Unlock()

	cachedAt := s.now().UTC()
	entry, ok := s.entries[key]
	if !ok {
		entry = &entities.CacheCoverageEntry{Route: route, Date: day}
		s.entries[key] = entry
	}
	entry.HasCache = true
	entry.CachedPrice = price
	entry.CacheSource = source
	entry.CachedAt = cachedAt
	entry.TTLSeconds = ttlSeconds
	entry.ExpiresAt = cachedAt.Add(time.Duration(ttlSeconds) * time.Second)
	entry.SearchesCount++
	return nil
}

func (s *CoverageStore) GetCoverage(ctx context.Context, route string, start, end time.Time) ([]*entities.CacheCoverageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := entities.CalendarDate(start), entities.CalendarDate(end)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []*entities.CacheCoverageEntry
	for key, entry := range s.entries {
		if key.route != route || entry.Date.Before(from) || entry.Date.After(to) {
			continue
		}
		e := *entry
		e.HasCache = e.IsFresh(now)
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Ping always succeeds.
func (s *CoverageStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of rows.
func (s *CoverageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
