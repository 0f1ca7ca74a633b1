package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBucketToWeek_ReturnsMonday(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-12-15", "2025-12-15"}, // Monday
		{"2025-12-17", "2025-12-15"}, // Wednesday
		{"2025-12-20", "2025-12-15"}, // Saturday
		{"2025-12-21", "2025-12-15"}, // Sunday closes the ISO week
		{"2025-12-22", "2025-12-22"},
		{"2026-03-01", "2026-02-23"}, // crosses a month boundary
		{"2027-01-01", "2026-12-28"}, // crosses a year boundary
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := BucketToWeek(date(tt.in))
			assert.Equal(t, tt.want, got.Format(DateLayout))
			assert.Equal(t, time.Monday, got.Weekday())
		})
	}
}

func TestBucketToWeek_SameWeekSameBucket(t *testing.T) {
	monday := date("2025-12-15")
	want := BucketToWeek(monday)

	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i).Add(time.Duration(i) * 3 * time.Hour)
		assert.Equal(t, want, BucketToWeek(day), "day %d", i)
		assert.Equal(t, want, BucketToWeek(BucketToWeek(day)), "idempotent on day %d", i)
	}
	assert.NotEqual(t, want, BucketToWeek(monday.AddDate(0, 0, 7)))
}

func TestRouteKeyAndSplit(t *testing.T) {
	assert.Equal(t, "JFK-LAX", RouteKey(" jfk", "Lax "))

	origin, destination, ok := SplitRoute("JFK-SFO")
	assert.True(t, ok)
	assert.Equal(t, "JFK", origin)
	assert.Equal(t, "SFO", destination)

	for _, bad := range []string{"JFK", "JFK-INVALID", "jfk-lax", "JF1-LAX"} {
		_, _, ok := SplitRoute(bad)
		assert.False(t, ok, bad)
	}
}

func TestRouteAggregate_WeightAndDates(t *testing.T) {
	agg := NewRouteAggregate("jfk", "lax")
	agg.SearchCount = 2
	agg.SavedCount = 1
	agg.AddCandidateDate(date("2025-12-24"))
	agg.AddCandidateDate(date("2025-12-17"))
	agg.AddCandidateDate(date("2025-12-19"))

	assert.Equal(t, "JFK-LAX", agg.Route)
	assert.Equal(t, 4, agg.Weight())
	assert.Equal(t, []time.Time{date("2025-12-15"), date("2025-12-22")}, agg.CandidateDates())
}

func TestCacheCoverageEntry_IsFresh(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	entry := &CacheCoverageEntry{HasCache: true, ExpiresAt: now.Add(time.Minute)}

	assert.True(t, entry.IsFresh(now))
	assert.False(t, entry.IsFresh(now.Add(time.Minute)))

	entry.HasCache = false
	assert.False(t, entry.IsFresh(now))
}
