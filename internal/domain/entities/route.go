package entities

import (
	"sort"
	"strings"
	"time"
)

// SavedSearchWeight is how many plain searches one saved search counts for.
const SavedSearchWeight = 2

// DateLayout is the calendar date format used in route dates and cache keys.
const DateLayout = "2006-01-02"

// RouteKey builds the "ORIGIN-DEST" key used to group events.
func RouteKey(origin, destination string) string {
	return NormalizeIATA(origin) + "-" + NormalizeIATA(destination)
}

// SplitRoute is the inverse of RouteKey.
func SplitRoute(route string) (origin, destination string, ok bool) {
	origin, destination, ok = strings.Cut(route, "-")
	if !ok || !IsIATACode(origin) || !IsIATACode(destination) {
		return "", "", false
	}
	return origin, destination, true
}

// NormalizeIATA trims and upper-cases an airport code.
func NormalizeIATA(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsIATACode reports whether code is exactly three uppercase ASCII letters.
func IsIATACode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// CalendarDate drops the clock part of t, keeping its calendar day in UTC.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BucketToWeek normalizes a date to the Monday of its ISO week. Sunday belongs
// to the week that started six days earlier.
func BucketToWeek(t time.Time) time.Time {
	day := CalendarDate(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// RouteAggregate is the popularity of one route over the lookback window.
// It is rebuilt on every run and never persisted.
type RouteAggregate struct {
	Route       string
	Origin      string
	Destination string
	SearchCount int
	SavedCount  int

	candidateDates map[string]time.Time
}

// NewRouteAggregate creates an empty aggregate for origin-destination.
func NewRouteAggregate(origin, destination string) *RouteAggregate {
	origin, destination = NormalizeIATA(origin), NormalizeIATA(destination)
	return &RouteAggregate{
		Route:          origin + "-" + destination,
		Origin:         origin,
		Destination:    destination,
		candidateDates: make(map[string]time.Time),
	}
}

// Weight is searches plus saved searches counted SavedSearchWeight times.
func (a *RouteAggregate) Weight() int {
	return a.SearchCount + a.SavedCount*SavedSearchWeight
}

// AddCandidateDate records the week bucket of date.
func (a *RouteAggregate) AddCandidateDate(date time.Time) {
	bucket := BucketToWeek(date)
	a.candidateDates[bucket.Format(DateLayout)] = bucket
}

// CandidateDates returns the distinct week buckets in ascending order.
func (a *RouteAggregate) CandidateDates() []time.Time {
	dates := make([]time.Time, 0, len(a.candidateDates))
	for _, d := range a.candidateDates {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// RankedRoute is a route selected for pre-warming with its representative dates.
type RankedRoute struct {
	Rank        int         `json:"rank"`
	Route       string      `json:"route"`
	Origin      string      `json:"origin"`
	Destination string      `json:"destination"`
	Weight      int         `json:"weight"`
	Dates       []time.Time `json:"dates"`
}

// RouteDate is one unit of pre-warm work.
type RouteDate struct {
	Route       string
	Origin      string
	Destination string
	Date        time.Time
}

// DateString formats the travel date as YYYY-MM-DD.
func (rd RouteDate) DateString() string {
	return rd.Date.Format(DateLayout)
}

// String identifies the item in logs and error lists.
func (rd RouteDate) String() string {
	return rd.Route + "@" + rd.DateString()
}
