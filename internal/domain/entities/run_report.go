package entities

import (
	"time"
)

// JobState is a stage of a pre-warm run.
type JobState string

const (
	JobStateIdle        JobState = "idle"
	JobStateAggregating JobState = "aggregating"
	JobStateRanking     JobState = "ranking"
	JobStateFetching    JobState = "fetching"
	JobStatePersisting  JobState = "persisting"
	JobStateDone        JobState = "done"
	JobStateFailed      JobState = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// ItemError is one failed (route, date) attempt.
type ItemError struct {
	Route string `json:"route"`
	Date  string `json:"date"`
	Error string `json:"error"`
}

// LatencySummary describes upstream fetch latency over a run.
type LatencySummary struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	P95Ms   float64 `json:"p95_ms"`
}

// RunReport is the outcome of a pre-warm run. While a run is in progress the
// same shape is used as a progress snapshot.
type RunReport struct {
	RunID        string         `json:"run_id"`
	State        JobState       `json:"state"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at,omitempty"`
	ElapsedMs    int64          `json:"elapsed_ms"`
	RoutesRanked int            `json:"routes_ranked"`
	Items        int            `json:"items"`
	Batches      int            `json:"batches"`
	Attempted    int            `json:"attempted"`
	Sent         int            `json:"sent"`
	Delivered    int            `json:"delivered"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Aborted      bool           `json:"aborted"`
	Errors       []ItemError    `json:"errors"`
	Error        string         `json:"error,omitempty"`
	Latency      LatencySummary `json:"latency"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *RunReport) Clone() *RunReport {
	if r == nil {
		return nil
	}
	out := *r
	out.Errors = make([]ItemError, len(r.Errors))
	copy(out.Errors, r.Errors)
	return &out
}
