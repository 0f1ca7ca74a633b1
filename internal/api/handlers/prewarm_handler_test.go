package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visa2any/fly2any-sub046/internal/api/handlers"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
)

type fakeJob struct {
	running  atomic.Bool
	runs     atomic.Int32
	progress *entities.RunReport
	last     *entities.RunReport
}

func (f *fakeJob) Run(ctx context.Context) (*entities.RunReport, error) {
	f.runs.Add(1)
	return &entities.RunReport{State: entities.JobStateDone}, nil
}

func (f *fakeJob) Running() bool                   { return f.running.Load() }
func (f *fakeJob) Progress() *entities.RunReport   { return f.progress }
func (f *fakeJob) LastReport() *entities.RunReport { return f.last }

type fixedBreaker string

func (b fixedBreaker) State() string { return string(b) }

func TestPrewarmHandler_GetStatus(t *testing.T) {
	job := &fakeJob{progress: &entities.RunReport{State: entities.JobStateFetching, Items: 40, Sent: 12}}
	job.running.Store(true)
	handler := handlers.NewPrewarmHandler(context.Background(), job, fixedBreaker("closed"), zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/prewarm/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Running  bool               `json:"running"`
		Progress entities.RunReport `json:"progress"`
		Breaker  string             `json:"price_api_breaker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, entities.JobStateFetching, body.Progress.State)
	assert.Equal(t, 12, body.Progress.Sent)
	assert.Equal(t, "closed", body.Breaker)
}

func TestPrewarmHandler_GetLastReport(t *testing.T) {
	job := &fakeJob{}
	handler := handlers.NewPrewarmHandler(context.Background(), job, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.GetLastReport(rec, httptest.NewRequest(http.MethodGet, "/api/prewarm/report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	job.last = &entities.RunReport{RunID: "run-1", State: entities.JobStateDone, Sent: 2}
	rec = httptest.NewRecorder()
	handler.GetLastReport(rec, httptest.NewRequest(http.MethodGet, "/api/prewarm/report", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report entities.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Sent)
}

func TestPrewarmHandler_TriggerRun(t *testing.T) {
	job := &fakeJob{}
	handler := handlers.NewPrewarmHandler(context.Background(), job, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/prewarm/run", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPrewarmHandler_TriggerRunWhileRunning(t *testing.T) {
	job := &fakeJob{}
	job.running.Store(true)
	handler := handlers.NewPrewarmHandler(context.Background(), job, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/prewarm/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, job.runs.Load())
}
