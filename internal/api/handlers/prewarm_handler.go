package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// PrewarmRunner is the part of the pre-warm job the HTTP API needs.
type PrewarmRunner interface {
	Run(ctx context.Context) (*entities.RunReport, error)
	Running() bool
	Progress() *entities.RunReport
	LastReport() *entities.RunReport
}

// BreakerStater reports the upstream circuit breaker state.
type BreakerStater interface {
	State() string
}

// PrewarmHandler exposes run status and a manual trigger.
type PrewarmHandler struct {
	job     PrewarmRunner
	breaker BreakerStater
	baseCtx context.Context
	logger  zerolog.Logger
}

// NewPrewarmHandler creates a new pre-warm handler. Runs triggered over HTTP
// use baseCtx, so they outlive the request but stop on shutdown. breaker may
// be nil.
func NewPrewarmHandler(baseCtx context.Context, job PrewarmRunner, breaker BreakerStater, logger zerolog.Logger) *PrewarmHandler {
	return &PrewarmHandler{
		job:     job,
		breaker: breaker,
		baseCtx: baseCtx,
		logger:  logger.With().Str("component", "prewarm_handler").Logger(),
	}
}

// GetStatus handles GET /api/prewarm/status
func (h *PrewarmHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"running":  h.job.Running(),
		"progress": h.job.Progress(),
	}
	if h.breaker != nil {
		body["price_api_breaker"] = h.breaker.State()
	}
	respondWithJSON(w, http.StatusOK, body)
}

// GetLastReport handles GET /api/prewarm/report
func (h *PrewarmHandler) GetLastReport(w http.ResponseWriter, r *http.Request) {
	report := h.job.LastReport()
	if report == nil {
		respondWithError(w, http.StatusNotFound, "no run has finished yet")
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// TriggerRun handles POST /api/prewarm/run. The run continues in the
// background; progress is read from the status endpoint.
func (h *PrewarmHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.job.Running() {
		respondWithAppError(w, apperrors.NewConflictError("pre-warm run already in progress"))
		return
	}

	go func() {
		if _, err := h.job.Run(h.baseCtx); err != nil {
			h.logger.Error().Err(err).Msg("Manually triggered pre-warm run failed")
		}
	}()

	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
