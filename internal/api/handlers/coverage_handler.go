package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/visa2any/fly2any-sub046/internal/adapters/cache"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	"github.com/visa2any/fly2any-sub046/pkg/cachekey"
)

const (
	defaultCoverageDays = 90
	maxCoverageDays     = 366
)

// QuoteReader reads quotes back from the online price cache.
type QuoteReader interface {
	Lookup(ctx context.Context, params cachekey.FlightSearchParams) (*cache.CachedQuote, error)
}

// CoverageHandler serves the cache coverage read path.
type CoverageHandler struct {
	coverage repositories.CacheCoverageRepository
	quotes   QuoteReader
	currency string
	now      func() time.Time
}

// NewCoverageHandler creates a new coverage handler. quotes may be nil when
// no price cache is configured.
func NewCoverageHandler(coverage repositories.CacheCoverageRepository, quotes QuoteReader, currency string) *CoverageHandler {
	return &CoverageHandler{coverage: coverage, quotes: quotes, currency: currency, now: time.Now}
}

// GetCoverage handles GET /api/coverage/{route}?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *CoverageHandler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	route := strings.ToUpper(chi.URLParam(r, "route"))
	if _, _, ok := entities.SplitRoute(route); !ok {
		respondWithError(w, http.StatusBadRequest, "route must look like JFK-LAX")
		return
	}

	start := entities.CalendarDate(h.now())
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(entities.DateLayout, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
		start = parsed
	}
	end := start.AddDate(0, 0, defaultCoverageDays)
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(entities.DateLayout, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
		end = parsed
	}
	if end.Before(start) {
		respondWithError(w, http.StatusBadRequest, "end must not be before start")
		return
	}
	if end.Sub(start) > maxCoverageDays*24*time.Hour {
		respondWithError(w, http.StatusBadRequest, "range too large")
		return
	}

	entries, err := h.coverage.GetCoverage(r.Context(), route, start, end)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if entries == nil {
		entries = []*entities.CacheCoverageEntry{}
	}

	cached := 0
	for _, e := range entries {
		if e.HasCache {
			cached++
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"route":   route,
		"start":   start.Format(entities.DateLayout),
		"end":     end.Format(entities.DateLayout),
		"entries": entries,
		"cached":  cached,
		"count":   len(entries),
	})
}

// GetPrice handles GET /api/coverage/{route}/{date}/price and returns the
// quote stored under the same key the online search reads.
func (h *CoverageHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		respondWithError(w, http.StatusServiceUnavailable, "price cache not configured")
		return
	}
	route := strings.ToUpper(chi.URLParam(r, "route"))
	origin, destination, ok := entities.SplitRoute(route)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "route must look like JFK-LAX")
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(entities.DateLayout, date); err != nil {
		respondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	params := cachekey.PrewarmParams(origin, destination, date, h.currency)
	quote, err := h.quotes.Lookup(r.Context(), params)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if quote == nil {
		respondWithError(w, http.StatusNotFound, "no cached price for "+route+" on "+date)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"key":   cachekey.GenerateKey(params),
		"quote": quote,
	})
}

// Health handles GET /health
func (h *CoverageHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.coverage.Ping(r.Context()); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
