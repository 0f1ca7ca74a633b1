package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	"github.com/visa2any/fly2any-sub046/pkg/config"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

const (
	defaultTravelClass = "ECONOMY"
	defaultMaxResults  = 5
)

// searchRequest is the body accepted by the flight search endpoint.
type searchRequest struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departureDate"`
	Adults        int    `json:"adults"`
	Children      int    `json:"children"`
	Infants       int    `json:"infants"`
	TravelClass   string `json:"travelClass"`
	NonStop       bool   `json:"nonStop"`
	CurrencyCode  string `json:"currencyCode"`
	Max           int    `json:"max"`
	UseMultiDate  bool   `json:"useMultiDate"`
}

type searchResponse struct {
	Flights []struct {
		Price struct {
			Total    amount `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
	} `json:"flights"`
}

// amount accepts both "349.00" and 349.0.
type amount float64

func (a *amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid price %s: %w", data, err)
	}
	*a = amount(v)
	return nil
}

// HTTPFetcher asks the flight search API for the cheapest one-way fare.
type HTTPFetcher struct {
	client   *resty.Client
	currency string
}

// NewHTTPFetcher creates a fetcher for cfg.BaseURL.
func NewHTTPFetcher(cfg config.PriceAPIConfig, currency string) *HTTPFetcher {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &HTTPFetcher{client: client, currency: strings.ToUpper(currency)}
}

var _ providers.PriceFetcher = (*HTTPFetcher)(nil)

// Fetch returns the lowest total across the returned offers, in minor units.
func (f *HTTPFetcher) Fetch(ctx context.Context, origin, destination string, date time.Time) (*entities.PriceQuote, error) {
	route := entities.RouteKey(origin, destination)
	body := searchRequest{
		Origin:        entities.NormalizeIATA(origin),
		Destination:   entities.NormalizeIATA(destination),
		DepartureDate: date.Format(entities.DateLayout),
		Adults:        1,
		TravelClass:   defaultTravelClass,
		CurrencyCode:  f.currency,
		Max:           defaultMaxResults,
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/search")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError(fmt.Sprintf("price lookup for %s timed out", route), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewExternalError(fmt.Sprintf("price lookup for %s failed", route), err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, apperrors.NewExternalError(
			fmt.Sprintf("price API returned %d for %s", resp.StatusCode(), route),
			errors.New(strings.TrimSpace(string(resp.Body()))),
		)
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("invalid price response for %s", route), err)
	}

	var best *entities.PriceQuote
	for _, flight := range parsed.Flights {
		if flight.Price.Total <= 0 {
			continue
		}
		minor := int64(math.Round(float64(flight.Price.Total) * 100))
		if best == nil || minor < best.Price {
			currency := flight.Price.Currency
			if currency == "" {
				currency = f.currency
			}
			best = &entities.PriceQuote{Price: minor, Currency: currency}
		}
	}
	if best == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no fares for %s on %s", route, body.DepartureDate))
	}
	return best, nil
}
