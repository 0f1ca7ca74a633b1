// Package cachekey builds the flight search cache keys shared with the online
// search path. The format must stay stable: readers on the hot path look up
// pre-warmed prices with exactly these keys.
package cachekey

import (
	"strconv"
	"strings"
)

const flightSearchPrefix = "flight:search"

// FlightSearchParams identifies one cached flight search.
type FlightSearchParams struct {
	Origin        string
	Destination   string
	DepartureDate string // YYYY-MM-DD
	ReturnDate    string // empty for one-way
	Adults        int
	Children      int
	Infants       int
	TravelClass   string
	NonStop       bool
	CurrencyCode  string
}

// GenerateKey returns
// flight:search:{ORIGIN}:{DEST}:{depart}:{return|oneway}:{adults}:{children}:{infants}:{CABIN}:{nonstop|any}:{CURRENCY}.
func GenerateKey(p FlightSearchParams) string {
	returnDate := p.ReturnDate
	if returnDate == "" {
		returnDate = "oneway"
	}
	stops := "any"
	if p.NonStop {
		stops = "nonstop"
	}

	parts := []string{
		flightSearchPrefix,
		strings.ToUpper(strings.TrimSpace(p.Origin)),
		strings.ToUpper(strings.TrimSpace(p.Destination)),
		p.DepartureDate,
		returnDate,
		strconv.Itoa(p.Adults),
		strconv.Itoa(p.Children),
		strconv.Itoa(p.Infants),
		strings.ToUpper(p.TravelClass),
		stops,
		strings.ToUpper(p.CurrencyCode),
	}
	return strings.Join(parts, ":")
}

// PrewarmCabin is the cabin pre-warmed quotes are stored for.
const PrewarmCabin = "ECONOMY"

// PrewarmParams returns the search a pre-warmed quote is stored under:
// one-way, one adult, economy, any stops.
func PrewarmParams(origin, destination, departureDate, currency string) FlightSearchParams {
	return FlightSearchParams{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: departureDate,
		Adults:        1,
		TravelClass:   PrewarmCabin,
		CurrencyCode:  currency,
	}
}
