package pricing

import (
	"time"

	"igot-scanner/pkg/utils"
)

// hoursPerYear converts a time-to-expiry into Black-Scholes years.
const hoursPerYear = 24 * 365

// ExpiryYears measures the time from at to the 15:30 IST close on the
// expiry date, in years. Index options on the NSE settle at that close.
func ExpiryYears(at, expiry time.Time) float64 {
	close := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 15, 30, 0, 0, utils.IndiaLocation)
	return close.Sub(at).Hours() / hoursPerYear
}
