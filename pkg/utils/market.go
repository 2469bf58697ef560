// Package utils provides shared market-clock and retry helpers.
package utils

import "time"

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// SessionOpen returns the 09:15 IST session open of the trading day the
// instant falls on.
func SessionOpen(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 9, 15, 0, 0, IndiaLocation)
}

// SessionClose returns the 15:30 IST session close of the trading day
// the instant falls on.
func SessionClose(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 30, 0, 0, IndiaLocation)
}

// TradingDay truncates an instant to midnight IST.
func TradingDay(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IndiaLocation)
}

// TradingDayKey formats an instant as the YYYY-MM-DD key used for
// per-day persistence.
func TradingDayKey(t time.Time) string {
	return t.In(IndiaLocation).Format("2006-01-02")
}

// NextSessionOpen returns the next 09:15 IST open strictly after the
// given instant, skipping weekends.
func NextSessionOpen(after time.Time) time.Time {
	now := after.In(IndiaLocation)

	next := SessionOpen(now)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// IsMarketHours reports whether the instant falls inside the regular
// 09:15-15:30 IST session on a weekday.
func IsMarketHours(t time.Time) bool {
	t = t.In(IndiaLocation)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !t.Before(SessionOpen(t)) && t.Before(SessionClose(t))
}
