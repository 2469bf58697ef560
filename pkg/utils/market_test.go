package utils

import (
	"testing"
	"time"
)

func TestNextSessionOpenSkipsWeekend(t *testing.T) {
	// Friday 2025-01-10 10:00 IST: next open is Monday 09:15.
	friday := time.Date(2025, 1, 10, 10, 0, 0, 0, IndiaLocation)
	next := NextSessionOpen(friday)

	if next.Weekday() != time.Monday {
		t.Fatalf("next open weekday = %v, want Monday", next.Weekday())
	}
	if next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("next open time = %02d:%02d, want 09:15", next.Hour(), next.Minute())
	}
	if next.Day() != 13 {
		t.Errorf("next open day = %d, want 13", next.Day())
	}
}

func TestNextSessionOpenBeforeOpen(t *testing.T) {
	// Tuesday 08:00: today's 09:15 is still ahead.
	tuesday := time.Date(2025, 1, 7, 8, 0, 0, 0, IndiaLocation)
	next := NextSessionOpen(tuesday)

	if next.Day() != 7 || next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("next open = %v, want same-day 09:15", next)
	}
}

func TestSessionOpen(t *testing.T) {
	at := time.Date(2025, 1, 7, 13, 42, 11, 0, IndiaLocation)
	open := SessionOpen(at)
	if open.Hour() != 9 || open.Minute() != 15 || open.Day() != 7 {
		t.Errorf("session open = %v", open)
	}
}

func TestIsMarketHours(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid-session", time.Date(2025, 1, 7, 11, 0, 0, 0, IndiaLocation), true},
		{"session open instant", time.Date(2025, 1, 7, 9, 15, 0, 0, IndiaLocation), true},
		{"pre-open", time.Date(2025, 1, 7, 9, 0, 0, 0, IndiaLocation), false},
		{"after close", time.Date(2025, 1, 7, 15, 30, 0, 0, IndiaLocation), false},
		{"saturday", time.Date(2025, 1, 11, 11, 0, 0, 0, IndiaLocation), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarketHours(tt.at); got != tt.want {
				t.Errorf("IsMarketHours(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestTradingDayKey(t *testing.T) {
	at := time.Date(2025, 1, 7, 23, 59, 0, 0, IndiaLocation)
	if got := TradingDayKey(at); got != "2025-01-07" {
		t.Errorf("TradingDayKey = %q", got)
	}
}
