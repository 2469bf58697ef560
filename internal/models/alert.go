package models

import (
	"strconv"
	"strings"
	"time"

	"igot-scanner/pkg/utils"
)

// AlertEvent is one inbound trigger: a symbol whose option premiums
// should be evaluated now. Events arrive over the webhook or from the
// price-move ticker.
type AlertEvent struct {
	Symbol string    `json:"symbol"`
	Move   string    `json:"move,omitempty"` // free-form description from the source, e.g. "CE +4.2"
	At     time.Time `json:"at"`
}

// timestamp layouts accepted from webhook payloads, tried in order.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseEventTime parses an event timestamp from a webhook payload.
// Accepts epoch seconds and common ISO-8601 forms; anything else
// (including an empty string) falls back to the supplied instant.
// Timestamps without an explicit offset are read as IST, the zone the
// alert sources emit.
func ParseEventTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Unix(int64(secs), 0)
	}

	for _, layout := range eventTimeLayouts {
		// ParseInLocation leaves an explicit offset alone and pins the
		// offset-less layouts to IST.
		if t, err := time.ParseInLocation(layout, raw, utils.IndiaLocation); err == nil {
			return t
		}
	}

	return fallback
}

// AlertRecord is one persisted evaluation: the inbound event, the
// aggregated signals and the verdict, in the shape the dashboard reads.
type AlertRecord struct {
	ID           int64
	Symbol       string
	Time         time.Time
	Move         string
	LTP          float64
	DeltaCE      float64
	DeltaPE      float64
	Skew         float64
	DeltaOIPut   int64
	CallVolRatio float64
	IVDeltaCE    float64
	IVDeltaPE    float64
	IVFlag       string
	Trend        string
	Flags        string
	CallResult   string
	PutResult    string
	CreatedAt    time.Time
}
