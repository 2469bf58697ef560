// Package models provides domain models for the option-flow scanner.
package models

import (
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OptionKind represents the side of an option leg.
type OptionKind string

const (
	KindCall OptionKind = "CE"
	KindPut  OptionKind = "PE"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Quote represents the live state of one tradable instrument at
// evaluation time. It is fetched fresh per evaluation and never cached.
type Quote struct {
	Symbol       string
	LastPrice    float64
	OpenPrice    float64
	OpenInterest int64
	Volume       int64
	Timestamp    time.Time
}

// Instrument represents a tradeable instrument from the exchange dump.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	Segment   string
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	Strike    float64
	InstrType string
}
