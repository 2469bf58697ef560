// Package broker provides market-data access and option-symbol
// resolution against Zerodha Kite Connect.
package broker

import (
	"context"
	"time"

	"igot-scanner/internal/models"
)

// MarketData is the access layer the evaluation pipeline depends on.
// All calls perform network I/O and honor the context deadline; any of
// them may fail transiently, and callers degrade the affected signal
// rather than aborting.
type MarketData interface {
	// Spot returns the last traded price of the underlying.
	Spot(ctx context.Context, symbol string) (float64, error)
	// Quote returns the live quote for one NFO instrument.
	Quote(ctx context.Context, tradingsymbol string) (*models.Quote, error)
	// Bars returns ordered 5-minute candles for one NFO instrument
	// since the given instant.
	Bars(ctx context.Context, tradingsymbol string, since time.Time) ([]models.Candle, error)
}

// Resolver maps an underlying to its option instruments. Absence of an
// instrument is an expected state, not an error.
type Resolver interface {
	// ResolveExpiry returns the nearest future expiry for the symbol.
	ResolveExpiry(ctx context.Context, symbol string) (time.Time, error)
	// Strikes returns the distinct strikes listed for the expiry.
	Strikes(ctx context.Context, symbol string, expiry time.Time) ([]float64, error)
	// OptionSymbol returns the NFO tradingsymbol for a strike and kind,
	// with ok=false when no such instrument is listed.
	OptionSymbol(ctx context.Context, symbol string, expiry time.Time, strike float64, kind models.OptionKind) (string, bool, error)
}

// Broker is the full market access surface: data, resolution and
// session management.
type Broker interface {
	MarketData
	Resolver

	Login(ctx context.Context) error
	CompleteLogin(ctx context.Context, requestToken string) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool
}
