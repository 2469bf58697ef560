// Package baseline maintains the session-open references used by the
// evaluation pipeline: per-instrument put OI and per-symbol ATM implied
// vol, both captured once per trading day at 09:15.
package baseline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"igot-scanner/internal/models"
)

// Store persists captured baseline entries across restarts. Entries are
// keyed by trading day; a day's entry is written at most once.
type Store interface {
	LoadBaseline(ctx context.Context, tradingDay string) (map[string]int64, error)
	RecordBaseline(ctx context.Context, tradingDay, instrument string, oi int64, capturedAt time.Time) error
	LoadOpenIV(ctx context.Context, tradingDay string) (map[string]models.OpenIV, error)
	RecordOpenIV(ctx context.Context, tradingDay, symbol string, iv models.OpenIV, capturedAt time.Time) error
}

// Keeper holds the current trading day's baseline in memory and answers
// lookups for evaluations. Writes come only from the capture scheduler;
// reads may observe a partial baseline while a capture is in flight.
type Keeper struct {
	store  Store
	logger zerolog.Logger

	mu     sync.RWMutex
	day    string
	oi     map[string]int64
	openIV map[string]models.OpenIV
}

// NewKeeper creates a keeper backed by the given store.
func NewKeeper(store Store, logger zerolog.Logger) *Keeper {
	return &Keeper{
		store:  store,
		logger: logger,
		oi:     make(map[string]int64),
		openIV: make(map[string]models.OpenIV),
	}
}

// BaselineOI returns the captured session-open OI for an instrument.
func (k *Keeper) BaselineOI(tradingsymbol string) (int64, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.oi[tradingsymbol]
	return v, ok
}

// OpenIV returns the ATM implied vol pair captured for a symbol at the
// current day's open.
func (k *Keeper) OpenIV(symbol string) (models.OpenIV, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.openIV[symbol]
	return v, ok
}

// Has reports whether the instrument already has a baseline entry for
// the current day.
func (k *Keeper) Has(tradingsymbol string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.oi[tradingsymbol]
	return ok
}

// HasOpenIV reports whether the symbol already has an open IV entry for
// the current day.
func (k *Keeper) HasOpenIV(symbol string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.openIV[symbol]
	return ok
}

// Day returns the trading day the in-memory baseline belongs to.
func (k *Keeper) Day() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.day
}

// Len returns the number of instruments captured for the current day.
func (k *Keeper) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.oi)
}

// Snapshot returns a copy of the current day's OI entries.
func (k *Keeper) Snapshot() map[string]int64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]int64, len(k.oi))
	for ts, v := range k.oi {
		out[ts] = v
	}
	return out
}

// LoadDay replaces the in-memory baseline with the persisted entries
// for a trading day. Called at startup and when the scheduler rolls
// over to a new session.
func (k *Keeper) LoadDay(ctx context.Context, tradingDay string) error {
	entries, err := k.store.LoadBaseline(ctx, tradingDay)
	if err != nil {
		return err
	}
	openIV, err := k.store.LoadOpenIV(ctx, tradingDay)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.day = tradingDay
	k.oi = entries
	if k.oi == nil {
		k.oi = make(map[string]int64)
	}
	k.openIV = openIV
	if k.openIV == nil {
		k.openIV = make(map[string]models.OpenIV)
	}
	k.mu.Unlock()

	k.logger.Info().Str("trading_day", tradingDay).Int("instruments", len(entries)).Int("open_iv", len(openIV)).Msg("Baseline loaded")
	return nil
}

// Record captures one instrument's session-open OI. An instrument
// already captured today keeps its first value; later calls are no-ops.
func (k *Keeper) Record(ctx context.Context, tradingDay, tradingsymbol string, oi int64, capturedAt time.Time) error {
	k.mu.Lock()
	k.rollLocked(tradingDay)
	if _, ok := k.oi[tradingsymbol]; ok {
		k.mu.Unlock()
		return nil
	}
	k.oi[tradingsymbol] = oi
	k.mu.Unlock()

	if err := k.store.RecordBaseline(ctx, tradingDay, tradingsymbol, oi, capturedAt); err != nil {
		// Keep the in-memory entry; evaluations for the rest of the day
		// still see it even if persistence is behind.
		k.logger.Error().Err(err).Str("instrument", tradingsymbol).Msg("Failed to persist baseline entry")
		return err
	}
	return nil
}

// RecordOpenIV captures a symbol's ATM implied vol pair at session
// open, first value wins like Record.
func (k *Keeper) RecordOpenIV(ctx context.Context, tradingDay, symbol string, iv models.OpenIV, capturedAt time.Time) error {
	k.mu.Lock()
	k.rollLocked(tradingDay)
	if _, ok := k.openIV[symbol]; ok {
		k.mu.Unlock()
		return nil
	}
	k.openIV[symbol] = iv
	k.mu.Unlock()

	if err := k.store.RecordOpenIV(ctx, tradingDay, symbol, iv, capturedAt); err != nil {
		k.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to persist open IV entry")
		return err
	}
	return nil
}

// rollLocked resets both maps when a write arrives for a day the keeper
// is not on yet. Caller holds the write lock.
func (k *Keeper) rollLocked(tradingDay string) {
	if k.day == tradingDay {
		return
	}
	k.day = tradingDay
	k.oi = make(map[string]int64)
	k.openIV = make(map[string]models.OpenIV)
}
