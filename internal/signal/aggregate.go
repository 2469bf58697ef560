package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"igot-scanner/internal/broker"
	"igot-scanner/internal/models"
	"igot-scanner/internal/pricing"
	"igot-scanner/internal/skew"
	"igot-scanner/pkg/utils"
)

// BaselineSource supplies the session-open reference values for the
// current trading day: per-instrument put OI and per-symbol ATM implied
// vol. A read during a capture run may observe a partial baseline;
// missing entries degrade the affected scalar to its neutral default.
type BaselineSource interface {
	BaselineOI(tradingsymbol string) (int64, bool)
	OpenIV(symbol string) (models.OpenIV, bool)
}

// Aggregator combines per-strike premium moves, volume confirmation and
// OI deltas into one SignalBundle per alert, then classifies it.
// Safe for concurrent use; each evaluation carries its own state.
type Aggregator struct {
	market   broker.MarketData
	resolver broker.Resolver
	baseline BaselineSource
	tracker  *skew.Tracker
	th       Thresholds
	radius   int
	riskFree float64
	divYield float64
	logger   zerolog.Logger
}

// AggregatorConfig holds the construction parameters.
type AggregatorConfig struct {
	Market     broker.MarketData
	Resolver   broker.Resolver
	Baseline   BaselineSource
	Tracker    *skew.Tracker
	Thresholds Thresholds
	Radius     int
	RiskFree   float64
	DivYield   float64
	Logger     zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	radius := cfg.Radius
	if radius <= 0 {
		radius = DefaultWindowRadius
	}
	riskFree := cfg.RiskFree
	if riskFree == 0 {
		riskFree = 0.07
	}
	return &Aggregator{
		market:   cfg.Market,
		resolver: cfg.Resolver,
		baseline: cfg.Baseline,
		tracker:  cfg.Tracker,
		th:       cfg.Thresholds,
		radius:   radius,
		riskFree: riskFree,
		divYield: cfg.DivYield,
		logger:   cfg.Logger,
	}
}

// Thresholds returns the tuning the aggregator classifies with.
func (a *Aggregator) Thresholds() Thresholds {
	return a.th
}

// Evaluate runs the full pipeline for one inbound alert: window
// selection, per-strike aggregation, skew tracking, classification.
// Every market-data failure past the initial spot lookup degrades the
// affected scalar to its neutral default and the evaluation continues.
func (a *Aggregator) Evaluate(ctx context.Context, event models.AlertEvent) (*models.SignalBundle, models.Verdict, error) {
	log := a.logger.With().Str("symbol", event.Symbol).Logger()

	spot, err := a.market.Spot(ctx, event.Symbol)
	if err != nil {
		return nil, models.Verdict{}, fmt.Errorf("resolving spot for %s: %w", event.Symbol, err)
	}

	bundle := &models.SignalBundle{Symbol: event.Symbol, Spot: spot}

	window, ok := a.resolveWindow(ctx, event.Symbol, spot, log)
	if !ok {
		// No option chain: degenerate bundle with explicit neutral
		// values, classified as-is so the caller still gets a verdict.
		bundle.Degenerate = true
		return bundle, Classify(bundle, a.th), nil
	}
	bundle.Window = window.StrikeWindow

	ev := &evalState{
		agg:    a,
		log:    log,
		symbol: event.Symbol,
		expiry: window.expiry,
		since:  utils.SessionOpen(event.At),
		quotes: make(map[string]*models.Quote),
		bars:   make(map[string][]models.Candle),
	}

	ev.premiumDeltas(ctx, bundle)
	ev.callVolumeRatio(ctx, bundle)
	ev.confirmations(ctx, bundle)
	ev.putOIDelta(ctx, bundle)
	ev.atmSkew(ctx, event.At, bundle)

	bundle.SkewJump = a.tracker.Observe(event.Symbol, bundle.Skew).ZScore

	verdict := Classify(bundle, a.th)
	log.Debug().
		Float64("dce", bundle.DeltaCE).
		Float64("dpe", bundle.DeltaPE).
		Int64("doi_put", bundle.DeltaOIPut).
		Float64("call_vol_ratio", bundle.CallVolRatio).
		Float64("skew", bundle.Skew).
		Float64("skew_jump", bundle.SkewJump).
		Float64("ivd_ce", bundle.IVDeltaCE).
		Str("iv_flag", bundle.IVFlag).
		Str("trend", string(verdict.Trend)).
		Str("flags", verdict.FlagString()).
		Msg("Alert evaluated")

	return bundle, verdict, nil
}

// resolvedWindow pairs the strike window with the expiry it was
// resolved against.
type resolvedWindow struct {
	models.StrikeWindow
	expiry time.Time
}

func (a *Aggregator) resolveWindow(ctx context.Context, symbol string, spot float64, log zerolog.Logger) (resolvedWindow, bool) {
	expiry, err := a.resolver.ResolveExpiry(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Msg("No resolvable expiry, short-circuiting")
		return resolvedWindow{}, false
	}

	strikes, err := a.resolver.Strikes(ctx, symbol, expiry)
	if err != nil {
		log.Warn().Err(err).Msg("Strike lookup failed, short-circuiting")
		return resolvedWindow{}, false
	}

	window := SelectWindow(spot, strikes, a.radius)
	if window.Empty() {
		log.Warn().Time("expiry", expiry).Msg("Empty option chain for expiry")
		return resolvedWindow{}, false
	}

	return resolvedWindow{StrikeWindow: window, expiry: expiry}, true
}

// evalState carries the per-evaluation lookup caches so a leg queried
// by several signals hits the wire once.
type evalState struct {
	agg    *Aggregator
	log    zerolog.Logger
	symbol string
	expiry time.Time
	since  time.Time
	quotes map[string]*models.Quote
	bars   map[string][]models.Candle
}

// leg resolves the tradingsymbol for a strike and kind. ok=false covers
// both an unlisted instrument and a transient resolver failure; either
// way the leg is simply absent from this evaluation.
func (ev *evalState) leg(ctx context.Context, strike float64, kind models.OptionKind) (string, bool) {
	ts, ok, err := ev.agg.resolver.OptionSymbol(ctx, ev.symbol, ev.expiry, strike, kind)
	if err != nil {
		ev.log.Debug().Err(err).Float64("strike", strike).Str("kind", string(kind)).Msg("Leg resolution failed")
		return "", false
	}
	return ts, ok
}

func (ev *evalState) quote(ctx context.Context, tradingsymbol string) (*models.Quote, bool) {
	if q, ok := ev.quotes[tradingsymbol]; ok {
		return q, q != nil
	}
	q, err := ev.agg.market.Quote(ctx, tradingsymbol)
	if err != nil {
		ev.log.Debug().Err(err).Str("instrument", tradingsymbol).Msg("Quote unavailable")
		ev.quotes[tradingsymbol] = nil
		return nil, false
	}
	ev.quotes[tradingsymbol] = q
	return q, true
}

func (ev *evalState) sessionBars(ctx context.Context, tradingsymbol string) ([]models.Candle, bool) {
	if b, ok := ev.bars[tradingsymbol]; ok {
		return b, b != nil
	}
	b, err := ev.agg.market.Bars(ctx, tradingsymbol, ev.since)
	if err != nil {
		ev.log.Debug().Err(err).Str("instrument", tradingsymbol).Msg("Bars unavailable")
		ev.bars[tradingsymbol] = nil
		return nil, false
	}
	ev.bars[tradingsymbol] = b
	return b, true
}

// premiumDeltas accumulates (last - open) for every available leg in
// the delta window: calls into DeltaCE, puts into DeltaPE. Sums, not
// per-strike values.
func (ev *evalState) premiumDeltas(ctx context.Context, bundle *models.SignalBundle) {
	var dce, dpe float64
	for _, strike := range bundle.Window.Delta {
		if ts, ok := ev.leg(ctx, strike, models.KindCall); ok {
			if q, ok := ev.quote(ctx, ts); ok {
				dce += q.LastPrice - q.OpenPrice
			}
		}
		if ts, ok := ev.leg(ctx, strike, models.KindPut); ok {
			if q, ok := ev.quote(ctx, ts); ok {
				dpe += q.LastPrice - q.OpenPrice
			}
		}
	}
	bundle.DeltaCE = round2(dce)
	bundle.DeltaPE = round2(dpe)
}

// callVolumeRatio computes, per call leg in the delta window, the ratio
// of the latest 5-minute bar's volume to the mean of the 3 bars before
// it, and keeps the maximum. One strongly active strike is enough to
// suggest real participation. Fewer than 4 session bars yields 0 for
// that leg.
func (ev *evalState) callVolumeRatio(ctx context.Context, bundle *models.SignalBundle) {
	var best float64
	for _, strike := range bundle.Window.Delta {
		ts, ok := ev.leg(ctx, strike, models.KindCall)
		if !ok {
			continue
		}
		bars, ok := ev.sessionBars(ctx, ts)
		if !ok || len(bars) < 4 {
			continue
		}

		n := len(bars)
		prior := float64(bars[n-4].Volume+bars[n-3].Volume+bars[n-2].Volume) / 3.0
		if prior <= 0 {
			continue
		}
		if ratio := float64(bars[n-1].Volume) / prior; ratio > best {
			best = ratio
		}
	}
	bundle.CallVolRatio = best
}

// confirmations tags every leg in the display window: confirmed when
// the latest session bar carries the session's highest volume and its
// direction matches the leg kind (a falling bar confirms a call, a
// rising bar confirms a put). Anything unresolvable is not confirmed.
func (ev *evalState) confirmations(ctx context.Context, bundle *models.SignalBundle) {
	for _, strike := range bundle.Window.Display {
		for _, kind := range []models.OptionKind{models.KindCall, models.KindPut} {
			bundle.Confirmations = append(bundle.Confirmations, models.LegConfirmation{
				Strike: strike,
				Kind:   kind,
				Tag:    ev.confirmLeg(ctx, strike, kind),
			})
		}
	}
}

func (ev *evalState) confirmLeg(ctx context.Context, strike float64, kind models.OptionKind) models.ConfirmTag {
	ts, ok := ev.leg(ctx, strike, kind)
	if !ok {
		return models.NotConfirmed
	}
	bars, ok := ev.sessionBars(ctx, ts)
	if !ok || len(bars) == 0 {
		return models.NotConfirmed
	}

	latest := bars[len(bars)-1]
	for _, b := range bars {
		if b.Volume > latest.Volume {
			return models.NotConfirmed
		}
	}

	switch kind {
	case models.KindCall:
		if latest.Close < latest.Open {
			return models.Confirmed
		}
	case models.KindPut:
		if latest.Close > latest.Open {
			return models.Confirmed
		}
	}
	return models.NotConfirmed
}

// putOIDelta sums live put open interest across the baseline window and
// subtracts the session-open baseline. Legs absent from the baseline
// subtract 0; legs that fail to resolve or quote add 0.
func (ev *evalState) putOIDelta(ctx context.Context, bundle *models.SignalBundle) {
	var live, base int64
	for _, strike := range bundle.Window.BaselineBelow {
		ts, ok := ev.leg(ctx, strike, models.KindPut)
		if !ok {
			continue
		}
		q, ok := ev.quote(ctx, ts)
		if !ok {
			continue
		}
		live += q.OpenInterest
		if b, ok := ev.agg.baseline.BaselineOI(ts); ok {
			base += b
		}
	}
	bundle.DeltaOIPut = live - base
}

// atmSkew prices the at-the-money call and put legs back to implied
// volatility, reports the spread in volatility points and, when a
// session-open IV reference exists, the per-leg change since 09:15. A
// missing leg leaves skew at its explicit neutral 0.0; a missing open
// reference leaves the deltas at 0 and the IV flag empty.
func (ev *evalState) atmSkew(ctx context.Context, at time.Time, bundle *models.SignalBundle) {
	years := pricing.ExpiryYears(at, ev.expiry)

	ivCE, okCE := ev.legIV(ctx, bundle, models.KindCall, years)
	ivPE, okPE := ev.legIV(ctx, bundle, models.KindPut, years)
	if !okCE || !okPE {
		bundle.Skew = 0.0
		return
	}
	bundle.Skew = round2(100 * (ivCE - ivPE))

	open, ok := ev.agg.baseline.OpenIV(ev.symbol)
	if !ok {
		return
	}
	bundle.IVDeltaCE = round2(100 * (ivCE - open.CE))
	bundle.IVDeltaPE = round2(100 * (ivPE - open.PE))
	switch {
	case bundle.IVDeltaCE >= ev.agg.th.IVDJump:
		bundle.IVFlag = models.IVFlagPump
	case bundle.IVDeltaCE <= -ev.agg.th.IVDJump:
		bundle.IVFlag = models.IVFlagCrush
	}
}

func (ev *evalState) legIV(ctx context.Context, bundle *models.SignalBundle, kind models.OptionKind, years float64) (float64, bool) {
	ts, ok := ev.leg(ctx, bundle.Window.ATM, kind)
	if !ok {
		return 0, false
	}
	q, ok := ev.quote(ctx, ts)
	if !ok {
		return 0, false
	}

	sign := pricing.SignCall
	if kind == models.KindPut {
		sign = pricing.SignPut
	}
	return pricing.ImpliedVol(q.LastPrice, bundle.Spot, bundle.Window.ATM, years, ev.agg.riskFree, ev.agg.divYield, sign), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
