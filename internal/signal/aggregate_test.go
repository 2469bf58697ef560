package signal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"igot-scanner/internal/models"
	"igot-scanner/internal/pricing"
	"igot-scanner/internal/skew"
	"igot-scanner/pkg/utils"
)

type fakeMarket struct {
	spot    float64
	spotErr error
	quotes  map[string]*models.Quote
	bars    map[string][]models.Candle
}

func (f *fakeMarket) Spot(ctx context.Context, symbol string) (float64, error) {
	return f.spot, f.spotErr
}

func (f *fakeMarket) Quote(ctx context.Context, ts string) (*models.Quote, error) {
	q, ok := f.quotes[ts]
	if !ok {
		return nil, errors.New("quote unavailable")
	}
	return q, nil
}

func (f *fakeMarket) Bars(ctx context.Context, ts string, since time.Time) ([]models.Candle, error) {
	b, ok := f.bars[ts]
	if !ok {
		return nil, errors.New("bars unavailable")
	}
	return b, nil
}

type fakeResolver struct {
	expiry    time.Time
	expiryErr error
	strikes   []float64
	legs      map[string]string
}

func legKey(strike float64, kind models.OptionKind) string {
	return fmt.Sprintf("%.2f%s", strike, kind)
}

func (f *fakeResolver) ResolveExpiry(ctx context.Context, symbol string) (time.Time, error) {
	return f.expiry, f.expiryErr
}

func (f *fakeResolver) Strikes(ctx context.Context, symbol string, expiry time.Time) ([]float64, error) {
	return f.strikes, nil
}

func (f *fakeResolver) OptionSymbol(ctx context.Context, symbol string, expiry time.Time, strike float64, kind models.OptionKind) (string, bool, error) {
	ts, ok := f.legs[legKey(strike, kind)]
	return ts, ok, nil
}

type fakeBaseline map[string]int64

func (f fakeBaseline) BaselineOI(ts string) (int64, bool) {
	v, ok := f[ts]
	return v, ok
}

func (f fakeBaseline) OpenIV(symbol string) (models.OpenIV, bool) {
	return models.OpenIV{}, false
}

// openIVBaseline adds a session-open IV reference on top of the plain
// OI fake.
type openIVBaseline struct {
	fakeBaseline
	iv models.OpenIV
}

func (b openIVBaseline) OpenIV(symbol string) (models.OpenIV, bool) {
	return b.iv, true
}

func eventAt() models.AlertEvent {
	at := time.Date(2025, 1, 7, 11, 0, 0, 0, utils.IndiaLocation)
	return models.AlertEvent{Symbol: "NIFTY", At: at}
}

func newTestAggregator(m *fakeMarket, r *fakeResolver, b BaselineSource) *Aggregator {
	return NewAggregator(AggregatorConfig{
		Market:     m,
		Resolver:   r,
		Baseline:   b,
		Tracker:    skew.NewTracker(),
		Thresholds: DefaultThresholds(),
		Logger:     zerolog.Nop(),
	})
}

// chainFixture builds a five-strike chain around ATM 110 with CE and PE
// legs resolvable at every strike.
func chainFixture() (*fakeMarket, *fakeResolver) {
	expiry := time.Date(2025, 1, 30, 0, 0, 0, 0, utils.IndiaLocation)
	strikes := []float64{100, 105, 110, 115, 120}

	r := &fakeResolver{expiry: expiry, strikes: strikes, legs: make(map[string]string)}
	m := &fakeMarket{
		spot:   110,
		quotes: make(map[string]*models.Quote),
		bars:   make(map[string][]models.Candle),
	}
	for _, s := range strikes {
		for _, k := range []models.OptionKind{models.KindCall, models.KindPut} {
			ts := fmt.Sprintf("NIFTY25JAN%.0f%s", s, k)
			r.legs[legKey(s, k)] = ts
			m.quotes[ts] = &models.Quote{Symbol: ts, LastPrice: 10, OpenPrice: 10}
		}
	}
	return m, r
}

func TestEvaluateSpotFailure(t *testing.T) {
	m := &fakeMarket{spotErr: errors.New("timeout")}
	agg := newTestAggregator(m, &fakeResolver{}, fakeBaseline{})

	_, _, err := agg.Evaluate(context.Background(), eventAt())
	if err == nil {
		t.Fatal("expected error on spot failure")
	}
}

func TestEvaluateNoChainShortCircuits(t *testing.T) {
	m := &fakeMarket{spot: 110}
	r := &fakeResolver{expiry: time.Now().AddDate(0, 0, 7), strikes: nil}
	agg := newTestAggregator(m, r, fakeBaseline{})

	bundle, verdict, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bundle.Degenerate {
		t.Error("bundle not marked degenerate")
	}
	if bundle.DeltaCE != 0 || bundle.DeltaPE != 0 || bundle.Skew != 0 {
		t.Errorf("degenerate bundle carries non-neutral values: %+v", bundle)
	}
	if verdict.Trend != models.TrendSideways {
		t.Errorf("degenerate trend = %v, want SIDEWAYS", verdict.Trend)
	}
}

func TestEvaluatePremiumDeltas(t *testing.T) {
	m, r := chainFixture()

	// Delta window is {105, 110, 115}. Six legs, each contributing
	// last - open.
	set := func(strike float64, kind models.OptionKind, open, last float64) {
		ts := r.legs[legKey(strike, kind)]
		m.quotes[ts] = &models.Quote{Symbol: ts, LastPrice: last, OpenPrice: open}
	}
	set(105, models.KindCall, 10, 12.5) // +2.5
	set(110, models.KindCall, 10, 11)   // +1.0
	set(115, models.KindCall, 10, 10.3) // +0.3
	set(105, models.KindPut, 10, 8)     // -2.0
	set(110, models.KindPut, 10, 9.1)   // -0.9
	set(115, models.KindPut, 10, 9.9)   // -0.1

	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bundle.DeltaCE != 3.8 {
		t.Errorf("DeltaCE = %v, want 3.8", bundle.DeltaCE)
	}
	if bundle.DeltaPE != -3.0 {
		t.Errorf("DeltaPE = %v, want -3.0", bundle.DeltaPE)
	}
}

func TestEvaluateMissingLegContributesZero(t *testing.T) {
	m, r := chainFixture()

	// Remove the put leg at 105: its premium move disappears from the
	// sum instead of failing the evaluation.
	delete(r.legs, legKey(105, models.KindPut))
	set := func(strike float64, kind models.OptionKind, open, last float64) {
		ts := r.legs[legKey(strike, kind)]
		m.quotes[ts] = &models.Quote{Symbol: ts, LastPrice: last, OpenPrice: open}
	}
	set(110, models.KindPut, 10, 7)

	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.DeltaPE != -3.0 {
		t.Errorf("DeltaPE = %v, want -3.0", bundle.DeltaPE)
	}
}

func TestEvaluateCallVolumeRatio(t *testing.T) {
	m, r := chainFixture()
	open := utils.SessionOpen(eventAt().At)

	mkBars := func(vols ...int64) []models.Candle {
		bars := make([]models.Candle, len(vols))
		for i, v := range vols {
			bars[i] = models.Candle{
				Timestamp: open.Add(time.Duration(i) * 5 * time.Minute),
				Open:      10, High: 11, Low: 9, Close: 10,
				Volume: v,
			}
		}
		return bars
	}

	// ATM leg: latest 600 against prior mean 200 -> ratio 3.
	m.bars[r.legs[legKey(110, models.KindCall)]] = mkBars(100, 200, 200, 200, 600)
	// Neighbor: only 3 bars since open -> ratio 0 for that leg.
	m.bars[r.legs[legKey(105, models.KindCall)]] = mkBars(100, 100, 100)
	// Other neighbor: weaker ratio.
	m.bars[r.legs[legKey(115, models.KindCall)]] = mkBars(100, 100, 100, 100, 150)

	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.CallVolRatio != 3.0 {
		t.Errorf("CallVolRatio = %v, want 3.0 (max across legs)", bundle.CallVolRatio)
	}
}

func TestEvaluateCallVolumeRatioTooFewBars(t *testing.T) {
	m, r := chainFixture()
	// No leg has 4 session bars: the aggregate ratio stays at its
	// explicit zero default.
	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.CallVolRatio != 0 {
		t.Errorf("CallVolRatio = %v, want 0", bundle.CallVolRatio)
	}
}

func TestEvaluateConfirmationTags(t *testing.T) {
	m, r := chainFixture()
	open := utils.SessionOpen(eventAt().At)

	bars := func(c ...models.Candle) []models.Candle {
		for i := range c {
			c[i].Timestamp = open.Add(time.Duration(i) * 5 * time.Minute)
		}
		return c
	}

	// Call leg at 110: latest bar has session-high volume and falls.
	m.bars[r.legs[legKey(110, models.KindCall)]] = bars(
		models.Candle{Open: 10, Close: 10.5, Volume: 100},
		models.Candle{Open: 10.5, Close: 10.2, Volume: 900},
	)
	// Put leg at 110: latest bar has session-high volume and rises.
	m.bars[r.legs[legKey(110, models.KindPut)]] = bars(
		models.Candle{Open: 10, Close: 10.1, Volume: 50},
		models.Candle{Open: 10.1, Close: 10.6, Volume: 300},
	)
	// Call leg at 105: session-high volume but rising, wrong direction.
	m.bars[r.legs[legKey(105, models.KindCall)]] = bars(
		models.Candle{Open: 10, Close: 10.5, Volume: 700},
	)
	// Put leg at 105: rising but an earlier bar had more volume.
	m.bars[r.legs[legKey(105, models.KindPut)]] = bars(
		models.Candle{Open: 10, Close: 10.1, Volume: 500},
		models.Candle{Open: 10.1, Close: 10.4, Volume: 400},
	)

	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		strike float64
		kind   models.OptionKind
		want   models.ConfirmTag
	}{
		{110, models.KindCall, models.Confirmed},
		{110, models.KindPut, models.Confirmed},
		{105, models.KindCall, models.NotConfirmed},
		{105, models.KindPut, models.NotConfirmed},
		// No bars at all for 120 legs.
		{120, models.KindCall, models.NotConfirmed},
	}
	for _, tt := range tests {
		if got := bundle.ConfirmationFor(tt.strike, tt.kind); got != tt.want {
			t.Errorf("confirmation %v %s = %v, want %v", tt.strike, tt.kind, got, tt.want)
		}
	}
}

func TestEvaluatePutOIDelta(t *testing.T) {
	m, r := chainFixture()

	// Baseline window is {100, 105}. Live OI 4000+3000, baseline for
	// 100PE only: the 105PE leg subtracts 0 instead of failing.
	ts100 := r.legs[legKey(100, models.KindPut)]
	ts105 := r.legs[legKey(105, models.KindPut)]
	m.quotes[ts100] = &models.Quote{Symbol: ts100, LastPrice: 10, OpenPrice: 10, OpenInterest: 4000}
	m.quotes[ts105] = &models.Quote{Symbol: ts105, LastPrice: 10, OpenPrice: 10, OpenInterest: 3000}

	agg := newTestAggregator(m, r, fakeBaseline{ts100: 2500})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.DeltaOIPut != 4500 {
		t.Errorf("DeltaOIPut = %v, want 4500", bundle.DeltaOIPut)
	}
}

func TestEvaluateEmptyBaseline(t *testing.T) {
	m, r := chainFixture()

	ts100 := r.legs[legKey(100, models.KindPut)]
	ts105 := r.legs[legKey(105, models.KindPut)]
	m.quotes[ts100] = &models.Quote{Symbol: ts100, LastPrice: 10, OpenPrice: 10, OpenInterest: 4000}
	m.quotes[ts105] = &models.Quote{Symbol: ts105, LastPrice: 10, OpenPrice: 10, OpenInterest: 3000}

	// No baseline entry for either leg: the subtracted term is 0, the
	// computation still completes.
	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.DeltaOIPut != 7000 {
		t.Errorf("DeltaOIPut = %v, want 7000", bundle.DeltaOIPut)
	}
}

func TestEvaluateSkewFromATMLegs(t *testing.T) {
	m, r := chainFixture()
	ev := eventAt()

	// Price both ATM legs from known vols, then expect the aggregator
	// to recover the spread.
	expiryClose := time.Date(2025, 1, 30, 15, 30, 0, 0, utils.IndiaLocation)
	years := expiryClose.Sub(ev.At).Hours() / (24 * 365)

	cePrice := pricing.BSPrice(110, 110, years, 0.07, 0, 0.25, pricing.SignCall)
	pePrice := pricing.BSPrice(110, 110, years, 0.07, 0, 0.20, pricing.SignPut)

	tsCE := r.legs[legKey(110, models.KindCall)]
	tsPE := r.legs[legKey(110, models.KindPut)]
	m.quotes[tsCE] = &models.Quote{Symbol: tsCE, LastPrice: cePrice, OpenPrice: cePrice}
	m.quotes[tsPE] = &models.Quote{Symbol: tsPE, LastPrice: pePrice, OpenPrice: pePrice}

	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 100 * (0.25 - 0.20) = 5 volatility points, within solver and
	// rounding tolerance.
	if bundle.Skew < 4.8 || bundle.Skew > 5.2 {
		t.Errorf("Skew = %v, want about 5.0", bundle.Skew)
	}
	if bundle.SkewJump != 0 {
		t.Errorf("first observation SkewJump = %v, want 0", bundle.SkewJump)
	}
	if bundle.IVDeltaCE != 0 || bundle.IVFlag != "" {
		t.Errorf("without an open IV reference IVDeltaCE = %v, IVFlag = %q, want 0 and empty", bundle.IVDeltaCE, bundle.IVFlag)
	}
}

// atmFixture prices the ATM legs from known vols on top of the chain
// fixture.
func atmFixture(ev models.AlertEvent, ceVol, peVol float64) (*fakeMarket, *fakeResolver) {
	m, r := chainFixture()
	expiry := time.Date(2025, 1, 30, 0, 0, 0, 0, utils.IndiaLocation)
	years := pricing.ExpiryYears(ev.At, expiry)

	cePrice := pricing.BSPrice(110, 110, years, 0.07, 0, ceVol, pricing.SignCall)
	pePrice := pricing.BSPrice(110, 110, years, 0.07, 0, peVol, pricing.SignPut)

	tsCE := r.legs[legKey(110, models.KindCall)]
	tsPE := r.legs[legKey(110, models.KindPut)]
	m.quotes[tsCE] = &models.Quote{Symbol: tsCE, LastPrice: cePrice, OpenPrice: cePrice}
	m.quotes[tsPE] = &models.Quote{Symbol: tsPE, LastPrice: pePrice, OpenPrice: pePrice}
	return m, r
}

func TestEvaluateIVDeltaAgainstOpenReference(t *testing.T) {
	ev := eventAt()
	m, r := atmFixture(ev, 0.25, 0.20)

	// ATM CE vol went from 0.20 at open to 0.25 now: +5 points, past
	// the default pump threshold. The PE side eased 4 points.
	b := openIVBaseline{iv: models.OpenIV{CE: 0.20, PE: 0.24}}
	agg := newTestAggregator(m, r, b)

	bundle, _, err := agg.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.IVDeltaCE < 4.8 || bundle.IVDeltaCE > 5.2 {
		t.Errorf("IVDeltaCE = %v, want about 5.0", bundle.IVDeltaCE)
	}
	if bundle.IVDeltaPE < -4.2 || bundle.IVDeltaPE > -3.8 {
		t.Errorf("IVDeltaPE = %v, want about -4.0", bundle.IVDeltaPE)
	}
	if bundle.IVFlag != models.IVFlagPump {
		t.Errorf("IVFlag = %q, want %q", bundle.IVFlag, models.IVFlagPump)
	}
}

func TestEvaluateIVCrush(t *testing.T) {
	ev := eventAt()
	m, r := atmFixture(ev, 0.25, 0.20)

	b := openIVBaseline{iv: models.OpenIV{CE: 0.30, PE: 0.20}}
	agg := newTestAggregator(m, r, b)

	bundle, _, err := agg.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.IVDeltaCE > -4.8 || bundle.IVDeltaCE < -5.2 {
		t.Errorf("IVDeltaCE = %v, want about -5.0", bundle.IVDeltaCE)
	}
	if bundle.IVFlag != models.IVFlagCrush {
		t.Errorf("IVFlag = %q, want %q", bundle.IVFlag, models.IVFlagCrush)
	}
}

func TestEvaluateIVDeltaBelowThresholdUnflagged(t *testing.T) {
	ev := eventAt()
	m, r := atmFixture(ev, 0.25, 0.20)

	b := openIVBaseline{iv: models.OpenIV{CE: 0.24, PE: 0.20}}
	agg := newTestAggregator(m, r, b)

	bundle, _, err := agg.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.IVFlag != "" {
		t.Errorf("IVFlag = %q, want empty for a 1-point drift", bundle.IVFlag)
	}
}

func TestEvaluateSkewMissingLeg(t *testing.T) {
	m, r := chainFixture()
	delete(r.legs, legKey(110, models.KindPut))

	agg := newTestAggregator(m, r, fakeBaseline{})
	bundle, _, err := agg.Evaluate(context.Background(), eventAt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Skew != 0.0 {
		t.Errorf("Skew with missing leg = %v, want explicit 0.0", bundle.Skew)
	}
}
