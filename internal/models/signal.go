package models

import "sort"

// StrikeWindow holds the strike ranges derived from the at-the-money
// strike for one evaluation. Recomputed per evaluation, never shared
// across symbols.
type StrikeWindow struct {
	ATM float64
	// Display is the full window shown to consumers, ATM plus/minus the
	// configured radius, ascending.
	Display []float64
	// Delta is the narrow window (ATM plus/minus one strike) used for
	// premium-move aggregation, ascending.
	Delta []float64
	// BaselineBelow holds the two strikes strictly below ATM, used for
	// put open-interest comparison, ascending.
	BaselineBelow []float64
}

// Empty reports whether the window holds no strikes at all, i.e. the
// underlying had no option chain for the resolved expiry.
func (w StrikeWindow) Empty() bool {
	return len(w.Display) == 0
}

// OpenIV is the ATM implied volatility pair captured at session open,
// stored as raw volatility fractions. The 09:15 reference every
// intraday IV delta is measured against.
type OpenIV struct {
	CE float64
	PE float64
}

// IV flag labels, matching what the dashboard historically displayed.
const (
	IVFlagPump  = "IV Pump"
	IVFlagCrush = "IV Crush"
)

// ConfirmTag marks whether the latest volume bar confirmed a leg's move.
type ConfirmTag string

const (
	Confirmed    ConfirmTag = "confirmed"
	NotConfirmed ConfirmTag = "not confirmed"
)

// LegConfirmation identifies one option leg's confirmation state inside
// the display window.
type LegConfirmation struct {
	Strike float64
	Kind   OptionKind
	Tag    ConfirmTag
}

// SignalBundle holds the aggregated scalars for one evaluation. Fields
// default to explicit neutral values when a leg or series is
// unavailable, so the classifier never sees missing input.
type SignalBundle struct {
	Symbol        string
	Spot          float64
	Window        StrikeWindow
	DeltaCE       float64 // summed call premium move over the delta window, 2dp
	DeltaPE       float64 // summed put premium move over the delta window, 2dp
	DeltaOIPut    int64   // live put OI minus session-open baseline, baseline window
	CallVolRatio  float64 // max latest-bar/prior-3-mean volume ratio over call legs
	Skew          float64 // 100 * (IV_CE - IV_PE) at ATM, 2dp
	SkewJump      float64 // z-score of Skew against the rolling history
	IVDeltaCE     float64 // ATM call IV change since session open, vol points, 2dp
	IVDeltaPE     float64 // ATM put IV change since session open, vol points, 2dp
	IVFlag        string  // "IV Pump", "IV Crush" or empty
	Confirmations []LegConfirmation
	// Degenerate marks an evaluation short-circuited because no option
	// chain existed for the resolved expiry.
	Degenerate bool
}

// ConfirmationFor returns the tag recorded for a strike and kind, or
// NotConfirmed when the leg was never resolved.
func (b *SignalBundle) ConfirmationFor(strike float64, kind OptionKind) ConfirmTag {
	for _, c := range b.Confirmations {
		if c.Strike == strike && c.Kind == kind {
			return c.Tag
		}
	}
	return NotConfirmed
}

// Flag is a named trigger raised by the classifier.
type Flag string

const (
	FlagIVPump    Flag = "IV_PUMP"
	FlagLowVol    Flag = "LOW_VOL"
	FlagPutOIRise Flag = "PUT_OI_RISE"
)

// Trend is the single directional label produced per evaluation.
type Trend string

const (
	TrendSideways      Trend = "SIDEWAYS"
	TrendConfirmedUp   Trend = "CONFIRMED_UP"
	TrendFakeUp        Trend = "FAKE_UP"
	TrendConfirmedDown Trend = "CONFIRMED_DOWN"
	TrendFakeDown      Trend = "FAKE_DOWN"
	TrendUnconfirmed   Trend = "UNCONFIRMED"
)

// Verdict is the classifier output: the set of fired flags and one
// trend label. Immutable once produced.
type Verdict struct {
	Flags []Flag
	Trend Trend
}

// HasFlag reports whether a specific flag fired.
func (v Verdict) HasFlag(f Flag) bool {
	for _, fl := range v.Flags {
		if fl == f {
			return true
		}
	}
	return false
}

// FlagString renders the flag set for display, with the "OK" sentinel
// when nothing fired.
func (v Verdict) FlagString() string {
	if len(v.Flags) == 0 {
		return "OK"
	}
	out := ""
	names := make([]string, 0, len(v.Flags))
	for _, f := range v.Flags {
		names = append(names, string(f))
	}
	sort.Strings(names)
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}
