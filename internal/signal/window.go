// Package signal derives option-chain signals for one alert and
// classifies them into a verdict.
package signal

import (
	"math"
	"sort"

	"igot-scanner/internal/models"
)

// DefaultWindowRadius is the display-window half-width in strikes.
const DefaultWindowRadius = 2

// SelectWindow picks the at-the-money strike for a spot price and
// derives the display, delta and OI-baseline windows from it. strikes
// may arrive unsorted or with duplicates; they are normalized first.
// An empty strike set yields an empty window, which callers must treat
// as "no option chain" and short-circuit.
func SelectWindow(spot float64, strikes []float64, radius int) models.StrikeWindow {
	if len(strikes) == 0 {
		return models.StrikeWindow{}
	}
	if radius <= 0 {
		radius = DefaultWindowRadius
	}

	sorted := dedupeSorted(strikes)

	// Nearest strike wins; on an exact tie the smaller strike is first
	// in ascending order and keeps the slot.
	atmIdx := 0
	best := math.Abs(sorted[0] - spot)
	for i := 1; i < len(sorted); i++ {
		if d := math.Abs(sorted[i] - spot); d < best {
			best = d
			atmIdx = i
		}
	}

	return models.StrikeWindow{
		ATM:           sorted[atmIdx],
		Display:       sliceAround(sorted, atmIdx, radius),
		Delta:         sliceAround(sorted, atmIdx, 1),
		BaselineBelow: strikesBelow(sorted, atmIdx, 2),
	}
}

// sliceAround returns the strikes within radius positions of idx,
// clamped to the available range, ascending.
func sliceAround(sorted []float64, idx, radius int) []float64 {
	lo := idx - radius
	if lo < 0 {
		lo = 0
	}
	hi := idx + radius + 1
	if hi > len(sorted) {
		hi = len(sorted)
	}
	out := make([]float64, hi-lo)
	copy(out, sorted[lo:hi])
	return out
}

// strikesBelow returns up to n strikes strictly below the ATM index,
// ascending.
func strikesBelow(sorted []float64, idx, n int) []float64 {
	lo := idx - n
	if lo < 0 {
		lo = 0
	}
	out := make([]float64, idx-lo)
	copy(out, sorted[lo:idx])
	return out
}

func dedupeSorted(strikes []float64) []float64 {
	sorted := make([]float64, len(strikes))
	copy(sorted, strikes)
	sort.Float64s(sorted)

	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
