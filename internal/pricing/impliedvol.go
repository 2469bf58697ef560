package pricing

import "math"

// Bisection bracket and stopping rules for implied volatility recovery.
// The iteration cap and tolerance are fixed for reproducibility; do not
// tune them without re-validating the numeric test vectors.
const (
	ivLow      = 1e-6
	ivHigh     = 5.0
	ivIters    = 100
	ivPriceTol = 1e-4
)

// ImpliedVol recovers the volatility that reproduces an observed option
// price, by bisection over [1e-6, 5.0]. The search assumes price is
// monotonically increasing in volatility; for extreme short-dated or
// deep in/out-of-the-money inputs this is a known approximation
// boundary. Non-convergence is silent: after 100 iterations the final
// midpoint is returned as the best available estimate.
func ImpliedVol(price, s, k, t, r, q float64, sign int) float64 {
	lo, hi := ivLow, ivHigh
	mid := 0.5 * (lo + hi)

	for i := 0; i < ivIters; i++ {
		mid = 0.5 * (lo + hi)
		est := BSPrice(s, k, t, r, q, mid, sign)

		if math.Abs(est-price) < ivPriceTol {
			return mid
		}
		if est > price {
			hi = mid
		} else {
			lo = mid
		}
	}

	return mid
}
