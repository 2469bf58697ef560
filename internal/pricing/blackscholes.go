// Package pricing provides European option pricing and implied
// volatility recovery for the skew signal.
package pricing

import "math"

// Option sign flags selecting the call or put closed form.
const (
	SignCall = +1
	SignPut  = -1
)

// BSPrice returns the Black-Scholes price of a European option.
// S is the spot, K the strike, T the time to expiry in years, r the
// risk-free rate, q the dividend yield and sigma the volatility.
// sign is SignCall or SignPut. Degenerate inputs (sigma <= 0 or T <= 0)
// price at 0; callers rely on that, it is not an error.
func BSPrice(s, k, t, r, q, sigma float64, sign int) float64 {
	if sigma <= 0 || t <= 0 {
		return 0
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r-q+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	w := float64(sign)
	return w * (s*math.Exp(-q*t)*normCDF(w*d1) - k*math.Exp(-r*t)*normCDF(w*d2))
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
