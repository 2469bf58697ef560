package signal

// Thresholds are the classifier tuning knobs. Loaded once at process
// start and shared read-only by every evaluation.
type Thresholds struct {
	// CEBig is the call premium move treated as a big move.
	CEBig float64 `mapstructure:"ce_big"`
	// PEFlat bounds |dPE| for the "puts stayed flat" condition.
	PEFlat float64 `mapstructure:"pe_flat"`
	// PEMult scales |dCE| into the opposing put move a genuine trend
	// should show.
	PEMult float64 `mapstructure:"pe_mult"`
	// OIRise is the put open-interest build-up that fires PUT_OI_RISE.
	OIRise int64 `mapstructure:"oi_rise"`
	// SkewSigma is the skew-jump z-score that, with a big call move,
	// fires IV_PUMP.
	SkewSigma float64 `mapstructure:"skew_sigma"`
	// CallVolReq is the minimum call volume ratio for participation.
	CallVolReq float64 `mapstructure:"call_vol_req"`
	// IVDJump is the ATM call IV change since session open, in vol
	// points, that labels the alert "IV Pump" (or "IV Crush" when the
	// move is that far down).
	IVDJump float64 `mapstructure:"ivd_jump"`
}

// DefaultThresholds returns the stock tuning used when config omits a
// value.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CEBig:      3.0,
		PEFlat:     1.0,
		PEMult:     0.5,
		OIRise:     1000,
		SkewSigma:  2.0,
		CallVolReq: 1.5,
		IVDJump:    3.0,
	}
}
