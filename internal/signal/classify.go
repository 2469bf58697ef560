package signal

import (
	"math"

	"igot-scanner/internal/models"
)

// sidewaysBand: below this absolute call move the event is noise,
// whatever the other signals say. The comparison is strict.
const sidewaysBand = 0.5

// Classify maps an aggregated signal bundle to the flag set and trend
// label. Pure function: identical input always yields an identical
// verdict, and it cannot fail on a well-formed bundle.
func Classify(b *models.SignalBundle, th Thresholds) models.Verdict {
	var flags []models.Flag

	if b.SkewJump > th.SkewSigma && b.DeltaCE > th.CEBig && math.Abs(b.DeltaPE) < th.PEFlat {
		flags = append(flags, models.FlagIVPump)
	}
	if b.CallVolRatio < th.CallVolReq && b.DeltaCE > th.CEBig {
		flags = append(flags, models.FlagLowVol)
	}
	if b.DeltaOIPut > th.OIRise {
		flags = append(flags, models.FlagPutOIRise)
	}

	return models.Verdict{Flags: flags, Trend: trendFor(b, th, len(flags) > 0)}
}

func trendFor(b *models.SignalBundle, th Thresholds, flagged bool) models.Trend {
	absCE := math.Abs(b.DeltaCE)
	if absCE < sidewaysBand {
		return models.TrendSideways
	}

	if b.DeltaCE > 0 {
		good := b.DeltaPE <= -th.PEMult*absCE &&
			b.DeltaOIPut <= 0 &&
			b.CallVolRatio >= th.CallVolReq
		switch {
		case good && !flagged:
			return models.TrendConfirmedUp
		case flagged:
			return models.TrendFakeUp
		default:
			return models.TrendUnconfirmed
		}
	}

	good := b.DeltaPE >= th.PEMult*absCE &&
		b.DeltaOIPut >= 0 &&
		b.CallVolRatio >= th.CallVolReq
	switch {
	case good && !flagged:
		return models.TrendConfirmedDown
	case flagged:
		return models.TrendFakeDown
	default:
		return models.TrendUnconfirmed
	}
}
