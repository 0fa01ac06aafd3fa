package perception

import (
	"math"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

// volatilityState derives the volatility environment from buffered closes
// and the option chain. Historical, implied, spread, skew and term are all
// annualized percent; the regime label thresholds on implied percent.
func (e *Engine) volatilityState(chain []types.OptionQuote) types.VolatilityState {
	v := types.VolatilityState{Regime: types.VolRegimeLow}

	logRets := formulas.LogReturns(e.prices.Values())
	v.Historical = formulas.StdDev(logRets) * math.Sqrt(252) * 100

	ivSum, ivCount := 0.0, 0
	for _, q := range chain {
		if q.ImpliedVol > 0 {
			ivSum += q.ImpliedVol
			ivCount++
		}
	}
	if ivCount > 0 {
		v.Implied = ivSum / float64(ivCount) * 100
	} else {
		v.Implied = v.Historical
	}
	v.Spread = v.Implied - v.Historical

	v.Skew = volSkew(chain)
	v.Term = volTerm(chain)

	switch {
	case v.Implied < 15:
		v.Regime = types.VolRegimeLow
	case v.Implied < 25:
		v.Regime = types.VolRegimeNormal
	case v.Implied < 35:
		v.Regime = types.VolRegimeElevated
	case v.Implied < 50:
		v.Regime = types.VolRegimeHigh
	default:
		v.Regime = types.VolRegimeExtreme
	}
	return v
}

// volSkew is mean OTM-put IV (|delta| < 0.25) minus mean ATM IV
// (0.4 < |delta| < 0.6), scaled by 100.
func volSkew(chain []types.OptionQuote) float64 {
	var otmSum, atmSum float64
	var otmN, atmN int
	for _, q := range chain {
		if q.ImpliedVol <= 0 {
			continue
		}
		ad := math.Abs(q.Delta)
		if q.Right == types.RightPut && ad < 0.25 {
			otmSum += q.ImpliedVol
			otmN++
		}
		if ad > 0.4 && ad < 0.6 {
			atmSum += q.ImpliedVol
			atmN++
		}
	}
	if otmN == 0 || atmN == 0 {
		return 0
	}
	return (otmSum/float64(otmN) - atmSum/float64(atmN)) * 100
}

// volTerm is mean far-expiry IV minus mean nearest-expiry IV, scaled by 100.
func volTerm(chain []types.OptionQuote) float64 {
	var nearest, farthest int64
	for _, q := range chain {
		if q.ImpliedVol <= 0 {
			continue
		}
		if nearest == 0 || q.Expiry < nearest {
			nearest = q.Expiry
		}
		if q.Expiry > farthest {
			farthest = q.Expiry
		}
	}
	if nearest == 0 || nearest == farthest {
		return 0
	}

	var nearSum, farSum float64
	var nearN, farN int
	for _, q := range chain {
		if q.ImpliedVol <= 0 {
			continue
		}
		if q.Expiry == nearest {
			nearSum += q.ImpliedVol
			nearN++
		}
		if q.Expiry == farthest {
			farSum += q.ImpliedVol
			farN++
		}
	}
	if nearN == 0 || farN == 0 {
		return 0
	}
	return (farSum/float64(farN) - nearSum/float64(nearN)) * 100
}
