package strategy

import (
	"math"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
	"github.com/resonance-desktop/fractal-backend/pkg/utils"
)

const minSignalStrength = 0.3

// signalTable is the per-type signal-generation dispatch table. Every entry
// returns nil when the direction is neutral or the strength is below the
// floor.
func signalTable() map[types.StrategyType]signalFunc {
	return map[types.StrategyType]signalFunc{
		types.StrategyGammaScalp:       gammaScalpSignal,
		types.StrategyMomentumFollow:   momentumSignal,
		types.StrategyMeanReversion:    meanReversionSignal,
		types.StrategyFlowAlignment:    flowAlignmentSignal,
		types.StrategyVolExpansion:     regimeSignal,
		types.StrategyVolContraction:   regimeSignal,
		types.StrategyLiquidityHunt:    regimeSignal,
		types.StrategyStructuralBreak:  regimeSignal,
		types.StrategyPatternRecog:     regimeSignal,
		types.StrategyFractalResonance: regimeSignal,
	}
}

func newSignal(tmpl types.StrategyTemplate, f *types.StructuralFeatures, dir types.Direction, strength, entry, stop float64, targets []float64, rationale string) *types.Signal {
	if dir == types.DirectionNeutral || strength < minSignalStrength || entry <= 0 {
		return nil
	}
	return &types.Signal{
		ID:         utils.GenerateSignalID(),
		StrategyID: tmpl.ID,
		Direction:  dir,
		Strength:   formulas.Clamp(strength, 0, 1),
		Confidence: formulas.Clamp(0.5*strength+0.5*tmpl.ExpectedWinRate, 0, 1),
		Entry:      entry,
		Stop:       stop,
		Targets:    targets,
		Timeframe:  tmpl.Timeframe,
		Rationale:  rationale,
		Context: types.SignalContext{
			GammaLevel:       f.Dealer.NetGammaExposure,
			LiquiditySupport: f.Liquidity.Depth,
			Volatility:       f.Volatility.Regime,
			DealerFlow:       f.Dealer.Flow,
		},
		Timestamp: f.Timestamp,
	}
}

// gammaScalpSignal trades toward the gravitational pull.
func gammaScalpSignal(_ *Pool, tmpl types.StrategyTemplate, params map[string]float64, f *types.StructuralFeatures, _ types.Regime) *types.Signal {
	dir := types.DirectionNeutral
	switch {
	case f.Pull.Direction > 0:
		dir = types.DirectionLong
	case f.Pull.Direction < 0:
		dir = types.DirectionShort
	}

	entry := f.Spot
	stop, target := protectiveLevels(entry, dir, params["stopLoss"], params["targetProfit"])
	return newSignal(tmpl, f, dir, f.Pull.Magnitude, entry, stop, []float64{target},
		"price pulled toward dominant gamma concentration")
}

// momentumSignal follows price momentum with a trailing stop.
func momentumSignal(_ *Pool, tmpl types.StrategyTemplate, params map[string]float64, f *types.StructuralFeatures, _ types.Regime) *types.Signal {
	dir := types.DirectionNeutral
	switch {
	case f.Prices.Momentum > 0:
		dir = types.DirectionLong
	case f.Prices.Momentum < 0:
		dir = types.DirectionShort
	}

	strength := formulas.Clamp(20*math.Abs(f.Prices.Momentum), 0, 1)
	entry := f.Spot
	trail := params["trailingStop"]
	stop, _ := protectiveLevels(entry, dir, trail, 0)
	targetDist := trail * params["targetMultiple"]
	_, target := protectiveLevels(entry, dir, 0, targetDist)
	return newSignal(tmpl, f, dir, strength, entry, stop, []float64{target},
		"momentum continuation with trailing protection")
}

// meanReversionSignal fades a strong trend with widened stops.
func meanReversionSignal(_ *Pool, tmpl types.StrategyTemplate, params map[string]float64, f *types.StructuralFeatures, _ types.Regime) *types.Signal {
	if f.Prices.TrendStrength < 0.6 {
		return nil
	}
	dir := types.DirectionNeutral
	switch f.Prices.Trend {
	case types.TrendUp:
		dir = types.DirectionShort
	case types.TrendDown:
		dir = types.DirectionLong
	}

	stopDist := params["stopLoss"] * params["stopLossMultiple"]
	stop, target := protectiveLevels(f.Spot, dir, stopDist, params["targetProfit"])
	return newSignal(tmpl, f, dir, f.Prices.TrendStrength, f.Spot, stop, []float64{target},
		"fading an extended trend back toward the mean")
}

// flowAlignmentSignal follows dealer hedging flow when it is confident.
func flowAlignmentSignal(_ *Pool, tmpl types.StrategyTemplate, params map[string]float64, f *types.StructuralFeatures, _ types.Regime) *types.Signal {
	if f.Dealer.Confidence <= 0.5 {
		return nil
	}
	dir := types.DirectionNeutral
	switch f.Dealer.Flow {
	case types.DealerFlowBuying:
		dir = types.DirectionLong
	case types.DealerFlowSelling:
		dir = types.DirectionShort
	}

	stop, target := protectiveLevels(f.Spot, dir, params["stopLoss"], params["targetProfit"])
	return newSignal(tmpl, f, dir, f.Dealer.Confidence, f.Spot, stop, []float64{target},
		"aligning with inferred dealer hedging flow")
}

// regimeSignal is the default generator: direction from the regime
// characteristics, strength from regime confidence.
func regimeSignal(_ *Pool, tmpl types.StrategyTemplate, params map[string]float64, f *types.StructuralFeatures, regime types.Regime) *types.Signal {
	dir := types.DirectionNeutral
	switch regime.Characteristics.Trend {
	case types.TrendUp:
		dir = types.DirectionLong
	case types.TrendDown:
		dir = types.DirectionShort
	}

	stop, target := protectiveLevels(f.Spot, dir, params["stopLoss"], params["targetProfit"])
	return newSignal(tmpl, f, dir, regime.Confidence, f.Spot, stop, []float64{target},
		"directional bias from current regime characteristics")
}

// protectiveLevels places the stop and target on the correct side of entry.
func protectiveLevels(entry float64, dir types.Direction, stopPct, targetPct float64) (stop, target float64) {
	switch dir {
	case types.DirectionLong:
		return entry * (1 - stopPct), entry * (1 + targetPct)
	case types.DirectionShort:
		return entry * (1 + stopPct), entry * (1 - targetPct)
	default:
		return entry, entry
	}
}
