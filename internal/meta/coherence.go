package meta

import (
	"math"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

// Fixed coherence weights; they sum to 1.
const (
	weightStructural  = 0.30
	weightAlignment   = 0.25
	weightTemporal    = 0.20
	weightFractal     = 0.15
	weightConvergence = 0.10
)

// hedgingPressureScale separates meaningful dealer hedging pressure from
// noise when judging structural consistency.
const hedgingPressureScale = 1e3

// Neutral returns the mid coherence used for the preliminary activation
// pass, before the real score can be composed.
func Neutral() types.CoherenceScore {
	return types.CoherenceScore{
		Total:           0.5,
		Structural:      0.5,
		RegimeAlignment: 0.5,
		Temporal:        0.5,
		Fractal:         0.5,
		Convergence:     0.5,
		Confidence:      formulas.Sigmoid(0),
		Components: map[string]float64{
			"momentum": 0.5, "volatility": 0.5, "gamma": 0.5, "liquidity": 0.5,
		},
	}
}

// Compose builds the five sub-scores and the weighted total, recording the
// total in history.
func (c *Controller) Compose(f *types.StructuralFeatures, regime types.Regime, active []*types.ActiveStrategy) types.CoherenceScore {
	score := types.CoherenceScore{
		Structural:      c.structuralScore(f),
		RegimeAlignment: regimeAlignmentScore(regime.Type, active),
		Temporal:        c.temporalScore(),
		Fractal:         c.fractalScore(f),
		Convergence:     convergenceScore(active),
		Components:      c.componentProjections(),
	}
	score.Total = weightStructural*score.Structural +
		weightAlignment*score.RegimeAlignment +
		weightTemporal*score.Temporal +
		weightFractal*score.Fractal +
		weightConvergence*score.Convergence
	score.Confidence = formulas.Sigmoid(2*score.Total - 1)

	c.coherences.Append(score.Total)
	c.logger.Debug("coherence composed",
		zap.Float64("total", score.Total),
		zap.Float64("structural", score.Structural),
		zap.Float64("fractal", score.Fractal),
	)
	return score
}

// structuralScore averages four boolean alignments of the feature set.
func (c *Controller) structuralScore(f *types.StructuralFeatures) float64 {
	var sum float64

	// Gamma pull direction vs price trend; an absent pull against a flat
	// tape is only half-informative.
	switch {
	case f.Pull.Direction > 0 && f.Prices.Trend == types.TrendUp,
		f.Pull.Direction < 0 && f.Prices.Trend == types.TrendDown:
		sum += 1
	case f.Pull.Direction == 0 && f.Prices.Trend == types.TrendSideways:
		sum += 0.5
	}

	// Liquidity imbalance vs momentum sign, half credit when either is zero.
	switch {
	case f.Liquidity.Imbalance == 0 || f.Prices.Momentum == 0:
		sum += 0.5
	case formulas.Sign(f.Liquidity.Imbalance) == formulas.Sign(f.Prices.Momentum):
		sum += 1
	}

	// Dealer flow vs trend; neutral counts as aligned.
	switch {
	case f.Dealer.Flow == types.DealerFlowNeutral,
		f.Dealer.Flow == types.DealerFlowBuying && f.Prices.Trend == types.TrendUp,
		f.Dealer.Flow == types.DealerFlowSelling && f.Prices.Trend == types.TrendDown:
		sum += 1
	}

	// Hedging pressure magnitude consistent with non-low volatility;
	// anything else earns half credit.
	strongPressure := math.Abs(f.Dealer.HedgingPressure) > hedgingPressureScale
	if strongPressure && f.Volatility.Regime != types.VolRegimeLow {
		sum += 1
	} else {
		sum += 0.5
	}

	return sum / 4
}

// regimeAlignmentScore is the fraction of active strategies valid in the
// current regime, 0.5 when none are active.
func regimeAlignmentScore(rt types.RegimeType, active []*types.ActiveStrategy) float64 {
	if len(active) == 0 {
		return 0.5
	}
	aligned := 0
	for _, a := range active {
		if a.Template.HasRegime(rt) {
			aligned++
		}
	}
	return float64(aligned) / float64(len(active))
}

// temporalScore rewards stability of recent momentum and volatility.
func (c *Controller) temporalScore() float64 {
	mom := c.momentumHist.Last(temporalWindow)
	vol := c.volHist.Last(temporalWindow)
	a := 1 - formulas.Clamp(10*formulas.StdDev(mom), 0, 1)
	b := 1 - formulas.Clamp(5*formulas.StdDev(vol), 0, 1)
	return (a + b) / 2
}

// fractalScore is the best cosine similarity between the current feature
// vector and recent historical vectors.
func (c *Controller) fractalScore(f *types.StructuralFeatures) float64 {
	rf := extractFeatures(f)
	current := []float64{rf.momentum, rf.iv, rf.gammaDir * rf.gammaMag, rf.imbalance, rf.trendStr}

	// The newest history entry is this tick's own vector; compare against
	// the entries before it.
	end := c.momentumHist.Len() - 1
	if end <= 0 {
		return 0
	}
	start := end - fractalLookback
	if start < 0 {
		start = 0
	}
	best := 0.0
	for i := start; i < end; i++ {
		hist := []float64{
			c.momentumHist.At(i),
			c.volHist.At(i),
			c.gammaHist.At(i),
			c.liqHist.At(i),
			c.trendHist.At(i),
		}
		if sim := formulas.Cosine(current, hist); sim > best {
			best = sim
		}
	}
	return formulas.Clamp(best, 0, 1)
}

// convergenceScore is the largest fraction of signals agreeing on a
// direction, 0.5 with fewer than two signals.
func convergenceScore(active []*types.ActiveStrategy) float64 {
	counts := map[types.Direction]int{}
	total := 0
	for _, a := range active {
		if a.Signal == nil {
			continue
		}
		counts[a.Signal.Direction]++
		total++
	}
	if total < 2 {
		return 0.5
	}
	best := 0
	for _, n := range counts {
		if n > best {
			best = n
		}
	}
	return float64(best) / float64(total)
}

// componentProjections exposes four named views of recent feature history.
func (c *Controller) componentProjections() map[string]float64 {
	return map[string]float64{
		"momentum":   formulas.Clamp(0.5+10*formulas.Mean(c.momentumHist.Last(temporalWindow)), 0, 1),
		"volatility": formulas.Clamp(formulas.Mean(c.volHist.Last(temporalWindow)), 0, 1),
		"gamma":      formulas.Clamp(0.5+0.5*formulas.Mean(c.gammaHist.Last(temporalWindow)), 0, 1),
		"liquidity":  formulas.Clamp(0.5+0.5*formulas.Mean(c.liqHist.Last(temporalWindow)), 0, 1),
	}
}
