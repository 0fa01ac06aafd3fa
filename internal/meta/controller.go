// Package meta classifies the market regime and composes the coherence
// score from structural features and strategy state.
package meta

import (
	"math"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/ringbuf"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

const (
	historyCapacity = 100
	fractalLookback = 50
	temporalWindow  = 20
)

// regimeFeatures are the eleven extracted inputs of the classification cascade.
// Ratios (iv, volSpread, skew) are fractions here, not percent.
type regimeFeatures struct {
	momentum  float64
	trendStr  float64
	iv        float64
	volOfVol  float64
	volSpread float64
	skew      float64
	gammaDir  float64
	gammaMag  float64
	netGamma  float64
	imbalance float64
	absorb    float64
}

// Controller owns the regime and coherence history buffers.
type Controller struct {
	logger *zap.Logger

	regimes    *ringbuf.Ring[types.RegimeType]
	coherences *ringbuf.Ring[float64]

	// Per-feature history, appended once per classification.
	momentumHist *ringbuf.Ring[float64]
	volHist      *ringbuf.Ring[float64]
	gammaHist    *ringbuf.Ring[float64]
	liqHist      *ringbuf.Ring[float64]
	trendHist    *ringbuf.Ring[float64]
}

// NewController creates a meta-controller.
func NewController(logger *zap.Logger) *Controller {
	return &Controller{
		logger:       logger.Named("meta"),
		regimes:      ringbuf.New[types.RegimeType](historyCapacity),
		coherences:   ringbuf.New[float64](historyCapacity),
		momentumHist: ringbuf.New[float64](historyCapacity),
		volHist:      ringbuf.New[float64](historyCapacity),
		gammaHist:    ringbuf.New[float64](historyCapacity),
		liqHist:      ringbuf.New[float64](historyCapacity),
		trendHist:    ringbuf.New[float64](historyCapacity),
	}
}

func extractFeatures(f *types.StructuralFeatures) regimeFeatures {
	return regimeFeatures{
		momentum:  f.Prices.Momentum,
		trendStr:  f.Prices.TrendStrength,
		iv:        f.Volatility.Implied / 100,
		volOfVol:  f.Volatility.VolOfVol,
		volSpread: f.Volatility.Spread / 100,
		skew:      f.Volatility.Skew / 100,
		gammaDir:  f.Pull.Direction,
		gammaMag:  f.Pull.Magnitude,
		netGamma:  f.Dealer.NetGammaExposure,
		imbalance: f.Liquidity.Imbalance,
		absorb:    f.Liquidity.AbsorptionRate,
	}
}

// Classify runs the rule-ordered cascade and records the result in history.
func (c *Controller) Classify(f *types.StructuralFeatures) types.Regime {
	rf := extractFeatures(f)
	rt := classifyCascade(rf)

	regime := types.Regime{
		Type:           rt,
		Confidence:     regimeConfidence(rt, rf),
		Duration:       c.duration(rt) + 1,
		TransitionProb: c.transitionProbability(rt, rf),
		Characteristics: types.RegimeCharacteristics{
			Volatility: f.Volatility.Regime,
			Trend:      f.Prices.Trend,
			Momentum:   rf.momentum,
			Phase:      marketPhase(rf),
		},
	}

	c.regimes.Append(rt)
	c.momentumHist.Append(rf.momentum)
	c.volHist.Append(rf.iv)
	c.gammaHist.Append(rf.gammaDir * rf.gammaMag)
	c.liqHist.Append(rf.imbalance)
	c.trendHist.Append(rf.trendStr)

	c.logger.Debug("regime classified",
		zap.String("regime", string(rt)),
		zap.Float64("confidence", regime.Confidence),
		zap.Int("duration", regime.Duration),
	)
	return regime
}

// classifyCascade applies the ordered rules; the first match wins.
func classifyCascade(rf regimeFeatures) types.RegimeType {
	absMom := math.Abs(rf.momentum)
	switch {
	case rf.iv > 0.40:
		return types.RegimeHighVolatility
	// Sub-5% implied vol means the chain was empty and the historical
	// fallback is degenerate; the volatility rules need real options data.
	case rf.iv > 0.05 && rf.iv < 0.15:
		return types.RegimeLowVolatility
	case rf.gammaMag > 0.7 && math.Abs(rf.netGamma) > 1e6:
		return types.RegimeGammaSqueeze
	case rf.momentum > 0.02 && rf.trendStr > 0.6:
		return types.RegimeTrendingBullish
	case rf.momentum < -0.02 && rf.trendStr > 0.6:
		return types.RegimeTrendingBearish
	case rf.volOfVol > 0.3 && rf.momentum > 0.01:
		return types.RegimeBreakout
	case rf.volOfVol > 0.3 && rf.momentum < -0.01:
		return types.RegimeBreakdown
	case absMom < 0.005 && rf.iv > 0.2:
		return types.RegimeMeanReversion
	case rf.trendStr < 0.3 && absMom < 0.01:
		return types.RegimeRangeBound
	case rf.iv < 0.2 && rf.trendStr < 0.4:
		return types.RegimeConsolidation
	default:
		return types.RegimeRangeBound
	}
}

// regimeConfidence is regime-specific and bounded to [0,1].
func regimeConfidence(rt types.RegimeType, rf regimeFeatures) float64 {
	absMom := math.Abs(rf.momentum)
	var conf float64
	switch rt {
	case types.RegimeTrendingBullish, types.RegimeTrendingBearish:
		conf = 0.5 + 0.3*formulas.Clamp(10*absMom, 0, 1) + 0.2*rf.trendStr
	case types.RegimeHighVolatility:
		conf = 0.5 + 0.5*formulas.Clamp(rf.iv-0.3, 0, 1)
	case types.RegimeLowVolatility:
		conf = 0.5 + 0.5*formulas.Clamp((0.15-rf.iv)/0.15, 0, 1)
	case types.RegimeGammaSqueeze:
		conf = 0.5 + 0.3*formulas.Clamp(rf.gammaMag, 0, 1) +
			0.2*formulas.Clamp(math.Abs(rf.netGamma)/1e7, 0, 1)
	case types.RegimeBreakout, types.RegimeBreakdown:
		conf = 0.5 + 0.3*formulas.Clamp(rf.volOfVol, 0, 1) + 0.2*formulas.Clamp(20*absMom, 0, 1)
	case types.RegimeMeanReversion:
		conf = 0.5 + 0.3*formulas.Clamp(rf.iv-0.2, 0, 1) + 0.2*formulas.Clamp(1-100*absMom, 0, 1)
	case types.RegimeConsolidation:
		conf = 0.5 + 0.3*(1-rf.trendStr) + 0.2*formulas.Clamp((0.2-rf.iv)/0.2, 0, 1)
	default: // range_bound
		conf = 0.5 + 0.25*(1-formulas.Clamp(rf.trendStr, 0, 1)) + 0.15*formulas.Clamp(1-50*absMom, 0, 1)
	}
	return formulas.Clamp(conf, 0, 1)
}

// duration is the trailing run-length of rt in history.
func (c *Controller) duration(rt types.RegimeType) int {
	n := 0
	for i := c.regimes.Len() - 1; i >= 0; i-- {
		if c.regimes.At(i) != rt {
			break
		}
		n++
	}
	return n
}

// transitionProbability estimates how likely the regime is to flip, from
// the observed frequency of entries into rt, boosted by vol-of-vol.
func (c *Controller) transitionProbability(rt types.RegimeType, rf regimeFeatures) float64 {
	if c.regimes.Len() < 10 {
		return 0.1
	}
	changesInto, occurrences := 0, 0
	for i := 0; i < c.regimes.Len(); i++ {
		if c.regimes.At(i) == rt {
			occurrences++
			if i > 0 && c.regimes.At(i-1) != rt {
				changesInto++
			}
		}
	}
	p := 0.0
	if occurrences > 0 {
		p = float64(changesInto) / float64(occurrences)
	}
	p += 0.5 * rf.volOfVol
	return formulas.Clamp(p, 0, 0.9)
}

// marketPhase infers the Wyckoff phase.
func marketPhase(rf regimeFeatures) types.WyckoffPhase {
	absMom := math.Abs(rf.momentum)
	switch {
	case rf.momentum > 0.01 && rf.trendStr > 0.5:
		return types.PhaseMarkup
	case rf.momentum < -0.01 && rf.trendStr > 0.5:
		return types.PhaseMarkdown
	case rf.imbalance > 0.2 && absMom < 0.01:
		return types.PhaseAccumulation
	case rf.imbalance < -0.2 && absMom < 0.01:
		return types.PhaseDistribution
	case rf.momentum >= 0:
		return types.PhaseMarkup
	default:
		return types.PhaseMarkdown
	}
}
