package strategy

import (
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

var allRegimes = []types.RegimeType{
	types.RegimeTrendingBullish,
	types.RegimeTrendingBearish,
	types.RegimeRangeBound,
	types.RegimeBreakout,
	types.RegimeBreakdown,
	types.RegimeConsolidation,
	types.RegimeHighVolatility,
	types.RegimeLowVolatility,
	types.RegimeGammaSqueeze,
	types.RegimeMeanReversion,
}

// DefaultTemplates returns the ten built-in strategy templates.
func DefaultTemplates() []types.StrategyTemplate {
	return []types.StrategyTemplate{
		{
			ID:   "gamma-scalp-1",
			Type: types.StrategyGammaScalp,
			Name: "Gamma Scalp",
			ValidRegimes: []types.RegimeType{
				types.RegimeGammaSqueeze, types.RegimeRangeBound,
				types.RegimeConsolidation, types.RegimeMeanReversion,
			},
			ActivationThreshold: 0.6,
			Parameters: map[string]float64{
				"stopLoss":         0.005,
				"targetProfit":     0.01,
				"minConcentration": 0.4,
				"proximityPct":     0.01,
			},
			ExpectedWinRate: 0.55,
			RiskReward:      2.0,
			Timeframe:       "1m",
		},
		{
			ID:   "momentum-follow-1",
			Type: types.StrategyMomentumFollow,
			Name: "Momentum Follow",
			ValidRegimes: []types.RegimeType{
				types.RegimeTrendingBullish, types.RegimeTrendingBearish,
				types.RegimeBreakout, types.RegimeBreakdown,
			},
			ActivationThreshold: 0.6,
			Parameters: map[string]float64{
				"trailingStop":     0.01,
				"targetMultiple":   3.0,
				"minMomentum":      0.01,
				"minTrendStrength": 0.5,
			},
			ExpectedWinRate: 0.45,
			RiskReward:      3.0,
			Timeframe:       "5m",
		},
		{
			ID:   "mean-reversion-1",
			Type: types.StrategyMeanReversion,
			Name: "Mean Reversion",
			ValidRegimes: []types.RegimeType{
				types.RegimeMeanReversion, types.RegimeRangeBound,
				types.RegimeHighVolatility,
			},
			ActivationThreshold: 0.6,
			Parameters: map[string]float64{
				"stopLoss":         0.01,
				"targetProfit":     0.015,
				"stopLossMultiple": 1.5,
			},
			ExpectedWinRate: 0.6,
			RiskReward:      1.5,
			Timeframe:       "15m",
		},
		{
			ID:   "vol-expansion-1",
			Type: types.StrategyVolExpansion,
			Name: "Volatility Expansion",
			ValidRegimes: []types.RegimeType{
				types.RegimeBreakout, types.RegimeBreakdown,
				types.RegimeHighVolatility, types.RegimeGammaSqueeze,
			},
			ActivationThreshold: 0.65,
			Parameters: map[string]float64{
				"stopLoss":     0.015,
				"targetProfit": 0.03,
			},
			ExpectedWinRate: 0.4,
			RiskReward:      3.0,
			Timeframe:       "15m",
		},
		{
			ID:   "vol-contraction-1",
			Type: types.StrategyVolContraction,
			Name: "Volatility Contraction",
			ValidRegimes: []types.RegimeType{
				types.RegimeLowVolatility, types.RegimeConsolidation,
				types.RegimeRangeBound,
			},
			ActivationThreshold: 0.6,
			Parameters: map[string]float64{
				"stopLoss":     0.005,
				"targetProfit": 0.008,
				"maxIV":        20,
			},
			ExpectedWinRate: 0.6,
			RiskReward:      1.5,
			Timeframe:       "1h",
		},
		{
			ID:   "liquidity-hunt-1",
			Type: types.StrategyLiquidityHunt,
			Name: "Liquidity Hunt",
			ValidRegimes: []types.RegimeType{
				types.RegimeRangeBound, types.RegimeConsolidation,
				types.RegimeMeanReversion,
			},
			ActivationThreshold: 0.65,
			Parameters: map[string]float64{
				"stopLoss":      0.008,
				"targetProfit":  0.012,
				"minPocketSize": 500,
				"proximityPct":  0.005,
			},
			ExpectedWinRate: 0.55,
			RiskReward:      1.5,
			Timeframe:       "5m",
		},
		{
			ID:   "flow-alignment-1",
			Type: types.StrategyFlowAlignment,
			Name: "Flow Alignment",
			ValidRegimes: []types.RegimeType{
				types.RegimeTrendingBullish, types.RegimeTrendingBearish,
				types.RegimeGammaSqueeze, types.RegimeBreakout,
				types.RegimeBreakdown,
			},
			ActivationThreshold: 0.6,
			Parameters: map[string]float64{
				"stopLoss":           0.01,
				"targetProfit":       0.02,
				"minHedgingPressure": 1000,
				"gammaThreshold":     500000,
			},
			ExpectedWinRate: 0.5,
			RiskReward:      2.0,
			Timeframe:       "5m",
		},
		{
			ID:   "structural-break-1",
			Type: types.StrategyStructuralBreak,
			Name: "Structural Break",
			ValidRegimes: []types.RegimeType{
				types.RegimeBreakout, types.RegimeBreakdown,
				types.RegimeHighVolatility,
			},
			ActivationThreshold: 0.7,
			Parameters: map[string]float64{
				"stopLoss":         0.02,
				"targetProfit":     0.04,
				"minTrendStrength": 0.6,
			},
			ExpectedWinRate: 0.35,
			RiskReward:      4.0,
			Timeframe:       "1h",
		},
		{
			ID:                  "pattern-recognition-1",
			Type:                types.StrategyPatternRecog,
			Name:                "Pattern Recognition",
			ValidRegimes:        allRegimes,
			ActivationThreshold: 0.7,
			Parameters: map[string]float64{
				"stopLoss":     0.01,
				"targetProfit": 0.02,
			},
			ExpectedWinRate: 0.5,
			RiskReward:      2.0,
			Timeframe:       "15m",
		},
		{
			ID:                  "fractal-resonance-1",
			Type:                types.StrategyFractalResonance,
			Name:                "Fractal Resonance",
			ValidRegimes:        allRegimes,
			ActivationThreshold: 0.65,
			Parameters: map[string]float64{
				"stopLoss":           0.01,
				"targetProfit":       0.02,
				"resonanceThreshold": 0.7,
			},
			ExpectedWinRate: 0.5,
			RiskReward:      2.0,
			Timeframe:       "15m",
		},
	}
}

// volMultiplier scales protective parameters by the volatility regime.
func volMultiplier(v types.VolRegime) float64 {
	switch v {
	case types.VolRegimeLow:
		return 1.2
	case types.VolRegimeNormal:
		return 1.0
	case types.VolRegimeElevated:
		return 0.8
	case types.VolRegimeHigh:
		return 0.5
	case types.VolRegimeExtreme:
		return 0.25
	default:
		return 1.0
	}
}
