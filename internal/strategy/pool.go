// Package strategy provides the strategy pool: ten template behaviors
// expressed as data plus dispatch tables, activated against the current
// regime and coherence. Strategies are data, not a class hierarchy; adding
// one means registering a template, a bonus entry and a signal entry.
package strategy

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/ringbuf"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

const perfHistoryCapacity = 100

// bonusFunc scores the per-type activation bonus (ceiling ~0.5).
type bonusFunc func(tmpl types.StrategyTemplate, f *types.StructuralFeatures, coh types.CoherenceScore) float64

// signalFunc generates the per-type signal, or nil when the setup is absent.
type signalFunc func(p *Pool, tmpl types.StrategyTemplate, params map[string]float64, f *types.StructuralFeatures, regime types.Regime) *types.Signal

// Config configures the strategy pool.
type Config struct {
	MaxStrategies int // cap on the active set
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxStrategies: 10}
}

// Pool holds the template registry, the active set and per-template
// performance history.
type Pool struct {
	logger *zap.Logger
	cfg    Config

	templates map[string]types.StrategyTemplate
	active    map[string]*types.ActiveStrategy
	perf      map[string]*ringbuf.Ring[float64] // recent pnl% per template

	bonuses map[types.StrategyType]bonusFunc
	signals map[types.StrategyType]signalFunc
}

// NewPool creates a strategy pool seeded with the default templates.
func NewPool(logger *zap.Logger, cfg Config) *Pool {
	if cfg.MaxStrategies <= 0 {
		cfg.MaxStrategies = DefaultConfig().MaxStrategies
	}
	p := &Pool{
		logger:    logger.Named("strategy-pool"),
		cfg:       cfg,
		templates: make(map[string]types.StrategyTemplate),
		active:    make(map[string]*types.ActiveStrategy),
		perf:      make(map[string]*ringbuf.Ring[float64]),
		bonuses:   bonusTable(),
		signals:   signalTable(),
	}
	for _, t := range DefaultTemplates() {
		p.AddTemplate(t)
	}
	return p
}

// AddTemplate registers a template. Intended for use before the first tick.
func (p *Pool) AddTemplate(t types.StrategyTemplate) {
	p.templates[t.ID] = t
	if _, ok := p.perf[t.ID]; !ok {
		p.perf[t.ID] = ringbuf.New[float64](perfHistoryCapacity)
	}
}

// RemoveTemplate unregisters a template by id.
func (p *Pool) RemoveTemplate(id string) {
	delete(p.templates, id)
	delete(p.perf, id)
}

// Templates returns the registered template ids.
func (p *Pool) Templates() []string {
	ids := make([]string, 0, len(p.templates))
	for id := range p.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Activate scores every regime-valid template and returns the activated
// strategies, capped by coherence confidence. The same call serves both the
// preliminary pass (neutral coherence) and the final pass.
func (p *Pool) Activate(f *types.StructuralFeatures, regime types.Regime, coh types.CoherenceScore) []*types.ActiveStrategy {
	candidates := []*types.ActiveStrategy{}

	for _, id := range p.Templates() {
		tmpl := p.templates[id]
		if !tmpl.HasRegime(regime.Type) {
			continue
		}

		bonus := 0.0
		if fn, ok := p.bonuses[tmpl.Type]; ok {
			bonus = fn(tmpl, f, coh)
		}
		score := 0.3*regime.Confidence + 0.2*coh.Total + bonus + 0.1*p.recentPerformance(id)
		score = formulas.Clamp(score, 0, 1)
		if score < tmpl.ActivationThreshold {
			continue
		}

		params := adaptParameters(tmpl.Parameters, f.Volatility.Regime)
		as := &types.ActiveStrategy{
			Template:   tmpl,
			Activation: score,
			Parameters: params,
			Context: types.StrategyContext{
				Regime:    regime.Type,
				Coherence: coh.Total,
				Spot:      f.Spot,
			},
			Performance: p.performanceRecord(id),
			Active:      true,
		}
		if fn, ok := p.signals[tmpl.Type]; ok {
			as.Signal = fn(p, tmpl, params, f, regime)
		}
		candidates = append(candidates, as)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Activation != candidates[j].Activation {
			return candidates[i].Activation > candidates[j].Activation
		}
		return candidates[i].Template.ID < candidates[j].Template.ID
	})

	limit := p.cfg.MaxStrategies
	if byCoh := int(math.Floor(20 * coh.Confidence)); byCoh < limit {
		limit = byCoh
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	p.active = make(map[string]*types.ActiveStrategy, len(candidates))
	for _, a := range candidates {
		p.active[a.Template.ID] = a
	}

	p.logger.Debug("strategies activated",
		zap.Int("count", len(candidates)),
		zap.String("regime", string(regime.Type)),
	)
	return candidates
}

// Active returns the currently active strategies from the last pass.
func (p *Pool) Active() []*types.ActiveStrategy {
	out := make([]*types.ActiveStrategy, 0, len(p.active))
	for _, id := range p.Templates() {
		if a, ok := p.active[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// RecordOutcome feeds a realized pnl% back into the template's history.
func (p *Pool) RecordOutcome(strategyID string, pnlPct float64, timestamp int64) {
	ring, ok := p.perf[strategyID]
	if !ok {
		return
	}
	ring.Append(pnlPct)
}

// SetActivationThreshold applies a learning-suggested threshold change.
func (p *Pool) SetActivationThreshold(strategyID string, threshold float64) {
	if t, ok := p.templates[strategyID]; ok {
		t.ActivationThreshold = formulas.Clamp(threshold, 0, 1)
		p.templates[strategyID] = t
	}
}

// recentPerformance maps the recent pnl% history into [0,1], 0.5 when no
// history exists.
func (p *Pool) recentPerformance(id string) float64 {
	ring, ok := p.perf[id]
	if !ok || ring.Empty() {
		return 0.5
	}
	return formulas.Clamp(0.5+10*ringbuf.Mean(ring), 0, 1)
}

func (p *Pool) performanceRecord(id string) types.StrategyPerformance {
	rec := types.StrategyPerformance{}
	ring, ok := p.perf[id]
	if !ok {
		return rec
	}
	for _, v := range ring.Values() {
		rec.Trades++
		if v > 0 {
			rec.Wins++
		}
		rec.AvgPnLPct += v
	}
	if rec.Trades > 0 {
		rec.WinRate = float64(rec.Wins) / float64(rec.Trades)
		rec.AvgPnLPct /= float64(rec.Trades)
	}
	return rec
}

// adaptParameters applies the volatility multiplier to protective params.
func adaptParameters(base map[string]float64, vol types.VolRegime) map[string]float64 {
	mult := volMultiplier(vol)
	out := make(map[string]float64, len(base))
	for k, v := range base {
		switch k {
		case "stopLoss", "trailingStop", "targetProfit":
			out[k] = v * mult
		default:
			out[k] = v
		}
	}
	return out
}

// bonusTable is the per-type activation bonus dispatch table.
func bonusTable() map[types.StrategyType]bonusFunc {
	return map[types.StrategyType]bonusFunc{
		types.StrategyGammaScalp: func(t types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if f.Pull.Magnitude > t.Parameters["minConcentration"] {
				b += 0.3
			}
			for _, flip := range f.GammaFlips {
				if f.Spot > 0 && math.Abs(flip.Price-f.Spot)/f.Spot <= t.Parameters["proximityPct"] {
					b += 0.2
					break
				}
			}
			return b
		},
		types.StrategyMomentumFollow: func(t types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if math.Abs(f.Prices.Momentum) > t.Parameters["minMomentum"] {
				b += 0.25
			}
			if f.Prices.TrendStrength > t.Parameters["minTrendStrength"] {
				b += 0.25
			}
			return b
		},
		types.StrategyMeanReversion: func(_ types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if f.Volatility.Implied > 25 && math.Abs(f.Prices.Momentum) < 0.01 {
				b += 0.3
			}
			if f.Prices.TrendStrength > 0.6 {
				b += 0.2
			}
			return b
		},
		types.StrategyVolExpansion: func(_ types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if f.Volatility.Spread > 5 {
				b += 0.25
			}
			if f.Volatility.VolOfVol > 0.2 {
				b += 0.25
			}
			return b
		},
		types.StrategyVolContraction: func(t types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if f.Volatility.Implied < t.Parameters["maxIV"] {
				b += 0.3
			}
			if f.Volatility.Spread < 0 {
				b += 0.2
			}
			return b
		},
		types.StrategyLiquidityHunt: func(t types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if math.Abs(f.Liquidity.Imbalance) > 0.3 {
				b += 0.25
			}
			for _, l := range f.Liquidity.Levels {
				if l.Size >= t.Parameters["minPocketSize"] &&
					f.Spot > 0 && math.Abs(l.Price-f.Spot)/f.Spot <= t.Parameters["proximityPct"] {
					b += 0.25
					break
				}
			}
			return b
		},
		types.StrategyFlowAlignment: func(t types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if math.Abs(f.Dealer.HedgingPressure) > t.Parameters["minHedgingPressure"] {
				b += 0.25
			}
			if math.Abs(f.Dealer.NetGammaExposure) > t.Parameters["gammaThreshold"] {
				b += 0.25
			}
			return b
		},
		types.StrategyStructuralBreak: func(t types.StrategyTemplate, f *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			b := 0.0
			if f.Prices.TrendStrength > t.Parameters["minTrendStrength"] {
				b += 0.25
			}
			if f.Volatility.VolOfVol > 0.2 {
				b += 0.25
			}
			return b
		},
		types.StrategyPatternRecog: func(_ types.StrategyTemplate, _ *types.StructuralFeatures, _ types.CoherenceScore) float64 {
			// Placeholder until memory-driven recognition scores land here.
			return 0.25
		},
		types.StrategyFractalResonance: func(t types.StrategyTemplate, _ *types.StructuralFeatures, coh types.CoherenceScore) float64 {
			res := t.Parameters["resonanceThreshold"]
			b := 0.0
			if coh.Temporal > res {
				b += 0.3
			}
			if coh.Fractal > res {
				b += 0.2
			}
			return b
		},
	}
}
