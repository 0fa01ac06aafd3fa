// Package learning turns execution results into trade outcomes, rolls up
// per-strategy performance, suggests parameter adjustments and maintains
// feature-importance weights.
package learning

import (
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/ringbuf"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
	"github.com/resonance-desktop/fractal-backend/pkg/utils"
)

const (
	outcomeCapacity    = 10000
	suggestionCapacity = 100
	evolutionCapacity  = 50
	recentWindow       = 20
	equityCurveSeed    = 100000
	importanceFloor    = 0.01
	importanceStepWin  = 0.01
	importanceStepLoss = 0.005
)

var importanceFeatures = []string{
	"momentum", "trendStrength", "gammaPull", "liquidity",
	"volatility", "dealerFlow", "coherence", "regimeConfidence",
}

// Engine owns the outcome history and the per-strategy learning state.
type Engine struct {
	logger *zap.Logger

	mu          sync.RWMutex
	outcomes    *ringbuf.Ring[types.TradeOutcome]
	byStrategy  map[string][]types.TradeOutcome
	progress    map[string]*types.LearningProgress
	evolution   map[string][]types.StrategyEvolution
	suggestions *ringbuf.Ring[types.ParameterSuggestion]
	importance  map[string]float64
}

// NewEngine creates a learning engine with uniform feature importance.
func NewEngine(logger *zap.Logger) *Engine {
	imp := make(map[string]float64, len(importanceFeatures))
	for _, f := range importanceFeatures {
		imp[f] = 1.0 / float64(len(importanceFeatures))
	}
	return &Engine{
		logger:      logger.Named("learning"),
		outcomes:    ringbuf.New[types.TradeOutcome](outcomeCapacity),
		byStrategy:  make(map[string][]types.TradeOutcome),
		progress:    make(map[string]*types.LearningProgress),
		evolution:   make(map[string][]types.StrategyEvolution),
		suggestions: ringbuf.New[types.ParameterSuggestion](suggestionCapacity),
		importance:  imp,
	}
}

// SynthesizeOutcome builds a trade outcome from a successful execution
// result. Entry and exit features may be the same snapshot when no separate
// exit stream exists.
func (e *Engine) SynthesizeOutcome(res types.ExecutionResult, strategyID string, entry, exit *types.StructuralFeatures, exitPrice float64) types.TradeOutcome {
	o := types.TradeOutcome{
		TradeID:       utils.GenerateTradeID(),
		StrategyID:    strategyID,
		EntryPrice:    res.Order.FillPrice,
		ExitPrice:     exitPrice,
		Size:          res.Order.FilledSize,
		EntryFeatures: entry,
		ExitFeatures:  exit,
		Timestamp:     res.Order.FilledAt,
	}

	sideSign := 1.0
	if res.Order.Side == types.OrderSideSell {
		sideSign = -1
	}
	if res.Order.FillPrice > 0 {
		units := res.Order.FilledSize / res.Order.FillPrice
		o.PnL = sideSign * (exitPrice - res.Order.FillPrice) * units
		o.PnLPercent = o.PnL / res.Order.FilledSize
	}
	o.HoldingPeriodMs = res.Order.FilledAt - res.Order.SubmittedAt
	o.Correct = o.PnL > 0
	o.MaxDrawdown, o.MaxRunup = intraTradeExtremes(entry, res.Order.FillPrice)
	o.ExecutionQuality = executionQuality(res)
	return o
}

// intraTradeExtremes approximates the drawdown and runup over the hold from
// the price window carried on the entry snapshot.
func intraTradeExtremes(f *types.StructuralFeatures, fillPrice float64) (drawdown, runup float64) {
	if f == nil || fillPrice <= 0 || len(f.Prices.Prices) == 0 {
		return 0, 0
	}
	lo, hi := fillPrice, fillPrice
	for _, p := range f.Prices.Prices {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return (fillPrice - lo) / fillPrice, (hi - fillPrice) / fillPrice
}

// executionQuality is a [0,1] weighted blend of fill rate, slippage versus
// a fixed 20bp reference, and speed.
func executionQuality(res types.ExecutionResult) float64 {
	fillRate := 0.0
	if res.Order.Size > 0 {
		fillRate = res.Order.FilledSize / res.Order.Size
	}

	slipScore := 1.0
	if res.Slippage > 0 {
		// Score against a 20bp reference window.
		slipScore = 1 - formulas.Clamp(res.Slippage/0.002, 0, 1)
	}

	speedScore := 1 - formulas.Clamp((res.LatencyMs-10)/50, 0, 1)

	return formulas.Clamp(0.3*fillRate+0.4*slipScore+0.3*speedScore, 0, 1)
}

// Record ingests an outcome: history, per-strategy rollup, suggestions and
// feature importance all update.
func (e *Engine) Record(o types.TradeOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.outcomes.Append(o)
	e.byStrategy[o.StrategyID] = append(e.byStrategy[o.StrategyID], o)
	if len(e.byStrategy[o.StrategyID]) > outcomeCapacity {
		e.byStrategy[o.StrategyID] = e.byStrategy[o.StrategyID][1:]
	}

	prog := e.rollup(o.StrategyID)
	e.progress[o.StrategyID] = prog
	e.suggest(o.StrategyID, prog)
	e.updateImportance(o)
}

// rollup recomputes the per-strategy performance summary.
func (e *Engine) rollup(strategyID string) *types.LearningProgress {
	history := e.byStrategy[strategyID]
	prog := &types.LearningProgress{StrategyID: strategyID, Trades: len(history)}
	if len(history) == 0 {
		return prog
	}

	var wins int
	var winSum, lossSum float64
	var winN, lossN int
	pnlPcts := make([]float64, len(history))
	equity := make([]float64, len(history)+1)
	equity[0] = equityCurveSeed
	for i, o := range history {
		pnlPcts[i] = o.PnLPercent
		equity[i+1] = equity[i] + o.PnL
		if o.PnL > 0 {
			wins++
			winSum += o.PnL
			winN++
		} else if o.PnL < 0 {
			lossSum += -o.PnL
			lossN++
		}
	}

	prog.WinRate = float64(wins) / float64(len(history))

	avgWin, avgLoss := 0.0, 0.0
	if winN > 0 {
		avgWin = winSum / float64(winN)
	}
	if lossN > 0 {
		avgLoss = lossSum / float64(lossN)
	}
	switch {
	case avgLoss == 0 && avgWin > 0:
		prog.ProfitFactor = 999
	case avgLoss == 0:
		prog.ProfitFactor = 0
	default:
		prog.ProfitFactor = avgWin / avgLoss
	}

	prog.SharpeRatio = formulas.Sharpe(pnlPcts, 252)
	prog.MaxDrawdown = formulas.MaxDrawdown(equity)

	recent := pnlPcts
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	prog.RecentPerformance = formulas.Mean(recent)

	half := len(pnlPcts) / 2
	if half > 0 {
		prog.AdaptationScore = formulas.Mean(pnlPcts[half:]) - formulas.Mean(pnlPcts[:half])
	}
	return prog
}

// suggest emits parameter adjustments when the rollup crosses the tuning
// thresholds, versioning the strategy's evolution record.
func (e *Engine) suggest(strategyID string, prog *types.LearningProgress) {
	emit := func(param string, current, suggested float64, reason string, ts int64) {
		e.suggestions.Append(types.ParameterSuggestion{
			StrategyID: strategyID,
			Parameter:  param,
			Current:    current,
			Suggested:  suggested,
			Reason:     reason,
			Timestamp:  ts,
		})
		versions := e.evolution[strategyID]
		e.evolution[strategyID] = append(versions, types.StrategyEvolution{
			StrategyID: strategyID,
			Version:    len(versions) + 1,
			Parameters: map[string]float64{param: suggested},
			Reason:     reason,
			Timestamp:  ts,
		})
		if len(e.evolution[strategyID]) > evolutionCapacity {
			e.evolution[strategyID] = e.evolution[strategyID][1:]
		}
		e.logger.Info("parameter adjustment suggested",
			zap.String("strategy", strategyID),
			zap.String("parameter", param),
			zap.Float64("suggested", suggested),
		)
	}

	ts := lastTimestamp(e.byStrategy[strategyID])
	if prog.WinRate < 0.4 && prog.Trades > 20 {
		emit("activationThreshold", 0.6, 0.7, "win rate below 40%, tighten entries", ts)
	}
	if prog.ProfitFactor < 1 && prog.Trades > 30 {
		emit("stopLossMultiple", 1.0, 0.8, "profit factor below 1, tighten stops", ts)
	}
	if prog.MaxDrawdown > 0.15 {
		emit("positionSizeMultiple", 1.0, 0.7, "drawdown above 15%, reduce size", ts)
	}
	if prog.Trades >= recentWindow && prog.RecentPerformance < -0.02 {
		emit("confidenceThreshold", 0.5, 0.6, "recent performance negative, increase selectivity", ts)
	}
}

func lastTimestamp(history []types.TradeOutcome) int64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1].Timestamp
}

// updateImportance nudges feature weights by outcome sign, floors them and
// renormalizes to sum 1.
func (e *Engine) updateImportance(o types.TradeOutcome) {
	strengths := featureStrengths(o.EntryFeatures)
	for _, name := range importanceFeatures {
		s := strengths[name]
		if o.PnL > 0 {
			e.importance[name] += importanceStepWin * s
		} else {
			e.importance[name] -= importanceStepLoss * s
		}
		if e.importance[name] < importanceFloor {
			e.importance[name] = importanceFloor
		}
	}

	sum := 0.0
	for _, v := range e.importance {
		sum += v
	}
	if sum > 0 {
		for k := range e.importance {
			e.importance[k] /= sum
		}
	}
}

// featureStrengths maps the entry snapshot onto [0,1] activation strengths
// for the eight tracked features.
func featureStrengths(f *types.StructuralFeatures) map[string]float64 {
	out := map[string]float64{}
	for _, name := range importanceFeatures {
		out[name] = 0.5
	}
	if f == nil {
		return out
	}
	out["momentum"] = formulas.Clamp(20*math.Abs(f.Prices.Momentum), 0, 1)
	out["trendStrength"] = formulas.Clamp(f.Prices.TrendStrength, 0, 1)
	out["gammaPull"] = formulas.Clamp(f.Pull.Magnitude, 0, 1)
	out["liquidity"] = formulas.Clamp(math.Abs(f.Liquidity.Imbalance), 0, 1)
	out["volatility"] = formulas.Clamp(f.Volatility.Implied/100, 0, 1)
	if f.Dealer.Flow != types.DealerFlowNeutral {
		out["dealerFlow"] = formulas.Clamp(f.Dealer.Confidence, 0, 1)
	} else {
		out["dealerFlow"] = 0
	}
	return out
}

// Progress returns the per-strategy rollups, sorted by strategy id.
func (e *Engine) Progress() []types.LearningProgress {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.progress))
	for id := range e.progress {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]types.LearningProgress, 0, len(ids))
	for _, id := range ids {
		out = append(out, *e.progress[id])
	}
	return out
}

// Evolution returns every strategy's version history, flattened and sorted.
func (e *Engine) Evolution() []types.StrategyEvolution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []types.StrategyEvolution{}
	ids := make([]string, 0, len(e.evolution))
	for id := range e.evolution {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, e.evolution[id]...)
	}
	return out
}

// Suggestions returns the retained parameter suggestions, newest first.
func (e *Engine) Suggestions(limit int) []types.ParameterSuggestion {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.suggestions.Last(limit)
}

// RecentOutcomes returns the newest outcomes, newest first.
func (e *Engine) RecentOutcomes(limit int) []types.TradeOutcome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.outcomes.Last(limit)
}

// FeatureImportance returns a copy of the normalized importance weights.
func (e *Engine) FeatureImportance() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64, len(e.importance))
	for k, v := range e.importance {
		out[k] = v
	}
	return out
}
