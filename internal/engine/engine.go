// Package engine provides the root orchestrator: it owns the seven
// subsystems and the portfolio, sequences the eight pipeline phases per
// tick and composes the resulting system state.
package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/internal/events"
	"github.com/resonance-desktop/fractal-backend/internal/execution"
	"github.com/resonance-desktop/fractal-backend/internal/learning"
	"github.com/resonance-desktop/fractal-backend/internal/memory"
	"github.com/resonance-desktop/fractal-backend/internal/meta"
	"github.com/resonance-desktop/fractal-backend/internal/perception"
	"github.com/resonance-desktop/fractal-backend/internal/risk"
	"github.com/resonance-desktop/fractal-backend/internal/strategy"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
	"github.com/resonance-desktop/fractal-backend/pkg/utils"
)

const recentOutcomeWindow = 50

// Config configures the engine and its subsystems.
type Config struct {
	InitialCash     float64     `json:"initialCash"`
	LearningEnabled bool        `json:"learningEnabled"`
	BufferCapacity  int         `json:"bufferCapacity"`
	MemoryCapacity  int         `json:"memoryCapacity"`
	MaxStrategies   int         `json:"maxStrategies"`
	ExecutionSeed   int64       `json:"executionSeed"`
	RiskLimits      risk.Limits `json:"riskLimits"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialCash:     100000,
		LearningEnabled: true,
		BufferCapacity:  1000,
		MemoryCapacity:  10000,
		MaxStrategies:   10,
		ExecutionSeed:   1,
		RiskLimits:      risk.DefaultLimits(),
	}
}

// Engine owns the pipeline. A tick is indivisible and strictly sequential;
// subsystems see only outputs of earlier phases and never each other's
// state. The portfolio is mutable only here.
type Engine struct {
	logger *zap.Logger
	cfg    Config

	perception *perception.Engine
	controller *meta.Controller
	pool       *strategy.Pool
	governor   *risk.Governor
	simulator  *execution.Simulator
	learner    *learning.Engine
	memory     *memory.Memory
	bus        *events.Bus
	metrics    *metrics

	mu         sync.RWMutex
	portfolio  *types.Portfolio
	lastState  *types.SystemState
	peakEquity float64
}

// NewEngine wires the subsystems.
func NewEngine(logger *zap.Logger, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = def.InitialCash
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = def.BufferCapacity
	}
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = def.MemoryCapacity
	}
	if cfg.MaxStrategies <= 0 {
		cfg.MaxStrategies = def.MaxStrategies
	}
	if cfg.ExecutionSeed == 0 {
		cfg.ExecutionSeed = def.ExecutionSeed
	}

	cash := decimal.NewFromFloat(cfg.InitialCash)
	e := &Engine{
		logger:     logger.Named("engine"),
		cfg:        cfg,
		perception: perception.NewEngine(logger, perception.Config{BufferCapacity: cfg.BufferCapacity}),
		controller: meta.NewController(logger),
		pool:       strategy.NewPool(logger, strategy.Config{MaxStrategies: cfg.MaxStrategies}),
		governor:   risk.NewGovernor(logger, cfg.RiskLimits),
		simulator:  execution.NewSimulator(logger, execution.Config{Seed: cfg.ExecutionSeed}),
		learner:    learning.NewEngine(logger),
		memory:     memory.NewMemory(logger, memory.Config{Capacity: cfg.MemoryCapacity}),
		bus:        events.NewBus(logger),
		metrics:    newMetrics(),
		portfolio: &types.Portfolio{
			Positions:       []types.Position{},
			Cash:            cash,
			TotalValue:      cash,
			MarginAvailable: cash,
		},
		peakEquity: cfg.InitialCash,
	}
	return e
}

// ProcessTick runs the eight pipeline phases over one bundle and returns
// the composed system state. It never fails: degraded inputs produce a
// state with empty signals, approvals or results.
func (e *Engine) ProcessTick(b *types.MarketBundle) *types.SystemState {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()

	// Phase 1-2: perception and regime classification.
	features := e.perception.Perceive(b)
	regime := e.controller.Classify(features)

	// Phase 3-5: two-pass activation around coherence composition. The
	// preliminary pass feeds coherence; the final pass applies the real
	// thresholds.
	preliminary := e.pool.Activate(features, regime, meta.Neutral())
	coherence := e.controller.Compose(features, regime, preliminary)
	active := e.pool.Activate(features, regime, coherence)

	// Phase 6: harvest signals.
	signals := make([]types.Signal, 0, len(active))
	for _, a := range active {
		if a.Signal != nil {
			signals = append(signals, *a.Signal)
		}
	}

	// Phase 7: risk governance over a portfolio snapshot.
	e.governor.UpdateRiskState(e.portfolio)
	approved := e.governor.Filter(signals, e.portfolio.Clone(), features)

	// Phase 8: simulated execution.
	results := e.simulator.Simulate(approved, features)

	// Portfolio mutation and learning are orchestrator-owned follow-ups.
	e.applyFills(results, approved, features, b.Timestamp)
	if e.cfg.LearningEnabled {
		e.learn(results, approved, features, regime)
	}

	state := e.composeState(b, features, regime, coherence, active, signals, approved, results, started)
	e.lastState = state
	e.metrics.observeTick(state, time.Since(started))
	e.bus.Publish(events.TopicState, state)
	if ks := e.governor.KillSwitch(); ks.Active {
		e.bus.Publish(events.TopicRisk, ks)
	}

	e.logger.Debug("tick processed",
		zap.String("regime", string(regime.Type)),
		zap.Float64("coherence", coherence.Total),
		zap.Int("signals", len(signals)),
		zap.Int("approved", len(approved)),
		zap.Int("fills", countFills(results)),
	)
	return state
}

// applyFills mutates the portfolio from successful executions: cash down by
// notional plus fees, a new position per fill, margin and totals refreshed.
func (e *Engine) applyFills(results []types.ExecutionResult, approved []types.ApprovedSignal, f *types.StructuralFeatures, ts int64) {
	spot := decimal.NewFromFloat(f.Spot)

	for i, res := range results {
		if !res.Success || res.Order.FilledSize <= 0 || res.Order.FillPrice <= 0 {
			continue
		}
		strategyID := ""
		if i < len(approved) {
			strategyID = approved[i].Signal.StrategyID
		}
		notional := decimal.NewFromFloat(res.Order.FilledSize)
		fees := decimal.NewFromFloat(res.Order.Fees)
		fillPrice := decimal.NewFromFloat(res.Order.FillPrice)

		e.portfolio.Cash = e.portfolio.Cash.Sub(notional).Sub(fees)
		e.portfolio.MarginUsed = e.portfolio.MarginUsed.Add(notional.Mul(decimal.NewFromFloat(0.5)))

		side := types.DirectionLong
		if res.Order.Side == types.OrderSideSell {
			side = types.DirectionShort
		}
		e.portfolio.Positions = append(e.portfolio.Positions, types.Position{
			ID:           utils.GenerateID("pos"),
			StrategyID:   strategyID,
			Side:         side,
			Units:        notional.Div(fillPrice),
			EntryPrice:   fillPrice,
			CurrentPrice: fillPrice,
			OpenedAt:     res.Order.FilledAt,
		})
		e.bus.Publish(events.TopicFill, res)
	}

	// Mark positions and recompute totals.
	positionValue := decimal.Zero
	unrealized := decimal.Zero
	for i := range e.portfolio.Positions {
		pos := &e.portfolio.Positions[i]
		if spot.IsPositive() {
			pos.CurrentPrice = spot
		}
		value := pos.Units.Mul(pos.CurrentPrice)
		positionValue = positionValue.Add(value)
		diff := pos.CurrentPrice.Sub(pos.EntryPrice).Mul(pos.Units)
		if pos.Side == types.DirectionShort {
			diff = diff.Neg()
		}
		unrealized = unrealized.Add(diff)
	}
	e.portfolio.UnrealizedPnL = unrealized
	e.portfolio.TotalValue = e.portfolio.Cash.Add(positionValue)
	e.portfolio.MarginAvailable = e.portfolio.TotalValue.Sub(e.portfolio.MarginUsed)
	e.portfolio.UpdatedAt = ts

	total := e.portfolio.TotalValue.InexactFloat64()
	if total > e.peakEquity {
		e.peakEquity = total
	}
	if e.peakEquity > 0 {
		dd := (e.peakEquity - total) / e.peakEquity
		e.portfolio.CurrentDrawdown = decimal.NewFromFloat(dd)
		if e.portfolio.CurrentDrawdown.GreaterThan(e.portfolio.MaxDrawdown) {
			e.portfolio.MaxDrawdown = e.portfolio.CurrentDrawdown
		}
	}
}

// learn synthesizes outcomes for successful fills and stores the patterns.
// The entry and exit snapshots are the same tick's features; no separate
// exit stream exists yet.
func (e *Engine) learn(results []types.ExecutionResult, approved []types.ApprovedSignal, f *types.StructuralFeatures, regime types.Regime) {
	for i, res := range results {
		if !res.Success || i >= len(approved) {
			continue
		}
		strategyID := approved[i].Signal.StrategyID
		outcome := e.learner.SynthesizeOutcome(res, strategyID, f, f, f.Spot)
		e.learner.Record(outcome)
		e.memory.Store(f, regime, outcome)
		e.pool.RecordOutcome(strategyID, outcome.PnLPercent, outcome.Timestamp)
		e.governor.RecordDailyPnL(outcome.PnL)
		e.portfolio.DailyPnL = e.portfolio.DailyPnL.Add(decimal.NewFromFloat(outcome.PnL))
	}
}

func (e *Engine) composeState(b *types.MarketBundle, features *types.StructuralFeatures, regime types.Regime, coherence types.CoherenceScore, active []*types.ActiveStrategy, signals []types.Signal, approved []types.ApprovedSignal, results []types.ExecutionResult, started time.Time) *types.SystemState {
	total, rejected := e.simulator.Stats()
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(rejected) / float64(total)
	}

	return &types.SystemState{
		Features:         features,
		Regime:           regime,
		Coherence:        coherence,
		ActiveStrategies: active,
		Signals:          signals,
		Approved:         approved,
		Results:          results,
		Portfolio:        e.portfolio.Clone(),
		RecentOutcomes:   e.learner.RecentOutcomes(recentOutcomeWindow),
		LearningProgress: e.learner.Progress(),
		Evolution:        e.learner.Evolution(),
		Timestamp:        b.Timestamp,
		Health: types.HealthMetrics{
			DataLatencyMs:    time.Now().UnixMilli() - b.Timestamp,
			ProcessingTimeMs: float64(time.Since(started).Microseconds()) / 1000,
			MemoryPatterns:   e.memory.Stats().TotalPatterns,
			ErrorRate:        errorRate,
		},
	}
}

func countFills(results []types.ExecutionResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

// LastState returns the most recent system state, nil before the first tick.
func (e *Engine) LastState() *types.SystemState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastState
}

// Portfolio returns a snapshot of the portfolio.
func (e *Engine) Portfolio() *types.Portfolio {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.portfolio.Clone()
}

// Risk exposes the risk governor for manual kill-switch control.
func (e *Engine) Risk() *risk.Governor {
	return e.governor
}

// Memory exposes the pattern memory for retrieval and export.
func (e *Engine) Memory() *memory.Memory {
	return e.memory
}

// Strategies exposes the strategy pool for pre-tick template registration.
func (e *Engine) Strategies() *strategy.Pool {
	return e.pool
}

// Bus exposes the event bus for state subscribers.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// MetricsRegistry returns the prometheus registry backing /metrics.
func (e *Engine) MetricsRegistry() *prometheus.Registry {
	return e.metrics.reg
}
