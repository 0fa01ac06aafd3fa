// Package risk provides risk governance: Kelly-sized position gating,
// portfolio-level limit checks and the kill-switch lifecycle.
package risk

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

// Limits holds the governance limits, all expressed as fractions of
// portfolio value.
type Limits struct {
	MaxPositionSize  float64 `json:"maxPositionSize"`
	MaxPortfolioRisk float64 `json:"maxPortfolioRisk"`
	MaxCorrelation   float64 `json:"maxCorrelation"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	MaxDailyLoss     float64 `json:"maxDailyLoss"`
	MaxConcentration float64 `json:"maxConcentration"`
}

// DefaultLimits returns the default governance limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:  0.10,
		MaxPortfolioRisk: 0.02,
		MaxCorrelation:   0.7,
		MaxDrawdown:      0.15,
		MaxDailyLoss:     0.05,
		MaxConcentration: 0.30,
	}
}

// KillSwitchState reports the current kill-switch status.
type KillSwitchState struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// Governor owns the kill switch, the peak-equity tracker and daily P&L.
type Governor struct {
	logger *zap.Logger
	limits Limits

	mu         sync.RWMutex
	killSwitch bool
	killReason string
	peakEquity float64
	dailyPnL   float64
}

// NewGovernor creates a risk governor. Zero-valued limit fields fall back to
// the defaults.
func NewGovernor(logger *zap.Logger, limits Limits) *Governor {
	def := DefaultLimits()
	if limits.MaxPositionSize <= 0 {
		limits.MaxPositionSize = def.MaxPositionSize
	}
	if limits.MaxPortfolioRisk <= 0 {
		limits.MaxPortfolioRisk = def.MaxPortfolioRisk
	}
	if limits.MaxCorrelation <= 0 {
		limits.MaxCorrelation = def.MaxCorrelation
	}
	if limits.MaxDrawdown <= 0 {
		limits.MaxDrawdown = def.MaxDrawdown
	}
	if limits.MaxDailyLoss <= 0 {
		limits.MaxDailyLoss = def.MaxDailyLoss
	}
	if limits.MaxConcentration <= 0 {
		limits.MaxConcentration = def.MaxConcentration
	}
	return &Governor{
		logger: logger.Named("risk"),
		limits: limits,
	}
}

// Limits returns the configured limits.
func (g *Governor) Limits() Limits {
	return g.limits
}

// KillSwitch returns the kill-switch state.
func (g *Governor) KillSwitch() KillSwitchState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return KillSwitchState{Active: g.killSwitch, Reason: g.killReason}
}

// ActivateKillSwitch trips the kill switch. It stays tripped until
// explicitly cleared.
func (g *Governor) ActivateKillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activateLocked(reason)
}

func (g *Governor) activateLocked(reason string) {
	if g.killSwitch {
		return
	}
	g.killSwitch = true
	g.killReason = reason
	g.logger.Error("kill switch activated", zap.String("reason", reason))
}

// DeactivateKillSwitch clears the kill switch.
func (g *Governor) DeactivateKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitch = false
	g.killReason = ""
	g.logger.Info("kill switch deactivated")
}

// ResetDailyRisk zeroes the daily P&L tracker. It also clears the kill
// switch when the trip reason was a daily-loss breach.
func (g *Governor) ResetDailyRisk() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = 0
	if g.killSwitch && strings.Contains(g.killReason, "daily loss") {
		g.killSwitch = false
		g.killReason = ""
		g.logger.Info("kill switch cleared by daily risk reset")
	}
}

// RecordDailyPnL accumulates realized P&L into the daily tracker.
func (g *Governor) RecordDailyPnL(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL += delta
}

// UpdateRiskState refreshes the peak-equity tracker and arms the kill
// switch on drawdown or daily-loss breaches.
func (g *Governor) UpdateRiskState(p *types.Portfolio) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := p.TotalValue.InexactFloat64()
	if total > g.peakEquity {
		g.peakEquity = total
	}
	if g.peakEquity > 0 {
		drawdown := (g.peakEquity - total) / g.peakEquity
		if drawdown > g.limits.MaxDrawdown {
			g.activateLocked("drawdown limit breached")
		}
	}
	if math.Abs(g.dailyPnL) > g.limits.MaxDailyLoss*total && g.dailyPnL < 0 {
		g.activateLocked("daily loss limit breached")
	}
}

// Filter runs the approval pipeline over the tick's signals. An active kill
// switch or a failed global check returns an empty set; features, regime and
// signals upstream keep flowing for observation.
func (g *Governor) Filter(signals []types.Signal, p *types.Portfolio, f *types.StructuralFeatures) []types.ApprovedSignal {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killSwitch {
		return []types.ApprovedSignal{}
	}

	total := p.TotalValue.InexactFloat64()
	marginAvailable := p.MarginAvailable.InexactFloat64()
	if total <= 0 {
		return []types.ApprovedSignal{}
	}

	// Global checks: free margin and concentration.
	if marginAvailable < 0.10*total {
		g.logger.Warn("approvals withheld, insufficient free margin",
			zap.Float64("marginAvailable", marginAvailable))
		return []types.ApprovedSignal{}
	}
	for _, pos := range p.Positions {
		notional := pos.Units.Mul(pos.CurrentPrice).Abs().InexactFloat64()
		if notional/total > g.limits.MaxConcentration {
			g.logger.Warn("approvals withheld, concentration limit breached",
				zap.String("position", pos.ID))
			return []types.ApprovedSignal{}
		}
	}

	candidates := []types.ApprovedSignal{}
	for _, sig := range signals {
		approved, ok := g.assess(sig, p, f, total, marginAvailable)
		if ok {
			candidates = append(candidates, approved)
		}
	}

	// Greedy acceptance: cheapest risk first while the VaR and margin
	// budgets hold.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RiskScore < candidates[j].RiskScore
	})
	out := []types.ApprovedSignal{}
	varBudget, marginBudget := 0.0, 0.0
	for _, c := range candidates {
		if varBudget+c.Risk.VarContribution > g.limits.MaxPortfolioRisk {
			continue
		}
		if marginBudget+c.Risk.MarginRequired > marginAvailable {
			continue
		}
		varBudget += c.Risk.VarContribution
		marginBudget += c.Risk.MarginRequired
		out = append(out, c)
	}
	return out
}

// assess sizes one signal and computes its risk metrics and execution
// constraints. ok is false when the signal cannot be sized or breaches a
// per-signal limit.
func (g *Governor) assess(sig types.Signal, p *types.Portfolio, f *types.StructuralFeatures, total, marginAvailable float64) (types.ApprovedSignal, bool) {
	if sig.Entry <= 0 || sig.Direction == types.DirectionNeutral {
		return types.ApprovedSignal{}, false
	}

	stopDist := math.Abs(sig.Entry - sig.Stop)
	targetDist := stopDist
	if len(sig.Targets) > 0 {
		targetDist = math.Abs(sig.Targets[0] - sig.Entry)
	}

	kelly := formulas.Clamp(formulas.Kelly(sig.Confidence, targetDist, stopDist), 0, 0.25)
	size := math.Min(total*0.5*kelly*volSizeMultiplier(f.Volatility.Regime), g.limits.MaxPositionSize*total)
	size = math.Min(size, marginAvailable/0.5)
	if size <= 0 {
		return types.ApprovedSignal{}, false
	}

	metrics := types.RiskMetrics{
		Correlation:     sameDirectionNotional(p, sig.Direction) / total,
		GammaExposure:   sig.Context.GammaLevel * 0.01,
		VarContribution: stopDist / sig.Entry * sig.Confidence,
		MaxLoss:         stopDist / sig.Entry,
		MarginRequired:  0.5 * size,
	}

	if metrics.Correlation > g.limits.MaxCorrelation {
		return types.ApprovedSignal{}, false
	}
	if math.Abs(metrics.GammaExposure) > 0.01*total {
		return types.ApprovedSignal{}, false
	}

	constraints := g.constraints(sig, f)
	score := g.riskScore(metrics, f, total)

	return types.ApprovedSignal{
		Signal:      sig,
		Size:        size,
		Risk:        metrics,
		Constraints: constraints,
		RiskScore:   score,
	}, true
}

// constraints derives the execution constraints from signal strength and
// the volatility environment.
func (g *Governor) constraints(sig types.Signal, f *types.StructuralFeatures) types.ExecutionConstraints {
	urgency := types.UrgencyLow
	switch {
	case sig.Strength > 0.7 || f.Volatility.Regime == types.VolRegimeHigh || f.Volatility.Regime == types.VolRegimeExtreme:
		urgency = types.UrgencyHigh
	case sig.Strength > 0.4:
		urgency = types.UrgencyMedium
	}

	orderType := types.OrderTypeLimit
	tif := types.TimeInForceDay
	if urgency == types.UrgencyHigh {
		orderType = types.OrderTypeMarket
		tif = types.TimeInForceIOC
	}

	iceberg := 0.5
	if sig.Strength > 0.7 {
		iceberg = 0.2
	}

	return types.ExecutionConstraints{
		MaxSlippage:  0.001 * (1 + f.Volatility.Implied/100 + 1/(f.Liquidity.Depth+1)),
		Urgency:      urgency,
		OrderType:    orderType,
		IcebergRatio: iceberg,
		TimeInForce:  tif,
	}
}

// riskScore composes a [0,1] score from correlation, gamma exposure, VaR
// and a volatility-regime penalty.
func (g *Governor) riskScore(m types.RiskMetrics, f *types.StructuralFeatures, total float64) float64 {
	volPenalty := map[types.VolRegime]float64{
		types.VolRegimeLow:      0,
		types.VolRegimeNormal:   0.25,
		types.VolRegimeElevated: 0.5,
		types.VolRegimeHigh:     0.75,
		types.VolRegimeExtreme:  1,
	}[f.Volatility.Regime]

	score := 0.3*formulas.Clamp(m.Correlation/g.limits.MaxCorrelation, 0, 1) +
		0.3*formulas.Clamp(math.Abs(m.GammaExposure)/(0.01*total), 0, 1) +
		0.2*formulas.Clamp(m.VarContribution/g.limits.MaxPortfolioRisk, 0, 1) +
		0.2*volPenalty
	return formulas.Clamp(score, 0, 1)
}

// sameDirectionNotional sums the notional of open positions on the signal's
// side.
func sameDirectionNotional(p *types.Portfolio, dir types.Direction) float64 {
	sum := decimal.Zero
	for _, pos := range p.Positions {
		if pos.Side == dir {
			sum = sum.Add(pos.Units.Mul(pos.CurrentPrice).Abs())
		}
	}
	return sum.InexactFloat64()
}

// volSizeMultiplier shrinks sizing as the volatility regime escalates.
func volSizeMultiplier(v types.VolRegime) float64 {
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
