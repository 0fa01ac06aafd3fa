package learning

import (
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

func filledResult(side types.OrderSide, fillPrice, size float64) types.ExecutionResult {
	return types.ExecutionResult{
		Order: types.Order{
			ID:          "ord_1",
			Side:        side,
			Size:        size,
			Price:       fillPrice,
			Status:      types.OrderStatusFilled,
			FilledSize:  size,
			FillPrice:   fillPrice,
			SubmittedAt: 1000,
			FilledAt:    1030,
		},
		Slippage:  0.0005,
		LatencyMs: 30,
		Success:   true,
	}
}

func outcome(strategyID string, pnl float64) types.TradeOutcome {
	pct := pnl / 10000
	return types.TradeOutcome{
		TradeID:    "trd_x",
		StrategyID: strategyID,
		PnL:        pnl,
		PnLPercent: pct,
		Timestamp:  2000,
	}
}

func TestSynthesizeOutcomePnL(t *testing.T) {
	e := NewEngine(zap.NewNop())

	// Long: bought 10000 notional at 100, exit 102 -> 100 units * 2 = 200.
	res := filledResult(types.OrderSideBuy, 100, 10000)
	o := e.SynthesizeOutcome(res, "momentum-follow-1", nil, nil, 102)
	if math.Abs(o.PnL-200) > 1e-9 {
		t.Errorf("long pnl = %f, want 200", o.PnL)
	}
	if math.Abs(o.PnLPercent-0.02) > 1e-9 {
		t.Errorf("pnl%% = %f, want 0.02", o.PnLPercent)
	}
	if !o.Correct {
		t.Error("positive pnl should flag correct")
	}
	if o.HoldingPeriodMs != 30 {
		t.Errorf("holding = %d, want 30", o.HoldingPeriodMs)
	}

	// Short profits from a falling exit.
	res = filledResult(types.OrderSideSell, 100, 10000)
	o = e.SynthesizeOutcome(res, "momentum-follow-1", nil, nil, 97)
	if math.Abs(o.PnL-300) > 1e-9 {
		t.Errorf("short pnl = %f, want 300", o.PnL)
	}
}

func TestExecutionQualityBounds(t *testing.T) {
	res := filledResult(types.OrderSideBuy, 100, 10000)
	q := executionQuality(res)
	if q < 0 || q > 1 {
		t.Errorf("quality = %f out of [0,1]", q)
	}

	slow := res
	slow.LatencyMs = 60
	slow.Slippage = 0.01
	if executionQuality(slow) >= q {
		t.Error("slow, slipped fills should score worse")
	}
}

func TestProfitFactorSentinel(t *testing.T) {
	e := NewEngine(zap.NewNop())
	for i := 0; i < 5; i++ {
		e.Record(outcome("s1", 100))
	}
	prog := e.Progress()
	if len(prog) != 1 {
		t.Fatalf("progress entries = %d, want 1", len(prog))
	}
	if prog[0].ProfitFactor != 999 {
		t.Errorf("no-loss profit factor = %f, want 999", prog[0].ProfitFactor)
	}
	if prog[0].WinRate != 1 {
		t.Errorf("win rate = %f, want 1", prog[0].WinRate)
	}
}

func TestLowWinRateSuggestsTighterEntries(t *testing.T) {
	e := NewEngine(zap.NewNop())
	for i := 0; i < 25; i++ {
		pnl := -50.0
		if i%5 == 0 { // 20% winners
			pnl = 100
		}
		e.Record(outcome("s1", pnl))
	}

	found := false
	for _, s := range e.Suggestions(100) {
		if s.Parameter == "activationThreshold" && s.Suggested == 0.7 {
			found = true
		}
	}
	if !found {
		t.Error("low win rate should suggest raising the activation threshold")
	}

	if len(e.Evolution()) == 0 {
		t.Error("suggestions should version the evolution record")
	}
}

func TestDrawdownSuggestsSmallerSize(t *testing.T) {
	e := NewEngine(zap.NewNop())
	// One catastrophic loss against the 100k equity seed: 20% drawdown.
	e.Record(outcome("s1", -20000))

	found := false
	for _, s := range e.Suggestions(100) {
		if s.Parameter == "positionSizeMultiple" && s.Suggested == 0.7 {
			found = true
		}
	}
	if !found {
		t.Error("deep drawdown should suggest reducing size")
	}
}

func TestFeatureImportanceNormalized(t *testing.T) {
	e := NewEngine(zap.NewNop())

	f := &types.StructuralFeatures{
		Prices: types.PriceHistory{Momentum: 0.05, TrendStrength: 0.9},
		Pull:   types.GravitationalPull{Magnitude: 0.8},
	}
	for i := 0; i < 50; i++ {
		o := outcome("s1", 100)
		o.EntryFeatures = f
		e.Record(o)
	}

	imp := e.FeatureImportance()
	if len(imp) != 8 {
		t.Fatalf("importance features = %d, want 8", len(imp))
	}
	sum := 0.0
	for _, v := range imp {
		sum += v
		if v < 0.009 { // floor is 0.01 before renormalization
			t.Errorf("importance %f below floor", v)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importance sum = %f, want 1", sum)
	}

	// Strongly-active features on winners should outweigh inactive ones.
	if imp["momentum"] <= imp["dealerFlow"] {
		t.Error("active winning features should gain importance")
	}
}

func TestOutcomeHistoryBounded(t *testing.T) {
	e := NewEngine(zap.NewNop())
	for i := 0; i < 10010; i++ {
		e.Record(outcome(fmt.Sprintf("s%d", i%100), 1))
	}
	if got := len(e.RecentOutcomes(20000)); got != 10000 {
		t.Errorf("outcomes = %d, want capped at 10000", got)
	}
}
