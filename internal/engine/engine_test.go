package engine

import (
	"testing"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(zap.NewNop(), DefaultConfig())
}

func flatBundle(ts int64) *types.MarketBundle {
	return &types.MarketBundle{
		Symbol:    "SPX",
		Timestamp: ts,
		Fast: types.StreamFrame{
			Bars: []types.Bar{{Timestamp: ts, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000}},
		},
	}
}

func trendBundle(ts int64, close float64) *types.MarketBundle {
	return &types.MarketBundle{
		Symbol:    "SPX",
		Timestamp: ts,
		Fast: types.StreamFrame{
			Bars: []types.Bar{{Timestamp: ts, Open: close - 0.5, High: close, Low: close - 0.5, Close: close, Volume: 1000}},
		},
	}
}

func squeezeBundle(ts int64) *types.MarketBundle {
	b := flatBundle(ts)
	b.Chain = []types.OptionQuote{
		{
			Strike: 100.5, Expiry: ts + 86400000, Right: types.RightCall,
			Gamma: 0.4, Delta: 0.5, OpenInterest: 50000, Volume: 1000, ImpliedVol: 0.2,
		},
		{
			Strike: 120, Expiry: ts + 86400000, Right: types.RightCall,
			Gamma: 0.01, Delta: 0.1, OpenInterest: 10, Volume: 10, ImpliedVol: 0.2,
		},
	}
	return b
}

func TestFlatMarketScenario(t *testing.T) {
	e := newTestEngine(t)

	var state *types.SystemState
	for i := 0; i < 30; i++ {
		state = e.ProcessTick(flatBundle(int64(i+1) * 1000))
	}

	if state.Regime.Type != types.RegimeRangeBound && state.Regime.Type != types.RegimeConsolidation {
		t.Errorf("regime = %s, want range_bound or consolidation", state.Regime.Type)
	}
	if state.Coherence.Total < 0.4 || state.Coherence.Total > 0.7 {
		t.Errorf("coherence = %f, want [0.4, 0.7]", state.Coherence.Total)
	}
	if len(state.Signals) != 0 {
		t.Errorf("signals = %d, want none on a flat tape", len(state.Signals))
	}
	if e.Risk().KillSwitch().Active {
		t.Error("kill switch should stay inactive")
	}
}

func TestSharpUptrendScenario(t *testing.T) {
	e := newTestEngine(t)

	var state *types.SystemState
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 0.5
		state = e.ProcessTick(trendBundle(int64(i+1)*1000, price))
	}

	if state.Regime.Type != types.RegimeTrendingBullish {
		t.Fatalf("regime = %s, want trending_bullish", state.Regime.Type)
	}

	var momentum *types.ActiveStrategy
	for _, a := range state.ActiveStrategies {
		if a.Template.Type == types.StrategyMomentumFollow {
			momentum = a
		}
	}
	if momentum == nil {
		t.Fatal("momentum-follow should be active in a sharp uptrend")
	}
	if momentum.Signal == nil || momentum.Signal.Direction != types.DirectionLong {
		t.Error("momentum-follow should signal long")
	}
}

func TestGammaSqueezeScenario(t *testing.T) {
	e := newTestEngine(t)

	var state *types.SystemState
	for i := 0; i < 10; i++ {
		state = e.ProcessTick(squeezeBundle(int64(i+1) * 1000))
	}

	if state.Regime.Type != types.RegimeGammaSqueeze {
		t.Fatalf("regime = %s, want gamma_squeeze", state.Regime.Type)
	}

	nearSpot := false
	for _, a := range state.Features.Pull.Attractors {
		if a.Price >= 99 && a.Price <= 101 {
			nearSpot = true
		}
	}
	if !nearSpot {
		t.Error("expected an attractor within 1% of spot")
	}

	found := false
	for _, a := range state.ActiveStrategies {
		if a.Template.Type == types.StrategyGammaScalp || a.Template.Type == types.StrategyFlowAlignment {
			found = true
		}
	}
	if !found {
		t.Error("gamma_scalp or flow_alignment should be active in a squeeze")
	}
}

func TestKillSwitchEmptiesApprovals(t *testing.T) {
	e := newTestEngine(t)
	e.Risk().ActivateKillSwitch("manual")

	price := 100.0
	var state *types.SystemState
	for i := 0; i < 40; i++ {
		price += 0.5
		state = e.ProcessTick(trendBundle(int64(i+1)*1000, price))
	}

	if len(state.Approved) != 0 || len(state.Results) != 0 {
		t.Error("tripped kill switch must suppress approvals and executions")
	}
	// Observation still flows.
	if state.Features == nil || len(state.Signals) == 0 {
		t.Error("features and signals must keep flowing for observation")
	}
}

func TestFillsMutatePortfolio(t *testing.T) {
	e := newTestEngine(t)

	price := 100.0
	filled := false
	for i := 0; i < 40 && !filled; i++ {
		price += 0.5
		state := e.ProcessTick(trendBundle(int64(i+1)*1000, price))
		for _, r := range state.Results {
			if r.Success {
				filled = true
			}
		}
	}
	if !filled {
		t.Fatal("expected at least one fill in a strong trend")
	}

	p := e.Portfolio()
	if len(p.Positions) == 0 {
		t.Fatal("fills should open positions")
	}
	if !p.Cash.LessThan(p.TotalValue) && len(p.Positions) > 0 {
		// Cash dropped by notional + fees, value returned via positions.
		t.Log("cash fully redeployed")
	}
	initial := DefaultConfig().InitialCash
	if p.Cash.InexactFloat64() >= initial {
		t.Error("cash should decrease after a fill")
	}
	if p.MarginUsed.Sign() <= 0 {
		t.Error("margin used should grow after a fill")
	}
}

func TestLearningProducesOutcomesAndPatterns(t *testing.T) {
	e := newTestEngine(t)

	price := 100.0
	var state *types.SystemState
	for i := 0; i < 40; i++ {
		price += 0.5
		state = e.ProcessTick(trendBundle(int64(i+1)*1000, price))
	}

	if state.Health.MemoryPatterns == 0 {
		t.Error("successful fills should store patterns")
	}
	if len(state.RecentOutcomes) == 0 {
		t.Error("successful fills should synthesize outcomes")
	}
	if len(state.LearningProgress) == 0 {
		t.Error("outcomes should produce learning progress")
	}
}

func TestLearningDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningEnabled = false
	e := NewEngine(zap.NewNop(), cfg)

	price := 100.0
	var state *types.SystemState
	for i := 0; i < 40; i++ {
		price += 0.5
		state = e.ProcessTick(trendBundle(int64(i+1)*1000, price))
	}

	if state.Health.MemoryPatterns != 0 || len(state.RecentOutcomes) != 0 {
		t.Error("learning disabled must keep memory and outcomes empty")
	}
}

func TestDeterministicReplay(t *testing.T) {
	run := func() []*types.SystemState {
		e := newTestEngine(t)
		states := make([]*types.SystemState, 0, 40)
		price := 100.0
		for i := 0; i < 40; i++ {
			price += 0.5
			states = append(states, e.ProcessTick(trendBundle(int64(i+1)*1000, price)))
		}
		return states
	}

	a := run()
	b := run()
	for i := range a {
		if a[i].Regime.Type != b[i].Regime.Type {
			t.Fatalf("tick %d regime differs", i)
		}
		if a[i].Coherence.Total != b[i].Coherence.Total {
			t.Fatalf("tick %d coherence differs", i)
		}
		if len(a[i].Results) != len(b[i].Results) {
			t.Fatalf("tick %d result count differs", i)
		}
		for j := range a[i].Results {
			if a[i].Results[j].Order.FillPrice != b[i].Results[j].Order.FillPrice ||
				a[i].Results[j].Slippage != b[i].Results[j].Slippage {
				t.Fatalf("tick %d result %d differs between same-seed runs", i, j)
			}
		}
		if !a[i].Portfolio.TotalValue.Equal(b[i].Portfolio.TotalValue) {
			t.Fatalf("tick %d portfolio value differs", i)
		}
	}
}

func TestHealthMetrics(t *testing.T) {
	e := newTestEngine(t)
	state := e.ProcessTick(flatBundle(1000))

	if state.Health.ProcessingTimeMs < 0 {
		t.Error("processing time must be non-negative")
	}
	if state.Health.ErrorRate < 0 || state.Health.ErrorRate > 1 {
		t.Errorf("error rate = %f out of [0,1]", state.Health.ErrorRate)
	}
	if e.LastState() != state {
		t.Error("last state should be retained")
	}
}
