package execution

import (
	"testing"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

func approvedMarket(id string, size float64) types.ApprovedSignal {
	return types.ApprovedSignal{
		Signal: types.Signal{
			ID:        id,
			Direction: types.DirectionLong,
			Entry:     100,
			Stop:      99,
			Targets:   []float64{102},
		},
		Size: size,
		Constraints: types.ExecutionConstraints{
			OrderType:   types.OrderTypeMarket,
			Urgency:     types.UrgencyHigh,
			MaxSlippage: 0.002,
			TimeInForce: types.TimeInForceIOC,
		},
	}
}

func execFeatures() *types.StructuralFeatures {
	return &types.StructuralFeatures{
		Timestamp: 5000,
		Spot:      100,
		Volatility: types.VolatilityState{
			Regime:  types.VolRegimeNormal,
			Implied: 20,
		},
		Liquidity: types.LiquidityMap{Depth: 10000},
	}
}

func TestMarketOrderAlwaysFills(t *testing.T) {
	s := NewSimulator(zap.NewNop(), Config{Seed: 7})
	results := s.Simulate([]types.ApprovedSignal{approvedMarket("sig_1", 5000)}, execFeatures())

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if !r.Success {
		t.Fatalf("market order failed: %s", r.Error)
	}
	if r.Order.Status != types.OrderStatusFilled {
		t.Errorf("status = %s, want filled", r.Order.Status)
	}
	if r.Order.FilledSize != 5000 {
		t.Errorf("filled = %f, want full size", r.Order.FilledSize)
	}
	if r.Order.FillPrice <= r.Order.Price {
		t.Error("buy fill should pay up through slippage")
	}
	if r.Order.Fees != 5000*feeRate {
		t.Errorf("fees = %f, want %f", r.Order.Fees, 5000*feeRate)
	}
	if r.LatencyMs < 10 || r.LatencyMs > 60 {
		t.Errorf("latency = %f, want [10, 60]", r.LatencyMs)
	}
	if r.Order.FilledAt <= r.Order.SubmittedAt {
		t.Error("fill time should follow submission")
	}
}

func TestSellSlippageDirection(t *testing.T) {
	s := NewSimulator(zap.NewNop(), Config{Seed: 7})
	a := approvedMarket("sig_1", 1000)
	a.Signal.Direction = types.DirectionShort

	r := s.Simulate([]types.ApprovedSignal{a}, execFeatures())[0]
	if r.Order.Side != types.OrderSideSell {
		t.Errorf("side = %s, want sell", r.Order.Side)
	}
	if r.Order.FillPrice >= r.Order.Price {
		t.Error("sell fill should concede price through slippage")
	}
}

func TestDeterministicReplay(t *testing.T) {
	run := func() []types.ExecutionResult {
		s := NewSimulator(zap.NewNop(), Config{Seed: 99})
		batch := []types.ApprovedSignal{
			approvedMarket("sig_1", 5000),
			approvedMarket("sig_2", 2000),
		}
		batch[1].Constraints.OrderType = types.OrderTypeLimit
		batch[1].Constraints.Urgency = types.UrgencyLow
		return s.Simulate(batch, execFeatures())
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatal("replay length mismatch")
	}
	for i := range a {
		if a[i].Slippage != b[i].Slippage ||
			a[i].LatencyMs != b[i].LatencyMs ||
			a[i].Order.FillPrice != b[i].Order.FillPrice ||
			a[i].Order.Status != b[i].Order.Status {
			t.Errorf("result %d differs between same-seed runs", i)
		}
	}
}

func TestLimitLowUrgencyCanCancel(t *testing.T) {
	s := NewSimulator(zap.NewNop(), Config{Seed: 3})
	sawCancel := false
	for i := 0; i < 50; i++ {
		a := approvedMarket("sig", 1000)
		a.Constraints.OrderType = types.OrderTypeLimit
		a.Constraints.Urgency = types.UrgencyLow
		r := s.Simulate([]types.ApprovedSignal{a}, execFeatures())[0]
		if !r.Success {
			if r.Order.Status != types.OrderStatusCancelled {
				t.Errorf("failed order status = %s, want cancelled", r.Order.Status)
			}
			if r.Error == "" {
				t.Error("failed order should carry an error")
			}
			sawCancel = true
		}
	}
	if !sawCancel {
		t.Error("low-urgency limit orders should sometimes cancel")
	}

	total, rejected := s.Stats()
	if total != 50 {
		t.Errorf("total = %d, want 50", total)
	}
	if rejected == 0 {
		t.Error("rejected counter should track cancels")
	}
}

func TestMarketImpactGrowsWithSize(t *testing.T) {
	small := marketImpact(1000, 10000)
	large := marketImpact(100000, 10000)
	if large <= small {
		t.Error("impact should grow with notional")
	}
	if marketImpact(0, 10000) != 0 {
		t.Error("zero notional has zero impact")
	}
}

func TestHistoryBounded(t *testing.T) {
	s := NewSimulator(zap.NewNop(), Config{Seed: 5})
	for i := 0; i < 1100; i++ {
		s.Simulate([]types.ApprovedSignal{approvedMarket("sig", 100)}, execFeatures())
	}
	if got := len(s.History(2000)); got != 1000 {
		t.Errorf("history = %d, want capped at 1000", got)
	}
}
