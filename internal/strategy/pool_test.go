package strategy

import (
	"testing"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/internal/meta"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

func newPool(t *testing.T) *Pool {
	t.Helper()
	return NewPool(zap.NewNop(), DefaultConfig())
}

func trendingFeatures() *types.StructuralFeatures {
	return &types.StructuralFeatures{
		Timestamp: 1000,
		Spot:      100,
		Volatility: types.VolatilityState{
			Regime:  types.VolRegimeNormal,
			Implied: 20,
		},
		Prices: types.PriceHistory{
			Momentum:      0.03,
			Trend:         types.TrendUp,
			TrendStrength: 0.8,
		},
	}
}

func trendingRegime() types.Regime {
	return types.Regime{
		Type:       types.RegimeTrendingBullish,
		Confidence: 0.9,
		Characteristics: types.RegimeCharacteristics{
			Volatility: types.VolRegimeNormal,
			Trend:      types.TrendUp,
			Momentum:   0.03,
			Phase:      types.PhaseMarkup,
		},
	}
}

func strongCoherence() types.CoherenceScore {
	c := meta.Neutral()
	c.Total = 0.8
	c.Confidence = 0.9
	return c
}

func TestActivationRespectsValidRegimes(t *testing.T) {
	p := newPool(t)
	active := p.Activate(trendingFeatures(), trendingRegime(), strongCoherence())

	if len(active) == 0 {
		t.Fatal("expected activations in a high-confidence trending regime")
	}
	for _, a := range active {
		if !a.Template.HasRegime(types.RegimeTrendingBullish) {
			t.Errorf("strategy %s active outside its valid regimes", a.Template.ID)
		}
		if a.Activation < 0 || a.Activation > 1 {
			t.Errorf("activation = %f out of [0,1]", a.Activation)
		}
	}
}

func TestMomentumFollowSignalsLong(t *testing.T) {
	p := newPool(t)
	active := p.Activate(trendingFeatures(), trendingRegime(), strongCoherence())

	var mf *types.ActiveStrategy
	for _, a := range active {
		if a.Template.Type == types.StrategyMomentumFollow {
			mf = a
		}
	}
	if mf == nil {
		t.Fatal("momentum-follow should activate in a strong trend")
	}
	if mf.Signal == nil {
		t.Fatal("momentum-follow should produce a signal")
	}
	if mf.Signal.Direction != types.DirectionLong {
		t.Errorf("direction = %s, want long", mf.Signal.Direction)
	}
	if mf.Signal.Stop >= mf.Signal.Entry {
		t.Error("long stop should sit below entry")
	}
	if len(mf.Signal.Targets) == 0 || mf.Signal.Targets[0] <= mf.Signal.Entry {
		t.Error("long target should sit above entry")
	}
}

func TestCoherenceConfidenceCapsActiveSet(t *testing.T) {
	p := newPool(t)
	weak := meta.Neutral()
	weak.Total = 0.9 // scoring input stays high
	weak.Confidence = 0.05

	active := p.Activate(trendingFeatures(), trendingRegime(), weak)
	// floor(20 * 0.05) = 1
	if len(active) > 1 {
		t.Errorf("active = %d, want <= 1 at confidence 0.05", len(active))
	}

	zero := meta.Neutral()
	zero.Confidence = 0
	if got := p.Activate(trendingFeatures(), trendingRegime(), zero); len(got) != 0 {
		t.Errorf("active = %d, want 0 at zero confidence", len(got))
	}
}

func TestVolatilityAdaptsParameters(t *testing.T) {
	f := trendingFeatures()
	f.Volatility.Regime = types.VolRegimeHigh

	p := newPool(t)
	active := p.Activate(f, trendingRegime(), strongCoherence())
	if len(active) == 0 {
		t.Fatal("expected activations")
	}
	for _, a := range active {
		base := a.Template.Parameters
		if v, ok := base["stopLoss"]; ok {
			if a.Parameters["stopLoss"] != v*0.5 {
				t.Errorf("stopLoss = %f, want %f halved in high vol", a.Parameters["stopLoss"], v*0.5)
			}
		}
		if v, ok := base["minMomentum"]; ok {
			if a.Parameters["minMomentum"] != v {
				t.Error("threshold parameters must not be vol-scaled")
			}
		}
	}
}

func TestNoSignalWhenNeutral(t *testing.T) {
	f := trendingFeatures()
	f.Prices.Momentum = 0
	f.Prices.Trend = types.TrendSideways
	f.Prices.TrendStrength = 0.1

	regime := types.Regime{
		Type:       types.RegimeRangeBound,
		Confidence: 0.9,
		Characteristics: types.RegimeCharacteristics{
			Trend: types.TrendSideways,
		},
	}

	p := newPool(t)
	active := p.Activate(f, regime, strongCoherence())
	for _, a := range active {
		if a.Signal != nil && a.Signal.Direction == types.DirectionNeutral {
			t.Errorf("strategy %s emitted a neutral signal", a.Template.ID)
		}
	}
}

func TestRecentPerformanceFeedback(t *testing.T) {
	p := newPool(t)
	if got := p.recentPerformance("momentum-follow-1"); got != 0.5 {
		t.Errorf("empty history performance = %f, want 0.5", got)
	}

	for i := 0; i < 10; i++ {
		p.RecordOutcome("momentum-follow-1", 0.02, int64(i))
	}
	if got := p.recentPerformance("momentum-follow-1"); got <= 0.5 {
		t.Errorf("winning history performance = %f, want > 0.5", got)
	}

	for i := 0; i < 100; i++ {
		p.RecordOutcome("momentum-follow-1", -0.05, int64(i))
	}
	if got := p.recentPerformance("momentum-follow-1"); got >= 0.5 {
		t.Errorf("losing history performance = %f, want < 0.5", got)
	}
}

func TestTemplateRegistration(t *testing.T) {
	p := newPool(t)
	if len(p.Templates()) != 10 {
		t.Fatalf("default templates = %d, want 10", len(p.Templates()))
	}

	p.AddTemplate(types.StrategyTemplate{
		ID:                  "custom-1",
		Type:                types.StrategyMomentumFollow,
		ValidRegimes:        []types.RegimeType{types.RegimeBreakout},
		ActivationThreshold: 0.5,
		Parameters:          map[string]float64{"trailingStop": 0.01, "targetMultiple": 2, "minMomentum": 0.01, "minTrendStrength": 0.5},
	})
	if len(p.Templates()) != 11 {
		t.Error("AddTemplate should register")
	}
	p.RemoveTemplate("custom-1")
	if len(p.Templates()) != 10 {
		t.Error("RemoveTemplate should unregister")
	}
}
