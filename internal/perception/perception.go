// Package perception transforms raw market bundles into structural features:
// the gamma surface and its flips, gravitational pull, the liquidity map,
// the volatility state, dealer positioning and the price history.
package perception

import (
	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/ringbuf"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

// Config configures the perception engine.
type Config struct {
	BufferCapacity int // capacity of the price/volume/vol buffers
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BufferCapacity: 1000}
}

// Engine owns the bounded observation buffers and produces one structural
// feature snapshot per bundle. Missing inputs degrade to sentinel defaults;
// a tick never fails.
type Engine struct {
	logger *zap.Logger
	cfg    Config

	prices      *ringbuf.Ring[float64]
	volumes     *ringbuf.Ring[float64]
	realizedVol *ringbuf.Ring[float64]
}

// NewEngine creates a perception engine.
func NewEngine(logger *zap.Logger, cfg Config) *Engine {
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultConfig().BufferCapacity
	}
	return &Engine{
		logger:      logger.Named("perception"),
		cfg:         cfg,
		prices:      ringbuf.New[float64](cfg.BufferCapacity),
		volumes:     ringbuf.New[float64](cfg.BufferCapacity),
		realizedVol: ringbuf.New[float64](cfg.BufferCapacity),
	}
}

// Perceive ingests one bundle and returns the structural feature snapshot.
func (e *Engine) Perceive(b *types.MarketBundle) *types.StructuralFeatures {
	spot := e.extractSpot(b)
	if spot > 0 {
		e.prices.Append(spot)
	}
	if n := len(b.Fast.Bars); n > 0 {
		e.volumes.Append(b.Fast.Bars[n-1].Volume)
	}

	surface := buildGammaSurface(b.Chain)
	vol := e.volatilityState(b.Chain)
	e.realizedVol.Append(vol.Historical / 100)
	vol.VolOfVol = formulas.Finite(formulas.StdDev(e.realizedVol.Values()))

	f := &types.StructuralFeatures{
		Timestamp:    b.Timestamp,
		Spot:         spot,
		GammaSurface: surface,
		GammaFlips:   findGammaFlips(surface),
		Pull:         gravitationalPull(surface, spot),
		Liquidity:    buildLiquidityMap(b.Fast.Book, b.Fast.Prints),
		Volatility:   vol,
		Dealer:       dealerPositioning(surface, b.Chain),
		Prices:       e.priceHistory(),
	}
	sanitize(f)

	e.logger.Debug("features produced",
		zap.Float64("spot", spot),
		zap.Int("flips", len(f.GammaFlips)),
		zap.Float64("netGamma", surface.NetGamma),
		zap.String("volRegime", string(vol.Regime)),
	)
	return f
}

// extractSpot resolves the current spot price: last fast close, then last
// print, then the newest buffered price.
func (e *Engine) extractSpot(b *types.MarketBundle) float64 {
	if n := len(b.Fast.Bars); n > 0 {
		return b.Fast.Bars[n-1].Close
	}
	if n := len(b.Fast.Prints); n > 0 {
		return b.Fast.Prints[n-1].Price
	}
	if !e.prices.Empty() {
		return e.prices.At(e.prices.Len() - 1)
	}
	return 0
}

// priceHistory derives momentum and trend from the price buffer.
func (e *Engine) priceHistory() types.PriceHistory {
	closes := e.prices.Values()
	h := types.PriceHistory{Prices: closes, Trend: types.TrendSideways}
	if len(closes) < 2 {
		return h
	}

	ema10 := formulas.EMA(closes, 10)
	ema30 := formulas.EMA(closes, 30)
	fast := ema10[len(ema10)-1]
	slow := ema30[len(ema30)-1]
	if slow != 0 {
		h.Momentum = formulas.Finite((fast - slow) / slow)
	}

	switch {
	case h.Momentum > 0.005:
		h.Trend = types.TrendUp
	case h.Momentum < -0.005:
		h.Trend = types.TrendDown
	}

	lo := ringbuf.Min(e.prices)
	hi := ringbuf.Max(e.prices)
	half := (hi - lo) / 2
	if half > 0 {
		mid := (hi + lo) / 2
		h.TrendStrength = formulas.Clamp(
			formulas.Finite((closes[len(closes)-1]-mid)/half), -1, 1)
		if h.TrendStrength < 0 {
			h.TrendStrength = -h.TrendStrength
		}
	}
	return h
}

// sanitize enforces the finite-output contract on every scalar field.
func sanitize(f *types.StructuralFeatures) {
	f.Spot = formulas.Finite(f.Spot)
	f.GammaSurface.MinGamma = formulas.Finite(f.GammaSurface.MinGamma)
	f.GammaSurface.MaxGamma = formulas.Finite(f.GammaSurface.MaxGamma)
	f.GammaSurface.NetGamma = formulas.Finite(f.GammaSurface.NetGamma)
	f.Pull.Direction = formulas.Finite(f.Pull.Direction)
	f.Pull.Magnitude = formulas.Finite(f.Pull.Magnitude)
	f.Liquidity.Imbalance = formulas.Finite(f.Liquidity.Imbalance)
	f.Liquidity.Depth = formulas.Finite(f.Liquidity.Depth)
	f.Liquidity.AbsorptionRate = formulas.Finite(f.Liquidity.AbsorptionRate)
	f.Volatility.Historical = formulas.Finite(f.Volatility.Historical)
	f.Volatility.Implied = formulas.Finite(f.Volatility.Implied)
	f.Volatility.Spread = formulas.Finite(f.Volatility.Spread)
	f.Volatility.VolOfVol = formulas.Finite(f.Volatility.VolOfVol)
	f.Volatility.Skew = formulas.Finite(f.Volatility.Skew)
	f.Volatility.Term = formulas.Finite(f.Volatility.Term)
	f.Dealer.NetGammaExposure = formulas.Finite(f.Dealer.NetGammaExposure)
	f.Dealer.NetDeltaExposure = formulas.Finite(f.Dealer.NetDeltaExposure)
	f.Dealer.HedgingPressure = formulas.Finite(f.Dealer.HedgingPressure)
	f.Dealer.Confidence = formulas.Finite(f.Dealer.Confidence)
	f.Prices.Momentum = formulas.Finite(f.Prices.Momentum)
	f.Prices.TrendStrength = formulas.Finite(f.Prices.TrendStrength)
}
