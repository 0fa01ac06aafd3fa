package perception

import (
	"math"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

const (
	flowRateProximity = 0.001 // prints within 0.1% of a level feed its flow
	depthProximity    = 0.01  // depth counts size within 1% of mid
	absorptionPrints  = 100
)

// buildLiquidityMap annotates every book level with observed trade flow and
// summarizes imbalance, depth near mid and the absorption rate.
func buildLiquidityMap(book *types.OrderBook, prints []types.Print) types.LiquidityMap {
	m := types.LiquidityMap{Levels: []types.LiquidityLevel{}}
	if book == nil || (len(book.Bids) == 0 && len(book.Asks) == 0) {
		return m
	}

	var bidVol, askVol, totalVol float64
	for _, l := range book.Bids {
		bidVol += l.Size
		m.Levels = append(m.Levels, annotateLevel(l, types.OrderSideBuy, prints))
	}
	for _, l := range book.Asks {
		askVol += l.Size
		m.Levels = append(m.Levels, annotateLevel(l, types.OrderSideSell, prints))
	}
	totalVol = bidVol + askVol

	if totalVol > 0 {
		m.Imbalance = formulas.Clamp((bidVol-askVol)/totalVol, -1, 1)
	}

	mid := midPrice(book)
	if mid > 0 {
		for _, l := range m.Levels {
			if math.Abs(l.Price-mid)/mid <= depthProximity {
				m.Depth += l.Size
			}
		}
	}

	if totalVol > 0 {
		recent := prints
		if len(recent) > absorptionPrints {
			recent = recent[len(recent)-absorptionPrints:]
		}
		traded := 0.0
		for _, p := range recent {
			traded += p.Size
		}
		m.AbsorptionRate = traded / totalVol
	}
	return m
}

// annotateLevel computes the flow rate (traded size near the level) and a
// persistence estimate (resting size relative to resting plus traded).
func annotateLevel(l types.BookLevel, side types.OrderSide, prints []types.Print) types.LiquidityLevel {
	flow := 0.0
	for _, p := range prints {
		if l.Price > 0 && math.Abs(p.Price-l.Price)/l.Price <= flowRateProximity {
			flow += p.Size
		}
	}
	persistence := 1.0
	if l.Size+flow > 0 {
		persistence = l.Size / (l.Size + flow)
	}
	return types.LiquidityLevel{
		Price:       l.Price,
		Size:        l.Size,
		Side:        side,
		FlowRate:    flow,
		Persistence: persistence,
	}
}

func midPrice(book *types.OrderBook) float64 {
	switch {
	case len(book.Bids) > 0 && len(book.Asks) > 0:
		return (book.Bids[0].Price + book.Asks[0].Price) / 2
	case len(book.Bids) > 0:
		return book.Bids[0].Price
	case len(book.Asks) > 0:
		return book.Asks[0].Price
	default:
		return 0
	}
}

// dealerPositioning infers the dealer book from the chain: dealers are short
// what retail is long, so net delta exposure is the negated chain delta.
func dealerPositioning(s types.GammaSurface, chain []types.OptionQuote) types.DealerPositioning {
	d := types.DealerPositioning{
		NetGammaExposure: s.NetGamma,
		HedgingPressure:  -s.NetGamma * 0.01,
		Flow:             types.DealerFlowNeutral,
	}
	if len(chain) == 0 {
		return d
	}

	var totalOI, putVol, callVol float64
	for _, q := range chain {
		d.NetDeltaExposure -= q.Delta * q.OpenInterest * contractMultiplier
		totalOI += q.OpenInterest
		if q.Right == types.RightPut {
			putVol += q.Volume
		} else {
			callVol += q.Volume
		}
	}

	if callVol > 0 {
		ratio := putVol / callVol
		switch {
		case ratio < 0.7:
			d.Flow = types.DealerFlowBuying
		case ratio > 1.3:
			d.Flow = types.DealerFlowSelling
		}
	}

	d.Confidence = formulas.Clamp(totalOI/100000, 0, 1)
	return d
}
