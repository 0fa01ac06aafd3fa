// Package execution simulates order execution against a predictable model:
// slippage prediction from history, fill-rate rolls by order type and
// urgency, modeled latency and square-root market impact.
package execution

import (
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/ringbuf"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
	"github.com/resonance-desktop/fractal-backend/pkg/utils"
)

const (
	resultHistoryCapacity   = 1000
	slippageHistoryCapacity = 100
	baseSlippage            = 0.0005
	feeRate                 = 0.0001 // 0.01% of notional
)

// Config configures the simulator.
type Config struct {
	Seed int64 // rng seed; a fixed seed makes runs reproducible
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Seed: 1}
}

// Simulator executes approved signals against the slippage model. All
// randomness flows through one seeded source so identical inputs replay
// identically.
type Simulator struct {
	logger *zap.Logger
	rng    *rand.Rand

	mu        sync.Mutex
	pending   map[string]*types.Order
	history   *ringbuf.Ring[types.ExecutionResult]
	slippages *ringbuf.Ring[float64]
	total     int64
	rejected  int64
}

// NewSimulator creates an execution simulator.
func NewSimulator(logger *zap.Logger, cfg Config) *Simulator {
	if cfg.Seed == 0 {
		cfg.Seed = DefaultConfig().Seed
	}
	return &Simulator{
		logger:    logger.Named("execution"),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		pending:   make(map[string]*types.Order),
		history:   ringbuf.New[types.ExecutionResult](resultHistoryCapacity),
		slippages: ringbuf.New[float64](slippageHistoryCapacity),
	}
}

// Simulate executes every approved signal and returns the results in input
// order. Latency is modeled in the result, not slept.
func (s *Simulator) Simulate(approved []types.ApprovedSignal, f *types.StructuralFeatures) []types.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]types.ExecutionResult, 0, len(approved))
	for _, a := range approved {
		res := s.execute(a, f)
		s.history.Append(res)
		results = append(results, res)
	}
	return results
}

func (s *Simulator) execute(a types.ApprovedSignal, f *types.StructuralFeatures) types.ExecutionResult {
	s.total++

	order := types.Order{
		ID:          utils.GenerateOrderID(),
		SignalID:    a.Signal.ID,
		Side:        sideFor(a.Signal.Direction),
		Type:        a.Constraints.OrderType,
		Size:        a.Size,
		Price:       a.Signal.Entry,
		Status:      types.OrderStatusPending,
		SubmittedAt: f.Timestamp,
	}
	s.pending[order.ID] = &order
	defer delete(s.pending, order.ID)

	predicted := s.predictSlippage(a, f)
	latency := 10 + s.rng.Float64()*50
	fillRate := s.rollFillRate(order.Type, a.Constraints.Urgency)

	if fillRate == 0 {
		order.Status = types.OrderStatusCancelled
		s.rejected++
		s.logger.Debug("order cancelled by fill roll", zap.String("order", order.ID))
		return types.ExecutionResult{
			Order:     order,
			LatencyMs: latency,
			Success:   false,
			Error:     "no fill within modeled window",
		}
	}

	slipSign := 1.0
	if order.Side == types.OrderSideSell {
		slipSign = -1
	}
	realizedSlip := predicted * (0.5 + s.rng.Float64())
	fillPrice := order.Price * (1 + slipSign*realizedSlip)

	order.FilledSize = order.Size * fillRate
	order.FillPrice = fillPrice
	order.Fees = order.FilledSize * feeRate
	order.FilledAt = f.Timestamp + int64(latency)
	if fillRate < 1 {
		order.Status = types.OrderStatusPartial
	} else {
		order.Status = types.OrderStatusFilled
	}

	s.slippages.Append(realizedSlip)

	return types.ExecutionResult{
		Order:        order,
		Slippage:     realizedSlip,
		LatencyMs:    latency,
		MarketImpact: marketImpact(order.FilledSize, f.Liquidity.Depth),
		Success:      true,
	}
}

// predictSlippage scales average historical slippage by order size,
// volatility and urgency.
func (s *Simulator) predictSlippage(a types.ApprovedSignal, f *types.StructuralFeatures) float64 {
	avg := baseSlippage
	if !s.slippages.Empty() {
		avg = ringbuf.Mean(s.slippages)
	}
	sizeAdj := 1 + 0.5*a.Size/(f.Liquidity.Depth+1)
	volAdj := 1 + f.Volatility.Implied/100
	urgencyMult := map[types.Urgency]float64{
		types.UrgencyHigh:   1.5,
		types.UrgencyMedium: 1.2,
		types.UrgencyLow:    1.0,
	}[a.Constraints.Urgency]
	return avg * sizeAdj * volAdj * urgencyMult
}

// rollFillRate draws the fill fraction from the order-type/urgency table.
func (s *Simulator) rollFillRate(ot types.OrderType, u types.Urgency) float64 {
	if ot == types.OrderTypeMarket {
		return 1
	}
	roll := s.rng.Float64()
	switch u {
	case types.UrgencyHigh:
		if roll < 0.9 {
			return 1
		}
		return 0.8
	case types.UrgencyMedium:
		if roll < 0.8 {
			return 1
		}
		return 0.7
	default: // low
		switch {
		case roll < 0.6:
			return 1
		case roll < 0.8:
			return 0.5
		default:
			return 0
		}
	}
}

// marketImpact models square-root impact of the filled notional against
// available depth.
func marketImpact(notional, depth float64) float64 {
	if notional <= 0 {
		return 0
	}
	return math.Sqrt(notional/1e6) * 1e-4 * (1 + notional/(depth+1))
}

// Stats reports the cumulative execution counters.
func (s *Simulator) Stats() (total, rejected int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.rejected
}

// History returns the most recent execution results, newest first.
func (s *Simulator) History(limit int) []types.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Last(limit)
}

func sideFor(d types.Direction) types.OrderSide {
	if d == types.DirectionShort {
		return types.OrderSideSell
	}
	return types.OrderSideBuy
}
