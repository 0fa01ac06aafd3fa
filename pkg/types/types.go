// Package types provides shared type definitions for the fractal trading core.
package types

import (
	"github.com/shopspring/decimal"
)

// Direction represents the directional bias of a signal or position.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// TimeInForce represents how long an order remains working.
type TimeInForce string

const (
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceDay TimeInForce = "day"
)

// Urgency represents execution urgency.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// RegimeType represents a market regime classification.
type RegimeType string

const (
	RegimeTrendingBullish RegimeType = "trending_bullish"
	RegimeTrendingBearish RegimeType = "trending_bearish"
	RegimeRangeBound      RegimeType = "range_bound"
	RegimeBreakout        RegimeType = "breakout"
	RegimeBreakdown       RegimeType = "breakdown"
	RegimeConsolidation   RegimeType = "consolidation"
	RegimeHighVolatility  RegimeType = "high_volatility"
	RegimeLowVolatility   RegimeType = "low_volatility"
	RegimeGammaSqueeze    RegimeType = "gamma_squeeze"
	RegimeMeanReversion   RegimeType = "mean_reversion"
)

// VolRegime labels the implied-volatility environment.
type VolRegime string

const (
	VolRegimeLow      VolRegime = "low"
	VolRegimeNormal   VolRegime = "normal"
	VolRegimeElevated VolRegime = "elevated"
	VolRegimeHigh     VolRegime = "high"
	VolRegimeExtreme  VolRegime = "extreme"
)

// TrendDirection labels the price trend.
type TrendDirection string

const (
	TrendUp       TrendDirection = "up"
	TrendDown     TrendDirection = "down"
	TrendSideways TrendDirection = "sideways"
)

// DealerFlow labels inferred dealer hedging flow.
type DealerFlow string

const (
	DealerFlowBuying  DealerFlow = "buying"
	DealerFlowSelling DealerFlow = "selling"
	DealerFlowNeutral DealerFlow = "neutral"
)

// WyckoffPhase labels the market phase.
type WyckoffPhase string

const (
	PhaseAccumulation WyckoffPhase = "accumulation"
	PhaseMarkup       WyckoffPhase = "markup"
	PhaseDistribution WyckoffPhase = "distribution"
	PhaseMarkdown     WyckoffPhase = "markdown"
)

// StrategyType tags a strategy template behavior.
type StrategyType string

const (
	StrategyGammaScalp       StrategyType = "gamma_scalp"
	StrategyMomentumFollow   StrategyType = "momentum_follow"
	StrategyMeanReversion    StrategyType = "mean_reversion"
	StrategyVolExpansion     StrategyType = "volatility_expansion"
	StrategyVolContraction   StrategyType = "volatility_contraction"
	StrategyLiquidityHunt    StrategyType = "liquidity_hunt"
	StrategyFlowAlignment    StrategyType = "flow_alignment"
	StrategyStructuralBreak  StrategyType = "structural_break"
	StrategyPatternRecog     StrategyType = "pattern_recognition"
	StrategyFractalResonance StrategyType = "fractal_resonance"
)

// FlipType labels the orientation of a gamma sign change, scanning strikes
// ascending within an expiry row.
type FlipType string

const (
	FlipPositiveToNegative FlipType = "positive_to_negative"
	FlipNegativeToPositive FlipType = "negative_to_positive"
)

// OptionRight represents call or put.
type OptionRight string

const (
	RightCall OptionRight = "call"
	RightPut  OptionRight = "put"
)

// Bar represents a single candlestick. Timestamps are Unix milliseconds.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Print represents a single executed trade observation.
type Print struct {
	Timestamp int64     `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      OrderSide `json:"side"`
}

// BookLevel represents a price level in the order book.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook represents an order book snapshot.
type OrderBook struct {
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

// OptionQuote represents one option contract observation in the chain.
type OptionQuote struct {
	Strike       float64     `json:"strike"`
	Expiry       int64       `json:"expiry"`
	Right        OptionRight `json:"right"`
	Bid          float64     `json:"bid"`
	Ask          float64     `json:"ask"`
	Last         float64     `json:"last"`
	Volume       float64     `json:"volume"`
	OpenInterest float64     `json:"openInterest"`
	ImpliedVol   float64     `json:"impliedVol"`
	Delta        float64     `json:"delta"`
	Gamma        float64     `json:"gamma"`
	Theta        float64     `json:"theta"`
	Vega         float64     `json:"vega"`
	Rho          float64     `json:"rho"`
}

// StreamFrame carries one timeframe's worth of raw observations.
type StreamFrame struct {
	Bars   []Bar      `json:"bars"`
	Prints []Print    `json:"prints"`
	Book   *OrderBook `json:"book,omitempty"`
}

// MarketBundle is the raw per-tick input to the pipeline.
type MarketBundle struct {
	Symbol    string        `json:"symbol"`
	Timestamp int64         `json:"timestamp"`
	Fast      StreamFrame   `json:"fast"`
	Slow      StreamFrame   `json:"slow"`
	Chain     []OptionQuote `json:"chain"`
}

// GammaSurface is the aggregated option gamma field across strikes and
// expiries. Values is indexed [expiry][strike].
type GammaSurface struct {
	Strikes  []float64   `json:"strikes"`
	Expiries []int64     `json:"expiries"`
	Values   [][]float64 `json:"values"`
	MinGamma float64     `json:"minGamma"`
	MaxGamma float64     `json:"maxGamma"`
	NetGamma float64     `json:"netGamma"`
}

// GammaFlip marks a sign change of the gamma surface along the strike axis.
type GammaFlip struct {
	Price    float64  `json:"price"`
	Strength float64  `json:"strength"`
	Type     FlipType `json:"type"`
	Expiry   int64    `json:"expiry"`
}

// Attractor is a gamma concentration treated as a price-attracting mass.
type Attractor struct {
	Price    float64 `json:"price"`
	Strength float64 `json:"strength"`
	Type     string  `json:"type"`
}

// GravitationalPull is the net inverse-square attraction of spot toward
// gamma concentrations.
type GravitationalPull struct {
	Direction  float64     `json:"direction"` // -1, 0, +1
	Magnitude  float64     `json:"magnitude"` // [0,1]
	Attractors []Attractor `json:"attractors"`
}

// LiquidityLevel annotates one book level with observed flow.
type LiquidityLevel struct {
	Price       float64   `json:"price"`
	Size        float64   `json:"size"`
	Side        OrderSide `json:"side"`
	FlowRate    float64   `json:"flowRate"`
	Persistence float64   `json:"persistence"`
}

// LiquidityMap summarizes the order book and recent flow.
type LiquidityMap struct {
	Levels         []LiquidityLevel `json:"levels"`
	Imbalance      float64          `json:"imbalance"` // [-1,1]
	Depth          float64          `json:"depth"`
	AbsorptionRate float64          `json:"absorptionRate"`
}

// VolatilityState summarizes the volatility environment. Historical, Implied,
// Spread, Skew and Term are in annualized percent; VolOfVol is a fraction.
type VolatilityState struct {
	Regime     VolRegime `json:"regime"`
	Historical float64   `json:"historical"`
	Implied    float64   `json:"implied"`
	Spread     float64   `json:"spread"`
	VolOfVol   float64   `json:"volOfVol"`
	Skew       float64   `json:"skew"`
	Term       float64   `json:"term"`
}

// DealerPositioning estimates dealer book exposure and hedging flow.
type DealerPositioning struct {
	NetGammaExposure float64    `json:"netGammaExposure"`
	NetDeltaExposure float64    `json:"netDeltaExposure"`
	HedgingPressure  float64    `json:"hedgingPressure"`
	Flow             DealerFlow `json:"flow"`
	Confidence       float64    `json:"confidence"`
}

// PriceHistory is the bounded window of recent closes plus derived trend.
type PriceHistory struct {
	Prices        []float64      `json:"prices"`
	Momentum      float64        `json:"momentum"`
	Trend         TrendDirection `json:"trend"`
	TrendStrength float64        `json:"trendStrength"`
}

// StructuralFeatures is the full perception output for one tick.
type StructuralFeatures struct {
	Timestamp    int64             `json:"timestamp"`
	Spot         float64           `json:"spot"`
	GammaSurface GammaSurface      `json:"gammaSurface"`
	GammaFlips   []GammaFlip       `json:"gammaFlips"`
	Pull         GravitationalPull `json:"pull"`
	Liquidity    LiquidityMap      `json:"liquidity"`
	Volatility   VolatilityState   `json:"volatility"`
	Dealer       DealerPositioning `json:"dealer"`
	Prices       PriceHistory      `json:"prices"`
}

// RegimeCharacteristics captures the qualitative shape of a regime.
type RegimeCharacteristics struct {
	Volatility VolRegime      `json:"volatility"`
	Trend      TrendDirection `json:"trend"`
	Momentum   float64        `json:"momentum"`
	Phase      WyckoffPhase   `json:"phase"`
}

// Regime is a classified market regime.
type Regime struct {
	Type            RegimeType            `json:"type"`
	Confidence      float64               `json:"confidence"`
	Duration        int                   `json:"duration"`
	TransitionProb  float64               `json:"transitionProb"`
	Characteristics RegimeCharacteristics `json:"characteristics"`
}

// CoherenceScore is the composed multi-dimensional coherence measure.
// All sub-scores are in [0,1]; Total is the fixed-weight sum.
type CoherenceScore struct {
	Total           float64            `json:"total"`
	Structural      float64            `json:"structural"`
	RegimeAlignment float64            `json:"regimeAlignment"`
	Temporal        float64            `json:"temporal"`
	Fractal         float64            `json:"fractal"`
	Convergence     float64            `json:"convergence"`
	Confidence      float64            `json:"confidence"`
	Components      map[string]float64 `json:"components"`
}

// StrategyTemplate is an immutable strategy descriptor.
type StrategyTemplate struct {
	ID                  string             `json:"id"`
	Type                StrategyType       `json:"type"`
	Name                string             `json:"name"`
	ValidRegimes        []RegimeType       `json:"validRegimes"`
	ActivationThreshold float64            `json:"activationThreshold"`
	Parameters          map[string]float64 `json:"parameters"`
	ExpectedWinRate     float64            `json:"expectedWinRate"`
	RiskReward          float64            `json:"riskReward"`
	Timeframe           string             `json:"timeframe"`
}

// HasRegime reports whether the template is valid in the given regime.
func (t StrategyTemplate) HasRegime(r RegimeType) bool {
	for _, v := range t.ValidRegimes {
		if v == r {
			return true
		}
	}
	return false
}

// StrategyPerformance is a running performance record for one strategy.
type StrategyPerformance struct {
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"winRate"`
	AvgPnLPct  float64 `json:"avgPnlPct"`
	LastUpdate int64   `json:"lastUpdate"`
}

// StrategyContext snapshots the conditions a strategy was activated under.
type StrategyContext struct {
	Regime    RegimeType `json:"regime"`
	Coherence float64    `json:"coherence"`
	Spot      float64    `json:"spot"`
}

// ActiveStrategy is a template activated against current conditions.
type ActiveStrategy struct {
	Template    StrategyTemplate    `json:"template"`
	Activation  float64             `json:"activation"`
	Parameters  map[string]float64  `json:"parameters"`
	Context     StrategyContext     `json:"context"`
	Signal      *Signal             `json:"signal,omitempty"`
	Performance StrategyPerformance `json:"performance"`
	Active      bool                `json:"active"`
}

// SignalContext is the compact structural context attached to a signal.
type SignalContext struct {
	GammaLevel       float64    `json:"gammaLevel"`
	LiquiditySupport float64    `json:"liquiditySupport"`
	Volatility       VolRegime  `json:"volatility"`
	DealerFlow       DealerFlow `json:"dealerFlow"`
}

// Signal is a directional trading signal produced by a strategy.
type Signal struct {
	ID         string        `json:"id"`
	StrategyID string        `json:"strategyId"`
	Direction  Direction     `json:"direction"`
	Strength   float64       `json:"strength"`
	Confidence float64       `json:"confidence"`
	Entry      float64       `json:"entry"`
	Stop       float64       `json:"stop"`
	Targets    []float64     `json:"targets"`
	Timeframe  string        `json:"timeframe"`
	Rationale  string        `json:"rationale"`
	Context    SignalContext `json:"context"`
	Timestamp  int64         `json:"timestamp"`
}

// RiskMetrics quantifies the risk of an approved signal.
type RiskMetrics struct {
	Correlation     float64 `json:"correlation"`
	GammaExposure   float64 `json:"gammaExposure"`
	VarContribution float64 `json:"varContribution"`
	MaxLoss         float64 `json:"maxLoss"`
	MarginRequired  float64 `json:"marginRequired"`
}

// ExecutionConstraints bound how an approved signal may be executed.
type ExecutionConstraints struct {
	MaxSlippage  float64     `json:"maxSlippage"`
	Urgency      Urgency     `json:"urgency"`
	OrderType    OrderType   `json:"orderType"`
	IcebergRatio float64     `json:"icebergRatio"`
	TimeInForce  TimeInForce `json:"timeInForce"`
}

// ApprovedSignal is a signal that passed risk governance, sized in notional
// currency terms.
type ApprovedSignal struct {
	Signal      Signal               `json:"signal"`
	Size        float64              `json:"size"`
	Risk        RiskMetrics          `json:"risk"`
	Constraints ExecutionConstraints `json:"constraints"`
	RiskScore   float64              `json:"riskScore"`
}

// Order represents a simulated trading order. Size is notional currency.
type Order struct {
	ID          string      `json:"id"`
	SignalID    string      `json:"signalId"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Size        float64     `json:"size"`
	Price       float64     `json:"price"`
	Status      OrderStatus `json:"status"`
	FilledSize  float64     `json:"filledSize"`
	FillPrice   float64     `json:"fillPrice"`
	Fees        float64     `json:"fees"`
	SubmittedAt int64       `json:"submittedAt"`
	FilledAt    int64       `json:"filledAt,omitempty"`
}

// ExecutionResult wraps an order with realized execution quality.
type ExecutionResult struct {
	Order        Order   `json:"order"`
	Slippage     float64 `json:"slippage"`
	LatencyMs    float64 `json:"latencyMs"`
	MarketImpact float64 `json:"marketImpact"`
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
}

// Position represents an open position. Money fields are decimal.
type Position struct {
	ID           string          `json:"id"`
	StrategyID   string          `json:"strategyId"`
	Side         Direction       `json:"side"`
	Units        decimal.Decimal `json:"units"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	OpenedAt     int64           `json:"openedAt"`
}

// Portfolio is the account state owned by the orchestrator.
type Portfolio struct {
	Positions       []Position      `json:"positions"`
	Cash            decimal.Decimal `json:"cash"`
	MarginUsed      decimal.Decimal `json:"marginUsed"`
	MarginAvailable decimal.Decimal `json:"marginAvailable"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	RealizedPnL     decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealizedPnl"`
	DailyPnL        decimal.Decimal `json:"dailyPnl"`
	MaxDrawdown     decimal.Decimal `json:"maxDrawdown"`
	CurrentDrawdown decimal.Decimal `json:"currentDrawdown"`
	UpdatedAt       int64           `json:"updatedAt"`
}

// Clone returns a deep copy suitable for handing to other subsystems.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Positions = make([]Position, len(p.Positions))
	copy(cp.Positions, p.Positions)
	return &cp
}

// TradeOutcome is the synthesized result of one completed trade.
type TradeOutcome struct {
	TradeID          string              `json:"tradeId"`
	StrategyID       string              `json:"strategyId"`
	EntryPrice       float64             `json:"entryPrice"`
	ExitPrice        float64             `json:"exitPrice"`
	Size             float64             `json:"size"`
	PnL              float64             `json:"pnl"`
	PnLPercent       float64             `json:"pnlPercent"`
	HoldingPeriodMs  int64               `json:"holdingPeriodMs"`
	MaxDrawdown      float64             `json:"maxDrawdown"`
	MaxRunup         float64             `json:"maxRunup"`
	EntryFeatures    *StructuralFeatures `json:"entryFeatures,omitempty"`
	ExitFeatures     *StructuralFeatures `json:"exitFeatures,omitempty"`
	Correct          bool                `json:"correct"`
	ExecutionQuality float64             `json:"executionQuality"`
	Timestamp        int64               `json:"timestamp"`
}

// Pattern is a stored market fingerprint with its outcome.
type Pattern struct {
	ID          string       `json:"id"`
	Timestamp   int64        `json:"timestamp"`
	Fingerprint []float64    `json:"fingerprint"`
	Outcome     TradeOutcome `json:"outcome"`
	Regime      RegimeType   `json:"regime"`
	Similarity  float64      `json:"similarity"`
}

// LearningProgress is the per-strategy performance rollup.
type LearningProgress struct {
	StrategyID        string  `json:"strategyId"`
	Trades            int     `json:"trades"`
	WinRate           float64 `json:"winRate"`
	ProfitFactor      float64 `json:"profitFactor"`
	SharpeRatio       float64 `json:"sharpeRatio"`
	MaxDrawdown       float64 `json:"maxDrawdown"`
	RecentPerformance float64 `json:"recentPerformance"`
	AdaptationScore   float64 `json:"adaptationScore"`
}

// StrategyEvolution records one parameter-adjustment version of a strategy.
type StrategyEvolution struct {
	StrategyID string             `json:"strategyId"`
	Version    int                `json:"version"`
	Parameters map[string]float64 `json:"parameters"`
	Reason     string             `json:"reason"`
	Timestamp  int64              `json:"timestamp"`
}

// ParameterSuggestion is a learning-produced parameter adjustment.
type ParameterSuggestion struct {
	StrategyID string  `json:"strategyId"`
	Parameter  string  `json:"parameter"`
	Current    float64 `json:"current"`
	Suggested  float64 `json:"suggested"`
	Reason     string  `json:"reason"`
	Timestamp  int64   `json:"timestamp"`
}

// HealthMetrics reports per-tick pipeline health.
type HealthMetrics struct {
	DataLatencyMs    int64   `json:"dataLatencyMs"`
	ProcessingTimeMs float64 `json:"processingTimeMs"`
	MemoryPatterns   int     `json:"memoryPatterns"`
	ErrorRate        float64 `json:"errorRate"`
}

// SystemState is the complete output of one pipeline tick.
type SystemState struct {
	Features         *StructuralFeatures `json:"features"`
	Regime           Regime              `json:"regime"`
	Coherence        CoherenceScore      `json:"coherence"`
	ActiveStrategies []*ActiveStrategy   `json:"activeStrategies"`
	Signals          []Signal            `json:"signals"`
	Approved         []ApprovedSignal    `json:"approved"`
	Results          []ExecutionResult   `json:"results"`
	Portfolio        *Portfolio          `json:"portfolio"`
	RecentOutcomes   []TradeOutcome      `json:"recentOutcomes"`
	LearningProgress []LearningProgress  `json:"learningProgress"`
	Evolution        []StrategyEvolution `json:"evolution"`
	Timestamp        int64               `json:"timestamp"`
	Health           HealthMetrics       `json:"health"`
}
