// Package memory provides the fractal pattern store: normalized market
// fingerprints indexed by regime, outcome sign and hour bucket, with
// similarity retrieval and oldest-first eviction.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/ringbuf"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
	"github.com/resonance-desktop/fractal-backend/pkg/utils"
)

const (
	recentIDCapacity = 1000
	outcomeSliceSize = 50
)

const (
	bucketPositive = "positive"
	bucketNegative = "negative"
)

// Config configures the memory.
type Config struct {
	Capacity int // maximum stored patterns
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Capacity: 10000}
}

// Stats summarizes the store.
type Stats struct {
	TotalPatterns int                      `json:"totalPatterns"`
	Positive      int                      `json:"positive"`
	Negative      int                      `json:"negative"`
	ByRegime      map[types.RegimeType]int `json:"byRegime"`
}

// Memory is the indexed pattern store.
type Memory struct {
	logger *zap.Logger
	cfg    Config

	mu           sync.RWMutex
	patterns     map[string]*types.Pattern
	fingerprints map[string][]float64
	recent       *ringbuf.Ring[string]
	byRegime     map[types.RegimeType][]string
	byOutcome    map[string][]string
	byHour       map[int][]string
}

// NewMemory creates a pattern memory.
func NewMemory(logger *zap.Logger, cfg Config) *Memory {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &Memory{
		logger:       logger.Named("memory"),
		cfg:          cfg,
		patterns:     make(map[string]*types.Pattern),
		fingerprints: make(map[string][]float64),
		recent:       ringbuf.New[string](recentIDCapacity),
		byRegime:     make(map[types.RegimeType][]string),
		byOutcome:    make(map[string][]string),
		byHour:       make(map[int][]string),
	}
}

// Fingerprint builds the 13-dimension min-max-normalized feature vector.
func Fingerprint(f *types.StructuralFeatures, regime types.Regime) []float64 {
	raw := []float64{
		f.Prices.Momentum,
		f.Prices.TrendStrength,
		f.Volatility.Implied / 100,
		f.Volatility.Spread / 100,
		f.Volatility.Skew / 100,
		f.Pull.Direction,
		f.Pull.Magnitude,
		f.Liquidity.Imbalance,
		f.Liquidity.AbsorptionRate,
		f.Dealer.HedgingPressure,
		f.Dealer.Confidence,
		regime.Confidence,
		regime.TransitionProb,
	}
	for i, v := range raw {
		raw[i] = formulas.Finite(v)
	}
	return formulas.Normalize(raw)
}

// Store fingerprints the snapshot and inserts it with its outcome, evicting
// oldest patterns past capacity.
func (m *Memory) Store(f *types.StructuralFeatures, regime types.Regime, outcome types.TradeOutcome) *types.Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &types.Pattern{
		ID:          utils.GeneratePatternID(),
		Timestamp:   f.Timestamp,
		Fingerprint: Fingerprint(f, regime),
		Outcome:     outcome,
		Regime:      regime.Type,
		Similarity:  1,
	}
	m.insertLocked(p)
	m.evictLocked()

	m.logger.Debug("pattern stored",
		zap.String("id", p.ID),
		zap.String("regime", string(p.Regime)),
		zap.Int("total", len(m.patterns)),
	)
	return p
}

func (m *Memory) insertLocked(p *types.Pattern) {
	m.patterns[p.ID] = p
	m.fingerprints[p.ID] = p.Fingerprint
	m.recent.Append(p.ID)
	m.byRegime[p.Regime] = append(m.byRegime[p.Regime], p.ID)
	m.byOutcome[outcomeBucket(p)] = append(m.byOutcome[outcomeBucket(p)], p.ID)
	hour := time.UnixMilli(p.Timestamp).UTC().Hour()
	m.byHour[hour] = append(m.byHour[hour], p.ID)
}

func outcomeBucket(p *types.Pattern) string {
	if p.Outcome.PnL > 0 {
		return bucketPositive
	}
	return bucketNegative
}

// evictLocked removes oldest-by-timestamp patterns until within capacity,
// keeping every index consistent.
func (m *Memory) evictLocked() {
	for len(m.patterns) > m.cfg.Capacity {
		var oldest *types.Pattern
		for _, p := range m.patterns {
			if oldest == nil || p.Timestamp < oldest.Timestamp {
				oldest = p
			}
		}
		if oldest == nil {
			return
		}
		m.removeLocked(oldest)
	}
}

func (m *Memory) removeLocked(p *types.Pattern) {
	delete(m.patterns, p.ID)
	delete(m.fingerprints, p.ID)
	m.byRegime[p.Regime] = removeID(m.byRegime[p.Regime], p.ID)
	bucket := outcomeBucket(p)
	m.byOutcome[bucket] = removeID(m.byOutcome[bucket], p.ID)
	hour := time.UnixMilli(p.Timestamp).UTC().Hour()
	m.byHour[hour] = removeID(m.byHour[hour], p.ID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// RetrieveSimilar scores patterns by cosine similarity against the query
// fingerprint, preferring the same-regime bucket and falling back to the
// rest of the store when the bucket is thin.
func (m *Memory) RetrieveSimilar(fingerprint []float64, regime types.RegimeType, limit int) []types.Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []types.Pattern{}
	}

	scored := []types.Pattern{}
	seen := map[string]struct{}{}
	for _, id := range m.byRegime[regime] {
		seen[id] = struct{}{}
		scored = append(scored, m.scoredCopy(id, fingerprint))
	}
	if len(scored) < limit {
		for id := range m.patterns {
			if _, ok := seen[id]; ok {
				continue
			}
			scored = append(scored, m.scoredCopy(id, fingerprint))
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (m *Memory) scoredCopy(id string, fingerprint []float64) types.Pattern {
	p := *m.patterns[id]
	p.Similarity = formulas.Cosine(fingerprint, m.fingerprints[id])
	return p
}

// ByOutcome returns the most recent patterns in the positive or negative
// bucket, capped at 50.
func (m *Memory) ByOutcome(positive bool) []types.Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := bucketNegative
	if positive {
		bucket = bucketPositive
	}
	ids := m.byOutcome[bucket]
	if len(ids) > outcomeSliceSize {
		ids = ids[len(ids)-outcomeSliceSize:]
	}
	out := make([]types.Pattern, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.patterns[id])
	}
	return out
}

// ByRegime returns the patterns stored under a regime.
func (m *Memory) ByRegime(regime types.RegimeType) []types.Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byRegime[regime]
	out := make([]types.Pattern, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.patterns[id])
	}
	return out
}

// Stats aggregates the store contents.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		TotalPatterns: len(m.patterns),
		Positive:      len(m.byOutcome[bucketPositive]),
		Negative:      len(m.byOutcome[bucketNegative]),
		ByRegime:      make(map[types.RegimeType]int),
	}
	for regime, ids := range m.byRegime {
		if len(ids) > 0 {
			s.ByRegime[regime] = len(ids)
		}
	}
	return s
}

// patternRecord is the flat export shape.
type patternRecord struct {
	ID          string             `msgpack:"id"`
	Timestamp   int64              `msgpack:"ts"`
	Fingerprint []float64          `msgpack:"fp"`
	Regime      types.RegimeType   `msgpack:"regime"`
	Outcome     types.TradeOutcome `msgpack:"outcome"`
}

// ExportPatterns serializes the store as a flat sequence of records.
func (m *Memory) ExportPatterns() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]patternRecord, 0, len(m.patterns))
	ids := make([]string, 0, len(m.patterns))
	for id := range m.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := m.patterns[id]
		records = append(records, patternRecord{
			ID:          p.ID,
			Timestamp:   p.Timestamp,
			Fingerprint: p.Fingerprint,
			Regime:      p.Regime,
			Outcome:     p.Outcome,
		})
	}

	data, err := msgpack.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal patterns: %w", err)
	}
	return data, nil
}

// ImportPatterns loads a flat record sequence into the store, evicting past
// capacity as usual.
func (m *Memory) ImportPatterns(data []byte) error {
	var records []patternRecord
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("unmarshal patterns: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, exists := m.patterns[r.ID]; exists {
			continue
		}
		m.insertLocked(&types.Pattern{
			ID:          r.ID,
			Timestamp:   r.Timestamp,
			Fingerprint: r.Fingerprint,
			Outcome:     r.Outcome,
			Regime:      r.Regime,
			Similarity:  1,
		})
	}
	m.evictLocked()
	m.logger.Info("patterns imported", zap.Int("count", len(records)))
	return nil
}

// Clear drops every pattern and index.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.patterns = make(map[string]*types.Pattern)
	m.fingerprints = make(map[string][]float64)
	m.recent = ringbuf.New[string](recentIDCapacity)
	m.byRegime = make(map[types.RegimeType][]string)
	m.byOutcome = make(map[string][]string)
	m.byHour = make(map[int][]string)
}
