package perception

import (
	"math"
	"sort"

	"github.com/resonance-desktop/fractal-backend/pkg/formulas"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

const (
	contractMultiplier = 100
	maxAttractors      = 10
	attractorFraction  = 0.1 // of the surface's gamma range
)

// buildGammaSurface aggregates gamma * openInterest * 100 per strike/expiry
// cell. Strikes and expiries come out strictly ascending and the value
// matrix dimensions always equal their cross product.
func buildGammaSurface(chain []types.OptionQuote) types.GammaSurface {
	s := types.GammaSurface{
		Strikes:  []float64{},
		Expiries: []int64{},
		Values:   [][]float64{},
	}
	if len(chain) == 0 {
		return s
	}

	strikeSet := map[float64]struct{}{}
	expirySet := map[int64]struct{}{}
	for _, q := range chain {
		strikeSet[q.Strike] = struct{}{}
		expirySet[q.Expiry] = struct{}{}
	}
	for k := range strikeSet {
		s.Strikes = append(s.Strikes, k)
	}
	for e := range expirySet {
		s.Expiries = append(s.Expiries, e)
	}
	sort.Float64s(s.Strikes)
	sort.Slice(s.Expiries, func(i, j int) bool { return s.Expiries[i] < s.Expiries[j] })

	strikeIdx := make(map[float64]int, len(s.Strikes))
	for i, k := range s.Strikes {
		strikeIdx[k] = i
	}
	expiryIdx := make(map[int64]int, len(s.Expiries))
	for i, e := range s.Expiries {
		expiryIdx[e] = i
	}

	s.Values = make([][]float64, len(s.Expiries))
	for i := range s.Values {
		s.Values[i] = make([]float64, len(s.Strikes))
	}
	for _, q := range chain {
		g := formulas.Finite(q.Gamma * q.OpenInterest * contractMultiplier)
		s.Values[expiryIdx[q.Expiry]][strikeIdx[q.Strike]] += g
	}

	first := true
	for _, row := range s.Values {
		for _, v := range row {
			if first {
				s.MinGamma, s.MaxGamma = v, v
				first = false
			}
			if v < s.MinGamma {
				s.MinGamma = v
			}
			if v > s.MaxGamma {
				s.MaxGamma = v
			}
			s.NetGamma += v
		}
	}
	return s
}

// findGammaFlips scans each expiry row for adjacent-strike sign changes and
// records a flip at the midpoint strike. Flips come out sorted descending by
// strength.
func findGammaFlips(s types.GammaSurface) []types.GammaFlip {
	flips := []types.GammaFlip{}
	for ei, row := range s.Values {
		for si := 0; si+1 < len(row); si++ {
			g1, g2 := row[si], row[si+1]
			if g1*g2 >= 0 {
				continue
			}
			flips = append(flips, types.GammaFlip{
				Price:    (s.Strikes[si] + s.Strikes[si+1]) / 2,
				Strength: math.Abs(g2 - g1),
				Type:     flipDirection(g1),
				Expiry:   s.Expiries[ei],
			})
		}
	}
	sort.Slice(flips, func(i, j int) bool { return flips[i].Strength > flips[j].Strength })
	return flips
}

// flipDirection resolves the flip orientation from the lower-strike gamma.
func flipDirection(lowerGamma float64) types.FlipType {
	if lowerGamma > 0 {
		return types.FlipPositiveToNegative
	}
	return types.FlipNegativeToPositive
}

// gravitationalPull scores gamma concentrations as point masses attracting
// spot under an inverse-square law. Cells at exactly spot are directionless
// and skipped.
func gravitationalPull(s types.GammaSurface, spot float64) types.GravitationalPull {
	pull := types.GravitationalPull{Attractors: []types.Attractor{}}
	gammaRange := s.MaxGamma - s.MinGamma
	if gammaRange == 0 || spot <= 0 {
		return pull
	}
	threshold := attractorFraction * gammaRange

	for _, row := range s.Values {
		for si, v := range row {
			if math.Abs(v) <= threshold {
				continue
			}
			pull.Attractors = append(pull.Attractors, types.Attractor{
				Price:    s.Strikes[si],
				Strength: v,
				Type:     "gamma_max",
			})
		}
	}
	if len(pull.Attractors) == 0 {
		return pull
	}

	// pull_i = strength_i / distance_i^2; distance^2 is positive, so each
	// term carries the attractor's own gamma sign.
	var signedSum, absSum float64
	for _, a := range pull.Attractors {
		dist := a.Price - spot
		if dist == 0 {
			continue
		}
		p := a.Strength / (dist * dist)
		signedSum += p
		absSum += math.Abs(p)
	}

	pull.Direction = formulas.Sign(signedSum)
	if absSum > 0 {
		pull.Magnitude = formulas.Clamp(math.Abs(signedSum)/absSum, 0, 1)
	}

	sort.Slice(pull.Attractors, func(i, j int) bool {
		return math.Abs(pull.Attractors[i].Strength) > math.Abs(pull.Attractors[j].Strength)
	})
	if len(pull.Attractors) > maxAttractors {
		pull.Attractors = pull.Attractors[:maxAttractors]
	}
	return pull
}
