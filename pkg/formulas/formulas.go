// Package formulas provides stateless numeric helpers for the trading core.
// Edge contracts: empty inputs return 0 (or +/-Inf for min/max); divisions
// by zero yield 0 unless documented otherwise.
package formulas

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Median calculates the median of a slice of float64 values.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Lerp linearly interpolates between a and b by t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize min-max normalizes data into [0,1]. A constant series maps to
// all zeros.
func Normalize(data []float64) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range data {
		out[i] = (v - lo) / span
	}
	return out
}

// ZScore returns (v - mean) / stddev over data, 0 when stddev is 0.
func ZScore(v float64, data []float64) float64 {
	sd := StdDev(data)
	if sd == 0 {
		return 0
	}
	return (v - Mean(data)) / sd
}

// Correlation calculates the Pearson correlation of two equal-length series.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Returns converts prices to simple percentage returns. The result has
// length len(prices)-1; a zero prior price yields a zero return.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// LogReturns converts prices to log returns, skipping non-positive prices.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			out = append(out, math.Log(prices[i]/prices[i-1]))
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// Sharpe calculates the Sharpe ratio of a return series, annualized by the
// caller-supplied factor (e.g. 252 for daily returns).
func Sharpe(returns []float64, annualization float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := StdDev(returns)
	if sd == 0 {
		return 0
	}
	return Mean(returns) / sd * math.Sqrt(annualization)
}

// MaxDrawdown calculates the maximum peak-to-trough drawdown of an equity
// curve, as a positive fraction.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Kelly calculates the Kelly criterion fraction:
// win - (1-win)/(avgWin/avgLoss). A non-positive avgWin or avgLoss yields 0.
func Kelly(winRate, avgWin, avgLoss float64) float64 {
	if avgWin <= 0 || avgLoss <= 0 {
		return 0
	}
	payoff := avgWin / avgLoss
	return winRate - (1-winRate)/payoff
}

// Euclidean calculates the Euclidean distance between two equal-length
// vectors, 0 on length mismatch.
func Euclidean(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Cosine calculates the cosine similarity of two equal-length vectors.
// It is 0 when either vector has zero norm or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Smoothstep is the cubic Hermite interpolant 3t^2 - 2t^3 with t clamped
// to [0,1] over [edge0, edge1].
func Smoothstep(edge0, edge1, x float64) float64 {
	if edge0 == edge1 {
		return 0
	}
	t := Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

// Smootherstep is the quintic interpolant 6t^5 - 15t^4 + 10t^3.
func Smootherstep(edge0, edge1, x float64) float64 {
	if edge0 == edge1 {
		return 0
	}
	t := Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * t * (t*(t*6-15) + 10)
}

// CubicHermite evaluates the Hermite basis at t for endpoints p0, p1 with
// tangents m0, m1.
func CubicHermite(p0, m0, p1, m1, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return (2*t3-3*t2+1)*p0 + (t3-2*t2+t)*m0 + (-2*t3+3*t2)*p1 + (t3-t2)*m1
}

// Gaussian draws a standard normal variate from rng via Box-Muller.
func Gaussian(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	u2 := rng.Float64()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Sigmoid is the logistic function 1 / (1 + e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Finite replaces NaN and +/-Inf with 0 so no non-finite value crosses a
// component boundary.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Sign returns -1, 0 or +1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
