package formulas

import (
	"math"
	"math/rand"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMeanAndStdDev(t *testing.T) {
	if Mean(nil) != 0 {
		t.Error("empty Mean should be 0")
	}
	if got := Mean([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("Mean = %f, want 2.5", got)
	}
	if StdDev([]float64{5}) != 0 {
		t.Error("single-sample StdDev should be 0")
	}
	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); !almostEqual(got, 2.138, 0.001) {
		t.Errorf("StdDev = %f, want ~2.138", got)
	}
}

func TestMedian(t *testing.T) {
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd Median = %f, want 2", got)
	}
	if got := Median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even Median = %f, want 2.5", got)
	}
	if Median(nil) != 0 {
		t.Error("empty Median should be 0")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{10, 20, 30})
	want := []float64{0, 0.5, 1}
	for i := range want {
		if !almostEqual(got[i], want[i], 1e-12) {
			t.Errorf("Normalize[%d] = %f, want %f", i, got[i], want[i])
		}
	}

	// Constant series collapses to zeros.
	for _, v := range Normalize([]float64{7, 7, 7}) {
		if v != 0 {
			t.Errorf("constant Normalize = %f, want 0", v)
		}
	}
}

func TestReturnsLength(t *testing.T) {
	prices := []float64{100, 101, 99, 102}
	r := Returns(prices)
	if len(r) != len(prices)-1 {
		t.Fatalf("Returns len = %d, want %d", len(r), len(prices)-1)
	}
	if !almostEqual(r[0], 0.01, 1e-12) {
		t.Errorf("Returns[0] = %f, want 0.01", r[0])
	}
	if len(Returns([]float64{100})) != 0 {
		t.Error("single-price Returns should be empty")
	}
}

func TestEMASeedAndAlpha(t *testing.T) {
	data := []float64{10, 20}
	ema := EMA(data, 9) // alpha = 0.2
	if ema[0] != 10 {
		t.Errorf("EMA seed = %f, want first sample", ema[0])
	}
	if !almostEqual(ema[1], 12, 1e-12) {
		t.Errorf("EMA[1] = %f, want 12", ema[1])
	}
}

func TestRSIMonotonicSeries(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	rsi := RSI(up, 14)
	if rsi[len(rsi)-1] != 100 {
		t.Errorf("all-gains RSI = %f, want 100", rsi[len(rsi)-1])
	}
}

func TestMACDShapes(t *testing.T) {
	data := make([]float64, 60)
	for i := range data {
		data[i] = 100 + math.Sin(float64(i)/5)
	}
	macd, signal, hist := MACD(data, 12, 26, 9)
	if len(macd) != len(data) || len(signal) != len(data) || len(hist) != len(data) {
		t.Fatal("MACD output lengths must match input")
	}
	for i := range data {
		if !almostEqual(hist[i], macd[i]-signal[i], 1e-12) {
			t.Fatalf("hist[%d] != macd - signal", i)
		}
	}
}

func TestKelly(t *testing.T) {
	// 60% win rate, 2:1 payoff -> 0.6 - 0.4/2 = 0.4
	if got := Kelly(0.6, 2, 1); !almostEqual(got, 0.4, 1e-12) {
		t.Errorf("Kelly = %f, want 0.4", got)
	}
	if Kelly(0.6, 0, 1) != 0 {
		t.Error("zero avgWin Kelly should be 0")
	}
	if Kelly(0.6, 1, 0) != 0 {
		t.Error("zero avgLoss Kelly should be 0")
	}
}

func TestMaxDrawdown(t *testing.T) {
	equity := []float64{100, 120, 90, 110, 80}
	// Peak 120, trough 80 -> 1/3.
	if got := MaxDrawdown(equity); !almostEqual(got, 1.0/3.0, 1e-12) {
		t.Errorf("MaxDrawdown = %f, want 0.3333", got)
	}
	if MaxDrawdown([]float64{100}) != 0 {
		t.Error("single-point drawdown should be 0")
	}
}

func TestCosine(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{0, 1, 0}
	if got := Cosine(a, a); !almostEqual(got, 1, 1e-12) {
		t.Errorf("self Cosine = %f, want 1", got)
	}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("orthogonal Cosine = %f, want 0", got)
	}
	if Cosine(a, []float64{0, 0, 0}) != 0 {
		t.Error("zero-norm Cosine should be 0")
	}
}

func TestSharpeEdgeCases(t *testing.T) {
	if Sharpe([]float64{0.01}, 252) != 0 {
		t.Error("short series Sharpe should be 0")
	}
	if Sharpe([]float64{0.01, 0.01, 0.01}, 252) != 0 {
		t.Error("zero-variance Sharpe should be 0")
	}
}

func TestSmoothstep(t *testing.T) {
	if Smoothstep(0, 1, -1) != 0 || Smoothstep(0, 1, 2) != 1 {
		t.Error("Smoothstep should clamp at the edges")
	}
	if got := Smoothstep(0, 1, 0.5); !almostEqual(got, 0.5, 1e-12) {
		t.Errorf("Smoothstep midpoint = %f, want 0.5", got)
	}
	if got := Smootherstep(0, 1, 0.5); !almostEqual(got, 0.5, 1e-12) {
		t.Errorf("Smootherstep midpoint = %f, want 0.5", got)
	}
}

func TestGaussianDeterminism(t *testing.T) {
	a := Gaussian(rand.New(rand.NewSource(42)))
	b := Gaussian(rand.New(rand.NewSource(42)))
	if a != b {
		t.Error("same-seed Gaussian draws must match")
	}
}

func TestFinite(t *testing.T) {
	if Finite(math.NaN()) != 0 || Finite(math.Inf(1)) != 0 || Finite(math.Inf(-1)) != 0 {
		t.Error("non-finite values must map to 0")
	}
	if Finite(1.5) != 1.5 {
		t.Error("finite values must pass through")
	}
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	if got := Correlation(x, y); !almostEqual(got, 1, 1e-12) {
		t.Errorf("perfect Correlation = %f, want 1", got)
	}
	if Correlation(x, []float64{1, 1, 1, 1}) != 0 {
		t.Error("constant-series Correlation should be 0")
	}
}
