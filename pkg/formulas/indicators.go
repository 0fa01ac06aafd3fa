package formulas

// SMA calculates the simple moving average series. Each output element is
// the mean of the trailing window available at that index.
func SMA(data []float64, period int) []float64 {
	if len(data) == 0 || period < 1 {
		return []float64{}
	}
	out := make([]float64, len(data))
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// EMA calculates the exponential moving average series with
// alpha = 2/(period+1), seeded with the first sample.
func EMA(data []float64, period int) []float64 {
	if len(data) == 0 || period < 1 {
		return []float64{}
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(data))
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}
	return out
}

// Bollinger calculates the middle, upper and lower Bollinger bands over the
// trailing period with the given standard-deviation multiplier.
func Bollinger(data []float64, period int, mult float64) (mid, upper, lower []float64) {
	mid = SMA(data, period)
	upper = make([]float64, len(data))
	lower = make([]float64, len(data))
	for i := range data {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		sd := StdDev(data[start : i+1])
		upper[i] = mid[i] + mult*sd
		lower[i] = mid[i] - mult*sd
	}
	return mid, upper, lower
}

// RSI calculates the relative strength index with Wilder-style smoothing of
// gains and losses. The conventional period is 14. Elements before the first
// full period are 50 (no information).
func RSI(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	if len(data) < 2 || period < 1 {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	var avgGain, avgLoss float64
	out[0] = 50
	for i := 1; i < len(data); i++ {
		change := data[i] - data[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		if i <= period {
			avgGain += gain / float64(period)
			avgLoss += loss / float64(period)
		} else {
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		if i < period {
			out[i] = 50
			continue
		}
		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD calculates the MACD line, signal line and histogram with the
// conventional 12/26/9 parameterization when fast/slow/signal are 12, 26, 9.
func MACD(data []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	fastEMA := EMA(data, fast)
	slowEMA := EMA(data, slow)
	macd = make([]float64, len(data))
	for i := range data {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine = EMA(macd, signal)
	hist = make([]float64, len(data))
	for i := range data {
		hist[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, hist
}
