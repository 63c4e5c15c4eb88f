package sim

import "math"

// epsilon floors divisors throughout the package so degenerate inputs
// (zero prices, flat series) never produce Inf or NaN.
const epsilon = 1e-9

// dailyReturns converts a price series into simple day-over-day returns.
// A series of n prices yields n-1 returns. Zero prices are guarded with
// an epsilon floor to avoid division blowups on degenerate data.
func dailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev < epsilon {
			prev = epsilon
		}
		returns = append(returns, prices[i]/prev-1)
	}

	return returns
}

// windowReturn returns the k-day simple return ending at the latest price.
// When the series is shorter than k+1 points the window start is clamped
// to the oldest available price.
func windowReturn(prices []float64, k int) float64 {
	n := len(prices)
	if n < 2 || k < 1 {
		return 0
	}

	start := n - 1 - k
	if start < 0 {
		start = 0
	}

	base := prices[start]
	if base < epsilon {
		base = epsilon
	}

	return prices[n-1]/base - 1
}

// tail returns the last n elements of the series (or the whole series if
// it is shorter than n).
func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// mean returns the arithmetic mean of the series, or 0 for an empty one.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// stdev returns the population standard deviation of the series.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}

	return math.Sqrt(sumSq / float64(len(values)))
}

// cumulativeReturn compounds a return series into a single total return.
func cumulativeReturn(returns []float64) float64 {
	product := 1.0
	for _, r := range returns {
		product *= 1 + r
	}
	return product - 1
}

// correlation returns the Pearson correlation coefficient of two equally
// long series. Degenerate series (constant, or mismatched lengths) return 0.
func correlation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}

	meanA := mean(a)
	meanB := mean(b)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA < epsilon || varB < epsilon {
		return 0
	}

	return cov / math.Sqrt(varA*varB)
}

// regressionR2 fits a least-squares line through the series (indexed by
// position) and returns the coefficient of determination in [0,1]. A flat
// or too-short series yields 0.
func regressionR2(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 0
	}

	// x is the sample index 0..n-1
	meanX := float64(n-1) / 2
	meanY := mean(values)

	var sxy, sxx, syy float64
	for i, y := range values {
		dx := float64(i) - meanX
		dy := y - meanY
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}

	if sxx < epsilon || syy < epsilon {
		return 0
	}

	r := sxy / math.Sqrt(sxx*syy)
	return r * r
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
