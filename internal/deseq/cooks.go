package deseq

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	cooksQuantile  = 0.99
	minCooksCellSz = 3
)

// cooksDistances is the per-sample influence of each count on the fit,
// from Pearson residuals and hat values.
func cooksDistances(y, mu, hat []float64, alpha float64, p int) []float64 {
	out := make([]float64, len(y))
	for j := range y {
		v := mu[j] + alpha*mu[j]*mu[j]
		r := (y[j] - mu[j]) / math.Sqrt(v)
		h := hat[j]
		if h >= 1 {
			out[j] = math.Inf(1)
			continue
		}
		out[j] = r * r / float64(p) * h / ((1 - h) * (1 - h))
	}
	return out
}

// cooksThreshold is the 0.99 quantile of F(p, m-p), found by bisection on
// the distribution function.
func cooksThreshold(p, m int) float64 {
	if m-p < 1 {
		return math.Inf(1)
	}
	f := distuv.F{D1: float64(p), D2: float64(m - p)}
	lo, hi := 0.0, 1.0
	for f.CDF(hi) < cooksQuantile {
		hi *= 2
		if hi > 1e12 {
			return hi
		}
	}
	for iter := 0; iter < 200 && hi-lo > 1e-10*hi; iter++ {
		mid := 0.5 * (lo + hi)
		if f.CDF(mid) < cooksQuantile {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}
