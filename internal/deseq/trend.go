package deseq

import (
	"errors"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"rnadiff/domain/expression"
)

var errTrendFailed = errors.New("parametric dispersion trend did not converge")

const (
	trendMinResidual = 1e-4
	trendMaxResidual = 15
	trendOuterIter   = 10
	trendInnerIter   = 25
	trendTol         = 1e-6
	meanTrendTrim    = 0.001
)

// fitParametricTrend fits alpha(mu) = a0 + a1/mu by a gamma-family GLM with
// identity link, solved as weighted least squares with weights 1/fitted^2.
// Genes whose gene-wise/fitted ratio falls outside [1e-4, 15] are dropped and
// the fit repeated until the coefficients settle.
func fitParametricTrend(means, disps []float64) (expression.DispersionTrend, error) {
	if len(means) < 3 {
		return expression.DispersionTrend{}, errTrendFailed
	}
	a0, a1 := 0.1, 1.0
	keep := make([]bool, len(means))
	for i := range keep {
		keep[i] = true
	}

	for outer := 0; outer < trendOuterIter; outer++ {
		var x, y []float64
		for i := range means {
			if keep[i] {
				x = append(x, 1/means[i])
				y = append(y, disps[i])
			}
		}
		if len(x) < 3 {
			return expression.DispersionTrend{}, errTrendFailed
		}

		n0, n1, err := gammaIdentityFit(x, y, a0, a1)
		if err != nil {
			return expression.DispersionTrend{}, err
		}
		if n0 <= 0 || n1 < 0 {
			return expression.DispersionTrend{}, errTrendFailed
		}

		for i := range means {
			ratio := disps[i] / (n0 + n1/means[i])
			keep[i] = ratio > trendMinResidual && ratio < trendMaxResidual
		}

		change := math.Abs(math.Log(n0/a0)) + math.Abs(math.Log((n1+1e-12)/(a1+1e-12)))
		a0, a1 = n0, n1
		if change < trendTol {
			return expression.DispersionTrend{Kind: expression.TrendParametric, A0: a0, A1: a1}, nil
		}
	}
	return expression.DispersionTrend{Kind: expression.TrendParametric, A0: a0, A1: a1}, nil
}

func gammaIdentityFit(x, y []float64, a0, a1 float64) (float64, float64, error) {
	w := make([]float64, len(x))
	for iter := 0; iter < trendInnerIter; iter++ {
		for i := range x {
			f := a0 + a1*x[i]
			if f <= 0 {
				return 0, 0, errTrendFailed
			}
			w[i] = 1 / (f * f)
		}
		n0, n1 := stat.LinearRegression(x, y, w, false)
		if math.IsNaN(n0) || math.IsNaN(n1) {
			return 0, 0, errTrendFailed
		}
		done := math.Abs(n0-a0) <= trendTol*math.Abs(a0) && math.Abs(n1-a1) <= trendTol*(math.Abs(a1)+trendTol)
		a0, a1 = n0, n1
		if done {
			break
		}
	}
	return a0, a1, nil
}

// meanTrend is the fallback: a constant trimmed mean of the gene-wise values
func meanTrend(disps []float64) expression.DispersionTrend {
	sorted := append([]float64(nil), disps...)
	sort.Float64s(sorted)
	trim := int(math.Floor(meanTrendTrim * float64(len(sorted))))
	sorted = sorted[trim : len(sorted)-trim]
	m, err := stats.Mean(sorted)
	if err != nil || !(m > 0) {
		m = minDispersion
	}
	return expression.DispersionTrend{Kind: expression.TrendMean, A0: m}
}

// fitDispersionTrend fits the mean-dispersion trend over the usable genes,
// falling back to a mean trend when the parametric fit fails
func fitDispersionTrend(means, disps []float64, use []bool) expression.DispersionTrend {
	var m, d []float64
	for i := range means {
		if use[i] {
			m = append(m, means[i])
			d = append(d, disps[i])
		}
	}
	if len(m) == 0 {
		return expression.DispersionTrend{Kind: expression.TrendNone}
	}
	if trend, err := fitParametricTrend(m, d); err == nil {
		return trend
	}
	return meanTrend(d)
}
