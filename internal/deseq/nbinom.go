package deseq

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// nbLogLik is the negative binomial log likelihood of counts y with means mu
// and dispersion alpha (variance mu + alpha*mu^2).
func nbLogLik(y, mu []float64, alpha float64) float64 {
	size := 1 / alpha
	lgSize, _ := math.Lgamma(size)
	ll := 0.0
	for j := range y {
		lgYS, _ := math.Lgamma(y[j] + size)
		lgY1, _ := math.Lgamma(y[j] + 1)
		am := alpha * mu[j]
		ll += lgYS - lgSize - lgY1 - size*math.Log1p(am)
		if y[j] > 0 {
			ll += y[j] * (math.Log(am) - math.Log1p(am))
		}
	}
	return ll
}

// coxReidLogLik is the Cox-Reid adjusted profile log likelihood of alpha
// for fixed means: the NB log likelihood minus half the log determinant of
// the Fisher information X'WX.
func coxReidLogLik(y, mu []float64, x *mat.Dense, alpha float64) float64 {
	ll := nbLogLik(y, mu, alpha)
	w := make([]float64, len(mu))
	for j, m := range mu {
		w[j] = m / (1 + alpha*m)
	}
	info := weightedGram(x, w)
	logDet, sign := mat.LogDet(info)
	if sign <= 0 || math.IsNaN(logDet) {
		return ll
	}
	return ll - 0.5*logDet
}

// weightedGram returns X' diag(w) X
func weightedGram(x *mat.Dense, w []float64) *mat.SymDense {
	n, p := x.Dims()
	out := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			s := 0.0
			for j := 0; j < n; j++ {
				s += x.At(j, a) * w[j] * x.At(j, b)
			}
			out.SetSym(a, b, s)
		}
	}
	return out
}

// trigamma evaluates the second derivative of log Gamma using the
// recurrence up to x >= 10 and the asymptotic series beyond.
func trigamma(x float64) float64 {
	if x <= 0 {
		return math.NaN()
	}
	acc := 0.0
	for x < 10 {
		acc += 1 / (x * x)
		x++
	}
	x2 := 1 / (x * x)
	series := 1/x + x2/2 + (1/x)*x2*(1.0/6-x2*(1.0/30-x2*(1.0/42-x2/30)))
	return acc + series
}
