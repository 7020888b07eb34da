package deseq

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// minMu keeps fitted means away from zero so weights stay finite
	minMu = 0.5

	// largeBeta bounds |coefficient| on the natural log scale (30 on log2)
	largeBeta = 30 * math.Ln2

	// ridge is the per-coefficient penalty added to X'WX
	ridge = 1e-6
)

// glmFit is one gene's negative binomial GLM fit on the natural log scale
type glmFit struct {
	beta       []float64
	cov        *mat.SymDense
	mu         []float64
	hat        []float64
	logLik     float64
	iterations int
	converged  bool
}

// fitNegativeBinomialGLM fits log(mu_j) = log(s_j) + x_j'beta by iteratively
// reweighted least squares at a fixed dispersion. Convergence is declared
// when the relative change in deviance drops below tol.
func fitNegativeBinomialGLM(y, sizeFactors []float64, x *mat.Dense, alpha float64, maxIter int, tol float64) glmFit {
	n, p := x.Dims()
	beta := initialBeta(y, sizeFactors, x)
	mu := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)

	updateMu := func() {
		for j := 0; j < n; j++ {
			eta := 0.0
			for k := 0; k < p; k++ {
				eta += x.At(j, k) * beta[k]
			}
			mu[j] = math.Max(sizeFactors[j]*math.Exp(eta), minMu)
		}
	}

	updateMu()
	devOld := -2 * nbLogLik(y, mu, alpha)
	fit := glmFit{}
	betaVec := mat.NewVecDense(p, nil)

	for iter := 1; iter <= maxIter; iter++ {
		fit.iterations = iter
		for j := 0; j < n; j++ {
			w[j] = mu[j] / (1 + alpha*mu[j])
			z[j] = math.Log(mu[j]/sizeFactors[j]) + (y[j]-mu[j])/mu[j]
		}

		a := weightedGram(x, w)
		for k := 0; k < p; k++ {
			a.SetSym(k, k, a.At(k, k)+ridge)
		}
		rhs := mat.NewVecDense(p, nil)
		for k := 0; k < p; k++ {
			s := 0.0
			for j := 0; j < n; j++ {
				s += x.At(j, k) * w[j] * z[j]
			}
			rhs.SetVec(k, s)
		}

		var chol mat.Cholesky
		if !chol.Factorize(a) {
			fit.converged = false
			break
		}
		if err := chol.SolveVecTo(betaVec, rhs); err != nil {
			break
		}
		diverged := false
		for k := 0; k < p; k++ {
			beta[k] = betaVec.AtVec(k)
			if math.Abs(beta[k]) > largeBeta || math.IsNaN(beta[k]) {
				diverged = true
			}
		}
		if diverged {
			break
		}

		updateMu()
		dev := -2 * nbLogLik(y, mu, alpha)
		if math.Abs(dev-devOld)/(math.Abs(dev)+0.1) < tol {
			fit.converged = true
			break
		}
		devOld = dev
	}

	fit.beta = beta
	fit.mu = append([]float64(nil), mu...)
	fit.logLik = nbLogLik(y, mu, alpha)
	fit.cov, fit.hat = sandwichCovariance(x, mu, alpha)
	if fit.cov == nil {
		fit.converged = false
	}
	return fit
}

// initialBeta regresses log normalised counts on the design
func initialBeta(y, sizeFactors []float64, x *mat.Dense) []float64 {
	n, p := x.Dims()
	z := mat.NewVecDense(n, nil)
	for j := 0; j < n; j++ {
		z.SetVec(j, math.Log(y[j]/sizeFactors[j]+0.1))
	}
	var b mat.VecDense
	if err := b.SolveVec(x, z); err != nil {
		return make([]float64, p)
	}
	out := make([]float64, p)
	for k := 0; k < p; k++ {
		out[k] = b.AtVec(k)
	}
	return out
}

// sandwichCovariance returns (X'WX+R)^-1 X'WX (X'WX+R)^-1 and the diagonal
// of the hat matrix W^1/2 X (X'WX+R)^-1 X' W^1/2 at the given means.
func sandwichCovariance(x *mat.Dense, mu []float64, alpha float64) (*mat.SymDense, []float64) {
	n, p := x.Dims()
	w := make([]float64, n)
	for j := range mu {
		w[j] = mu[j] / (1 + alpha*mu[j])
	}
	info := weightedGram(x, w)
	penalised := mat.NewSymDense(p, nil)
	penalised.CopySym(info)
	for k := 0; k < p; k++ {
		penalised.SetSym(k, k, penalised.At(k, k)+ridge)
	}

	var chol mat.Cholesky
	if !chol.Factorize(penalised) {
		return nil, nil
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, nil
	}

	var tmp, full mat.Dense
	tmp.Mul(&inv, info)
	full.Mul(&tmp, &inv)
	cov := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			cov.SetSym(a, b, 0.5*(full.At(a, b)+full.At(b, a)))
		}
	}

	hat := make([]float64, n)
	row := mat.NewVecDense(p, nil)
	var proj mat.VecDense
	for j := 0; j < n; j++ {
		for k := 0; k < p; k++ {
			row.SetVec(k, x.At(j, k))
		}
		proj.MulVec(&inv, row)
		hat[j] = w[j] * mat.Dot(row, &proj)
	}
	return cov, hat
}

// contrastEstimate returns c'beta and its standard error
func contrastEstimate(fit glmFit, c []float64) (estimate, se float64) {
	p := len(c)
	cv := mat.NewVecDense(p, append([]float64(nil), c...))
	bv := mat.NewVecDense(p, append([]float64(nil), fit.beta...))
	estimate = mat.Dot(cv, bv)
	var tmp mat.VecDense
	tmp.MulVec(fit.cov, cv)
	variance := mat.Dot(cv, &tmp)
	if variance < 0 {
		return estimate, math.NaN()
	}
	return estimate, math.Sqrt(variance)
}
