package deseq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
)

// factorTerm is one treatment-coded categorical factor in the design
type factorTerm struct {
	name      string
	reference string
	levels    []string // non-reference levels, one column each
	columns   []int
}

// ModelMatrix is the sample-by-coefficient design matrix: an intercept
// followed by treatment-coded factors.
type ModelMatrix struct {
	X       *mat.Dense
	Columns []string
	terms   []factorTerm
}

// NewModelMatrix builds the design for a contrast. The tested factor comes
// first with the contrast denominator as reference level; each covariate
// factor with more than one level follows, referenced on its first level.
func NewModelMatrix(records []expression.DesignRecord, contrast expression.Contrast, covariates []string) (*ModelMatrix, error) {
	nSamples := len(records)
	factors := []string{contrast.FactorName()}
	for _, cov := range covariates {
		if cov == contrast.FactorName() {
			continue
		}
		factors = append(factors, cov)
	}

	var terms []factorTerm
	columns := []string{"Intercept"}
	for fi, name := range factors {
		levels := distinctLevels(records, name)
		reference := levels[0]
		if fi == 0 {
			reference = contrast.Denominator
		}
		if len(levels) < 2 {
			if fi == 0 {
				return nil, core.NewDesignError(fmt.Sprintf("factor %q has a single level", name))
			}
			continue
		}
		term := factorTerm{name: name, reference: reference}
		for _, l := range levels {
			if l == reference {
				continue
			}
			term.levels = append(term.levels, l)
			term.columns = append(term.columns, len(columns))
			columns = append(columns, fmt.Sprintf("%s_%s_vs_%s", name, l, reference))
		}
		terms = append(terms, term)
	}

	x := mat.NewDense(nSamples, len(columns), nil)
	for j, r := range records {
		x.Set(j, 0, 1)
		for _, term := range terms {
			level := r.Level(term.name)
			for k, l := range term.levels {
				if level == l {
					x.Set(j, term.columns[k], 1)
				}
			}
		}
	}

	mm := &ModelMatrix{X: x, Columns: columns, terms: terms}
	if err := mm.checkRank(); err != nil {
		return nil, err
	}
	return mm, nil
}

// InterceptOnly is the design used when a factor is dropped entirely
func InterceptOnly(nSamples int) *ModelMatrix {
	x := mat.NewDense(nSamples, 1, nil)
	for j := 0; j < nSamples; j++ {
		x.Set(j, 0, 1)
	}
	return &ModelMatrix{X: x, Columns: []string{"Intercept"}}
}

func distinctLevels(records []expression.DesignRecord, factor string) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, r := range records {
		l := r.Level(factor)
		if !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	return levels
}

// NumSamples returns the number of rows
func (mm *ModelMatrix) NumSamples() int {
	r, _ := mm.X.Dims()
	return r
}

// NumCoefficients returns the number of columns
func (mm *ModelMatrix) NumCoefficients() int {
	_, c := mm.X.Dims()
	return c
}

// ResidualDF is samples minus coefficients
func (mm *ModelMatrix) ResidualDF() int {
	return mm.NumSamples() - mm.NumCoefficients()
}

func (mm *ModelMatrix) checkRank() error {
	var svd mat.SVD
	if !svd.Factorize(mm.X, mat.SVDNone) {
		return core.NewDesignError("design matrix decomposition failed")
	}
	values := svd.Values(nil)
	if len(values) < mm.NumCoefficients() {
		return core.NewDesignError(fmt.Sprintf("design has %d coefficients but only %d samples", mm.NumCoefficients(), mm.NumSamples()))
	}
	tol := values[0] * 1e-10
	for _, v := range values {
		if v <= tol {
			return core.NewDesignError("design matrix is not full rank; a covariate is confounded with the tested factor")
		}
	}
	return nil
}

// ContrastVector returns c such that c'beta is log(numerator/denominator)
func (mm *ModelMatrix) ContrastVector(c expression.Contrast) ([]float64, error) {
	vec := make([]float64, mm.NumCoefficients())
	if len(mm.terms) == 0 || mm.terms[0].name != c.FactorName() {
		return nil, core.NewDesignError(fmt.Sprintf("factor %q is not in the design", c.FactorName()))
	}
	term := mm.terms[0]
	set := func(level string, sign float64) error {
		if level == term.reference {
			return nil
		}
		for k, l := range term.levels {
			if l == level {
				vec[term.columns[k]] += sign
				return nil
			}
		}
		return core.NewDesignError(fmt.Sprintf("level %q not found for factor %q", level, term.name))
	}
	if err := set(c.Numerator, 1); err != nil {
		return nil, err
	}
	if err := set(c.Denominator, -1); err != nil {
		return nil, err
	}
	return vec, nil
}

// Without returns the design with a factor's columns removed, used as the
// reduced model of a likelihood ratio test
func (mm *ModelMatrix) Without(factor string) *ModelMatrix {
	drop := make(map[int]bool)
	var kept []factorTerm
	for _, t := range mm.terms {
		if t.name == factor {
			for _, c := range t.columns {
				drop[c] = true
			}
			continue
		}
		kept = append(kept, t)
	}

	nRows := mm.NumSamples()
	var cols []int
	var names []string
	for c, name := range mm.Columns {
		if !drop[c] {
			cols = append(cols, c)
			names = append(names, name)
		}
	}
	x := mat.NewDense(nRows, len(cols), nil)
	remap := make(map[int]int, len(cols))
	for k, c := range cols {
		remap[c] = k
		for j := 0; j < nRows; j++ {
			x.Set(j, k, mm.X.At(j, c))
		}
	}
	for ti := range kept {
		newCols := make([]int, len(kept[ti].columns))
		for k, c := range kept[ti].columns {
			newCols[k] = remap[c]
		}
		kept[ti].columns = newCols
	}
	return &ModelMatrix{X: x, Columns: names, terms: kept}
}

// DroppedDF is the number of coefficients a factor contributes
func (mm *ModelMatrix) DroppedDF(factor string) int {
	for _, t := range mm.terms {
		if t.name == factor {
			return len(t.columns)
		}
	}
	return 0
}

// cellSizes returns, per sample, how many samples share its design row
func (mm *ModelMatrix) cellSizes() []int {
	n, p := mm.X.Dims()
	keys := make([]string, n)
	counts := make(map[string]int)
	for j := 0; j < n; j++ {
		row := make([]byte, p)
		for k := 0; k < p; k++ {
			if mm.X.At(j, k) != 0 {
				row[k] = '1'
			} else {
				row[k] = '0'
			}
		}
		keys[j] = string(row)
		counts[keys[j]]++
	}
	out := make([]int, n)
	for j, k := range keys {
		out[j] = counts[k]
	}
	return out
}
