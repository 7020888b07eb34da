// Package fdr adjusts p-values for multiple testing. NaN marks an untested
// hypothesis: it is left NaN and does not count towards m.
//
// Adjustment is not idempotent. Feeding adjusted values back in as raw
// p-values inflates them again; callers must adjust raw p-values once.
package fdr

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"rnadiff/domain/core"
)

// Method names a correction procedure
type Method string

const (
	MethodBH         Method = "BH"
	MethodBonferroni Method = "bonferroni"
)

// ParseMethod accepts BH/fdr and bonferroni, case-insensitively
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bh", "fdr", "benjamini-hochberg":
		return MethodBH, nil
	case "bonferroni":
		return MethodBonferroni, nil
	}
	return "", core.NewValidationError("method", fmt.Sprintf("unknown correction %q", s))
}

// Adjust dispatches on method
func Adjust(method Method, p []float64) ([]float64, error) {
	switch method {
	case MethodBH, "":
		return BenjaminiHochberg(p)
	case MethodBonferroni:
		return Bonferroni(p)
	}
	return nil, core.NewValidationError("method", fmt.Sprintf("unknown correction %q", method))
}

// eligible returns the indices of non-NaN entries after range checking
func eligible(p []float64) ([]int, error) {
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 1 {
			return nil, core.NewValidationError("pvalue", fmt.Sprintf("p[%d] = %v is outside [0, 1]", i, v))
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no p-values to adjust", core.ErrEmptyInput)
	}
	return idx, nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// BenjaminiHochberg returns step-up FDR adjusted p-values:
// padj_(i) = min over j >= i of min(1, p_(j) * m / j), with ranks over the
// m non-NaN entries. Ties keep input order, so the result does not depend on
// how equal p-values are permuted.
func BenjaminiHochberg(p []float64) ([]float64, error) {
	idx, err := eligible(p)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	m := float64(len(idx))
	out := nanSlice(len(p))
	running := 1.0
	for k := len(idx) - 1; k >= 0; k-- {
		v := p[idx[k]] * m / float64(k+1)
		running = math.Min(running, v)
		out[idx[k]] = running
	}
	return out, nil
}

// Bonferroni returns min(1, p*m) over the m non-NaN entries
func Bonferroni(p []float64) ([]float64, error) {
	idx, err := eligible(p)
	if err != nil {
		return nil, err
	}
	m := float64(len(idx))
	out := nanSlice(len(p))
	for _, i := range idx {
		out[i] = math.Min(1, p[i]*m)
	}
	return out, nil
}
