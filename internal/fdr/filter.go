package fdr

import (
	"math"
	"sort"
)

// filterQuantiles is the number of candidate base-mean thresholds tried
const filterQuantiles = 50

// FilterResult is the outcome of independent filtering
type FilterResult struct {
	Threshold  float64   // genes with base mean below are not tested
	Rejections int       // adjusted p-values below alpha at the threshold
	PAdj       []float64 // NaN for filtered or untested genes
	// Filtered lists genes that had a p-value but fell below Threshold.
	// Callers must clear their p-values so padj and pvalue agree on NA.
	Filtered []int
}

// IndependentFilter chooses a base-mean threshold among quantiles 0..0.95
// that maximises the number of BH rejections at alpha. Filtering on the
// mean is independent of the test statistic under the null, so the
// adjusted values remain valid. Ties keep the lowest threshold.
func IndependentFilter(baseMeans, p []float64, alpha float64) (*FilterResult, error) {
	var means []float64
	for i, v := range p {
		if !math.IsNaN(v) {
			means = append(means, baseMeans[i])
		}
	}
	sort.Float64s(means)

	var best *FilterResult
	for q := 0; q < filterQuantiles; q++ {
		theta := 0.0
		if len(means) > 0 {
			pos := int(math.Floor(0.95 * float64(q) / float64(filterQuantiles-1) * float64(len(means)-1)))
			theta = means[pos]
		}
		masked := make([]float64, len(p))
		var filtered []int
		for i, v := range p {
			if baseMeans[i] < theta {
				masked[i] = math.NaN()
				if !math.IsNaN(v) {
					filtered = append(filtered, i)
				}
			} else {
				masked[i] = v
			}
		}
		padj, err := BenjaminiHochberg(masked)
		if err != nil {
			if best == nil {
				return nil, err
			}
			continue
		}
		n := 0
		for _, v := range padj {
			if v < alpha {
				n++
			}
		}
		if best == nil || n > best.Rejections {
			best = &FilterResult{Threshold: theta, Rejections: n, PAdj: padj, Filtered: filtered}
		}
	}
	return best, nil
}
