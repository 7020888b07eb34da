package deseq

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
)

// SizeFactorMode selects how library sizes are normalised
type SizeFactorMode string

const (
	SizeFactorsRatio SizeFactorMode = "ratio" // median of ratios
	SizeFactorsTotal SizeFactorMode = "total" // library totals, geometric mean one
	SizeFactorsNone  SizeFactorMode = "none"  // every factor is one
)

// ParseSizeFactorMode accepts ratio, total or none; empty means ratio
func ParseSizeFactorMode(s string) (SizeFactorMode, error) {
	switch SizeFactorMode(s) {
	case "", SizeFactorsRatio:
		return SizeFactorsRatio, nil
	case SizeFactorsTotal, SizeFactorsNone:
		return SizeFactorMode(s), nil
	}
	return "", core.NewValidationError("size_factors", fmt.Sprintf("%q is not ratio, total or none", s))
}

// SizeFactorsFor computes the factors of m under mode
func SizeFactorsFor(mode SizeFactorMode, m *expression.CountMatrix) ([]float64, error) {
	switch mode {
	case "", SizeFactorsRatio:
		return EstimateSizeFactors(m)
	case SizeFactorsTotal:
		return totalCountSizeFactors(m)
	case SizeFactorsNone:
		out := make([]float64, m.NumSamples())
		for j := range out {
			out[j] = 1
		}
		return out, nil
	}
	return nil, core.NewValidationError("size_factors", fmt.Sprintf("unknown mode %q", mode))
}

// EstimateSizeFactors computes median-of-ratios size factors. Each gene with
// a positive count in every sample contributes log(count) - mean(log count);
// a sample's factor is exp of the median of its contributions, so a handful
// of very highly expressed genes cannot drag the factor.
//
// When no gene is positive in every sample the factors fall back to library
// totals scaled to a geometric mean of one.
func EstimateSizeFactors(m *expression.CountMatrix) ([]float64, error) {
	nGenes, nSamples := m.NumGenes(), m.NumSamples()

	logGeoMeans := make([]float64, nGenes)
	usable := make([]bool, nGenes)
	nUsable := 0
	for i := 0; i < nGenes; i++ {
		sum := 0.0
		ok := true
		for _, c := range m.Counts[i] {
			if c <= 0 {
				ok = false
				break
			}
			sum += math.Log(float64(c))
		}
		if ok {
			logGeoMeans[i] = sum / float64(nSamples)
			usable[i] = true
			nUsable++
		}
	}

	if nUsable == 0 {
		return totalCountSizeFactors(m)
	}

	factors := make([]float64, nSamples)
	ratios := make([]float64, 0, nUsable)
	for j := 0; j < nSamples; j++ {
		ratios = ratios[:0]
		for i := 0; i < nGenes; i++ {
			if usable[i] {
				ratios = append(ratios, math.Log(float64(m.Counts[i][j]))-logGeoMeans[i])
			}
		}
		med, err := stats.Median(ratios)
		if err != nil {
			return nil, fmt.Errorf("size factor for sample %s: %w", m.Samples[j], err)
		}
		factors[j] = math.Exp(med)
	}
	return factors, nil
}

func totalCountSizeFactors(m *expression.CountMatrix) ([]float64, error) {
	nSamples := m.NumSamples()
	totals := make([]float64, nSamples)
	logSum := 0.0
	for j := 0; j < nSamples; j++ {
		for i := range m.Counts {
			totals[j] += float64(m.Counts[i][j])
		}
		if totals[j] == 0 {
			return nil, core.NewMatrixError(fmt.Sprintf("sample %s has no reads", m.Samples[j]))
		}
		logSum += math.Log(totals[j])
	}
	geo := math.Exp(logSum / float64(nSamples))
	for j := range totals {
		totals[j] /= geo
	}
	return totals, nil
}

// ValidateSizeFactors checks caller-supplied factors
func ValidateSizeFactors(factors []float64, nSamples int) error {
	if len(factors) != nSamples {
		return core.NewValidationError("size_factors", fmt.Sprintf("%d factors for %d samples", len(factors), nSamples))
	}
	for j, f := range factors {
		if !(f > 0) || math.IsInf(f, 0) {
			return core.NewValidationError("size_factors", fmt.Sprintf("factor %d is %v", j, f))
		}
	}
	return nil
}

// normalizedMoments returns the mean and sample variance of counts divided
// by size factors
func normalizedMoments(counts []float64, sizeFactors []float64) (mean, variance float64) {
	n := float64(len(counts))
	for j, c := range counts {
		mean += c / sizeFactors[j]
	}
	mean /= n
	if len(counts) < 2 {
		return mean, 0
	}
	for j, c := range counts {
		d := c/sizeFactors[j] - mean
		variance += d * d
	}
	variance /= n - 1
	return mean, variance
}
