package profiling

import (
	"math"

	"github.com/montanaflynn/stats"
)

// DistributionAnalyzer summarises numeric vectors
type DistributionAnalyzer struct{}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{}
}

// AnalyzeDistribution computes location, spread and shape of data
func (da *DistributionAnalyzer) AnalyzeDistribution(data []float64) (Summary, error) {
	var s Summary

	mean, err := stats.Mean(data)
	if err != nil {
		return s, err
	}

	stdDev, err := stats.StandardDeviationSample(data)
	if err != nil {
		return s, err
	}

	min, err := stats.Min(data)
	if err != nil {
		return s, err
	}

	max, err := stats.Max(data)
	if err != nil {
		return s, err
	}

	median, err := stats.Median(data)
	if err != nil {
		return s, err
	}

	q25, err := stats.Percentile(data, 25)
	if err != nil {
		return s, err
	}

	q75, err := stats.Percentile(data, 75)
	if err != nil {
		return s, err
	}

	s.Mean = mean
	s.StdDev = stdDev
	s.Min = min
	s.Max = max
	s.Median = median
	s.Q25 = q25
	s.Q75 = q75
	s.Skewness = calculateSkewness(data, mean, stdDev)
	s.Outliers = detectOutliers(data, q25, q75)
	return s, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumCubed := 0.0
	for _, x := range data {
		d := (x - mean) / stdDev
		sumCubed += d * d * d
	}

	return sumCubed * n / ((n - 1) * (n - 2))
}

// detectOutliers counts points outside the 1.5 IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower := q25 - 1.5*iqr
	upper := q75 + 1.5*iqr

	count := 0
	for _, x := range data {
		if x < lower || x > upper {
			count++
		}
	}
	return count
}

// robustZ returns (x-median)/mad, or 0 when mad is zero
func robustZ(x, median, mad float64) float64 {
	if mad == 0 || math.IsNaN(mad) {
		return 0
	}
	return (x - median) / mad
}
