// Package profiling computes quality-control summaries of count matrices.
package profiling

import (
	"math"

	"github.com/montanaflynn/stats"

	"rnadiff/domain/expression"
)

// DefaultFlagThreshold is the robust z beyond which a sample is flagged
const DefaultFlagThreshold = 3.0

// minSummaryPoints is the fewest detected genes that get a log-count summary
const minSummaryPoints = 4

// madScale makes the MAD consistent with a normal standard deviation
const madScale = 1.4826

// Profiler builds per-sample QC profiles
type Profiler struct {
	analyzer  *DistributionAnalyzer
	threshold float64
}

// NewProfiler creates a profiler flagging samples beyond threshold robust
// z-scores of log library size; threshold <= 0 uses the default
func NewProfiler(threshold float64) *Profiler {
	if threshold <= 0 {
		threshold = DefaultFlagThreshold
	}
	return &Profiler{analyzer: NewDistributionAnalyzer(), threshold: threshold}
}

// ProfileMatrix summarises every sample of m. The matrix is not modified.
func (p *Profiler) ProfileMatrix(m *expression.CountMatrix) (*MatrixProfile, error) {
	profile := &MatrixProfile{Genes: m.NumGenes()}
	for i := 0; i < m.NumGenes(); i++ {
		if m.IsAllZero(i) {
			profile.AllZeroGenes++
		}
	}

	logLib := make([]float64, m.NumSamples())
	for j, id := range m.Samples {
		sp, err := p.profileSample(id, m.Column(j))
		if err != nil {
			return nil, err
		}
		logLib[j] = math.Log2(float64(sp.LibrarySize) + 1)
		profile.Samples = append(profile.Samples, sp)
	}
	if len(logLib) == 0 {
		return profile, nil
	}

	median, err := stats.Median(logLib)
	if err != nil {
		return nil, err
	}
	mad, err := stats.MedianAbsoluteDeviation(logLib)
	if err != nil {
		return nil, err
	}
	mad *= madScale
	profile.LibraryMedian = math.Exp2(median) - 1
	profile.LibraryMAD = mad

	for j := range profile.Samples {
		z := robustZ(logLib[j], median, mad)
		profile.Samples[j].RobustZ = z
		profile.Samples[j].Flagged = math.Abs(z) > p.threshold
	}
	return profile, nil
}

func (p *Profiler) profileSample(id string, col []int64) (SampleProfile, error) {
	sp := SampleProfile{SampleID: id}
	var logs []float64
	for _, c := range col {
		sp.LibrarySize += c
		if c > 0 {
			sp.Detected++
			logs = append(logs, math.Log2(float64(c)+1))
		}
	}
	if len(col) > 0 {
		sp.DetectionRate = float64(sp.Detected) / float64(len(col))
	}
	if len(logs) < minSummaryPoints {
		return sp, nil
	}
	summary, err := p.analyzer.AnalyzeDistribution(logs)
	if err != nil {
		return sp, err
	}
	sp.LogCounts = summary
	return sp, nil
}
