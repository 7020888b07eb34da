// Package expression holds the count matrix, the experimental design and the
// differential expression result types shared by every stage of a run.
package expression

import (
	"fmt"

	"rnadiff/domain/core"
)

// CountMatrix is a gene-by-sample table of non-negative read counts.
// Counts is gene-major: Counts[gene][sample].
type CountMatrix struct {
	Genes   []string
	Samples []string
	Counts  [][]int64
}

// NewCountMatrix builds and validates a matrix
func NewCountMatrix(genes, samples []string, counts [][]int64) (*CountMatrix, error) {
	m := &CountMatrix{Genes: genes, Samples: samples, Counts: counts}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NumGenes returns the number of rows
func (m *CountMatrix) NumGenes() int { return len(m.Genes) }

// NumSamples returns the number of columns
func (m *CountMatrix) NumSamples() int { return len(m.Samples) }

// Row returns a copy of the counts for gene i
func (m *CountMatrix) Row(i int) []int64 {
	out := make([]int64, len(m.Counts[i]))
	copy(out, m.Counts[i])
	return out
}

// RowFloat returns gene i's counts as float64
func (m *CountMatrix) RowFloat(i int) []float64 {
	out := make([]float64, len(m.Counts[i]))
	for j, c := range m.Counts[i] {
		out[j] = float64(c)
	}
	return out
}

// Column returns a copy of the counts for sample j
func (m *CountMatrix) Column(j int) []int64 {
	out := make([]int64, len(m.Genes))
	for i := range m.Counts {
		out[i] = m.Counts[i][j]
	}
	return out
}

// SampleIndex looks up a sample column by ID
func (m *CountMatrix) SampleIndex(id string) (int, bool) {
	for j, s := range m.Samples {
		if s == id {
			return j, true
		}
	}
	return -1, false
}

// GeneIndex looks up a gene row by ID
func (m *CountMatrix) GeneIndex(id string) (int, bool) {
	for i, g := range m.Genes {
		if g == id {
			return i, true
		}
	}
	return -1, false
}

// IsAllZero reports whether gene i has no reads in any sample
func (m *CountMatrix) IsAllZero(i int) bool {
	for _, c := range m.Counts[i] {
		if c != 0 {
			return false
		}
	}
	return true
}

// Validate enforces the matrix invariants: unique labels, rectangular shape,
// non-negative counts.
func (m *CountMatrix) Validate() error {
	if len(m.Genes) == 0 {
		return core.NewMatrixError("no genes")
	}
	if len(m.Samples) == 0 {
		return core.NewMatrixError("no samples")
	}
	if len(m.Counts) != len(m.Genes) {
		return core.NewMatrixError(fmt.Sprintf("%d count rows for %d genes", len(m.Counts), len(m.Genes)))
	}

	seen := make(map[string]bool, len(m.Samples))
	for _, s := range m.Samples {
		if s == "" {
			return core.NewMatrixError("empty sample id")
		}
		if seen[s] {
			return core.NewMatrixError(fmt.Sprintf("duplicate sample id %q", s))
		}
		seen[s] = true
	}

	seen = make(map[string]bool, len(m.Genes))
	for i, g := range m.Genes {
		if g == "" {
			return core.NewMatrixError(fmt.Sprintf("empty gene id at row %d", i))
		}
		if seen[g] {
			return core.NewMatrixError(fmt.Sprintf("duplicate gene id %q", g))
		}
		seen[g] = true

		row := m.Counts[i]
		if len(row) != len(m.Samples) {
			return core.NewMatrixError(fmt.Sprintf("gene %q has %d counts, want %d", g, len(row), len(m.Samples)))
		}
		for j, c := range row {
			if c < 0 {
				return core.NewMatrixError(fmt.Sprintf("negative count %d for gene %q sample %q", c, g, m.Samples[j]))
			}
		}
	}
	return nil
}

// Fingerprint hashes labels and counts for run manifests
func (m *CountMatrix) Fingerprint() core.InputHash {
	return core.ComputeInputHash(m.Genes, m.Samples, m.Counts)
}

// Subset returns a new matrix restricted to the given sample columns, in order
func (m *CountMatrix) Subset(samples []string) (*CountMatrix, error) {
	idx := make([]int, len(samples))
	for k, s := range samples {
		j, ok := m.SampleIndex(s)
		if !ok {
			return nil, core.NewMatrixError(fmt.Sprintf("unknown sample %q", s))
		}
		idx[k] = j
	}
	counts := make([][]int64, len(m.Genes))
	for i := range m.Genes {
		row := make([]int64, len(idx))
		for k, j := range idx {
			row[k] = m.Counts[i][j]
		}
		counts[i] = row
	}
	genes := append([]string(nil), m.Genes...)
	return NewCountMatrix(genes, append([]string(nil), samples...), counts)
}
