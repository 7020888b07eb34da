package fdr

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnadiff/domain/core"
)

func TestBenjaminiHochbergHandExample(t *testing.T) {
	got, err := BenjaminiHochberg([]float64{0.01, 0.02, 0.03, 0.5})
	require.NoError(t, err)

	want := []float64{0.04, 0.04, 0.04, 0.5}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-15, "index %d", i)
	}
}

func TestBenjaminiHochbergExcludesNaN(t *testing.T) {
	withNaN, err := BenjaminiHochberg([]float64{0.01, math.NaN(), 0.02, 0.03, 0.5})
	require.NoError(t, err)
	without, err := BenjaminiHochberg([]float64{0.01, 0.02, 0.03, 0.5})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(withNaN[1]))
	assert.Equal(t, without[0], withNaN[0])
	assert.Equal(t, without[1], withNaN[2])
	assert.Equal(t, without[2], withNaN[3])
	assert.Equal(t, without[3], withNaN[4])
}

func TestBenjaminiHochbergEmpty(t *testing.T) {
	tests := []struct {
		name string
		p    []float64
	}{
		{"nil", nil},
		{"all NaN", []float64{math.NaN(), math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BenjaminiHochberg(tt.p)
			if !errors.Is(err, core.ErrEmptyInput) {
				t.Errorf("expected ErrEmptyInput, got %v", err)
			}
		})
	}
}

func TestBenjaminiHochbergRejectsOutOfRange(t *testing.T) {
	_, err := BenjaminiHochberg([]float64{0.2, 1.5})
	assert.True(t, core.IsValidationError(err))
	_, err = BenjaminiHochberg([]float64{-0.1})
	assert.True(t, core.IsValidationError(err))
}

func TestBenjaminiHochbergProperties(t *testing.T) {
	p := []float64{0.8, 0.001, 0.04, 0.04, math.NaN(), 0.3, 0.0004, 0.9, 0.04, 0.06, 1}
	padj, err := BenjaminiHochberg(p)
	require.NoError(t, err)

	type pair struct{ p, q float64 }
	var pairs []pair
	for i := range p {
		if math.IsNaN(p[i]) {
			assert.True(t, math.IsNaN(padj[i]))
			continue
		}
		assert.GreaterOrEqual(t, padj[i], p[i], "padj >= p at %d", i)
		assert.LessOrEqual(t, padj[i], 1.0)
		pairs = append(pairs, pair{p[i], padj[i]})
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].p < pairs[b].p })
	for k := 1; k < len(pairs); k++ {
		assert.LessOrEqual(t, pairs[k-1].q, pairs[k].q, "padj not monotone at rank %d", k)
	}
}

func TestBenjaminiHochbergOrderIndependent(t *testing.T) {
	p := []float64{0.02, 0.5, 0.01, 0.02, 0.3}
	perm := []int{4, 2, 0, 3, 1}
	shuffled := make([]float64, len(p))
	for k, i := range perm {
		shuffled[k] = p[i]
	}

	a, err := BenjaminiHochberg(p)
	require.NoError(t, err)
	b, err := BenjaminiHochberg(shuffled)
	require.NoError(t, err)
	for k, i := range perm {
		assert.Equal(t, a[i], b[k])
	}
}

func TestBonferroni(t *testing.T) {
	got, err := Bonferroni([]float64{0.01, math.NaN(), 0.2, 0.6})
	require.NoError(t, err)
	assert.InDelta(t, 0.03, got[0], 1e-15)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 0.6, got[2], 1e-15)
	assert.Equal(t, 1.0, got[3])
}

func TestAdjustAndParseMethod(t *testing.T) {
	m, err := ParseMethod("FDR")
	require.NoError(t, err)
	assert.Equal(t, MethodBH, m)

	m, err = ParseMethod("Bonferroni")
	require.NoError(t, err)
	assert.Equal(t, MethodBonferroni, m)

	_, err = ParseMethod("holm")
	assert.True(t, core.IsValidationError(err))

	got, err := Adjust(MethodBH, []float64{0.01, 0.02, 0.03, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got[3], 1e-15)
}

func TestIndependentFilter(t *testing.T) {
	// low-mean genes carry uninformative p-values; dropping them shrinks m
	means := []float64{1, 1, 1, 1, 1, 1, 100, 200, 300, 400}
	p := []float64{0.9, 0.8, 0.7, 0.95, 0.6, 0.85, 0.004, 0.005, 0.006, 0.5}

	res, err := IndependentFilter(means, p, 0.01)
	require.NoError(t, err)

	plain, err := BenjaminiHochberg(p)
	require.NoError(t, err)
	plainRejections := 0
	for _, v := range plain {
		if v < 0.01 {
			plainRejections++
		}
	}

	assert.Equal(t, 0, plainRejections)
	assert.Equal(t, 3, res.Rejections)
	assert.Equal(t, 100.0, res.Threshold)
	assert.True(t, math.IsNaN(res.PAdj[0]))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, res.Filtered)
}

func TestIndependentFilterSkipsUntestedGenes(t *testing.T) {
	means := []float64{0.5, 1, 1, 100, 200}
	p := []float64{math.NaN(), 0.9, 0.8, 0.001, 0.002}

	res, err := IndependentFilter(means, p, 0.05)
	require.NoError(t, err)

	for _, i := range res.Filtered {
		assert.False(t, math.IsNaN(p[i]), "gene %d had no p-value to filter", i)
		assert.Less(t, means[i], res.Threshold)
	}
}
