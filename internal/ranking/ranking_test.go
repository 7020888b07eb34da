package ranking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"rnadiff/domain/expression"
)

func row(id string, lfc, padj float64) expression.DifferentialResult {
	return expression.DifferentialResult{GeneID: id, Log2FoldChange: lfc, PValue: padj / 2, PAdj: padj, Status: expression.StatusOK}
}

func sample() []expression.DifferentialResult {
	nan := math.NaN()
	return []expression.DifferentialResult{
		row("a", -1.5, 0.2),
		row("b", 2.0, 0.001),
		row("c", -3e-7, 0.01),
		row("d", -0.5, nan),
		row("e", nan, 0.5),
		row("f", 0, 0.02),
		row("g", -2.2, 0.01),
		row("h", -1e-12, 0.0001),
	}
}

func ids(rows []expression.DifferentialResult) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.GeneID
	}
	return out
}

func TestDownRegulated(t *testing.T) {
	got := DownRegulated(sample())
	assert.Equal(t, []string{"h", "c", "g", "a", "d"}, ids(got))

	prev := math.Inf(-1)
	for _, r := range got {
		if r.Log2FoldChange >= 0 {
			t.Fatalf("gene %s has non-negative fold change %v", r.GeneID, r.Log2FoldChange)
		}
		if math.IsNaN(r.PAdj) {
			continue
		}
		if r.PAdj < prev {
			t.Fatalf("padj not non-decreasing at %s", r.GeneID)
		}
		prev = r.PAdj
	}
}

func TestDownRegulatedDoesNotModifyInput(t *testing.T) {
	in := sample()
	_ = DownRegulated(in)
	assert.Equal(t, "a", in[0].GeneID)
	assert.Equal(t, "h", in[7].GeneID)
}

func TestUpRegulatedAndSignificant(t *testing.T) {
	assert.Equal(t, []string{"b"}, ids(UpRegulated(sample())))
	assert.Equal(t, []string{"h", "b", "c", "g", "f"}, ids(Significant(sample(), 0.05)))
}

func TestTopAndLimit(t *testing.T) {
	top, ok := Top(DownRegulated(sample()))
	assert.True(t, ok)
	assert.Equal(t, "h", top.GeneID)

	_, ok = Top(nil)
	assert.False(t, ok)

	assert.Len(t, Limit(DownRegulated(sample()), 2), 2)
	assert.Len(t, Limit(DownRegulated(sample()), 0), 5)
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, DirectionDown, ParseDirection("down"))
	assert.Equal(t, DirectionUp, ParseDirection("up"))
	assert.Equal(t, DirectionAny, ParseDirection(""))
	assert.Len(t, Filter(sample(), DirectionAny), 7)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample(), 0.05)
	assert.Equal(t, 5, s.Significant)
	assert.Equal(t, 3, s.Down)
	assert.Equal(t, 1, s.Up)
	assert.Equal(t, 7, s.Tested)
}
