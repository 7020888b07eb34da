package expression

import (
	"encoding/json"
	"testing"

	"rnadiff/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourSampleMatrix(t *testing.T) *CountMatrix {
	t.Helper()
	m, err := NewCountMatrix(
		[]string{"geneA", "geneB"},
		[]string{"s1", "s2", "s3", "s4"},
		[][]int64{{100, 110, 10, 12}, {50, 52, 50, 48}},
	)
	require.NoError(t, err)
	return m
}

func TestBuildDesign_ExpandsGroupsInColumnOrder(t *testing.T) {
	spec := DesignSpec{Groups: []GroupSpec{
		{Name: "control", Replicates: 2, TimePoints: []string{"0h", "6h"}},
		{Name: "treated", Replicates: 2, TimePoints: []string{"0h", "6h"}},
	}}
	samples := []string{"c0a", "c0b", "c6a", "c6b", "t0a", "t0b", "t6a", "t6b"}

	design, err := BuildDesign(spec, samples)
	require.NoError(t, err)
	require.Len(t, design.Records, 8)

	assert.Equal(t, DesignRecord{SampleID: "c0a", Group: "control", TimePoint: "0h", Replicate: 1}, design.Records[0])
	assert.Equal(t, DesignRecord{SampleID: "c6b", Group: "control", TimePoint: "6h", Replicate: 2}, design.Records[3])
	assert.Equal(t, DesignRecord{SampleID: "t6a", Group: "treated", TimePoint: "6h", Replicate: 1}, design.Records[6])
	assert.Equal(t, []string{"control", "treated"}, design.Levels(FactorGroup))
	assert.Equal(t, []string{"0h", "6h"}, design.Levels(FactorTime))
}

func TestBuildDesign_CountMismatch(t *testing.T) {
	spec := DesignSpec{Groups: []GroupSpec{{Name: "A", Replicates: 2}, {Name: "B", Replicates: 3}}}
	_, err := BuildDesign(spec, []string{"s1", "s2", "s3", "s4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidDesign)
}

func TestBuildDesign_RejectsDuplicateGroup(t *testing.T) {
	spec := DesignSpec{Groups: []GroupSpec{{Name: "A", Replicates: 1}, {Name: "A", Replicates: 1}}}
	_, err := BuildDesign(spec, []string{"s1", "s2"})
	assert.ErrorIs(t, err, core.ErrInvalidDesign)
}

func TestParseDesignSpec(t *testing.T) {
	spec, err := ParseDesignSpec("control@0h/6h=2, treated@0h/6h=3")
	require.NoError(t, err)
	require.Len(t, spec.Groups, 2)
	assert.Equal(t, GroupSpec{Name: "control", Replicates: 2, TimePoints: []string{"0h", "6h"}}, spec.Groups[0])
	assert.Equal(t, 10, spec.SampleCount())

	_, err = ParseDesignSpec("control")
	assert.ErrorIs(t, err, core.ErrInvalidDesign)
	_, err = ParseDesignSpec("control=two")
	assert.ErrorIs(t, err, core.ErrInvalidDesign)
}

func TestSampleDesign_Validate(t *testing.T) {
	m := fourSampleMatrix(t)
	contrast := Contrast{Factor: FactorGroup, Numerator: "A", Denominator: "B"}

	good, err := BuildDesign(DesignSpec{Groups: []GroupSpec{{Name: "A", Replicates: 2}, {Name: "B", Replicates: 2}}}, m.Samples)
	require.NoError(t, err)
	assert.NoError(t, good.Validate(m, contrast))

	tests := []struct {
		name    string
		records []DesignRecord
	}{
		{"single group", []DesignRecord{{SampleID: "s1", Group: "A"}, {SampleID: "s2", Group: "A"}, {SampleID: "s3", Group: "A"}, {SampleID: "s4", Group: "A"}}},
		{"missing label", []DesignRecord{{SampleID: "s1", Group: "A"}, {SampleID: "s2", Group: ""}, {SampleID: "s3", Group: "B"}, {SampleID: "s4", Group: "B"}}},
		{"missing record", []DesignRecord{{SampleID: "s1", Group: "A"}, {SampleID: "s2", Group: "A"}, {SampleID: "s3", Group: "B"}}},
		{"contrast group empty", []DesignRecord{{SampleID: "s1", Group: "A"}, {SampleID: "s2", Group: "A"}, {SampleID: "s3", Group: "C"}, {SampleID: "s4", Group: "C"}}},
		{"duplicate record", []DesignRecord{{SampleID: "s1", Group: "A"}, {SampleID: "s1", Group: "A"}, {SampleID: "s2", Group: "A"}, {SampleID: "s3", Group: "B"}, {SampleID: "s4", Group: "B"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &SampleDesign{Records: tt.records}
			err := d.Validate(m, contrast)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidDesign)
			assert.True(t, core.IsValidationError(err))
		})
	}
}

func TestParseContrast(t *testing.T) {
	c, err := ParseContrast("treated:control")
	require.NoError(t, err)
	assert.Equal(t, Contrast{Factor: FactorGroup, Numerator: "treated", Denominator: "control"}, c)

	c, err = ParseContrast("time:6h:0h")
	require.NoError(t, err)
	assert.Equal(t, "time", c.FactorName())

	_, err = ParseContrast("a:a")
	assert.ErrorIs(t, err, core.ErrInvalidDesign)
	_, err = ParseContrast("a")
	assert.ErrorIs(t, err, core.ErrInvalidDesign)
}

func TestCountMatrix_Validate(t *testing.T) {
	_, err := NewCountMatrix([]string{"g1", "g1"}, []string{"s1"}, [][]int64{{1}, {2}})
	assert.ErrorIs(t, err, core.ErrInvalidMatrix)

	_, err = NewCountMatrix([]string{"g1"}, []string{"s1", "s1"}, [][]int64{{1, 2}})
	assert.ErrorIs(t, err, core.ErrInvalidMatrix)

	_, err = NewCountMatrix([]string{"g1"}, []string{"s1", "s2"}, [][]int64{{1, -2}})
	assert.ErrorIs(t, err, core.ErrInvalidMatrix)

	_, err = NewCountMatrix([]string{"g1"}, []string{"s1", "s2"}, [][]int64{{1}})
	assert.ErrorIs(t, err, core.ErrInvalidMatrix)
}

func TestCountMatrix_RowIsACopy(t *testing.T) {
	m := fourSampleMatrix(t)
	row := m.Row(0)
	row[0] = 999
	assert.Equal(t, int64(100), m.Counts[0][0])

	sub, err := m.Subset([]string{"s3", "s1"})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 100}, sub.Counts[0])
}

func TestDifferentialResult_JSONWritesNull(t *testing.T) {
	r := NewUntestedResult("g0", 0, StatusAllZero)
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gene_id":"g0","baseMean":0,"log2FoldChange":null,"lfcSE":null,"stat":null,"pvalue":null,"padj":null,"status":"all_zero"}`, string(raw))

	var back DifferentialResult
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, IsNA(back.PValue))
	assert.False(t, back.Tested())
}
