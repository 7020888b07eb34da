package counts

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/internal"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func quiet() Option { return WithLogger(internal.NopLogger()) }

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		gz     bool
	}{
		{"counts.csv", FormatCSV, false},
		{"counts.TSV", FormatTSV, false},
		{"counts.txt.gz", FormatTSV, true},
		{"counts.csv.gz", FormatCSV, true},
		{"counts.xlsx", FormatXLSX, false},
	}
	for _, tt := range tests {
		f, gz := DetectFormat(tt.path)
		if f != tt.format || gz != tt.gz {
			t.Errorf("DetectFormat(%q) = %s,%v want %s,%v", tt.path, f, gz, tt.format, tt.gz)
		}
	}
}

func TestReadMatrixTSV(t *testing.T) {
	path := writeFile(t, "counts.tsv", "gene\ts1\ts2\ts3\n"+
		"# comment line\n"+
		"g1\t10\t20\t30\n"+
		"g2\t1.0000001\t2\t3\n"+
		"g3\t1.5\t2\t3\n"+
		"g4\t-1\t2\t3\n"+
		"g5\tNA\t2\t3\n"+
		"g1\t9\t9\t9\n"+
		"g6\t0\t0\t0\n"+
		"\n")

	m, report, err := NewReader(path, quiet()).ReadMatrix()
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s2", "s3"}, m.Samples)
	assert.Equal(t, []string{"g1", "g2", "g6"}, m.Genes)
	assert.Equal(t, []int64{1, 2, 3}, m.Counts[1])
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 4, report.Dropped)
	assert.Equal(t, 1, report.DuplicateIDs)
	assert.Equal(t, 1, report.Rounded)
	assert.Equal(t, []string{"g3", "g4", "g5", "g1"}, report.DroppedGenes)
}

func TestReadMatrixDropsCountsBeyondInt64(t *testing.T) {
	path := writeFile(t, "counts.tsv", "gene\ts1\ts2\n"+
		"g1\t10\t20\n"+
		"g2\t1e20\t5\n"+
		"g3\t9223372036854775808\t5\n"+
		"g4\t3\t4\n")

	m, report, err := NewReader(path, quiet()).ReadMatrix()
	require.NoError(t, err)

	assert.Equal(t, []string{"g1", "g4"}, m.Genes)
	assert.Equal(t, []string{"g2", "g3"}, report.DroppedGenes)
	for _, row := range m.Counts {
		for _, c := range row {
			assert.GreaterOrEqual(t, c, int64(0))
		}
	}
}

func TestReadMatrixCSVWithGeneColumn(t *testing.T) {
	path := writeFile(t, "counts.csv", "s1,id,s2\n5,geneA,6\n7,geneB,8\n")
	m, _, err := NewReader(path, WithGeneColumn("id"), quiet()).ReadMatrix()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, m.Samples)
	assert.Equal(t, []int64{7, 8}, m.Counts[1])

	_, _, err = NewReader(path, WithGeneColumn("missing"), quiet()).ReadMatrix()
	assert.True(t, core.IsValidationError(err))
}

func TestReadMatrixGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.tsv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("gene\ta\tb\ng1\t1\t2\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	m, _, err := NewReader(path, quiet()).ReadMatrix()
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2}}, m.Counts)
}

func TestReadMatrixXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"gene", "s1", "s2"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"g1", 4, 5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"g2", 0, 12}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	m, report, err := NewReader(path, quiet()).ReadMatrix()
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, report.Format)
	assert.Equal(t, [][]int64{{4, 5}, {0, 12}}, m.Counts)
}

func TestReadMatrixErrors(t *testing.T) {
	_, _, err := NewReader(filepath.Join(t.TempDir(), "nope.tsv"), quiet()).ReadMatrix()
	assert.True(t, core.IsValidationError(err))

	dup := writeFile(t, "dup.csv", "gene,s1,s1\ng1,1,2\n")
	_, _, err = NewReader(dup, quiet()).ReadMatrix()
	assert.True(t, errors.Is(err, core.ErrInvalidMatrix))

	headerOnly := writeFile(t, "header.csv", "gene,s1\n")
	_, _, err = NewReader(headerOnly, quiet()).ReadMatrix()
	assert.True(t, errors.Is(err, core.ErrInvalidMatrix))

	allBad := writeFile(t, "bad.csv", "gene,s1\ng1,x\n")
	_, report, err := NewReader(allBad, quiet()).ReadMatrix()
	assert.True(t, errors.Is(err, core.ErrInvalidMatrix))
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Dropped)
}

func TestReadDesign(t *testing.T) {
	path := writeFile(t, "design.csv", "sample,group,time,replicate,batch\n"+
		"s1,control,0h,1,b1\n"+
		"s2,control,6h,1,b2\n"+
		"s3,treated,0h,1,b1\n")

	design, err := ReadDesign(path, quiet())
	require.NoError(t, err)
	require.Len(t, design.Records, 3)
	assert.Equal(t, expression.DesignRecord{
		SampleID:   "s2",
		Group:      "control",
		TimePoint:  "6h",
		Replicate:  1,
		Covariates: map[string]string{"batch": "b2"},
	}, design.Records[1])
	assert.Equal(t, "b1", design.Records[2].Level("batch"))
}

func TestReadDesignErrors(t *testing.T) {
	noGroup := writeFile(t, "d1.csv", "sample,condition\ns1,a\n")
	_, err := ReadDesign(noGroup, quiet())
	assert.True(t, errors.Is(err, core.ErrInvalidDesign))

	badRep := writeFile(t, "d2.tsv", "sample\tgroup\treplicate\ns1\ta\tone\n")
	_, err = ReadDesign(badRep, quiet())
	assert.True(t, errors.Is(err, core.ErrInvalidDesign))
}
