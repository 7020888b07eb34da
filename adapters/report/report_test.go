package report

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/search"
	"rnadiff/internal/profiling"
	"rnadiff/internal/ranking"
	"rnadiff/ports"
)

func sampleTable() *expression.ResultTable {
	return &expression.ResultTable{
		Contrast: expression.Contrast{Factor: expression.FactorGroup, Numerator: "treated", Denominator: "control"},
		Test:     expression.TestWald,
		Results: []expression.DifferentialResult{
			{GeneID: "geneA", BaseMean: 58, Log2FoldChange: -3.25, LfcSE: 0.3, Statistic: -10.8, PValue: 1e-27, PAdj: 2e-27, Status: expression.StatusOK},
			{GeneID: "geneB", BaseMean: 50, Log2FoldChange: 0.1, LfcSE: 0.35, Statistic: 0.28, PValue: 0.78, PAdj: 0.78, Status: expression.StatusOK},
			expression.NewUntestedResult("geneZ", 0, expression.StatusAllZero),
		},
	}
}

func TestWriteTSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, sampleTable()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "gene_id\tbaseMean\tlog2FoldChange\tlfcSE\tstat\tpvalue\tpadj", lines[0])
	assert.Equal(t, "geneA\t58\t-3.25\t0.3\t-10.8\t1e-27\t2e-27", lines[1])
	assert.Equal(t, "geneZ\t0\tNA\tNA\tNA\tNA\tNA", lines[3])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	table := sampleTable()
	require.NoError(t, WriteXLSX(path, table, ranking.Summarize(table.Results, 0.05)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"results", "summary"}, f.GetSheetList())

	rows, err := f.GetRows("results")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "geneA", rows[1][0])
	assert.Equal(t, "-3.25", rows[1][2])
	assert.Equal(t, []string{"geneZ", "0", "NA", "NA", "NA", "NA", "NA"}, rows[3])

	summary, err := f.GetRows("summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"significant", "1"}, summary[4])
}

func TestWriteMarkdown(t *testing.T) {
	table := sampleTable()
	var buf bytes.Buffer
	err := WriteMarkdown(&buf, Report{
		RunID:   "run-1",
		Table:   table,
		Summary: ranking.Summarize(table.Results, 0.05),
		Profile: &profiling.MatrixProfile{Samples: []profiling.SampleProfile{
			{SampleID: "S1", LibrarySize: 1000, Detected: 2, Flagged: true},
		}},
		Query: &search.Query{ID: "geneA", Sequence: "ACGT"},
		Hits: []search.RankedHit{
			{Rank: 1, Accession: "NM_000001", Description: "a|b", BitScore: 120.5, EValue: 1e-30},
		},
	})
	require.NoError(t, err)

	md := buf.String()
	assert.Contains(t, md, "# Differential expression: group: treated vs control")
	assert.Contains(t, md, "| 0.05 | 2 | 1 | 1 | 0 |")
	assert.Contains(t, md, "| all_zero | 1 |")
	assert.Contains(t, md, "| geneA | 58 | -3.25 | 2e-27 |")
	assert.NotContains(t, md, "| geneB |")
	assert.Contains(t, md, "| S1 | 1000 | 2 | 0.00 | yes |")
	assert.Contains(t, md, "Query `geneA` (4 nt).")
	assert.Contains(t, md, "| 1 | NM_000001 | a/b | 120.5 | 1e-30 |")

	page := string(RenderHTML(buf.Bytes(), "rnadiff"))
	assert.Contains(t, page, "<title>rnadiff</title>")
	assert.Contains(t, page, "<table>")
}

func TestWriteMarkdownSearchFailure(t *testing.T) {
	table := sampleTable()
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, Report{
		Table:       table,
		SearchError: "search unavailable: timed out",
	}))
	assert.Contains(t, buf.String(), "Search failed: search unavailable: timed out")
}

func TestWriteReportFiles(t *testing.T) {
	dir := t.TempDir()
	table := sampleTable()
	md := filepath.Join(dir, "report.md")
	html := filepath.Join(dir, "report.html")
	require.NoError(t, WriteReportFiles(md, html, Report{Table: table}))
	assert.FileExists(t, md)
	assert.FileExists(t, html)
}

func TestWriteVolcano(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVolcano(&buf, "svg", sampleTable(), 0.05))
	assert.Contains(t, buf.String(), "<svg")

	path := filepath.Join(t.TempDir(), "volcano.png")
	require.NoError(t, SaveVolcano(path, sampleTable(), 0.05))
	assert.FileExists(t, path)
}

func TestVolcanoNeedsAdjustedPValues(t *testing.T) {
	table := &expression.ResultTable{Results: []expression.DifferentialResult{
		expression.NewUntestedResult("geneZ", 0, expression.StatusAllZero),
	}}
	_, err := VolcanoPlot(table, 0.05)
	assert.True(t, core.IsValidationError(err))
}

func TestFileWriterWritesRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewFileWriter(WriterConfig{Dir: dir, XLSX: true, HTML: true, Plot: "svg"}, nil)
	table := sampleTable()

	err := w.WriteRun(context.Background(), ports.RunOutput{
		RunID:   core.RunID("run-1"),
		Table:   table,
		Summary: ranking.Summarize(table.Results, 0.05),
	})
	require.NoError(t, err)

	for _, name := range []string{TSVFile, XLSXFile, MarkdownFile, HTMLFile, "volcano.svg"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestFileWriterSkipsEmptyPlot(t *testing.T) {
	dir := t.TempDir()
	w := NewFileWriter(WriterConfig{Dir: dir, Plot: "png"}, nil)
	table := &expression.ResultTable{Results: []expression.DifferentialResult{
		expression.NewUntestedResult("geneZ", 0, expression.StatusAllZero),
	}}

	require.NoError(t, w.WriteRun(context.Background(), ports.RunOutput{Table: table}))
	assert.NoFileExists(t, filepath.Join(dir, "volcano.png"))
	assert.FileExists(t, filepath.Join(dir, MarkdownFile))
	assert.NoFileExists(t, filepath.Join(dir, HTMLFile))
}
