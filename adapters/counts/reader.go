package counts

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/internal"
)

// integerTolerance is how far from an integer a count may be before the row
// is rejected instead of rounded
const integerTolerance = 1e-6

// Format is the on-disk layout of a table
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat infers a format from the file name; a trailing .gz is
// ignored. Unknown extensions read as TSV.
func DetectFormat(path string) (format Format, gzipped bool) {
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".gz") {
		gzipped = true
		name = strings.TrimSuffix(name, ".gz")
	}
	switch filepath.Ext(name) {
	case ".csv":
		return FormatCSV, gzipped
	case ".xlsx":
		return FormatXLSX, gzipped
	default:
		return FormatTSV, gzipped
	}
}

// LoadReport describes what the loader kept and dropped
type LoadReport struct {
	Path         string        `json:"path"`
	Format       Format        `json:"format"`
	Rows         int           `json:"rows"`
	Kept         int           `json:"kept"`
	Dropped      int           `json:"dropped"`
	DuplicateIDs int           `json:"duplicate_ids"`
	Rounded      int           `json:"rounded"`
	DroppedGenes []string      `json:"dropped_genes,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Reader loads a count table from an explicit path. The first row holds
// the gene id column name and the sample ids.
type Reader struct {
	path       string
	format     Format
	gzipped    bool
	geneColumn string
	sheet      string
	logger     *internal.Logger
}

// Option configures a Reader
type Option func(*Reader)

// WithGeneColumn names the gene id column; the default is the first column
func WithGeneColumn(name string) Option {
	return func(r *Reader) { r.geneColumn = name }
}

// WithSheet selects an xlsx sheet; the default is the first sheet
func WithSheet(name string) Option {
	return func(r *Reader) { r.sheet = name }
}

// WithLogger sets the logger
func WithLogger(l *internal.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a reader for path
func NewReader(path string, opts ...Option) *Reader {
	format, gz := DetectFormat(path)
	r := &Reader{path: path, format: format, gzipped: gz, logger: internal.DefaultLogger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadMatrix loads the count matrix. Rows with a missing, non-numeric,
// negative or non-integer cell are dropped and counted; a repeated gene id
// keeps the first row. Duplicate sample ids are fatal.
func (r *Reader) ReadMatrix() (*expression.CountMatrix, *LoadReport, error) {
	start := time.Now()
	r.logger.Info("[CountReader] reading %s file: %s", r.format, r.path)

	rows, err := r.readRows()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, core.NewMatrixError(fmt.Sprintf("%s: need a header row and at least one gene", r.path))
	}

	header := trimAll(rows[0])
	geneCol := 0
	if r.geneColumn != "" {
		geneCol = -1
		for j, h := range header {
			if h == r.geneColumn {
				geneCol = j
				break
			}
		}
		if geneCol < 0 {
			return nil, nil, core.NewValidationError("gene_column", fmt.Sprintf("column %q not in header", r.geneColumn))
		}
	}

	var samples []string
	var sampleCols []int
	seen := make(map[string]bool)
	for j, h := range header {
		if j == geneCol {
			continue
		}
		if h == "" {
			return nil, nil, core.NewMatrixError(fmt.Sprintf("empty sample id in column %d", j+1))
		}
		if seen[h] {
			return nil, nil, core.NewMatrixError(fmt.Sprintf("duplicate sample id %q", h))
		}
		seen[h] = true
		samples = append(samples, h)
		sampleCols = append(sampleCols, j)
	}
	if len(samples) == 0 {
		return nil, nil, core.NewMatrixError("no sample columns")
	}

	report := &LoadReport{Path: r.path, Format: r.format, Rows: len(rows) - 1}
	var genes []string
	var counts [][]int64
	geneSeen := make(map[string]bool)
	for _, raw := range rows[1:] {
		row := trimAll(raw)
		if isBlank(row) {
			report.Rows--
			continue
		}
		gene := cell(row, geneCol)
		if gene == "" {
			report.Dropped++
			continue
		}
		if geneSeen[gene] {
			report.DuplicateIDs++
			report.Dropped++
			report.DroppedGenes = append(report.DroppedGenes, gene)
			continue
		}
		values, rounded, ok := parseCounts(row, sampleCols)
		if !ok {
			report.Dropped++
			report.DroppedGenes = append(report.DroppedGenes, gene)
			continue
		}
		report.Rounded += rounded
		geneSeen[gene] = true
		genes = append(genes, gene)
		counts = append(counts, values)
	}
	report.Kept = len(genes)
	report.Elapsed = time.Since(start)

	if report.Dropped > 0 {
		r.logger.Warn("[CountReader] dropped %d of %d rows (%d duplicate ids)", report.Dropped, report.Rows, report.DuplicateIDs)
	}
	r.logger.Info("[CountReader] %d genes x %d samples loaded in %.2fms", report.Kept, len(samples), float64(report.Elapsed.Nanoseconds())/1e6)

	m, err := expression.NewCountMatrix(genes, samples, counts)
	if err != nil {
		return nil, report, err
	}
	return m, report, nil
}

// readRows returns the raw cell grid for any supported format
func (r *Reader) readRows() ([][]string, error) {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, core.NewValidationError("path", fmt.Sprintf("%s not found", r.path))
	}
	switch r.format {
	case FormatXLSX:
		return r.readExcelRows()
	case FormatCSV:
		return r.readDelimited(',')
	default:
		return r.readDelimited('\t')
	}
}

func (r *Reader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, core.NewMatrixError("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r.logger.Debug("[CountReader] sheet %s read (%d rows)", sheet, len(rows))
	return rows, nil
}

func (r *Reader) readDelimited(sep rune) ([][]string, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	defer file.Close()

	var src io.Reader = file
	if r.gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	reader := csv.NewReader(src)
	reader.Comma = sep
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewMatrixError(fmt.Sprintf("failed to parse %s: %v", r.path, err))
	}
	return rows, nil
}

// parseCounts converts the sample cells of a row. ok is false when any cell
// is missing, not a non-negative integer within tolerance, or too large
// for int64.
func parseCounts(row []string, cols []int) (values []int64, rounded int, ok bool) {
	values = make([]int64, len(cols))
	for k, j := range cols {
		s := cell(row, j)
		if s == "" {
			return nil, 0, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, 0, false
		}
		n := math.Round(v)
		if math.Abs(v-n) > integerTolerance {
			return nil, 0, false
		}
		// float64(MaxInt64) rounds up to 2^63, the first value that overflows
		if n >= math.MaxInt64 {
			return nil, 0, false
		}
		if n != v {
			rounded++
		}
		values[k] = int64(n)
	}
	return values, rounded, true
}

func cell(row []string, j int) string {
	if j < len(row) {
		return row[j]
	}
	return ""
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
