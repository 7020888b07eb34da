// Package report writes differential expression results to files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"rnadiff/domain/expression"
)

// Columns is the output column contract shared by every writer
var Columns = []string{"gene_id", "baseMean", "log2FoldChange", "lfcSE", "stat", "pvalue", "padj"}

// NAString is written for missing values
const NAString = "NA"

// FormatValue renders v at full precision, or NA when it is missing
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return NAString
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// row renders one result in column order
func row(r expression.DifferentialResult) []string {
	return []string{
		r.GeneID,
		FormatValue(r.BaseMean),
		FormatValue(r.Log2FoldChange),
		FormatValue(r.LfcSE),
		FormatValue(r.Statistic),
		FormatValue(r.PValue),
		FormatValue(r.PAdj),
	}
}

// WriteTSV writes the table as tab-separated text, one gene per line in
// table order
func WriteTSV(w io.Writer, t *expression.ResultTable) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range t.Results {
		if err := cw.Write(row(r)); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.GeneID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTSVFile writes the table to path
func WriteTSVFile(path string, t *expression.ResultTable) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteTSV(f, t)
}
