package report

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"rnadiff/domain/expression"
	"rnadiff/internal/ranking"
)

const (
	resultsSheet = "results"
	summarySheet = "summary"
)

// WriteXLSX writes the table to a workbook with a results sheet and a
// summary sheet. Missing values are written as NA.
func WriteXLSX(path string, t *expression.ResultTable, summary ranking.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range t.Results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.GeneID,
			cellValue(r.BaseMean),
			cellValue(r.Log2FoldChange),
			cellValue(r.LfcSE),
			cellValue(r.Statistic),
			cellValue(r.PValue),
			cellValue(r.PAdj),
		}
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.GeneID, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"contrast", t.Contrast.String()},
		{"test", string(t.Test)},
		{"alpha", summary.Alpha},
		{"tested", summary.Tested},
		{"significant", summary.Significant},
		{"down", summary.Down},
		{"up", summary.Up},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NAString
	}
	return v
}
