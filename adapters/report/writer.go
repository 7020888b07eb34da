package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rnadiff/domain/core"
	"rnadiff/internal"
	"rnadiff/ports"
)

// Output file names inside the output directory
const (
	TSVFile      = "results.tsv"
	XLSXFile     = "results.xlsx"
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
	VolcanoName  = "volcano"
)

// WriterConfig selects which files a FileWriter produces
type WriterConfig struct {
	Dir      string
	XLSX     bool
	HTML     bool
	Plot     string // png, svg, pdf or empty for none
	Alpha    float64
	TopGenes int
}

// FileWriter writes every run output into one directory
type FileWriter struct {
	cfg    WriterConfig
	logger *internal.Logger
}

var _ ports.OutputPort = (*FileWriter)(nil)

// NewFileWriter creates a writer; a nil logger discards output
func NewFileWriter(cfg WriterConfig, logger *internal.Logger) *FileWriter {
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.05
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &FileWriter{cfg: cfg, logger: logger}
}

func (w *FileWriter) path(name string) string {
	return filepath.Join(w.cfg.Dir, name)
}

// WriteRun writes the result table, optional workbook and plot, and the
// summary report
func (w *FileWriter) WriteRun(ctx context.Context, out ports.RunOutput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := WriteTSVFile(w.path(TSVFile), out.Table); err != nil {
		return err
	}
	if w.cfg.XLSX {
		if err := WriteXLSX(w.path(XLSXFile), out.Table, out.Summary); err != nil {
			return err
		}
	}

	plotName := ""
	if w.cfg.Plot != "" {
		plotName = VolcanoName + "." + w.cfg.Plot
		err := SaveVolcano(w.path(plotName), out.Table, w.cfg.Alpha)
		switch {
		case core.IsValidationError(err):
			w.logger.Warn("[ReportWriter] skipping volcano plot: %v", err)
			plotName = ""
		case err != nil:
			return fmt.Errorf("failed to write volcano plot: %w", err)
		}
	}

	r := Report{
		RunID:       out.RunID.String(),
		Table:       out.Table,
		Summary:     out.Summary,
		Profile:     out.Profile,
		TopGenes:    w.cfg.TopGenes,
		Query:       out.Query,
		Hits:        out.Hits,
		SearchError: out.SearchError,
		Plot:        plotName,
	}
	htmlPath := ""
	if w.cfg.HTML {
		htmlPath = w.path(HTMLFile)
	}
	if err := WriteReportFiles(w.path(MarkdownFile), htmlPath, r); err != nil {
		return err
	}

	w.logger.Info("[ReportWriter] wrote %d rows to %s", len(out.Table.Results), w.cfg.Dir)
	return nil
}
