package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
)

const (
	volcanoWidth  = 6 * vg.Inch
	volcanoHeight = 5 * vg.Inch
)

var (
	significantColor = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	backgroundColor  = color.RGBA{R: 140, G: 140, B: 140, A: 255}
)

// negLog10 maps padj to -log10(padj), keeping p = 0 finite
func negLog10(p float64) float64 {
	return -math.Log10(math.Max(p, math.SmallestNonzeroFloat64))
}

// VolcanoPlot plots log2 fold change against -log10(padj). Genes with padj
// below alpha are coloured; genes without padj or fold change are left out.
func VolcanoPlot(t *expression.ResultTable, alpha float64) (*plot.Plot, error) {
	var sig, rest plotter.XYs
	for _, r := range t.Results {
		if math.IsNaN(r.PAdj) || math.IsNaN(r.Log2FoldChange) || math.IsInf(r.Log2FoldChange, 0) {
			continue
		}
		pt := plotter.XY{X: r.Log2FoldChange, Y: negLog10(r.PAdj)}
		if r.PAdj < alpha {
			sig = append(sig, pt)
		} else {
			rest = append(rest, pt)
		}
	}
	if len(sig)+len(rest) == 0 {
		return nil, core.NewValidationError("results", "no gene has an adjusted p-value to plot")
	}

	p := plot.New()
	p.Title.Text = t.Contrast.String()
	p.X.Label.Text = "log2 fold change"
	p.Y.Label.Text = "-log10 padj"
	p.Add(plotter.NewGrid())

	for _, layer := range []struct {
		name string
		xys  plotter.XYs
		c    color.Color
	}{
		{"not significant", rest, backgroundColor},
		{fmt.Sprintf("padj < %g", alpha), sig, significantColor},
	} {
		if len(layer.xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(layer.xys)
		if err != nil {
			return nil, fmt.Errorf("failed to build scatter: %w", err)
		}
		s.GlyphStyle.Color = layer.c
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(layer.name, s)
	}

	xmin, xmax, _, _ := plotter.XYRange(append(append(plotter.XYs{}, sig...), rest...))
	cut, err := plotter.NewLine(plotter.XYs{{X: xmin, Y: negLog10(alpha)}, {X: xmax, Y: negLog10(alpha)}})
	if err != nil {
		return nil, fmt.Errorf("failed to build threshold line: %w", err)
	}
	cut.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(cut)
	p.Legend.Top = true
	return p, nil
}

// WriteVolcano renders the volcano plot to w in format (png, svg, pdf)
func WriteVolcano(w io.Writer, format string, t *expression.ResultTable, alpha float64) error {
	p, err := VolcanoPlot(t, alpha)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(volcanoWidth, volcanoHeight, format)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveVolcano writes the volcano plot to path; the extension picks the format
func SaveVolcano(path string, t *expression.ResultTable, alpha float64) error {
	p, err := VolcanoPlot(t, alpha)
	if err != nil {
		return err
	}
	return p.Save(volcanoWidth, volcanoHeight, path)
}
