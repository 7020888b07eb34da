package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"rnadiff/domain/expression"
	"rnadiff/domain/search"
	"rnadiff/internal/profiling"
	"rnadiff/internal/ranking"
)

// DefaultTopGenes is the number of down-regulated genes listed in a report
const DefaultTopGenes = 20

// Report collects everything rendered into the run summary document
type Report struct {
	RunID       string
	Table       *expression.ResultTable
	Summary     ranking.Summary
	Profile     *profiling.MatrixProfile
	TopGenes    int
	Query       *search.Query
	Hits        []search.RankedHit
	SearchError string
	Plot        string
}

// WriteMarkdown renders r as a Markdown document
func WriteMarkdown(w io.Writer, r Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Differential expression: %s\n\n", r.Table.Contrast.String())
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`, %s test.\n\n", r.RunID, r.Table.Test)
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| alpha | tested | significant | down | up |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %g | %d | %d | %d | %d |\n\n",
		r.Summary.Alpha, r.Summary.Tested, r.Summary.Significant, r.Summary.Down, r.Summary.Up)

	counts := r.Table.CountByStatus()
	b.WriteString("| status | genes |\n|---|---|\n")
	for _, s := range []expression.TestStatus{
		expression.StatusOK, expression.StatusAllZero, expression.StatusLowMean,
		expression.StatusOutlier, expression.StatusNotConverged,
	} {
		if counts[s] > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", s, counts[s])
		}
	}
	b.WriteString("\n")

	if r.Plot != "" {
		fmt.Fprintf(&b, "![volcano](%s)\n\n", r.Plot)
	}

	n := r.TopGenes
	if n <= 0 {
		n = DefaultTopGenes
	}
	down := ranking.Limit(ranking.DownRegulated(r.Table.Results), n)
	b.WriteString("## Top down-regulated genes\n\n")
	if len(down) == 0 {
		b.WriteString("No gene has a negative fold change.\n\n")
	} else {
		b.WriteString("| gene | baseMean | log2FC | padj |\n|---|---|---|---|\n")
		for _, g := range down {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", g.GeneID, short(g.BaseMean), short(g.Log2FoldChange), short(g.PAdj))
		}
		b.WriteString("\n")
	}

	if r.Profile != nil {
		b.WriteString("## Sample QC\n\n")
		b.WriteString("| sample | library size | detected | robust z | flagged |\n|---|---|---|---|---|\n")
		for _, s := range r.Profile.Samples {
			flag := ""
			if s.Flagged {
				flag = "yes"
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %.2f | %s |\n", s.SampleID, s.LibrarySize, s.Detected, s.RobustZ, flag)
		}
		b.WriteString("\n")
	}

	if r.Query != nil || r.SearchError != "" {
		b.WriteString("## Similarity search\n\n")
		if r.Query != nil {
			fmt.Fprintf(&b, "Query `%s` (%d nt).\n\n", r.Query.ID, len(r.Query.Sequence))
		}
		switch {
		case r.SearchError != "":
			fmt.Fprintf(&b, "Search failed: %s\n\n", r.SearchError)
		case len(r.Hits) == 0:
			b.WriteString("No hits.\n\n")
		default:
			b.WriteString("| rank | accession | description | bit score | e-value |\n|---|---|---|---|---|\n")
			for _, h := range r.Hits {
				fmt.Fprintf(&b, "| %d | %s | %s | %.1f | %.3g |\n",
					h.Rank, h.Accession, strings.ReplaceAll(h.Description, "|", "/"), h.BitScore, h.EValue)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderHTML converts a Markdown document to a standalone HTML page
func RenderHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

// WriteReportFiles writes r as Markdown to mdPath and, when htmlPath is not
// empty, as HTML next to it
func WriteReportFiles(mdPath, htmlPath string, r Report) error {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, r); err != nil {
		return err
	}
	if err := os.WriteFile(mdPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", mdPath, err)
	}
	if htmlPath == "" {
		return nil
	}
	page := RenderHTML(buf.Bytes(), "rnadiff "+r.Table.Contrast.String())
	if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", htmlPath, err)
	}
	return nil
}

func short(v float64) string {
	if math.IsNaN(v) {
		return NAString
	}
	return fmt.Sprintf("%.4g", v)
}
