package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rnadiff/adapters/counts"
	"rnadiff/domain/expression"
	"rnadiff/internal/errors"
)

func newDesignCmd(c *cli) *cobra.Command {
	var f analyzeFlags
	var samples []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "design",
		Short: "Build or check a sample design against a count matrix",
		Long: `Expand a compact --groups description, or read a --design table, and
print one record per sample column. With --contrast the design is checked
exactly as analyze would check it, without fitting anything.

Example:
  rnadiff design --counts counts.csv --groups control@0h/6h=2,treated@0h/6h=2 --contrast treated:control`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := c.load(cmd.Flags()); err != nil {
				return err
			}
			if f.counts == "" && len(samples) == 0 {
				return errors.New(errors.CodeInputValidation, "one of --counts or --samples is required")
			}

			var matrix *expression.CountMatrix
			if f.counts != "" {
				m, _, err := counts.NewReader(f.counts).ReadMatrix()
				if err != nil {
					return err
				}
				matrix = m
			} else {
				// an all-zero placeholder carries the sample IDs
				cells := [][]int64{make([]int64, len(samples))}
				m, err := expression.NewCountMatrix([]string{"placeholder"}, samples, cells)
				if err != nil {
					return err
				}
				matrix = m
			}

			design, err := loadDesign(f, matrix)
			if err != nil {
				return err
			}
			if f.contrast != "" {
				contrast, err := expression.ParseContrast(f.contrast)
				if err != nil {
					return err
				}
				if err := design.Validate(matrix, contrast); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(design)
			}
			return writeDesign(out, design)
		},
	}

	cmd.Flags().StringVar(&f.counts, "counts", "", "count matrix whose header supplies the sample IDs")
	cmd.Flags().StringSliceVar(&samples, "samples", nil, "sample IDs in column order, instead of --counts")
	cmd.Flags().StringVar(&f.design, "design", "", "design table to check")
	cmd.Flags().StringVar(&f.groups, "groups", "", "design in column order, e.g. control=3,treated=3")
	cmd.Flags().StringVar(&f.contrast, "contrast", "", "contrast to check, e.g. treated:control")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.MarkFlagsMutuallyExclusive("design", "groups")
	cmd.MarkFlagsMutuallyExclusive("counts", "samples")
	return cmd
}

func writeDesign(w io.Writer, design *expression.SampleDesign) error {
	covariates := map[string]bool{}
	for _, r := range design.Records {
		for k := range r.Covariates {
			covariates[k] = true
		}
	}
	extra := make([]string, 0, len(covariates))
	for k := range covariates {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := append([]string{"sample", "group", "time", "replicate"}, extra...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range design.Records {
		row := []string{r.SampleID, r.Group, r.TimePoint, fmt.Sprint(r.Replicate)}
		for _, k := range extra {
			row = append(row, r.Covariates[k])
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
