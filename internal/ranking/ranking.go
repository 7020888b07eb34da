// Package ranking selects and orders genes from a result table.
package ranking

import (
	"math"
	"sort"

	"rnadiff/domain/expression"
)

// DefaultAlpha is the significance level used when none is given
const DefaultAlpha = 0.05

// Direction selects genes by the sign of their fold change
type Direction string

const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
	DirectionAny  Direction = "any"
)

// ParseDirection maps query values to a direction, defaulting to any
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case DirectionDown, DirectionUp:
		return Direction(s)
	}
	return DirectionAny
}

// byPAdj orders rows by adjusted p-value ascending with NaN last; equal
// values keep their input order
func byPAdj(rows []expression.DifferentialResult) {
	sort.SliceStable(rows, func(a, b int) bool {
		pa, pb := rows[a].PAdj, rows[b].PAdj
		switch {
		case math.IsNaN(pa):
			return false
		case math.IsNaN(pb):
			return true
		}
		return pa < pb
	})
}

// Filter returns the rows matching dir, ordered by padj. The input is not
// modified.
func Filter(results []expression.DifferentialResult, dir Direction) []expression.DifferentialResult {
	out := make([]expression.DifferentialResult, 0, len(results))
	for _, r := range results {
		lfc := r.Log2FoldChange
		if math.IsNaN(lfc) {
			continue
		}
		switch dir {
		case DirectionDown:
			if !(lfc < 0) {
				continue
			}
		case DirectionUp:
			if !(lfc > 0) {
				continue
			}
		}
		out = append(out, r)
	}
	byPAdj(out)
	return out
}

// DownRegulated returns genes with a negative fold change, most significant
// first
func DownRegulated(results []expression.DifferentialResult) []expression.DifferentialResult {
	return Filter(results, DirectionDown)
}

// UpRegulated returns genes with a positive fold change, most significant
// first
func UpRegulated(results []expression.DifferentialResult) []expression.DifferentialResult {
	return Filter(results, DirectionUp)
}

// Significant returns genes with padj below alpha, most significant first
func Significant(results []expression.DifferentialResult, alpha float64) []expression.DifferentialResult {
	var out []expression.DifferentialResult
	for _, r := range results {
		if r.PAdj < alpha {
			out = append(out, r)
		}
	}
	byPAdj(out)
	return out
}

// Top returns the first row, or false when there is none
func Top(ranked []expression.DifferentialResult) (expression.DifferentialResult, bool) {
	if len(ranked) == 0 {
		return expression.DifferentialResult{}, false
	}
	return ranked[0], true
}

// Limit truncates to at most n rows; n <= 0 keeps everything
func Limit(ranked []expression.DifferentialResult, n int) []expression.DifferentialResult {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// Summary counts significant genes per direction
type Summary struct {
	Tested      int     `json:"tested"`
	Significant int     `json:"significant"`
	Down        int     `json:"down"`
	Up          int     `json:"up"`
	Alpha       float64 `json:"alpha"`
}

// Summarize tallies a result table at alpha
func Summarize(results []expression.DifferentialResult, alpha float64) Summary {
	s := Summary{Alpha: alpha}
	for _, r := range results {
		if r.Tested() {
			s.Tested++
		}
		if !(r.PAdj < alpha) {
			continue
		}
		s.Significant++
		if r.Log2FoldChange < 0 {
			s.Down++
		} else if r.Log2FoldChange > 0 {
			s.Up++
		}
	}
	return s
}
