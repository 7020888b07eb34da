// Package search holds the similarity-search request and hit types.
package search

import (
	"fmt"
	"strings"

	"rnadiff/domain/core"
)

// Params configures one remote alignment search
type Params struct {
	Database            string  `json:"database"`
	Program             string  `json:"program"`
	HitListSize         int     `json:"hit_list_size"`
	Expect              float64 `json:"expect"`
	LowComplexityFilter bool    `json:"low_complexity_filter"`
}

// DefaultParams mirrors the NCBI URL API defaults for nucleotide queries
func DefaultParams() Params {
	return Params{
		Database:            "nt",
		Program:             "blastn",
		HitListSize:         50,
		Expect:              10.0,
		LowComplexityFilter: true,
	}
}

var programs = map[string]bool{
	"blastn": true, "megablast": true, "blastp": true,
	"blastx": true, "tblastn": true, "tblastx": true,
}

// Validate checks the parameters before anything is sent
func (p Params) Validate() error {
	if strings.TrimSpace(p.Database) == "" {
		return core.NewValidationError("database", "required")
	}
	if !programs[p.Program] {
		return core.NewValidationError("program", fmt.Sprintf("unsupported program %q", p.Program))
	}
	if p.HitListSize < 1 {
		return core.NewValidationError("hit_list_size", "must be positive")
	}
	if p.Expect <= 0 {
		return core.NewValidationError("expect", "must be positive")
	}
	return nil
}

// RankedHit is one database match, best first
type RankedHit struct {
	Rank        int     `json:"rank" db:"rank"`
	Accession   string  `json:"accession" db:"accession"`
	Description string  `json:"description" db:"description"`
	Score       float64 `json:"score" db:"score"`
	BitScore    float64 `json:"bit_score" db:"bit_score"`
	EValue      float64 `json:"e_value" db:"e_value"`
	Identity    int     `json:"identity" db:"identity"`
	AlignLength int     `json:"align_length" db:"align_length"`
}

// Query is a named nucleotide sequence submitted for search
type Query struct {
	ID       string `json:"id"`
	Sequence string `json:"sequence"`
}

// Validate rejects empty or non-nucleotide queries
func (q Query) Validate() error {
	if q.Sequence == "" {
		return core.NewValidationError("sequence", "empty query sequence")
	}
	for i, r := range strings.ToUpper(q.Sequence) {
		if !strings.ContainsRune("ACGTUNRYKMSWBDHV-", r) {
			return core.NewValidationError("sequence", fmt.Sprintf("invalid nucleotide %q at %d", r, i))
		}
	}
	return nil
}
