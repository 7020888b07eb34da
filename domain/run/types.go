package run

import (
	"crypto/sha256"
	"fmt"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
)

// Status is the outcome of a pipeline run
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusSearchFailed Status = "search_failed"
	StatusNoQuery      Status = "no_query"
	// the top gene had no usable sequence; the remote search never ran
	StatusQueryFailed  Status = "query_failed"
)

// Run is the stored summary of one pipeline execution
type Run struct {
	ID          core.RunID      `json:"id"`
	InputHash   core.InputHash  `json:"input_hash"`
	DesignHash  core.DesignHash `json:"design_hash"`
	ResultHash  core.ResultHash `json:"result_hash"`
	Fingerprint core.Hash       `json:"fingerprint"`
	Contrast    string          `json:"contrast"`
	Test        string          `json:"test"`
	Params      string          `json:"params"`
	Status      Status          `json:"status"`
	Genes       int             `json:"genes"`
	Tested      int             `json:"tested"`
	Significant int             `json:"significant"`
	QueryGene   string          `json:"query_gene"`
	SearchError string          `json:"search_error,omitempty"`
	CreatedAt   core.Timestamp  `json:"created_at"`
}

// RunFingerprint identifies the inputs that fully determine a run's result
// table
type RunFingerprint struct {
	InputHash   core.InputHash      `json:"input_hash"`
	DesignHash  core.DesignHash     `json:"design_hash"`
	Contrast    expression.Contrast `json:"contrast"`
	Params      string              `json:"params"`
	CodeVersion string              `json:"code_version"`
	Fingerprint core.Hash           `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(input core.InputHash, design core.DesignHash,
	contrast expression.Contrast, params string, codeVersion string) RunFingerprint {

	return RunFingerprint{
		InputHash:   input,
		DesignHash:  design,
		Contrast:    contrast,
		Params:      params,
		CodeVersion: codeVersion,
		Fingerprint: computeRunFingerprint(input, design, contrast, params, codeVersion),
	}
}

func computeRunFingerprint(input core.InputHash, design core.DesignHash,
	contrast expression.Contrast, params string, codeVersion string) core.Hash {

	data := fmt.Sprintf("input:%s|design:%s|contrast:%s/%s/%s|params:%s|code:%s",
		input, design, contrast.FactorName(), contrast.Numerator, contrast.Denominator, params, codeVersion)

	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}
