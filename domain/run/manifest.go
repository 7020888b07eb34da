package run

import (
	"encoding/json"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/search"
)

// CodeVersion is recorded in every manifest
const CodeVersion = "1.0.0"

// Params are the analysis settings that influence the result table
type Params struct {
	Test        expression.TestKind `json:"test"`
	MinBaseMean float64             `json:"min_base_mean"`
	CooksCutoff bool                `json:"cooks_cutoff"`
	SizeFactors string              `json:"size_factors,omitempty"`
	FDRMethod   string              `json:"fdr_method"`
	Alpha       float64             `json:"alpha"`
	Search      search.Params       `json:"search"`
}

// Canonical renders p as a stable string for fingerprinting and storage
func (p Params) Canonical() string {
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

// Manifest records what a run was computed from. It is written before the
// result table and never changes afterwards.
type Manifest struct {
	RunID       core.RunID          `json:"run_id"`
	InputHash   core.InputHash      `json:"input_hash"`
	DesignHash  core.DesignHash     `json:"design_hash"`
	Contrast    expression.Contrast `json:"contrast"`
	Params      Params              `json:"params"`
	CodeVersion string              `json:"code_version"`
	Fingerprint RunFingerprint      `json:"fingerprint"`
	CreatedAt   core.Timestamp      `json:"created_at"`
}

// NewManifest fingerprints a matrix, design and settings under a fresh run ID
func NewManifest(m *expression.CountMatrix, design *expression.SampleDesign,
	contrast expression.Contrast, params Params) *Manifest {

	input := m.Fingerprint()
	designHash := design.Fingerprint()
	return &Manifest{
		RunID:       core.NewRunID(),
		InputHash:   input,
		DesignHash:  designHash,
		Contrast:    contrast,
		Params:      params,
		CodeVersion: CodeVersion,
		Fingerprint: NewRunFingerprint(input, designHash, contrast, params.Canonical(), CodeVersion),
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (r *Manifest) Validate() error {
	if core.ID(r.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if core.Hash(r.InputHash).IsEmpty() {
		return core.NewValidationError("run_manifest", "input_hash cannot be empty")
	}
	if core.Hash(r.DesignHash).IsEmpty() {
		return core.NewValidationError("run_manifest", "design_hash cannot be empty")
	}
	if err := r.Contrast.Validate(); err != nil {
		return err
	}
	if r.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}

// NewRun summarises a finished analysis for storage
func (r *Manifest) NewRun(table *expression.ResultTable, tested, significant int) *Run {
	return &Run{
		ID:          r.RunID,
		InputHash:   r.InputHash,
		DesignHash:  r.DesignHash,
		ResultHash:  table.Fingerprint(),
		Fingerprint: r.Fingerprint.Fingerprint,
		Contrast:    r.Contrast.String(),
		Test:        string(r.Params.Test),
		Params:      r.Params.Canonical(),
		Status:      StatusNoQuery,
		Genes:       len(table.Results),
		Tested:      tested,
		Significant: significant,
		CreatedAt:   r.CreatedAt,
	}
}
