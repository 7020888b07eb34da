package expression

import (
	"encoding/json"
	"math"

	"rnadiff/domain/core"
)

// TestStatus records why a gene does or does not carry test statistics
type TestStatus string

const (
	StatusOK           TestStatus = "ok"
	StatusAllZero      TestStatus = "all_zero"
	StatusLowMean      TestStatus = "low_mean"
	StatusOutlier      TestStatus = "outlier"
	StatusNotConverged TestStatus = "not_converged"
)

// NA is the missing-value marker for numeric result columns
var NA = math.NaN()

// IsNA reports whether v is missing
func IsNA(v float64) bool { return math.IsNaN(v) }

// DifferentialResult is one gene's row of the result table. Missing values
// are NaN and serialise as null.
type DifferentialResult struct {
	GeneID         string
	BaseMean       float64
	Log2FoldChange float64
	LfcSE          float64
	Statistic      float64
	PValue         float64
	PAdj           float64
	Status         TestStatus
}

// NewUntestedResult returns a row with every statistic set to NA
func NewUntestedResult(geneID string, baseMean float64, status TestStatus) DifferentialResult {
	return DifferentialResult{
		GeneID:         geneID,
		BaseMean:       baseMean,
		Log2FoldChange: NA,
		LfcSE:          NA,
		Statistic:      NA,
		PValue:         NA,
		PAdj:           NA,
		Status:         status,
	}
}

// Tested reports whether the gene entered multiple-testing correction
func (r DifferentialResult) Tested() bool {
	return !math.IsNaN(r.PValue)
}

type resultJSON struct {
	GeneID         string     `json:"gene_id"`
	BaseMean       *float64   `json:"baseMean"`
	Log2FoldChange *float64   `json:"log2FoldChange"`
	LfcSE          *float64   `json:"lfcSE"`
	Statistic      *float64   `json:"stat"`
	PValue         *float64   `json:"pvalue"`
	PAdj           *float64   `json:"padj"`
	Status         TestStatus `json:"status"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return NA
	}
	return *p
}

// MarshalJSON writes NA as null
func (r DifferentialResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		GeneID:         r.GeneID,
		BaseMean:       nullable(r.BaseMean),
		Log2FoldChange: nullable(r.Log2FoldChange),
		LfcSE:          nullable(r.LfcSE),
		Statistic:      nullable(r.Statistic),
		PValue:         nullable(r.PValue),
		PAdj:           nullable(r.PAdj),
		Status:         r.Status,
	})
}

// UnmarshalJSON reads null as NA
func (r *DifferentialResult) UnmarshalJSON(b []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = DifferentialResult{
		GeneID:         raw.GeneID,
		BaseMean:       fromNullable(raw.BaseMean),
		Log2FoldChange: fromNullable(raw.Log2FoldChange),
		LfcSE:          fromNullable(raw.LfcSE),
		Statistic:      fromNullable(raw.Statistic),
		PValue:         fromNullable(raw.PValue),
		PAdj:           fromNullable(raw.PAdj),
		Status:         raw.Status,
	}
	return nil
}

// TestKind names the hypothesis test used for p-values
type TestKind string

const (
	TestWald TestKind = "wald"
	TestLRT  TestKind = "lrt"
)

// ResultTable is the per-gene output of one contrast, in input gene order
type ResultTable struct {
	Contrast Contrast             `json:"contrast"`
	Test     TestKind             `json:"test"`
	Results  []DifferentialResult `json:"results"`
}

// PValues returns the raw p-value column
func (t *ResultTable) PValues() []float64 {
	out := make([]float64, len(t.Results))
	for i, r := range t.Results {
		out[i] = r.PValue
	}
	return out
}

// SetPAdj writes an adjusted p-value column back into the rows
func (t *ResultTable) SetPAdj(padj []float64) {
	for i := range t.Results {
		t.Results[i].PAdj = padj[i]
	}
}

// CountByStatus tallies rows per status
func (t *ResultTable) CountByStatus() map[TestStatus]int {
	out := make(map[TestStatus]int)
	for _, r := range t.Results {
		out[r.Status]++
	}
	return out
}

// Fingerprint hashes every numeric column bit-for-bit
func (t *ResultTable) Fingerprint() core.ResultHash {
	n := len(t.Results)
	ids := make([]string, n)
	cols := make([][]float64, 6)
	for c := range cols {
		cols[c] = make([]float64, n)
	}
	for i, r := range t.Results {
		ids[i] = r.GeneID + "/" + string(r.Status)
		cols[0][i] = r.BaseMean
		cols[1][i] = r.Log2FoldChange
		cols[2][i] = r.LfcSE
		cols[3][i] = r.Statistic
		cols[4][i] = r.PValue
		cols[5][i] = r.PAdj
	}
	return core.ComputeResultHash(ids, cols...)
}
