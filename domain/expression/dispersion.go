package expression

// TrendKind names how the mean-dispersion trend was fitted
type TrendKind string

const (
	TrendParametric TrendKind = "parametric"
	TrendMean       TrendKind = "mean"
	TrendNone       TrendKind = "none"
)

// DispersionTrend is alpha(mu) = A0 + A1/mu
type DispersionTrend struct {
	Kind TrendKind `json:"kind"`
	A0   float64   `json:"asymptotic_dispersion"`
	A1   float64   `json:"extra_poisson"`
}

// At evaluates the trend at a normalised mean
func (t DispersionTrend) At(mean float64) float64 {
	if t.Kind == TrendNone {
		return NA
	}
	if mean <= 0 {
		return t.A0
	}
	return t.A0 + t.A1/mean
}

// DispersionModel is the per-gene negative binomial fit shared by every
// test of a run. It is computed once and read-only afterwards.
type DispersionModel struct {
	SizeFactors []float64       `json:"size_factors"`
	BaseMeans   []float64       `json:"base_means"`
	BaseVars    []float64       `json:"base_vars"`
	GeneWise    []float64       `json:"gene_wise"`
	Fitted      []float64       `json:"fitted"`
	Final       []float64       `json:"final"`
	Outlier     []bool          `json:"dispersion_outlier"`
	Converged   []bool          `json:"converged"`
	Trend       DispersionTrend `json:"trend"`
	PriorVar    float64         `json:"prior_var"`
}
