package profiling

// Summary holds the descriptive statistics of one numeric vector
type Summary struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Outliers int     `json:"outliers"`
}

// SampleProfile is the QC record for one count-matrix column
type SampleProfile struct {
	SampleID      string  `json:"sample_id"`
	LibrarySize   int64   `json:"library_size"`
	Detected      int     `json:"detected"`
	DetectionRate float64 `json:"detection_rate"`
	// LogCounts summarises log2(count+1) over detected genes
	LogCounts Summary `json:"log_counts"`
	// RobustZ is the library size deviation from the median in MAD units
	RobustZ float64 `json:"robust_z"`
	Flagged bool    `json:"flagged"`
}

// MatrixProfile is the QC summary of a whole count matrix
type MatrixProfile struct {
	Genes         int             `json:"genes"`
	AllZeroGenes  int             `json:"all_zero_genes"`
	LibraryMedian float64         `json:"library_median"`
	LibraryMAD    float64         `json:"library_mad"`
	Samples       []SampleProfile `json:"samples"`
}

// FlaggedSamples lists samples whose library size is far from the rest
func (p *MatrixProfile) FlaggedSamples() []string {
	var out []string
	for _, s := range p.Samples {
		if s.Flagged {
			out = append(out, s.SampleID)
		}
	}
	return out
}
