package expression

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rnadiff/domain/core"
)

// Factor names understood by SampleDesign.Levels
const (
	FactorGroup = "group"
	FactorTime  = "time"
)

// DesignRecord describes one sample column
type DesignRecord struct {
	SampleID   string            `json:"sample_id"`
	Group      string            `json:"group"`
	TimePoint  string            `json:"time_point,omitempty"`
	Replicate  int               `json:"replicate"`
	Covariates map[string]string `json:"covariates,omitempty"`
}

// Level returns the record's label for a factor
func (r DesignRecord) Level(factor string) string {
	switch factor {
	case FactorGroup, "":
		return r.Group
	case FactorTime:
		return r.TimePoint
	default:
		return r.Covariates[factor]
	}
}

// SampleDesign maps every sample column to its experimental labels
type SampleDesign struct {
	Records []DesignRecord `json:"records"`
}

// Lookup finds the record for a sample
func (d *SampleDesign) Lookup(sampleID string) (DesignRecord, bool) {
	for _, r := range d.Records {
		if r.SampleID == sampleID {
			return r, true
		}
	}
	return DesignRecord{}, false
}

// Levels returns the distinct labels of a factor in first-seen order
func (d *SampleDesign) Levels(factor string) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, r := range d.Records {
		l := r.Level(factor)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		levels = append(levels, l)
	}
	return levels
}

// Aligned returns the records reordered to match the matrix columns
func (d *SampleDesign) Aligned(samples []string) ([]DesignRecord, error) {
	bySample := make(map[string]DesignRecord, len(d.Records))
	for _, r := range d.Records {
		if _, dup := bySample[r.SampleID]; dup {
			return nil, core.NewDesignError(fmt.Sprintf("sample %q has more than one design record", r.SampleID))
		}
		bySample[r.SampleID] = r
	}
	out := make([]DesignRecord, len(samples))
	for j, s := range samples {
		r, ok := bySample[s]
		if !ok {
			return nil, core.NewDesignError(fmt.Sprintf("sample %q has no design record", s))
		}
		out[j] = r
	}
	if len(bySample) != len(samples) {
		return nil, core.NewDesignError(fmt.Sprintf("%d design records for %d samples", len(bySample), len(samples)))
	}
	return out, nil
}

// Validate checks the design against a matrix and a contrast. Every column
// needs exactly one record with a non-empty label for the contrast factor,
// the factor needs at least two levels, and both contrast levels need a sample.
func (d *SampleDesign) Validate(m *CountMatrix, c Contrast) error {
	if err := c.Validate(); err != nil {
		return err
	}
	records, err := d.Aligned(m.Samples)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, r := range records {
		l := r.Level(c.FactorName())
		if strings.TrimSpace(l) == "" {
			return core.NewDesignError(fmt.Sprintf("sample %q lacks a %s label", r.SampleID, c.FactorName()))
		}
		counts[l]++
	}
	if len(counts) < 2 {
		return core.NewDesignError(fmt.Sprintf("factor %q needs at least two distinct levels, got %d", c.FactorName(), len(counts)))
	}
	if counts[c.Numerator] == 0 {
		return core.NewDesignError(fmt.Sprintf("contrast level %q has no samples", c.Numerator))
	}
	if counts[c.Denominator] == 0 {
		return core.NewDesignError(fmt.Sprintf("contrast level %q has no samples", c.Denominator))
	}
	return nil
}

// Fingerprint hashes every sample's labels
func (d *SampleDesign) Fingerprint() core.DesignHash {
	assignments := make(map[string]string, len(d.Records))
	for _, r := range d.Records {
		keys := make([]string, 0, len(r.Covariates))
		for k := range r.Covariates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(r.Group)
		b.WriteByte('|')
		b.WriteString(r.TimePoint)
		for _, k := range keys {
			b.WriteString("|" + k + "=" + r.Covariates[k])
		}
		assignments[r.SampleID] = b.String()
	}
	return core.ComputeDesignHash(assignments)
}

// GroupSpec is one group of the compact design description
type GroupSpec struct {
	Name       string   `json:"name"`
	Replicates int      `json:"replicates"`
	TimePoints []string `json:"time_points,omitempty"`
}

// DesignSpec is a compact description of a design: groups in column order,
// each with a replicate count per time point.
type DesignSpec struct {
	Groups []GroupSpec `json:"groups"`
}

// SampleCount returns how many columns the spec describes
func (s DesignSpec) SampleCount() int {
	n := 0
	for _, g := range s.Groups {
		tp := len(g.TimePoints)
		if tp == 0 {
			tp = 1
		}
		n += tp * g.Replicates
	}
	return n
}

// BuildDesign expands a compact spec into one record per sample, assigning
// sample IDs in column order: group by group, time point by time point,
// replicate by replicate.
func BuildDesign(spec DesignSpec, sampleIDs []string) (*SampleDesign, error) {
	if len(spec.Groups) == 0 {
		return nil, core.NewDesignError("design spec has no groups")
	}
	names := make(map[string]bool)
	for _, g := range spec.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return nil, core.NewDesignError("group with empty name")
		}
		if names[g.Name] {
			return nil, core.NewDesignError(fmt.Sprintf("group %q listed twice", g.Name))
		}
		names[g.Name] = true
		if g.Replicates < 1 {
			return nil, core.NewDesignError(fmt.Sprintf("group %q needs at least one replicate", g.Name))
		}
	}
	if want := spec.SampleCount(); want != len(sampleIDs) {
		return nil, core.NewDesignError(fmt.Sprintf("design describes %d samples, matrix has %d", want, len(sampleIDs)))
	}

	records := make([]DesignRecord, 0, len(sampleIDs))
	next := 0
	for _, g := range spec.Groups {
		timePoints := g.TimePoints
		if len(timePoints) == 0 {
			timePoints = []string{""}
		}
		for _, tp := range timePoints {
			for rep := 1; rep <= g.Replicates; rep++ {
				records = append(records, DesignRecord{
					SampleID:  sampleIDs[next],
					Group:     g.Name,
					TimePoint: tp,
					Replicate: rep,
				})
				next++
			}
		}
	}
	return &SampleDesign{Records: records}, nil
}

// ParseDesignSpec reads the command-line form of a design:
//
//	control=3,treated=3
//	control@0h/6h=2,treated@0h/6h=2
func ParseDesignSpec(s string) (DesignSpec, error) {
	var spec DesignSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, reps, ok := strings.Cut(part, "=")
		if !ok {
			return spec, core.NewDesignError(fmt.Sprintf("group %q: expected name=replicates", part))
		}
		n, err := strconv.Atoi(strings.TrimSpace(reps))
		if err != nil {
			return spec, core.NewDesignError(fmt.Sprintf("group %q: bad replicate count: %v", part, err))
		}
		g := GroupSpec{Name: strings.TrimSpace(name), Replicates: n}
		if base, times, hasTimes := strings.Cut(g.Name, "@"); hasTimes {
			g.Name = strings.TrimSpace(base)
			for _, tp := range strings.Split(times, "/") {
				if tp = strings.TrimSpace(tp); tp != "" {
					g.TimePoints = append(g.TimePoints, tp)
				}
			}
		}
		spec.Groups = append(spec.Groups, g)
	}
	if len(spec.Groups) == 0 {
		return spec, core.NewDesignError("empty design spec")
	}
	return spec, nil
}
