package counts

import (
	"fmt"
	"strconv"
	"strings"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
)

// design table column names; anything else becomes a covariate
const (
	colSample    = "sample"
	colGroup     = "group"
	colTime      = "time"
	colReplicate = "replicate"
)

// ReadDesign loads a sample design table with columns
// sample,group[,time][,replicate][,covariate...] in any supported format.
func ReadDesign(path string, opts ...Option) (*expression.SampleDesign, error) {
	r := NewReader(path, opts...)
	rows, err := r.readRows()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, core.NewDesignError(fmt.Sprintf("%s: need a header row and at least one sample", path))
	}

	header := trimAll(rows[0])
	index := make(map[string]int, len(header))
	for j, h := range header {
		index[strings.ToLower(h)] = j
	}
	sampleCol, ok := index[colSample]
	if !ok {
		return nil, core.NewDesignError(fmt.Sprintf("%s: missing %q column", path, colSample))
	}
	groupCol, ok := index[colGroup]
	if !ok {
		return nil, core.NewDesignError(fmt.Sprintf("%s: missing %q column", path, colGroup))
	}
	timeCol, hasTime := index[colTime]
	repCol, hasRep := index[colReplicate]

	design := &expression.SampleDesign{}
	for i, raw := range rows[1:] {
		row := trimAll(raw)
		if isBlank(row) {
			continue
		}
		rec := expression.DesignRecord{
			SampleID: cell(row, sampleCol),
			Group:    cell(row, groupCol),
		}
		if rec.SampleID == "" {
			return nil, core.NewDesignError(fmt.Sprintf("%s: row %d has no sample id", path, i+2))
		}
		if hasTime {
			rec.TimePoint = cell(row, timeCol)
		}
		if hasRep {
			if v := cell(row, repCol); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, core.NewDesignError(fmt.Sprintf("%s: row %d: bad replicate %q", path, i+2, v))
				}
				rec.Replicate = n
			}
		}
		for j, h := range header {
			key := strings.ToLower(h)
			if key == colSample || key == colGroup || key == colTime || key == colReplicate || h == "" {
				continue
			}
			if rec.Covariates == nil {
				rec.Covariates = make(map[string]string)
			}
			rec.Covariates[h] = cell(row, j)
		}
		design.Records = append(design.Records, rec)
	}
	r.logger.Info("[CountReader] %d design records loaded from %s", len(design.Records), path)
	return design, nil
}
