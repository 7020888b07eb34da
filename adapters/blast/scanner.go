package blast

import (
	"fmt"

	"github.com/tidwall/gjson"

	"rnadiff/domain/core"
	"rnadiff/domain/search"
)

// HitScanner iterates over the hits of one finished search, best first. It
// decodes lazily, cannot be restarted and stops at the first malformed hit.
//
//	for s.Next() {
//		hit := s.Hit()
//	}
//	if err := s.Err(); err != nil { ... }
type HitScanner struct {
	rid  string
	hits []gjson.Result
	pos  int
	cur  search.RankedHit
	err  error
}

func emptyScanner(rid string) *HitScanner {
	return &HitScanner{rid: rid}
}

// newHitScanner locates the hit array in a JSON2_S report
func newHitScanner(rid string, body []byte) (*HitScanner, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewSearchError("parse", fmt.Errorf("RID %s: response is not JSON", rid))
	}
	report := gjson.GetBytes(body, "BlastOutput2.0.report")
	if !report.Exists() {
		return nil, core.NewSearchError("parse", fmt.Errorf("RID %s: no report in response", rid))
	}
	hits := report.Get("results.search.hits")
	if msg := report.Get("results.search.message"); msg.Exists() && !hits.Exists() {
		return nil, core.NewSearchError("parse", fmt.Errorf("RID %s: %s", rid, msg.String()))
	}
	return &HitScanner{rid: rid, hits: hits.Array()}, nil
}

// RID returns the remote request id
func (s *HitScanner) RID() string { return s.rid }

// Len is the number of hits in the report
func (s *HitScanner) Len() int { return len(s.hits) }

// Next advances to the next hit
func (s *HitScanner) Next() bool {
	if s.err != nil || s.pos >= len(s.hits) {
		return false
	}
	hit, err := decodeHit(s.hits[s.pos], s.pos+1)
	if err != nil {
		s.err = core.NewSearchError("parse", fmt.Errorf("RID %s: %w", s.rid, err))
		s.pos = len(s.hits)
		return false
	}
	s.cur = hit
	s.pos++
	return true
}

// Hit returns the current hit
func (s *HitScanner) Hit() search.RankedHit { return s.cur }

// Err returns the error that stopped iteration, if any
func (s *HitScanner) Err() error { return s.err }

// Collect drains up to n hits; n <= 0 drains all
func (s *HitScanner) Collect(n int) ([]search.RankedHit, error) {
	var out []search.RankedHit
	for (n <= 0 || len(out) < n) && s.Next() {
		out = append(out, s.Hit())
	}
	return out, s.Err()
}

func decodeHit(h gjson.Result, rank int) (search.RankedHit, error) {
	desc := h.Get("description.0")
	hsp := h.Get("hsps.0")
	accession := desc.Get("accession").String()
	if accession == "" {
		return search.RankedHit{}, fmt.Errorf("hit %d has no accession", rank)
	}
	if !hsp.Exists() {
		return search.RankedHit{}, fmt.Errorf("hit %s has no alignments", accession)
	}
	return search.RankedHit{
		Rank:        rank,
		Accession:   accession,
		Description: desc.Get("title").String(),
		Score:       hsp.Get("score").Float(),
		BitScore:    hsp.Get("bit_score").Float(),
		EValue:      hsp.Get("evalue").Float(),
		Identity:    int(hsp.Get("identity").Int()),
		AlignLength: int(hsp.Get("align_len").Int()),
	}, nil
}
