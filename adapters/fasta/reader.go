// Package fasta reads query sequences for similarity search.
package fasta

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"

	"rnadiff/domain/core"
	"rnadiff/domain/search"
)

// scan calls fn for every record until fn returns false
func scan(r io.Reader, fn func(search.Query) bool) error {
	template := linear.NewSeq("", nil, alphabet.DNAgapped)
	sc := seqio.NewScanner(fasta.NewReader(r, template))
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			return fmt.Errorf("unexpected sequence type %T", sc.Seq())
		}
		if !fn(toQuery(s)) {
			return nil
		}
	}
	return sc.Error()
}

func toQuery(s *linear.Seq) search.Query {
	b := make([]byte, len(s.Seq))
	for i, l := range s.Seq {
		b[i] = byte(l)
	}
	return search.Query{ID: s.Name(), Sequence: strings.ToUpper(string(b))}
}

// ReadAll returns every record in r
func ReadAll(r io.Reader) ([]search.Query, error) {
	var out []search.Query
	err := scan(r, func(q search.Query) bool {
		out = append(out, q)
		return true
	})
	if err != nil {
		return nil, core.NewValidationError("fasta", err.Error())
	}
	return out, nil
}

// ReadFirst returns the first record of a FASTA file
func ReadFirst(path string) (search.Query, error) {
	return find(path, func(search.Query) bool { return true })
}

// Lookup returns the record whose id matches, ignoring case
func Lookup(path, id string) (search.Query, error) {
	q, err := find(path, func(q search.Query) bool { return strings.EqualFold(q.ID, id) })
	if core.IsNotFoundError(err) {
		return q, core.NewNotFoundError("sequence", id)
	}
	return q, err
}

func find(path string, match func(search.Query) bool) (search.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return search.Query{}, core.NewValidationError("fasta", fmt.Sprintf("failed to open %s: %v", path, err))
	}
	defer f.Close()

	var found search.Query
	var ok bool
	err = scan(f, func(q search.Query) bool {
		if match(q) {
			found, ok = q, true
			return false
		}
		return true
	})
	if err != nil {
		return search.Query{}, core.NewValidationError("fasta", fmt.Sprintf("%s: %v", path, err))
	}
	if !ok {
		return search.Query{}, core.NewNotFoundError("sequence", path)
	}
	if err := found.Validate(); err != nil {
		return search.Query{}, err
	}
	return found, nil
}

// Source resolves gene IDs to query sequences from one FASTA file
type Source struct {
	path     string
	fallback bool
}

// NewSource reads sequences from path. With fallback set, a gene missing
// from the file resolves to the file's first record, which suits files
// holding a single pre-selected sequence.
func NewSource(path string, fallback bool) *Source {
	return &Source{path: path, fallback: fallback}
}

// Sequence returns the record for geneID
func (s *Source) Sequence(ctx context.Context, geneID string) (search.Query, error) {
	if err := ctx.Err(); err != nil {
		return search.Query{}, err
	}
	q, err := Lookup(s.path, geneID)
	if s.fallback && core.IsNotFoundError(err) {
		return ReadFirst(s.path)
	}
	return q, err
}
