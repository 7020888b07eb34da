package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for log lines
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	InputHash  Hash
	DesignHash Hash
	ResultHash Hash
)

func (h InputHash) String() string  { return Hash(h).String() }
func (h DesignHash) String() string { return Hash(h).String() }
func (h ResultHash) String() string { return Hash(h).String() }

// ComputeInputHash fingerprints a labelled integer count table.
func ComputeInputHash(rowLabels, colLabels []string, cells [][]int64) InputHash {
	h := sha256.New()
	writeLabels(h, rowLabels)
	writeLabels(h, colLabels)
	buf := make([]byte, 8)
	for _, row := range cells {
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf, uint64(v))
			h.Write(buf)
		}
	}
	return InputHash(hex.EncodeToString(h.Sum(nil)))
}

// ComputeDesignHash fingerprints sample -> label assignments independent of map order.
func ComputeDesignHash(assignments map[string]string) DesignHash {
	keys := make([]string, 0, len(assignments))
	for k := range assignments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteByte('=')
		data.WriteString(assignments[key])
		data.WriteByte(';')
	}
	return DesignHash(NewHash([]byte(data.String())))
}

// ComputeResultHash fingerprints float columns bit-for-bit, NaN included.
func ComputeResultHash(labels []string, columns ...[]float64) ResultHash {
	h := sha256.New()
	writeLabels(h, labels)
	buf := make([]byte, 8)
	for _, col := range columns {
		for _, v := range col {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
	}
	return ResultHash(hex.EncodeToString(h.Sum(nil)))
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeLabels(w byteWriter, labels []string) {
	for _, l := range labels {
		w.Write([]byte(l))
		w.Write([]byte{0})
	}
	w.Write([]byte{1})
}
