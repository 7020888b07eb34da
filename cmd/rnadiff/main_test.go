package main

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnadiff/domain/core"
	"rnadiff/internal/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDesignCommand(t *testing.T) {
	out, err := execute(t, "design", "--samples", "S1,S2,S3,S4", "--groups", "control=2,treated=2", "--contrast", "treated:control")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"sample", "group", "time", "replicate"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"S3", "treated", "1"}, strings.Fields(lines[3]))
}

func TestDesignCommandRejectsMissingGroup(t *testing.T) {
	_, err := execute(t, "design", "--samples", "S1,S2,S3,S4", "--groups", "control=2,treated=2", "--contrast", "knockout:control")
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Equal(t, 2, exitCode(err))
}

func TestDesignCommandCountMismatch(t *testing.T) {
	_, err := execute(t, "design", "--samples", "S1,S2,S3", "--groups", "control=2,treated=2")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInputValidation, errors.GetCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 3, exitCode(errors.SearchUnavailable(core.ErrSearchUnavailable)))
	assert.Equal(t, 4, exitCode(errors.QueryUnavailable(core.NewNotFoundError("sequence", "geneB"))))
	assert.Equal(t, 2, exitCode(errors.ConfigInvalid("bad")))
	assert.Equal(t, 2, exitCode(core.ErrEmptyInput))
	assert.Equal(t, 1, exitCode(errors.DatabaseError("down", nil)))
}

func TestAnalyzeTwoGeneScenarioWithoutNormalisation(t *testing.T) {
	dir := t.TempDir()
	countsPath := filepath.Join(dir, "counts.csv")
	require.NoError(t, os.WriteFile(countsPath, []byte("gene,s1,s2,s3,s4\ngeneA,100,110,10,12\ngeneB,50,52,50,48\n"), 0o644))
	outDir := filepath.Join(dir, "out")

	_, err := execute(t, "analyze",
		"--counts", countsPath,
		"--groups", "A=2,B=2",
		"--contrast", "B:A",
		"--size-factors", "none",
		"--no-search", "--no-store",
		"--plot", "none",
		"--out", outDir,
		"--log-level", "ERROR",
	)
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(outDir, "results.tsv"))
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	value := func(row []string, col int) float64 {
		v, err := strconv.ParseFloat(row[col], 64)
		require.NoError(t, err, row)
		return v
	}
	geneA, geneB := rows[1], rows[2]
	assert.Equal(t, "geneA", geneA[0])
	assert.InDelta(t, math.Log2(11.0/105.0), value(geneA, 2), 0.01)
	assert.Less(t, value(geneA, 6), 0.05)

	assert.Equal(t, "geneB", geneB[0])
	assert.Less(t, math.Abs(value(geneB, 2)), 0.2)
	assert.Greater(t, value(geneB, 6), 0.05)
}

func TestAnalyzeRejectsUnknownSizeFactorMode(t *testing.T) {
	_, err := execute(t, "analyze", "--counts", "unused.csv", "--groups", "A=2,B=2", "--contrast", "B:A",
		"--size-factors", "quantile", "--no-search", "--no-store")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Equal(t, 2, exitCode(err))
}
