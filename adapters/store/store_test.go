package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/run"
	"rnadiff/domain/search"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRun(created time.Time) *run.Run {
	return &run.Run{
		ID:          core.NewRunID(),
		InputHash:   "in",
		DesignHash:  "de",
		ResultHash:  "re",
		Fingerprint: "fp",
		Contrast:    "group: treated vs control",
		Test:        "wald",
		Params:      `{"test":"wald"}`,
		Status:      run.StatusNoQuery,
		Genes:       2,
		Tested:      1,
		Significant: 1,
		CreatedAt:   core.NewTimestamp(created),
	}
}

func testTable() *expression.ResultTable {
	return &expression.ResultTable{Results: []expression.DifferentialResult{
		{GeneID: "geneB", BaseMean: 50, Log2FoldChange: -3.2, LfcSE: 0.3, Statistic: -10.5, PValue: 1e-25, PAdj: 2e-25, Status: expression.StatusOK},
		expression.NewUntestedResult("geneA", 0, expression.StatusAllZero),
	}}
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := testRun(created)

	require.NoError(t, s.SaveRun(ctx, r, testTable()))

	got, err := s.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Params, got.Params)
	assert.Equal(t, 2, got.Genes)
	assert.True(t, got.CreatedAt.Time().Equal(created))

	results, err := s.Results(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "geneB", results[0].GeneID, "original gene order is kept")
	assert.Equal(t, -3.2, results[0].Log2FoldChange)
	assert.Equal(t, 2e-25, results[0].PAdj)
	assert.Equal(t, expression.StatusAllZero, results[1].Status)
	assert.True(t, math.IsNaN(results[1].PValue))
	assert.True(t, math.IsNaN(results[1].Log2FoldChange))
	assert.Equal(t, 0.0, results[1].BaseMean)
}

func TestUpdateSearchAndHits(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	r := testRun(time.Now().UTC())
	require.NoError(t, s.SaveRun(ctx, r, testTable()))

	hits := []search.RankedHit{
		{Rank: 1, Accession: "NM_1", Description: "first", Score: 200, BitScore: 370.5, EValue: 1e-100, Identity: 190, AlignLength: 200},
		{Rank: 2, Accession: "NM_2", Description: "second", Score: 90, BitScore: 167.2, EValue: 3e-40},
	}
	require.NoError(t, s.SaveHits(ctx, r.ID, hits))
	require.NoError(t, s.SaveHits(ctx, r.ID, hits))
	require.NoError(t, s.UpdateSearch(ctx, r.ID, run.StatusCompleted, "geneB", ""))

	got, err := s.Hits(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, hits, got)

	loaded, err := s.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, loaded.Status)
	assert.Equal(t, "geneB", loaded.QueryGene)

	err = s.UpdateSearch(ctx, core.NewRunID(), run.StatusCompleted, "", "")
	assert.True(t, core.IsNotFoundError(err))
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []core.RunID
	for i := 0; i < 3; i++ {
		r := testRun(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, s.SaveRun(ctx, r, testTable()))
		ids = append(ids, r.ID)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	same, err := s.FindByFingerprint(ctx, "fp")
	require.NoError(t, err)
	assert.Len(t, same, 3)
}

func TestMissingRun(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	id := core.NewRunID()

	_, err := s.GetRun(ctx, id)
	assert.True(t, core.IsNotFoundError(err))
	_, err = s.Results(ctx, id)
	assert.True(t, core.IsNotFoundError(err))
	_, err = s.Hits(ctx, id)
	assert.True(t, core.IsNotFoundError(err))
	assert.True(t, core.IsNotFoundError(s.DeleteRun(ctx, id)))
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	r := testRun(time.Now().UTC())
	require.NoError(t, s.SaveRun(ctx, r, testTable()))
	require.NoError(t, s.SaveHits(ctx, r.ID, []search.RankedHit{{Rank: 1, Accession: "X"}}))

	require.NoError(t, s.DeleteRun(ctx, r.ID))
	_, err := s.GetRun(ctx, r.ID)
	assert.True(t, core.IsNotFoundError(err))

	var n int
	require.NoError(t, s.db.Get(&n, "SELECT COUNT(*) FROM results"))
	assert.Zero(t, n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x", nil)
	assert.True(t, core.IsValidationError(err))
}
