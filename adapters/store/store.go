// Package store persists runs, result tables and search hits with sqlx on
// sqlite or postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"rnadiff/adapters/store/migrations"
	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/domain/run"
	"rnadiff/domain/search"
	"rnadiff/internal"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultListLimit caps ListRuns when no limit is given
const DefaultListLimit = 100

// Store is the run repository
type Store struct {
	db     *sqlx.DB
	logger *internal.Logger
}

// Open connects to driver/dsn; sqlite in-memory databases are pinned to one
// connection so every query sees the same schema
func Open(driver, dsn string, logger *internal.Logger) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, core.NewValidationError("store.driver", fmt.Sprintf("unsupported driver %q", driver))
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return New(db, logger), nil
}

// New wraps an open database
func New(db *sqlx.DB, logger *internal.Logger) *Store {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Store{db: db, logger: logger}
}

// Migrate brings the schema up to date
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.NewMigrator(s.db, s.logger).Up(ctx)
}

// Migrator exposes the schema migrator for status reporting
func (s *Store) Migrator() *migrations.Migrator {
	return migrations.NewMigrator(s.db, s.logger)
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID          string    `db:"id"`
	InputHash   string    `db:"input_hash"`
	DesignHash  string    `db:"design_hash"`
	ResultHash  string    `db:"result_hash"`
	Fingerprint string    `db:"fingerprint"`
	Contrast    string    `db:"contrast"`
	Test        string    `db:"test"`
	Params      string    `db:"params"`
	Status      string    `db:"status"`
	Genes       int       `db:"genes"`
	Tested      int       `db:"tested"`
	Significant int       `db:"significant"`
	QueryGene   string    `db:"query_gene"`
	SearchError string    `db:"search_error"`
	CreatedAt   time.Time `db:"created_at"`
}

func toRunRow(r *run.Run) runRow {
	return runRow{
		ID:          r.ID.String(),
		InputHash:   r.InputHash.String(),
		DesignHash:  r.DesignHash.String(),
		ResultHash:  r.ResultHash.String(),
		Fingerprint: r.Fingerprint.String(),
		Contrast:    r.Contrast,
		Test:        r.Test,
		Params:      r.Params,
		Status:      string(r.Status),
		Genes:       r.Genes,
		Tested:      r.Tested,
		Significant: r.Significant,
		QueryGene:   r.QueryGene,
		SearchError: r.SearchError,
		CreatedAt:   r.CreatedAt.Time().UTC(),
	}
}

func (row runRow) toRun() run.Run {
	return run.Run{
		ID:          core.RunID(row.ID),
		InputHash:   core.InputHash(row.InputHash),
		DesignHash:  core.DesignHash(row.DesignHash),
		ResultHash:  core.ResultHash(row.ResultHash),
		Fingerprint: core.Hash(row.Fingerprint),
		Contrast:    row.Contrast,
		Test:        row.Test,
		Params:      row.Params,
		Status:      run.Status(row.Status),
		Genes:       row.Genes,
		Tested:      row.Tested,
		Significant: row.Significant,
		QueryGene:   row.QueryGene,
		SearchError: row.SearchError,
		CreatedAt:   core.NewTimestamp(row.CreatedAt),
	}
}

type resultRow struct {
	Position       int             `db:"position"`
	GeneID         string          `db:"gene_id"`
	BaseMean       sql.NullFloat64 `db:"base_mean"`
	Log2FoldChange sql.NullFloat64 `db:"log2_fold_change"`
	LfcSE          sql.NullFloat64 `db:"lfc_se"`
	Statistic      sql.NullFloat64 `db:"stat"`
	PValue         sql.NullFloat64 `db:"pvalue"`
	PAdj           sql.NullFloat64 `db:"padj"`
	Status         string          `db:"status"`
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return expression.NA
	}
	return v.Float64
}

const runColumns = `id, input_hash, design_hash, result_hash, fingerprint, contrast, test, params,
	status, genes, tested, significant, query_gene, search_error, created_at`

// SaveRun stores the run summary and its result table in one transaction
func (s *Store) SaveRun(ctx context.Context, r *run.Run, table *expression.ResultTable) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := toRunRow(r)
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		row.ID, row.InputHash, row.DesignHash, row.ResultHash, row.Fingerprint, row.Contrast, row.Test, row.Params,
		row.Status, row.Genes, row.Tested, row.Significant, row.QueryGene, row.SearchError, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", row.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO results (run_id, position, gene_id, base_mean, log2_fold_change, lfc_se, stat, pvalue, padj, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, res := range table.Results {
		_, err := stmt.ExecContext(ctx, row.ID, i, res.GeneID,
			nullFloat(res.BaseMean), nullFloat(res.Log2FoldChange), nullFloat(res.LfcSE),
			nullFloat(res.Statistic), nullFloat(res.PValue), nullFloat(res.PAdj), string(res.Status))
		if err != nil {
			return fmt.Errorf("failed to insert result %s: %w", res.GeneID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", row.ID, err)
	}
	s.logger.Debug("[Store] saved run %s with %d results", row.ID, len(table.Results))
	return nil
}

// UpdateSearch records the outcome of the similarity-search stage
func (s *Store) UpdateSearch(ctx context.Context, id core.RunID, status run.Status, queryGene, searchErr string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE runs SET status = ?, query_gene = ?, search_error = ? WHERE id = ?`),
		string(status), queryGene, searchErr, id.String())
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("run", id.String())
	}
	return nil
}

// SaveHits replaces the stored hits of a run
func (s *Store) SaveHits(ctx context.Context, id core.RunID, hits []search.RankedHit) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM hits WHERE run_id = ?"), id.String()); err != nil {
		return fmt.Errorf("failed to clear hits: %w", err)
	}

	for _, h := range hits {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO hits (run_id, rank, accession, description, score, bit_score, e_value, identity, align_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id.String(), h.Rank, h.Accession, h.Description, h.Score, h.BitScore, h.EValue, h.Identity, h.AlignLength)
		if err != nil {
			return fmt.Errorf("failed to insert hit %s: %w", h.Accession, err)
		}
	}
	return tx.Commit()
}

// GetRun loads one run summary
func (s *Store) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+runColumns+" FROM runs WHERE id = ?"), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	r := row.toRun()
	return &r, nil
}

// ListRuns returns the newest runs first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]run.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]run.Run, len(rows))
	for i, row := range rows {
		out[i] = row.toRun()
	}
	return out, nil
}

// FindByFingerprint returns earlier runs computed from the same inputs
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]run.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		"SELECT "+runColumns+" FROM runs WHERE fingerprint = ? ORDER BY created_at DESC"), fingerprint.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint: %w", err)
	}

	out := make([]run.Run, len(rows))
	for i, row := range rows {
		out[i] = row.toRun()
	}
	return out, nil
}

// Results loads a run's result rows in their original gene order
func (s *Store) Results(ctx context.Context, id core.RunID) ([]expression.DifferentialResult, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	var rows []resultRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT position, gene_id, base_mean, log2_fold_change, lfc_se, stat, pvalue, padj, status
		FROM results WHERE run_id = ? ORDER BY position`), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load results of %s: %w", id, err)
	}

	out := make([]expression.DifferentialResult, len(rows))
	for i, row := range rows {
		out[i] = expression.DifferentialResult{
			GeneID:         row.GeneID,
			BaseMean:       fromNull(row.BaseMean),
			Log2FoldChange: fromNull(row.Log2FoldChange),
			LfcSE:          fromNull(row.LfcSE),
			Statistic:      fromNull(row.Statistic),
			PValue:         fromNull(row.PValue),
			PAdj:           fromNull(row.PAdj),
			Status:         expression.TestStatus(row.Status),
		}
	}
	return out, nil
}

// Hits loads a run's search hits best first
func (s *Store) Hits(ctx context.Context, id core.RunID) ([]search.RankedHit, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	var hits []search.RankedHit
	err := s.db.SelectContext(ctx, &hits, s.db.Rebind(`
		SELECT rank, accession, description, score, bit_score, e_value, identity, align_length
		FROM hits WHERE run_id = ? ORDER BY rank`), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load hits of %s: %w", id, err)
	}
	return hits, nil
}

// DeleteRun removes a run with its results and hits
func (s *Store) DeleteRun(ctx context.Context, id core.RunID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"hits", "results"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE run_id = ?"), id.String()); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", table, id, err)
		}
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM runs WHERE id = ?"), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("run", id.String())
	}
	return tx.Commit()
}
