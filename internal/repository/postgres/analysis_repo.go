package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/secgame/api/internal/model"
)

const defaultListLimit = 50

// AnalysisRepo handles analysis database operations.
type AnalysisRepo struct {
	db *sql.DB
}

// NewAnalysisRepo creates an AnalysisRepo.
func NewAnalysisRepo(db *sql.DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// Create inserts a new analysis and fills CreatedAt.
func (r *AnalysisRepo) Create(ctx context.Context, a *model.Analysis) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO analyses (id, analyst_id, name, status, project)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		a.ID, a.AnalystID, a.Name, a.Status, []byte(a.Project),
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

// Update writes the mutable columns of an analysis.
func (r *AnalysisRepo) Update(ctx context.Context, a *model.Analysis) error {
	var result []byte
	if a.Result != nil {
		var err error
		if result, err = json.Marshal(a.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE analyses
		 SET status = $2, result = $3, error = NULLIF($4, ''), started_at = $5, finished_at = $6
		 WHERE id = $1`,
		a.ID, a.Status, nullBytes(result), a.Error, a.StartedAt, a.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update analysis: %s not found", a.ID)
	}
	return nil
}

// FindByID returns an analysis, or nil if it does not exist.
func (r *AnalysisRepo) FindByID(ctx context.Context, id string) (*model.Analysis, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, analyst_id, name, status, project, result, error, created_at, started_at, finished_at
		 FROM analyses WHERE id = $1`, id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find analysis: %w", err)
	}
	return a, nil
}

// ListByAnalyst returns an analyst's analyses, newest first, without results.
func (r *AnalysisRepo) ListByAnalyst(ctx context.Context, analystID string, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, analyst_id, name, status, project, NULL::jsonb, error, created_at, started_at, finished_at
		 FROM analyses WHERE analyst_id = $1 ORDER BY created_at DESC LIMIT $2`,
		analystID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*model.Analysis, error) {
	var (
		a       model.Analysis
		project []byte
		result  []byte
		errMsg  sql.NullString
	)
	if err := s.Scan(&a.ID, &a.AnalystID, &a.Name, &a.Status, &project, &result, &errMsg,
		&a.CreatedAt, &a.StartedAt, &a.FinishedAt); err != nil {
		return nil, err
	}
	a.Project = json.RawMessage(project)
	a.Error = errMsg.String
	if len(result) > 0 {
		a.Result = new(model.Result)
		if err := json.Unmarshal(result, a.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &a, nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
