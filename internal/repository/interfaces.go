package repository

import (
	"context"

	"github.com/freeeve/secgame/api/internal/model"
)

// AnalysisRepository defines analysis persistence.
type AnalysisRepository interface {
	Create(ctx context.Context, a *model.Analysis) error
	// Update writes status, result, error and timestamps.
	Update(ctx context.Context, a *model.Analysis) error
	// FindByID returns nil, nil when the analysis does not exist.
	FindByID(ctx context.Context, id string) (*model.Analysis, error)
	ListByAnalyst(ctx context.Context, analystID string, limit int) ([]model.Analysis, error)
}

// ProgressStore holds live sampling progress (Redis).
type ProgressStore interface {
	SetProgress(ctx context.Context, analysisID string, done, total int) error
	GetProgress(ctx context.Context, analysisID string) (done, total int, ok bool, err error)
	ClearProgress(ctx context.Context, analysisID string) error
}
