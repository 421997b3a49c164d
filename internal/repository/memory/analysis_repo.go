// Package memory is an in-process AnalysisRepository for the CLI and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/secgame/api/internal/model"
)

const defaultListLimit = 50

// AnalysisRepo keeps analyses in a map. Stored values are copied in and out
// so callers never share state with the repository.
type AnalysisRepo struct {
	mu       sync.RWMutex
	analyses map[string]model.Analysis
}

// NewAnalysisRepo creates an empty AnalysisRepo.
func NewAnalysisRepo() *AnalysisRepo {
	return &AnalysisRepo{analyses: make(map[string]model.Analysis)}
}

func (r *AnalysisRepo) Create(_ context.Context, a *model.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[a.ID]; ok {
		return fmt.Errorf("create analysis: %s already exists", a.ID)
	}
	a.CreatedAt = time.Now().UTC()
	r.analyses[a.ID] = *a
	return nil
}

func (r *AnalysisRepo) Update(_ context.Context, a *model.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.analyses[a.ID]
	if !ok {
		return fmt.Errorf("update analysis: %s not found", a.ID)
	}
	cur.Status = a.Status
	cur.Result = a.Result
	cur.Error = a.Error
	cur.StartedAt = a.StartedAt
	cur.FinishedAt = a.FinishedAt
	r.analyses[a.ID] = cur
	return nil
}

func (r *AnalysisRepo) FindByID(_ context.Context, id string) (*model.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *AnalysisRepo) ListByAnalyst(_ context.Context, analystID string, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	r.mu.RLock()
	var out []model.Analysis
	for _, a := range r.analyses {
		if a.AnalystID == analystID {
			a.Result = nil
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
