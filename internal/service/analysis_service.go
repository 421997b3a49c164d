package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/secgame/api/internal/attack"
	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/logger"
	"github.com/freeeve/secgame/api/internal/metrics"
	"github.com/freeeve/secgame/api/internal/model"
	"github.com/freeeve/secgame/api/internal/repository"
)

var (
	ErrAnalysisNotFound   = errors.New("analysis not found")
	ErrAnalysisFinished   = errors.New("analysis already finished")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// CatalogLoader loads the ATT&CK catalog of a domain.
type CatalogLoader interface {
	Load(ctx context.Context, domain attack.Domain) (*attack.Catalog, attack.Origin, error)
}

// AnalysisService runs analyses and tracks the ones running in this process.
type AnalysisService struct {
	repo     repository.AnalysisRepository
	progress repository.ProgressStore
	catalogs CatalogLoader
	notifier Notifier
	metrics  *metrics.Registry
	limits   Limits

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewAnalysisService creates an AnalysisService. progress may be nil.
// limits.Workers is the default sampling parallelism.
func NewAnalysisService(repo repository.AnalysisRepository, progress repository.ProgressStore, catalogs CatalogLoader, notifier Notifier, m *metrics.Registry, limits Limits) *AnalysisService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	ctx, stop := context.WithCancel(context.Background())
	return &AnalysisService{
		repo:     repo,
		progress: progress,
		catalogs: catalogs,
		notifier: notifier,
		metrics:  m,
		limits:   limits,
		baseCtx:  ctx,
		stop:     stop,
		running:  make(map[string]context.CancelFunc),
	}
}

// Catalog loads the ATT&CK catalog of a domain name.
func (s *AnalysisService) Catalog(ctx context.Context, domainName string) (*attack.Catalog, error) {
	domain, err := attack.ParseDomain(domainName)
	if err != nil {
		return nil, err
	}
	cat, origin, err := s.catalogs.Load(ctx, domain)
	if err != nil {
		s.metrics.RecordCatalogLoad(string(domain), "error")
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	s.metrics.RecordCatalogLoad(string(domain), string(origin))
	return cat, nil
}

// Plan loads the project's catalog and resolves the project against it.
func (s *AnalysisService) Plan(ctx context.Context, p *config.Project) (*Plan, error) {
	cat, err := s.Catalog(ctx, p.Domain)
	if err != nil {
		return nil, err
	}
	return BuildPlan(cat, p, s.limits)
}

// Run executes a stored analysis synchronously: it plans, samples, evaluates
// and persists the outcome. The returned error is non-nil only when the run
// failed or the outcome could not be stored; cancellation is reported
// through the analysis status.
func (s *AnalysisService) Run(ctx context.Context, id string, p *config.Project) (*model.Analysis, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAnalysisNotFound
	}
	if a.Status.Terminal() {
		return a, ErrAnalysisFinished
	}
	plan, err := s.Plan(ctx, p)
	if err != nil {
		return s.finish(ctx, a, p, nil, 0, time.Now(), err)
	}
	return s.execute(ctx, a, p, plan)
}

// Submit stores a new analysis, resolves it against the catalog and starts
// sampling in the background. Planning errors (unknown tactics or
// mitigations) are returned directly and nothing is stored.
func (s *AnalysisService) Submit(ctx context.Context, analystID string, p *config.Project) (*model.Analysis, error) {
	plan, err := s.Plan(ctx, p)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal project: %w", err)
	}
	a := &model.Analysis{
		ID:        uuid.NewString(),
		AnalystID: analystID,
		Name:      p.Name,
		Status:    model.StatusPending,
		Project:   raw,
	}

	// The cancel func must be visible before the row is.
	runCtx, cancel := context.WithCancel(logger.WithRequestID(s.baseCtx, logger.RequestIDFromContext(ctx)))
	s.mu.Lock()
	s.running[a.ID] = cancel
	s.mu.Unlock()
	if err := s.repo.Create(ctx, a); err != nil {
		s.forget(a.ID)
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(a.ID)
		run := *a
		if _, err := s.execute(runCtx, &run, p, plan); err != nil {
			log.Error().Err(err).Str("analysisId", a.ID).Msg("Analysis failed")
		}
	}()
	return a, nil
}

// Cancel stops a running analysis owned by analystID. A pending analysis
// with no run in this process is marked cancelled directly.
func (s *AnalysisService) Cancel(ctx context.Context, analystID, id string) error {
	a, err := s.Get(ctx, analystID, id)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return ErrAnalysisFinished
	}

	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		l := logger.ForAnalysis(ctx, id)
		l.Info().Msg("Cancelling analysis")
		cancel()
		return nil
	}

	now := time.Now().UTC()
	a.Status = model.StatusCancelled
	a.FinishedAt = &now
	a.Progress = nil
	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}
	s.notifier.NotifyAnalysis(id, EventCancelled, nil)
	return nil
}

// Get returns an analysis owned by analystID, with live progress attached
// while it runs.
func (s *AnalysisService) Get(ctx context.Context, analystID, id string) (*model.Analysis, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAnalysisNotFound
	}
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.AnalystID != analystID {
		return nil, ErrAnalysisNotFound
	}
	if a.Status == model.StatusRunning && s.progress != nil {
		done, total, ok, err := s.progress.GetProgress(ctx, id)
		if err != nil {
			l := logger.ForAnalysis(ctx, id)
			l.Warn().Err(err).Msg("Failed to read progress")
		} else if ok {
			a.Progress = &model.Progress{Done: done, Total: total}
		}
	}
	return a, nil
}

// List returns the analyst's recent analyses.
func (s *AnalysisService) List(ctx context.Context, analystID string, limit int) ([]model.Analysis, error) {
	return s.repo.ListByAnalyst(ctx, analystID, limit)
}

// Shutdown cancels every running analysis and waits for them to be stored.
func (s *AnalysisService) Shutdown() {
	s.stop()
	s.wg.Wait()
}

func (s *AnalysisService) forget(id string) {
	s.mu.Lock()
	cancel, ok := s.running[id]
	delete(s.running, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *AnalysisService) execute(ctx context.Context, a *model.Analysis, p *config.Project, plan *Plan) (*model.Analysis, error) {
	l := logger.ForAnalysis(ctx, a.ID)
	start := time.Now()
	startedAt := start.UTC()
	a.Status = model.StatusRunning
	a.StartedAt = &startedAt
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.metrics.AnalysisStarted()
	l.Info().
		Str("mode", string(plan.Mode)).
		Str("rule", plan.Rule.Name()).
		Int("techniques", plan.Attackers.Len()).
		Int("mitigations", plan.Defenders.Len()).
		Int("trials", plan.Options.Trials).
		Msg("Analysis started")

	res, observations, err := plan.Execute(ctx, s.progressFunc(ctx, a.ID, l))
	return s.finish(ctx, a, p, res, observations, start, err)
}

// finish records the outcome of a run. It stores with a context that
// outlives cancellation so a cancelled run is still persisted.
func (s *AnalysisService) finish(ctx context.Context, a *model.Analysis, p *config.Project, res *model.Result, observations int, start time.Time, runErr error) (*model.Analysis, error) {
	l := logger.ForAnalysis(ctx, a.ID)
	now := time.Now().UTC()
	a.FinishedAt = &now
	a.Progress = nil

	var event string
	var data any
	switch {
	case errors.Is(runErr, ErrAnalysisCancelled) || (runErr != nil && ctx.Err() != nil):
		a.Status = model.StatusCancelled
		event = EventCancelled
		runErr = nil
	case runErr != nil:
		a.Status = model.StatusFailed
		a.Error = runErr.Error()
		event, data = EventFailed, FailedEvent{Error: a.Error}
	default:
		a.Status = model.StatusCompleted
		a.Result = res
		event, data = EventCompleted, res
	}

	if a.StartedAt != nil {
		s.metrics.RecordAnalysis(p.Simulation.Mode, p.Criterion.Rule, string(a.Status), observations, time.Since(start))
	}
	store := context.WithoutCancel(ctx)
	if s.progress != nil {
		if err := s.progress.ClearProgress(store, a.ID); err != nil {
			l.Warn().Err(err).Msg("Failed to clear progress")
		}
	}
	if err := s.repo.Update(store, a); err != nil {
		return a, fmt.Errorf("store analysis: %w", err)
	}
	s.notifier.NotifyAnalysis(a.ID, event, data)

	ev := l.Info()
	if a.Status == model.StatusFailed {
		ev = l.Warn().Str("error", a.Error)
	}
	ev.Str("status", string(a.Status)).
		Int("observations", observations).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis finished")
	return a, runErr
}

// progressFunc publishes progress at most once per percent. It is safe for
// the concurrent calls classic sampling makes.
func (s *AnalysisService) progressFunc(ctx context.Context, id string, l zerolog.Logger) func(done, total int) {
	var last atomic.Int64
	last.Store(-1)
	return func(done, total int) {
		if total <= 0 {
			return
		}
		pct := int64(done) * 100 / int64(total)
		for {
			prev := last.Load()
			if pct <= prev {
				return
			}
			if last.CompareAndSwap(prev, pct) {
				break
			}
		}
		if s.progress != nil {
			if err := s.progress.SetProgress(ctx, id, done, total); err != nil {
				l.Debug().Err(err).Msg("Failed to store progress")
			}
		}
		s.notifier.NotifyAnalysis(id, EventProgress, ProgressEvent{Done: done, Total: total, Percent: int(pct)})
	}
}
