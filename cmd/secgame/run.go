package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/secgame/api/internal/attack"
	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/metrics"
	"github.com/freeeve/secgame/api/internal/model"
	"github.com/freeeve/secgame/api/internal/repository"
	"github.com/freeeve/secgame/api/internal/repository/memory"
	"github.com/freeeve/secgame/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/secgame/api/internal/repository/redis"
	"github.com/freeeve/secgame/api/internal/service"
)

const cliAnalyst = "cli"

type runOptions struct {
	project  string
	catalog  string
	jsonOut  bool
	dbURL    string
	redisURL string
	workers  int
	seed     int64
}

func runCmd(ctx context.Context, args []string) error {
	cfg := config.Load()
	var o runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&o.project, "project", "", "Project file (YAML, or JSON by extension)")
	fs.StringVar(&o.catalog, "catalog", cfg.CatalogURL, "ATT&CK bundle path or URL; {domain} is substituted")
	fs.BoolVar(&o.jsonOut, "json", false, "Output the analysis as JSON")
	fs.StringVar(&o.dbURL, "db", "", "Store the analysis in Postgres")
	fs.StringVar(&o.redisURL, "redis", "", "Cache catalogs and publish progress in Redis")
	fs.IntVar(&o.workers, "workers", cfg.SimWorkers, "Sampling parallelism (0 = GOMAXPROCS)")
	fs.Int64Var(&o.seed, "seed", 0, "Override the project seed (0 = keep)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if o.project == "" {
		fs.Usage()
		return fmt.Errorf("-project is required")
	}

	p, err := config.LoadProject(o.project)
	if err != nil {
		return err
	}
	if o.seed != 0 {
		p.Simulation.Seed = o.seed
	}

	a, err := analyze(ctx, p, o, os.Stderr)
	if err != nil {
		return err
	}
	if o.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	fmt.Println(render(p, a))
	if a.Status != model.StatusCompleted {
		return fmt.Errorf("analysis %s", a.Status)
	}
	return nil
}

// analyze wires the service to the requested stores and runs one analysis
// synchronously. Progress is written to progressOut.
func analyze(ctx context.Context, p *config.Project, o runOptions, progressOut io.Writer) (*model.Analysis, error) {
	var repo repository.AnalysisRepository = memory.NewAnalysisRepo()
	if o.dbURL != "" {
		db, err := postgres.Connect(ctx, o.dbURL)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		repo = postgres.NewAnalysisRepo(db)
	}

	var (
		cache    attack.Cache
		progress repository.ProgressStore
	)
	if o.redisURL != "" {
		rc, err := redisrepo.NewClient(ctx, o.redisURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		cache, progress = rc, rc
	}

	cfg := config.Load()
	src := attack.NewSource(o.catalog, cfg.CatalogTTL, cache)
	svc := service.NewAnalysisService(repo, progress, src, &progressPrinter{out: progressOut}, metrics.NewRegistry(),
		service.Limits{Workers: o.workers, MaxCells: cfg.SimMaxCells})
	defer svc.Shutdown()

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	a := &model.Analysis{
		ID:        uuid.NewString(),
		AnalystID: cliAnalyst,
		Name:      p.Name,
		Status:    model.StatusPending,
		Project:   raw,
	}
	if err := repo.Create(ctx, a); err != nil {
		return nil, err
	}
	log.Info().Str("analysisId", a.ID).Str("project", p.Name).Msg("Analysis created")
	return svc.Run(ctx, a.ID, p)
}

// progressPrinter renders progress events on a single terminal line.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (pp *progressPrinter) NotifyAnalysis(_ string, eventType string, data any) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	switch eventType {
	case service.EventProgress:
		if ev, ok := data.(service.ProgressEvent); ok {
			fmt.Fprintf(pp.out, "\rsampling %3d%% (%d/%d)", ev.Percent, ev.Done, ev.Total)
		}
	default:
		fmt.Fprintln(pp.out)
	}
}
