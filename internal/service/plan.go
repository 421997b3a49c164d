package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/freeeve/secgame/api/internal/attack"
	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/model"
	"github.com/freeeve/secgame/api/pkg/combin"
	"github.com/freeeve/secgame/api/pkg/criterion"
	"github.com/freeeve/secgame/api/pkg/game"
)

// maxConvergencePoints bounds the Laplace trace stored with a result.
const maxConvergencePoints = 200

var (
	ErrUnknownTactic     = attack.ErrUnknownTactic
	ErrUnknownMitigation = attack.ErrUnknownMitigation
	ErrNoTechniques      = errors.New("selected tactics contain no techniques")
	ErrDomainMismatch    = errors.New("catalog domain does not match project")
	ErrAnalysisCancelled = errors.New("analysis cancelled")
	ErrBudgetExceeded    = errors.New("sampling budget exceeded")
)

// Limits bounds the work a plan may ask for. Zero values fall back to
// GOMAXPROCS workers and config.DefaultMaxCells.
type Limits struct {
	Workers  int
	MaxCells int64
}

func (l Limits) maxCells() int64 {
	if l.MaxCells <= 0 {
		return config.DefaultMaxCells
	}
	return l.MaxCells
}

// Cells is the number of payoff cells a run records: every arm gets every
// trial in classic mode, UCB records one cell per round.
func Cells(mode game.Mode, arms, trials int) int64 {
	if mode == game.ModeUCB {
		return int64(max(arms, trials))
	}
	return int64(arms) * int64(trials)
}

// Plan is a project resolved against a catalog: both strategy universes,
// the mitigation relation and the sampling and decision settings.
type Plan struct {
	Defenders *combin.Universe
	Attackers *combin.Universe
	Relation  *game.Relation
	Mode      game.Mode
	Options   game.Options
	Rule      criterion.Rule
}

// BuildPlan resolves tactics to techniques (the attacker universe) and asset
// mitigations to catalog measures (the defender universe). Plans whose
// sampling would exceed limits.MaxCells are rejected.
func BuildPlan(cat *attack.Catalog, p *config.Project, limits Limits) (*Plan, error) {
	domain, err := attack.ParseDomain(p.Domain)
	if err != nil {
		return nil, err
	}
	if cat.Domain() != domain {
		return nil, fmt.Errorf("%w: catalog %s, project %s", ErrDomainMismatch, cat.Domain(), domain)
	}

	tactics, err := cat.Tactics(p.Tactics)
	if err != nil {
		return nil, err
	}
	shortNames := make([]string, len(tactics))
	for i, t := range tactics {
		shortNames[i] = t.ShortName
	}
	techniques := cat.TechniquesByTactics(shortNames)
	if len(techniques) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoTechniques, p.Tactics)
	}
	atkAtoms := make([]combin.Atom, len(techniques))
	techIDs := make([]string, len(techniques))
	for i, t := range techniques {
		atkAtoms[i] = combin.Atom{ID: t.Key(), Name: t.Name}
		techIDs[i] = t.Key()
	}

	assets := p.GameAssets()
	for i := range assets {
		resolved := make([]string, len(assets[i].Mitigations))
		for j, ref := range assets[i].Mitigations {
			m, err := cat.Mitigation(ref)
			if err != nil {
				return nil, fmt.Errorf("asset %q: %w", assets[i].Name, err)
			}
			resolved[j] = m.Key()
		}
		assets[i].Mitigations = resolved
	}

	attackers, err := combin.NewUniverse(atkAtoms)
	if err != nil {
		return nil, fmt.Errorf("attacker universe: %w", err)
	}
	defenders, err := combin.NewUniverse(game.DefenderAtoms(assets, cat.Name))
	if err != nil {
		return nil, fmt.Errorf("defender universe: %w", err)
	}
	arms, err := game.Arms(defenders)
	if err != nil {
		return nil, fmt.Errorf("defender universe: %w", err)
	}
	mode := game.Mode(p.Simulation.Mode)
	if cells := Cells(mode, arms, p.Simulation.Trials); cells > limits.maxCells() {
		return nil, fmt.Errorf("%w: %w: %d arms x %d trials needs %d cells, limit %d",
			ErrBudgetExceeded, combin.ErrOutOfRange, arms, p.Simulation.Trials, cells, limits.maxCells())
	}

	rule, err := criterion.ParseRule(p.Criterion.Rule, p.Criterion.Alpha)
	if err != nil {
		return nil, err
	}

	sim := p.Simulation
	if sim.Workers == 0 {
		sim.Workers = limits.Workers
	}
	return &Plan{
		Defenders: defenders,
		Attackers: attackers,
		Relation:  game.NewRelation(techIDs, cat.Mitigates(), assets),
		Mode:      mode,
		Options: game.Options{
			Trials:      sim.Trials,
			Exploration: sim.Exploration,
			Seed:        sim.Seed,
			Workers:     sim.Workers,
		},
		Rule: rule,
	}, nil
}

// Execute samples the game and applies the decision rule. The returned
// count is the number of observed cells, reported even for cancelled runs.
// A cancelled run returns ErrAnalysisCancelled and no result.
func (pl *Plan) Execute(ctx context.Context, progress func(done, total int)) (*model.Result, int, error) {
	opts := pl.Options
	opts.Progress = progress

	var (
		m   *game.Matrix
		err error
	)
	switch pl.Mode {
	case game.ModeUCB:
		m, err = game.RunUCB(ctx, pl.Defenders, pl.Attackers, pl.Relation, opts)
	default:
		m, err = game.RunClassicMonteCarlo(ctx, pl.Defenders, pl.Attackers, pl.Relation, opts)
	}
	if err != nil {
		return nil, 0, err
	}
	if !m.Complete() {
		return nil, m.Total(), ErrAnalysisCancelled
	}

	ev, err := criterion.Evaluate(m, pl.Rule)
	if err != nil {
		return nil, m.Total(), err
	}

	res := &model.Result{
		Mode:          string(m.Mode()),
		Rule:          ev.Rule,
		Seed:          m.Seed(),
		Trials:        m.Trials(),
		Observations:  m.Total(),
		DefenderSpace: pl.Defenders.Space().String(),
		AttackerSpace: pl.Attackers.Space().String(),
		Techniques:    pl.Attackers.Len(),
		Mitigations:   pl.Defenders.Len(),
	}
	if h, ok := pl.Rule.(criterion.Hurwicz); ok {
		res.Alpha = h.Alpha
	}
	for _, r := range ev.Top {
		rec, err := pl.recommend(m, r)
		if err != nil {
			return nil, m.Total(), err
		}
		res.Top = append(res.Top, rec)
	}
	res.Recommended = res.Top[0]
	res.Convergence = downsample(ev, m.Observed(ev.Arm))
	return res, m.Total(), nil
}

func (pl *Plan) recommend(m *game.Matrix, r criterion.Ranked) (model.Recommendation, error) {
	s, err := pl.Defenders.UnrankUint64(uint64(r.Arm))
	if err != nil {
		return model.Recommendation{}, err
	}
	atoms, err := pl.Defenders.Materialize(s)
	if err != nil {
		return model.Recommendation{}, err
	}
	rec := model.Recommendation{Arm: r.Arm, Value: r.Value, Samples: m.Observed(r.Arm)}
	for _, a := range atoms {
		rec.Measures = append(rec.Measures, model.Measure{
			ID:      a.ID,
			Name:    a.Name,
			Price:   a.Price,
			LossMin: a.Loss.Lo,
			LossMax: a.Loss.Hi,
		})
	}
	return rec, nil
}

// downsample keeps at most maxConvergencePoints evenly spaced points of the
// trace, always including the last one.
func downsample(ev *criterion.Result, n int) []model.ConvergencePoint {
	stride := max(1, (n+maxConvergencePoints-1)/maxConvergencePoints)
	var out []model.ConvergencePoint
	for i, mean := range ev.Convergence() {
		if i%stride == 0 || i == n {
			out = append(out, model.ConvergencePoint{N: i, Mean: mean})
		}
	}
	return out
}
