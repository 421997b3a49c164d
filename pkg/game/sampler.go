package game

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/freeeve/secgame/api/pkg/combin"
)

// MaxArmAtoms caps the defender universe: every defender strategy is an arm
// and arms are enumerated, so 2^n - 1 must stay tractable.
const MaxArmAtoms = 24

// Options configures a sampling run.
type Options struct {
	// Trials is N: draws per arm in classic mode, total rounds in UCB mode.
	Trials int
	// Exploration is the UCB coefficient b. Ignored by classic mode.
	Exploration float64
	// Seed fixes the random stream. 0 picks a time-based seed.
	Seed int64
	// Workers bounds parallelism. <= 0 uses GOMAXPROCS.
	Workers int
	// Progress, if set, is called with completed and total work units
	// (columns for classic, rounds for UCB). It may be called concurrently.
	Progress func(done, total int)
}

func (o Options) validate() error {
	if o.Trials <= 0 {
		return fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidSampleCount, o.Trials)
	}
	if o.Exploration < 0 {
		return fmt.Errorf("%w: exploration coefficient must be non-negative, got %g", ErrInvalidSampleCount, o.Exploration)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Arms returns the number of defender strategies, 2^n - 1.
func Arms(defenders *combin.Universe) (int, error) {
	n := defenders.Len()
	if n > MaxArmAtoms {
		return 0, fmt.Errorf("%w: %d defender atoms exceeds %d", combin.ErrOutOfRange, n, MaxArmAtoms)
	}
	return 1<<n - 1, nil
}

// prepare validates inputs shared by both modes.
func prepare(defenders, attackers *combin.Universe, o Oracle, opts Options) (*Payoff, int, error) {
	if err := opts.validate(); err != nil {
		return nil, 0, err
	}
	arms, err := Arms(defenders)
	if err != nil {
		return nil, 0, err
	}
	p, err := NewPayoff(defenders, attackers, o)
	if err != nil {
		return nil, 0, err
	}
	return p, arms, nil
}

// RunClassicMonteCarlo draws opts.Trials uniform attacker strategies against
// every defender strategy. Work is partitioned by column so no cell is
// shared between goroutines.
//
// If ctx is cancelled the returned matrix is left unsealed and the error is
// nil; callers must not evaluate an unsealed matrix.
func RunClassicMonteCarlo(ctx context.Context, defenders, attackers *combin.Universe, o Oracle, opts Options) (*Matrix, error) {
	p, arms, err := prepare(defenders, attackers, o, opts)
	if err != nil {
		return nil, err
	}

	m := NewMatrix(opts.Trials, arms)
	m.mode = ModeClassic
	m.seed = resolveSeed(opts.Seed)
	space := attackers.Space()

	var done atomic.Int64
	var cancelled atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(opts.workers())

	for j := 0; j < arms; j++ {
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				cancelled.Store(true)
				return nil
			}
			def, err := defenders.UnrankUint64(uint64(j))
			if err != nil {
				return err
			}
			draw := newAttackerDraw(columnRng(m.seed, j), space)
			col := make([]cell, opts.Trials)
			for t := range col {
				atk, err := attackers.Unrank(draw.next())
				if err != nil {
					return err
				}
				col[t] = cell{trial: t, cost: p.Cost(def, atk)}
			}
			m.cols[j] = col

			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), arms)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !cancelled.Load() {
		m.Seal()
	}
	return m, nil
}
