package game

import (
	"context"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/freeeve/secgame/api/pkg/combin"
)

// parallelScoreMin is the arm count above which the per-round score scan is
// split across workers; below it goroutine overhead dominates.
const parallelScoreMin = 1 << 14

// armStats is the running estimate for one arm.
type armStats struct {
	mean   float64
	visits int
}

// RunUCB samples defender strategies as bandit arms. Every arm is visited
// once, then each round pulls the arm minimizing the lower confidence bound
//
//	mean(j) - b*sqrt(2*ln(t)/visits(j))
//
// with ties going to the lowest arm. Total rounds are max(opts.Trials, arms)
// and round t records its observation as trial t.
//
// Rounds are strictly sequential. Cancellation is checked every round; a
// cancelled run returns its matrix unsealed with a nil error.
func RunUCB(ctx context.Context, defenders, attackers *combin.Universe, o Oracle, opts Options) (*Matrix, error) {
	p, arms, err := prepare(defenders, attackers, o, opts)
	if err != nil {
		return nil, err
	}

	rounds := max(opts.Trials, arms)
	m := NewMatrix(rounds, arms)
	m.mode = ModeUCB
	m.seed = resolveSeed(opts.Seed)

	draw := newAttackerDraw(rand.New(rand.NewSource(m.seed)), attackers.Space())
	stats := make([]armStats, arms)
	every := max(1, rounds/100)

	pull := func(t, j int) error {
		def, err := defenders.UnrankUint64(uint64(j))
		if err != nil {
			return err
		}
		atk, err := attackers.Unrank(draw.next())
		if err != nil {
			return err
		}
		cost := p.Cost(def, atk)
		m.cols[j] = append(m.cols[j], cell{trial: t, cost: cost})

		s := &stats[j]
		s.visits++
		s.mean += (cost - s.mean) / float64(s.visits)
		return nil
	}

	sc := newScorer(stats, opts.Exploration, opts.workers())
	for t := 0; t < rounds; t++ {
		if ctx.Err() != nil {
			return m, nil
		}
		j := t
		if t >= arms {
			j = sc.best(t)
		}
		if err := pull(t, j); err != nil {
			return nil, err
		}
		if opts.Progress != nil && ((t+1)%every == 0 || t+1 == rounds) {
			opts.Progress(t+1, rounds)
		}
	}

	m.Seal()
	return m, nil
}

// scorer finds the arm with the lowest confidence bound.
type scorer struct {
	stats   []armStats
	b       float64
	workers int
}

func newScorer(stats []armStats, b float64, workers int) *scorer {
	if len(stats) < parallelScoreMin {
		workers = 1
	}
	return &scorer{stats: stats, b: b, workers: workers}
}

func (s *scorer) score(j int, logT float64) float64 {
	st := s.stats[j]
	return st.mean - s.b*math.Sqrt(2*logT/float64(st.visits))
}

// scan returns the best arm in [lo, hi) and its score.
func (s *scorer) scan(lo, hi int, logT float64) (int, float64) {
	best, bestScore := lo, s.score(lo, logT)
	for j := lo + 1; j < hi; j++ {
		if sc := s.score(j, logT); sc < bestScore {
			best, bestScore = j, sc
		}
	}
	return best, bestScore
}

// best returns argmin score at round t. Chunks are reduced in arm order so
// the result matches a sequential scan exactly.
func (s *scorer) best(t int) int {
	logT := math.Log(float64(t))
	n := len(s.stats)
	if s.workers <= 1 {
		j, _ := s.scan(0, n, logT)
		return j
	}

	chunk := (n + s.workers - 1) / s.workers
	arms := make([]int, s.workers)
	scores := make([]float64, s.workers)
	var g errgroup.Group
	for w := 0; w < s.workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			arms[w] = -1
			continue
		}
		g.Go(func() error {
			arms[w], scores[w] = s.scan(lo, hi, logT)
			return nil
		})
	}
	_ = g.Wait()

	best := -1
	var bestScore float64
	for w, j := range arms {
		if j < 0 {
			continue
		}
		if best < 0 || scores[w] < bestScore {
			best, bestScore = j, scores[w]
		}
	}
	return best
}
