// Package criterion reduces a sampled payoff matrix to a recommended
// defender strategy under a decision rule.
package criterion

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/freeeve/secgame/api/pkg/game"
)

var (
	ErrIncompleteMatrix = errors.New("payoff matrix is incomplete")
	ErrNoObservations   = errors.New("payoff matrix has no observations")
	ErrInvalidRule      = errors.New("invalid decision rule")
	ErrUnknownRule      = errors.New("unknown decision rule")
)

// TopN is the number of runner-up arms reported in a Result.
const TopN = 3

// Rule is a decision rule. The set of rules is closed.
type Rule interface {
	Name() string
	// reduce collapses one non-empty observed column to the arm's value.
	reduce(col []float64) float64
}

// Wald minimizes the worst observed cost.
type Wald struct{}

// Laplace minimizes the mean observed cost.
type Laplace struct{}

// Savage minimizes the worst regret, where an observation's regret is its
// distance above the lowest cost observed for the same arm.
type Savage struct{}

// Hurwicz minimizes Alpha*max + (1-Alpha)*min. Alpha 1 is Wald, 0 is Optimism.
type Hurwicz struct{ Alpha float64 }

// Optimism minimizes the best observed cost.
type Optimism struct{}

func (Wald) Name() string     { return "wald" }
func (Laplace) Name() string  { return "laplace" }
func (Savage) Name() string   { return "savage" }
func (Hurwicz) Name() string  { return "hurwicz" }
func (Optimism) Name() string { return "optimism" }

func (Wald) reduce(col []float64) float64     { return floats.Max(col) }
func (Laplace) reduce(col []float64) float64  { return stat.Mean(col, nil) }
func (Savage) reduce(col []float64) float64   { return floats.Max(regret(col)) }
func (Optimism) reduce(col []float64) float64 { return floats.Min(col) }

func (h Hurwicz) reduce(col []float64) float64 {
	return h.Alpha*floats.Max(col) + (1-h.Alpha)*floats.Min(col)
}

// ParseRule maps a rule name to a Rule. alpha is only read for hurwicz.
func ParseRule(name string, alpha float64) (Rule, error) {
	var r Rule
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wald", "minimax":
		r = Wald{}
	case "laplace", "mean", "bayes":
		r = Laplace{}
	case "savage", "regret":
		r = Savage{}
	case "hurwicz":
		r = Hurwicz{Alpha: alpha}
	case "optimism", "minimin":
		r = Optimism{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

func validate(r Rule) error {
	switch r := r.(type) {
	case nil:
		return fmt.Errorf("%w: nil rule", ErrInvalidRule)
	case Hurwicz:
		if math.IsNaN(r.Alpha) || r.Alpha < 0 || r.Alpha > 1 {
			return fmt.Errorf("%w: hurwicz alpha %g outside [0, 1]", ErrInvalidRule, r.Alpha)
		}
	}
	return nil
}

// Result is the outcome of one evaluation.
type Result struct {
	Rule  string  `json:"rule"`
	Arm   int     `json:"arm"`
	Value float64 `json:"value"`
	// Values holds each arm's reduced value, NaN where Observed is false.
	Values   []float64 `json:"-"`
	Observed []bool    `json:"-"`
	// Top holds up to TopN arms by ascending value, Top[0] == Arm.
	Top []Ranked `json:"top"`

	winner []float64
	mean   bool
}

// Ranked is one arm and its value.
type Ranked struct {
	Arm   int     `json:"arm"`
	Value float64 `json:"value"`
}

// Evaluate applies rule to a sealed matrix. Arms with no observations are
// masked out and can never be chosen. Ties go to the lowest arm.
func Evaluate(m *game.Matrix, rule Rule) (*Result, error) {
	if err := validate(rule); err != nil {
		return nil, err
	}
	if !m.Complete() {
		return nil, ErrIncompleteMatrix
	}

	cols := make([][]float64, m.Arms())
	observed := false
	for j := range cols {
		cols[j] = m.Column(j)
		observed = observed || len(cols[j]) > 0
	}
	if !observed {
		return nil, ErrNoObservations
	}

	res := &Result{
		Rule:     rule.Name(),
		Values:   make([]float64, len(cols)),
		Observed: make([]bool, len(cols)),
	}
	for j, col := range cols {
		if len(col) == 0 {
			res.Values[j] = math.NaN()
			continue
		}
		res.Values[j] = rule.reduce(col)
		res.Observed[j] = true
	}

	res.Top = TopK(res.Values, res.Observed, TopN)
	res.Arm, res.Value = res.Top[0].Arm, res.Top[0].Value
	if _, ok := rule.(Laplace); ok {
		res.winner = cols[res.Arm]
		res.mean = true
	}
	return res, nil
}

// Regrets returns the regret matrix: per arm, each observed cost minus the
// lowest cost observed for that arm, in trial order.
func Regrets(m *game.Matrix) [][]float64 {
	out := make([][]float64, m.Arms())
	for j := range out {
		out[j] = regret(m.Column(j))
	}
	return out
}

func regret(col []float64) []float64 {
	out := make([]float64, len(col))
	if len(col) == 0 {
		return out
	}
	copy(out, col)
	floats.AddConst(-floats.Min(col), out)
	return out
}

// Convergence yields the running mean of the winning arm's costs, one
// (observations, mean) pair per sample. It is only populated for Laplace
// results. The sequence can be iterated any number of times.
func (r *Result) Convergence() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		if !r.mean {
			return
		}
		var sum float64
		for i, v := range r.winner {
			sum += v
			if !yield(i+1, sum/float64(i+1)) {
				return
			}
		}
	}
}
