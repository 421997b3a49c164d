package game

import (
	"fmt"
	"sort"

	"github.com/freeeve/secgame/api/pkg/combin"
)

// Mode names the sampling policy that filled a matrix.
type Mode string

const (
	ModeClassic Mode = "classic"
	ModeUCB     Mode = "ucb"
)

// Observation is one sampled cell.
type Observation struct {
	Trial int     `json:"trial"`
	Arm   int     `json:"arm"`
	Cost  float64 `json:"cost"`
}

type cell struct {
	trial int
	cost  float64
}

// Matrix is a trials × arms payoff matrix where only sampled cells exist.
// Presence is explicit: an observed zero cost is a real observation, an
// unobserved cell has no value at all.
//
// Columns are independent, so concurrent Record calls on distinct arms are
// safe. The matrix is read-only once sealed.
type Matrix struct {
	mode   Mode
	seed   int64
	trials int
	cols   [][]cell
	sealed bool
}

// NewMatrix returns an empty matrix.
func NewMatrix(trials, arms int) *Matrix {
	return &Matrix{trials: trials, cols: make([][]cell, arms)}
}

func (m *Matrix) Mode() Mode     { return m.mode }
func (m *Matrix) Seed() int64    { return m.seed }
func (m *Matrix) Trials() int    { return m.trials }
func (m *Matrix) Arms() int      { return len(m.cols) }
func (m *Matrix) Complete() bool { return m.sealed }

// Seal marks sampling as finished.
func (m *Matrix) Seal() { m.sealed = true }

// Record stores the observation, replacing any earlier value for the cell.
func (m *Matrix) Record(o Observation) error {
	if m.sealed {
		return ErrMatrixSealed
	}
	if o.Trial < 0 || o.Trial >= m.trials || o.Arm < 0 || o.Arm >= len(m.cols) {
		return fmt.Errorf("%w: cell (%d, %d) outside %dx%d", combin.ErrOutOfRange, o.Trial, o.Arm, m.trials, len(m.cols))
	}
	col := m.cols[o.Arm]
	// Samplers append in trial order; fall back to insertion otherwise.
	if n := len(col); n == 0 || col[n-1].trial < o.Trial {
		m.cols[o.Arm] = append(col, cell{o.Trial, o.Cost})
		return nil
	}
	i := sort.Search(len(col), func(i int) bool { return col[i].trial >= o.Trial })
	if col[i].trial == o.Trial {
		col[i].cost = o.Cost
		return nil
	}
	col = append(col, cell{})
	copy(col[i+1:], col[i:])
	col[i] = cell{o.Trial, o.Cost}
	m.cols[o.Arm] = col
	return nil
}

// At returns the cost at (trial, arm) and whether it was observed.
func (m *Matrix) At(trial, arm int) (float64, bool) {
	if arm < 0 || arm >= len(m.cols) {
		return 0, false
	}
	col := m.cols[arm]
	i := sort.Search(len(col), func(i int) bool { return col[i].trial >= trial })
	if i < len(col) && col[i].trial == trial {
		return col[i].cost, true
	}
	return 0, false
}

// Observed returns how many cells of the arm were sampled.
func (m *Matrix) Observed(arm int) int { return len(m.cols[arm]) }

// Column returns the observed costs of an arm in trial order.
func (m *Matrix) Column(arm int) []float64 {
	col := m.cols[arm]
	out := make([]float64, len(col))
	for i, c := range col {
		out[i] = c.cost
	}
	return out
}

// Observations returns the observed cells of an arm in trial order.
func (m *Matrix) Observations(arm int) []Observation {
	col := m.cols[arm]
	out := make([]Observation, len(col))
	for i, c := range col {
		out[i] = Observation{Trial: c.trial, Arm: arm, Cost: c.cost}
	}
	return out
}

// Total returns the number of observed cells.
func (m *Matrix) Total() int {
	n := 0
	for _, col := range m.cols {
		n += len(col)
	}
	return n
}
