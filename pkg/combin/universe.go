// Package combin maps every non-empty subset of an ordered universe to a
// dense integer rank and back, without enumerating subsets.
//
// Subsets are grouped by ascending size. Group k holds C(n,k) members and
// starts at rank Σ_{i<k} C(n,i); inside a group members follow the
// combinatorial number system. Rank arithmetic uses math/big so catalogs of
// several hundred atoms never overflow.
package combin

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

var (
	ErrOutOfRange    = errors.New("rank out of range")
	ErrEmptyUniverse = errors.New("universe has no atoms")
)

// MaxAtoms bounds the universe size so the Pascal row stays in memory.
const MaxAtoms = 4096

// smallLimit is the largest n whose binomials and rank space fit a uint64.
const smallLimit = 62

// Interval is a closed numeric range [Lo, Hi].
type Interval struct {
	Lo float64 `json:"lo" yaml:"lo"`
	Hi float64 `json:"hi" yaml:"hi"`
}

// Mid returns the midpoint used as a point estimate.
func (iv Interval) Mid() float64 { return (iv.Lo + iv.Hi) / 2 }

// Add returns the interval sum.
func (iv Interval) Add(o Interval) Interval {
	return Interval{Lo: iv.Lo + o.Lo, Hi: iv.Hi + o.Hi}
}

// Atom is one element of a universe. Defender atoms carry a price and a loss
// interval; attacker atoms leave both zero.
type Atom struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Price float64  `json:"price,omitempty"`
	Loss  Interval `json:"loss,omitempty"`
}

// Strategy is a non-empty subset, held as strictly increasing positions.
type Strategy []int

// Universe is an immutable ordered catalog of atoms.
type Universe struct {
	atoms []Atom
	index map[string]int

	row     []*big.Int // row[k] = C(n,k)
	offsets []*big.Int // offsets[k] = rank of the first member of group k, offsets[n+1] = space
	space   *big.Int   // 2^n - 1

	// uint64 fast path, populated when n <= smallLimit.
	pascal       [][]uint64
	smallOffsets []uint64
}

// NewUniverse sorts atoms by ID and builds the rank tables. The first atom
// seen for a duplicated ID wins.
func NewUniverse(atoms []Atom) (*Universe, error) {
	if len(atoms) == 0 {
		return nil, ErrEmptyUniverse
	}

	sorted := make([]Atom, len(atoms))
	copy(sorted, atoms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	u := &Universe{index: make(map[string]int, len(sorted))}
	for _, a := range sorted {
		if _, dup := u.index[a.ID]; dup {
			continue
		}
		u.index[a.ID] = len(u.atoms)
		u.atoms = append(u.atoms, a)
	}
	n := len(u.atoms)
	if n > MaxAtoms {
		return nil, fmt.Errorf("%w: %d atoms exceeds %d", ErrOutOfRange, n, MaxAtoms)
	}

	u.row = pascalRow(n)
	u.offsets = make([]*big.Int, n+2)
	u.offsets[0] = new(big.Int)
	u.offsets[1] = new(big.Int)
	for k := 1; k <= n; k++ {
		u.offsets[k+1] = new(big.Int).Add(u.offsets[k], u.row[k])
	}
	u.space = u.offsets[n+1]

	if n <= smallLimit {
		u.pascal = pascalTable(n)
		u.smallOffsets = make([]uint64, n+2)
		for k := 1; k <= n; k++ {
			u.smallOffsets[k+1] = u.smallOffsets[k] + u.pascal[n][k]
		}
	}
	return u, nil
}

// Len returns the number of atoms.
func (u *Universe) Len() int { return len(u.atoms) }

// Atom returns the atom at position i.
func (u *Universe) Atom(i int) Atom { return u.atoms[i] }

// Atoms returns a copy of the ordered atoms.
func (u *Universe) Atoms() []Atom {
	out := make([]Atom, len(u.atoms))
	copy(out, u.atoms)
	return out
}

// Index returns the position of the atom with the given ID.
func (u *Universe) Index(id string) (int, bool) {
	i, ok := u.index[id]
	return i, ok
}

// Space returns 2^n - 1, the number of non-empty subsets.
func (u *Universe) Space() *big.Int { return new(big.Int).Set(u.space) }

// GroupSize returns C(n,k).
func (u *Universe) GroupSize(k int) *big.Int {
	if k < 0 || k > len(u.atoms) {
		return new(big.Int)
	}
	return new(big.Int).Set(u.row[k])
}

// Materialize turns a strategy into its atoms, in universe order.
func (u *Universe) Materialize(s Strategy) ([]Atom, error) {
	if err := u.check(s); err != nil {
		return nil, err
	}
	out := make([]Atom, len(s))
	for i, p := range s {
		out[i] = u.atoms[p]
	}
	return out, nil
}

// MaterializeRank unranks and materializes in one step.
func (u *Universe) MaterializeRank(rank *big.Int) ([]Atom, error) {
	s, err := u.Unrank(rank)
	if err != nil {
		return nil, err
	}
	return u.Materialize(s)
}

// check verifies s is a valid non-empty subset of u.
func (u *Universe) check(s Strategy) error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty strategy", ErrOutOfRange)
	}
	prev := -1
	for _, p := range s {
		if p <= prev || p >= len(u.atoms) {
			return fmt.Errorf("%w: position %d in %v", ErrOutOfRange, p, s)
		}
		prev = p
	}
	return nil
}

// pascalRow returns C(n,k) for k = 0..n.
func pascalRow(n int) []*big.Int {
	row := make([]*big.Int, n+1)
	row[0] = big.NewInt(1)
	for k := 0; k < n; k++ {
		next := new(big.Int).Mul(row[k], big.NewInt(int64(n-k)))
		row[k+1] = next.Quo(next, big.NewInt(int64(k+1)))
	}
	return row
}

// pascalTable returns t[a][b] = C(a,b) for 0 <= b <= a <= n.
func pascalTable(n int) [][]uint64 {
	t := make([][]uint64, n+1)
	for a := 0; a <= n; a++ {
		t[a] = make([]uint64, a+1)
		t[a][0], t[a][a] = 1, 1
		for b := 1; b < a; b++ {
			t[a][b] = t[a-1][b-1] + t[a-1][b]
		}
	}
	return t
}
