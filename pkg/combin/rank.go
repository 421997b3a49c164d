package combin

import (
	"fmt"
	"math/big"
	"sort"
)

var bigOne = big.NewInt(1)

// UnrankFixed returns the size-k subset with the given rank inside group k.
func (u *Universe) UnrankFixed(k int, rank *big.Int) (Strategy, error) {
	n := len(u.atoms)
	if k <= 0 || k > n {
		return nil, fmt.Errorf("%w: k=%d for n=%d", ErrOutOfRange, k, n)
	}
	if rank.Sign() < 0 || rank.Cmp(u.row[k]) >= 0 {
		return nil, fmt.Errorf("%w: rank %s >= C(%d,%d)", ErrOutOfRange, rank, n, k)
	}
	if u.pascal != nil {
		return u.unrankSmall(k, rank.Uint64()), nil
	}
	return u.unrankBig(k, rank), nil
}

// Unrank returns the non-empty subset with the given global rank.
func (u *Universe) Unrank(rank *big.Int) (Strategy, error) {
	if rank.Sign() < 0 || rank.Cmp(u.space) >= 0 {
		return nil, fmt.Errorf("%w: rank %s >= %s", ErrOutOfRange, rank, u.space)
	}
	if u.pascal != nil {
		return u.UnrankUint64(rank.Uint64())
	}
	n := len(u.atoms)
	// Smallest k whose group ends past rank.
	k := sort.Search(n, func(i int) bool { return u.offsets[i+2].Cmp(rank) > 0 }) + 1
	local := new(big.Int).Sub(rank, u.offsets[k])
	return u.unrankBig(k, local), nil
}

// UnrankUint64 is Unrank for ranks that fit a uint64. It avoids big.Int
// allocation when the universe has at most 62 atoms.
func (u *Universe) UnrankUint64(rank uint64) (Strategy, error) {
	if u.pascal == nil {
		return u.Unrank(new(big.Int).SetUint64(rank))
	}
	n := len(u.atoms)
	if rank >= u.smallOffsets[n+1] {
		return nil, fmt.Errorf("%w: rank %d >= %d", ErrOutOfRange, rank, u.smallOffsets[n+1])
	}
	k := sort.Search(n, func(i int) bool { return u.smallOffsets[i+2] > rank }) + 1
	return u.unrankSmall(k, rank-u.smallOffsets[k]), nil
}

// RankOf is the inverse of Unrank.
func (u *Universe) RankOf(s Strategy) (*big.Int, error) {
	if err := u.check(s); err != nil {
		return nil, err
	}
	n, k := len(u.atoms), len(s)

	// x = Σ C(n-1-p_i, k-i); local rank = C(n,k) - 1 - x.
	x := new(big.Int)
	if u.pascal != nil {
		var sx uint64
		for i, p := range s {
			sx += u.binom(n-1-p, k-i)
		}
		x.SetUint64(sx)
	} else {
		c := new(big.Int)
		for i, p := range s {
			x.Add(x, c.Binomial(int64(n-1-p), int64(k-i)))
		}
	}
	rank := new(big.Int).Sub(u.row[k], bigOne)
	rank.Sub(rank, x)
	return rank.Add(rank, u.offsets[k]), nil
}

// binom reads C(a,b) from the uint64 table, zero when b > a.
func (u *Universe) binom(a, b int) uint64 {
	if b > a || a < 0 {
		return 0
	}
	return u.pascal[a][b]
}

// unrankSmall walks the combinatorial number system with table lookups.
func (u *Universe) unrankSmall(k int, rank uint64) Strategy {
	n := len(u.atoms)
	s := make(Strategy, 0, k)
	x := u.pascal[n][k] - 1 - rank
	a, b := n, k
	for i := 0; i < k; i++ {
		a--
		for u.binom(a, b) > x {
			a--
		}
		s = append(s, n-1-a)
		x -= u.binom(a, b)
		b--
	}
	return s
}

// unrankBig is unrankSmall with c = C(a,b) carried incrementally, so each
// cursor step costs one small multiply and divide instead of a fresh binomial.
func (u *Universe) unrankBig(k int, rank *big.Int) Strategy {
	n := len(u.atoms)
	s := make(Strategy, 0, k)

	x := new(big.Int).Sub(u.row[k], bigOne)
	x.Sub(x, rank)
	c := new(big.Int).Set(u.row[k])
	m := new(big.Int)
	a, b := n, k

	// down moves the cursor: C(a-1,b) = C(a,b)(a-b)/a.
	down := func() {
		if a == 0 || c.Sign() == 0 {
			c.SetInt64(0)
		} else {
			c.Mul(c, m.SetInt64(int64(a-b)))
			c.Quo(c, m.SetInt64(int64(a)))
		}
		a--
	}

	for i := 0; i < k; i++ {
		down()
		for c.Cmp(x) > 0 {
			down()
		}
		s = append(s, n-1-a)
		x.Sub(x, c)

		// C(a,b-1) = C(a,b)·b/(a-b+1). Once C(a,b) hits zero the cursor sits
		// at a = b-1, where C(a,b-1) = 1.
		switch {
		case c.Sign() != 0:
			c.Mul(c, m.SetInt64(int64(b)))
			c.Quo(c, m.SetInt64(int64(a-b+1)))
		case a == b-1:
			c.SetInt64(1)
		}
		b--
	}
	return s
}
