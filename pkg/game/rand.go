package game

import (
	"math/big"
	"math/rand"
	"time"
)

// resolveSeed returns seed, or a time-based seed when seed is 0.
// The resolved seed is recorded on the matrix so any run can be replayed.
func resolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	s := time.Now().UnixNano()
	if s == 0 {
		s = 1
	}
	return s
}

// columnRng returns the source for one classic column. Seeding per column
// keeps results independent of how columns are scheduled across workers.
func columnRng(seed int64, arm int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(arm)))
}

// attackerDraw samples attacker ranks uniformly from [0, space).
type attackerDraw struct {
	rng   *rand.Rand
	space *big.Int
	r     *big.Int
}

func newAttackerDraw(rng *rand.Rand, space *big.Int) *attackerDraw {
	return &attackerDraw{rng: rng, space: space, r: new(big.Int)}
}

// next returns a rank that is only valid until the following call.
func (d *attackerDraw) next() *big.Int {
	return d.r.Rand(d.rng, d.space)
}
