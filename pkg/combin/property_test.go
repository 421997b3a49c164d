package combin

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRankInvariants checks the bijection on random universes and ranks.
func TestRankInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rank_of inverts unrank", prop.ForAll(
		func(n int, seed int64) bool {
			u, err := NewUniverse(letters(n))
			if err != nil {
				return false
			}
			r := new(big.Int).Rand(rand.New(rand.NewSource(seed)), u.Space())
			s, err := u.Unrank(r)
			if err != nil {
				return false
			}
			back, err := u.RankOf(s)
			return err == nil && back.Cmp(r) == 0
		},
		gen.IntRange(1, 200),
		gen.Int64(),
	))

	properties.Property("unrank yields strictly increasing positions", prop.ForAll(
		func(n int, seed int64) bool {
			u, _ := NewUniverse(letters(n))
			r := new(big.Int).Rand(rand.New(rand.NewSource(seed)), u.Space())
			s, err := u.Unrank(r)
			if err != nil || len(s) == 0 {
				return false
			}
			for i := 1; i < len(s); i++ {
				if s[i] <= s[i-1] {
					return false
				}
			}
			return s[len(s)-1] < n
		},
		gen.IntRange(1, 200),
		gen.Int64(),
	))

	properties.Property("subset size matches owning group", prop.ForAll(
		func(n int, seed int64) bool {
			u, _ := NewUniverse(letters(n))
			r := new(big.Int).Rand(rand.New(rand.NewSource(seed)), u.Space())
			s, _ := u.Unrank(r)
			k := len(s)
			lo := u.offsets[k]
			hi := u.offsets[k+1]
			return r.Cmp(lo) >= 0 && r.Cmp(hi) < 0
		},
		gen.IntRange(1, 120),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// FuzzUnrankRoundTrip verifies unrank and rank_of stay inverse for arbitrary
// ranks reduced into the rank space.
func FuzzUnrankRoundTrip(f *testing.F) {
	f.Add(uint8(4), uint64(14))
	f.Add(uint8(63), uint64(1<<63))
	f.Add(uint8(1), uint64(0))

	f.Fuzz(func(t *testing.T, n uint8, raw uint64) {
		if n == 0 {
			return
		}
		u, err := NewUniverse(letters(int(n)))
		if err != nil {
			t.Fatalf("NewUniverse: %v", err)
		}
		r := new(big.Int).SetUint64(raw)
		r.Mod(r, u.Space())

		s, err := u.Unrank(r)
		if err != nil {
			t.Fatalf("unrank %s: %v", r, err)
		}
		back, err := u.RankOf(s)
		if err != nil {
			t.Fatalf("rank_of %v: %v", s, err)
		}
		if back.Cmp(r) != 0 {
			t.Fatalf("n=%d: rank_of(unrank(%s)) = %s", n, r, back)
		}
	})
}
