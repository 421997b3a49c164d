package combin

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"reflect"
	"testing"
)

func letters(n int) []Atom {
	atoms := make([]Atom, n)
	for i := range atoms {
		atoms[i] = Atom{ID: fmt.Sprintf("a%03d", i), Name: fmt.Sprintf("atom %d", i)}
	}
	return atoms
}

func mustUniverse(t testing.TB, n int) *Universe {
	t.Helper()
	u, err := NewUniverse(letters(n))
	if err != nil {
		t.Fatalf("NewUniverse(%d): %v", n, err)
	}
	return u
}

func TestUnrankGroupBoundaries(t *testing.T) {
	u := mustUniverse(t, 4)

	for r := 0; r < 4; r++ {
		s, err := u.UnrankUint64(uint64(r))
		if err != nil {
			t.Fatalf("unrank %d: %v", r, err)
		}
		if !reflect.DeepEqual(s, Strategy{r}) {
			t.Errorf("rank %d = %v, want singleton [%d]", r, s, r)
		}
	}

	last, err := u.UnrankUint64(14)
	if err != nil {
		t.Fatalf("unrank 14: %v", err)
	}
	if !reflect.DeepEqual(last, Strategy{0, 1, 2, 3}) {
		t.Errorf("rank 14 = %v, want full universe", last)
	}

	// First and last pair of group k=2.
	first, _ := u.UnrankUint64(4)
	if !reflect.DeepEqual(first, Strategy{0, 1}) {
		t.Errorf("rank 4 = %v, want [0 1]", first)
	}
	lastPair, _ := u.UnrankUint64(9)
	if !reflect.DeepEqual(lastPair, Strategy{2, 3}) {
		t.Errorf("rank 9 = %v, want [2 3]", lastPair)
	}
}

func TestUnrankCoversAllSubsets(t *testing.T) {
	for n := 1; n <= 10; n++ {
		u := mustUniverse(t, n)
		total := 1<<n - 1
		if got := u.Space().Int64(); got != int64(total) {
			t.Fatalf("n=%d: space %d, want %d", n, got, total)
		}

		seen := make(map[int]bool, total)
		for r := 0; r < total; r++ {
			s, err := u.UnrankUint64(uint64(r))
			if err != nil {
				t.Fatalf("n=%d unrank %d: %v", n, r, err)
			}
			mask := 0
			for _, p := range s {
				mask |= 1 << p
			}
			if seen[mask] {
				t.Fatalf("n=%d: rank %d repeats subset %v", n, r, s)
			}
			seen[mask] = true
		}
		// Every non-empty bitmask of n bits must appear exactly once.
		for mask := 1; mask <= total; mask++ {
			if !seen[mask] {
				t.Fatalf("n=%d: subset mask %b never produced", n, mask)
			}
		}
	}
}

func TestRoundTripSmall(t *testing.T) {
	for n := 1; n <= 12; n++ {
		u := mustUniverse(t, n)
		prevSize := 0
		for r := 0; r < 1<<n-1; r++ {
			s, err := u.UnrankUint64(uint64(r))
			if err != nil {
				t.Fatalf("n=%d unrank %d: %v", n, r, err)
			}
			if len(s) < prevSize {
				t.Fatalf("n=%d rank %d: size %d after size %d, groups must ascend", n, r, len(s), prevSize)
			}
			prevSize = len(s)

			back, err := u.RankOf(s)
			if err != nil {
				t.Fatalf("n=%d rank_of %v: %v", n, s, err)
			}
			if back.Int64() != int64(r) {
				t.Fatalf("n=%d: rank_of(unrank(%d)) = %s", n, r, back)
			}
		}
	}
}

func TestRoundTripLargeUniverse(t *testing.T) {
	u := mustUniverse(t, 600)
	rng := rand.New(rand.NewSource(7))
	space := u.Space()

	ranks := []*big.Int{
		big.NewInt(0),
		big.NewInt(599),
		big.NewInt(600),
		new(big.Int).Sub(space, big.NewInt(1)),
		new(big.Int).Sub(space, big.NewInt(2)),
	}
	for i := 0; i < 50; i++ {
		ranks = append(ranks, new(big.Int).Rand(rng, space))
	}

	for _, r := range ranks {
		s, err := u.Unrank(r)
		if err != nil {
			t.Fatalf("unrank %s: %v", r, err)
		}
		back, err := u.RankOf(s)
		if err != nil {
			t.Fatalf("rank_of: %v", err)
		}
		if back.Cmp(r) != 0 {
			t.Fatalf("rank_of(unrank(%s)) = %s", r, back)
		}
	}

	full, _ := u.Unrank(new(big.Int).Sub(space, big.NewInt(1)))
	if len(full) != 600 {
		t.Errorf("last rank should be the full universe, got %d atoms", len(full))
	}
	single, _ := u.Unrank(big.NewInt(599))
	if !reflect.DeepEqual(single, Strategy{599}) {
		t.Errorf("rank 599 = %v, want [599]", single)
	}
}

// The big-integer walk must agree with the table walk wherever both apply.
func TestBigPathMatchesTablePath(t *testing.T) {
	u := mustUniverse(t, 9)
	for k := 1; k <= 9; k++ {
		size := u.GroupSize(k).Int64()
		for r := int64(0); r < size; r++ {
			small := u.unrankSmall(k, uint64(r))
			wide := u.unrankBig(k, big.NewInt(r))
			if !reflect.DeepEqual(small, wide) {
				t.Fatalf("k=%d r=%d: table %v, big %v", k, r, small, wide)
			}
		}
	}
}

func TestUnrankFixedOutOfRange(t *testing.T) {
	u := mustUniverse(t, 5)
	cases := []struct {
		k    int
		rank int64
	}{
		{0, 0},
		{6, 0},
		{2, 10}, // C(5,2) = 10
		{5, 1},
		{1, -1},
	}
	for _, c := range cases {
		if _, err := u.UnrankFixed(c.k, big.NewInt(c.rank)); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("UnrankFixed(%d, %d): got %v, want ErrOutOfRange", c.k, c.rank, err)
		}
	}
	if s, err := u.UnrankFixed(5, big.NewInt(0)); err != nil || len(s) != 5 {
		t.Errorf("UnrankFixed(5, 0) = %v, %v", s, err)
	}
}

func TestUnrankOutOfRange(t *testing.T) {
	u := mustUniverse(t, 4)
	if _, err := u.UnrankUint64(15); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("rank 15: got %v, want ErrOutOfRange", err)
	}
	if _, err := u.Unrank(big.NewInt(-1)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("rank -1: got %v, want ErrOutOfRange", err)
	}

	large := mustUniverse(t, 70)
	if _, err := large.Unrank(large.Space()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("rank 2^70-1: got %v, want ErrOutOfRange", err)
	}
}

func TestRankOfRejectsInvalidStrategies(t *testing.T) {
	u := mustUniverse(t, 4)
	for _, s := range []Strategy{nil, {}, {1, 1}, {2, 1}, {4}, {-1}} {
		if _, err := u.RankOf(s); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("RankOf(%v): got %v, want ErrOutOfRange", s, err)
		}
	}
}

func TestNewUniverseSortsAndDedupes(t *testing.T) {
	u, err := NewUniverse([]Atom{
		{ID: "m3", Name: "third"},
		{ID: "m1", Name: "first"},
		{ID: "m2", Name: "second"},
		{ID: "m1", Name: "duplicate"},
	})
	if err != nil {
		t.Fatalf("NewUniverse: %v", err)
	}
	if u.Len() != 3 {
		t.Fatalf("Len = %d, want 3", u.Len())
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if u.Atom(i).ID != want {
			t.Errorf("atom %d = %s, want %s", i, u.Atom(i).ID, want)
		}
	}
	if u.Atom(0).Name != "first" {
		t.Errorf("duplicate should keep first occurrence, got %q", u.Atom(0).Name)
	}
	if i, ok := u.Index("m2"); !ok || i != 1 {
		t.Errorf("Index(m2) = %d, %v", i, ok)
	}
}

func TestNewUniverseEmpty(t *testing.T) {
	if _, err := NewUniverse(nil); !errors.Is(err, ErrEmptyUniverse) {
		t.Errorf("got %v, want ErrEmptyUniverse", err)
	}
}

func TestMaterializeRank(t *testing.T) {
	u := mustUniverse(t, 4)
	atoms, err := u.MaterializeRank(big.NewInt(14))
	if err != nil {
		t.Fatalf("MaterializeRank: %v", err)
	}
	if len(atoms) != 4 || atoms[0].ID != "a000" || atoms[3].ID != "a003" {
		t.Errorf("got %v", atoms)
	}
	if _, err := u.Materialize(Strategy{3, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("unordered strategy: got %v, want ErrOutOfRange", err)
	}
}

func TestIntervalMid(t *testing.T) {
	iv := Interval{Lo: 10, Hi: 30}.Add(Interval{Lo: 0, Hi: 20})
	if iv.Mid() != 30 {
		t.Errorf("Mid = %v, want 30", iv.Mid())
	}
}

func BenchmarkUnrankLarge(b *testing.B) {
	u := mustUniverse(b, 500)
	rng := rand.New(rand.NewSource(1))
	space := u.Space()
	r := new(big.Int)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Rand(rng, space)
		if _, err := u.Unrank(r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUnrankSmall(b *testing.B) {
	u := mustUniverse(b, 20)
	rng := rand.New(rand.NewSource(1))
	space := u.Space().Uint64()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := u.UnrankUint64(rng.Uint64() % space); err != nil {
			b.Fatal(err)
		}
	}
}
