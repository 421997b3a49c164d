package criterion

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/freeeve/secgame/api/pkg/game"
)

// matrix builds a sealed matrix from columns; nil columns stay unobserved.
func matrix(t *testing.T, cols ...[]float64) *game.Matrix {
	t.Helper()
	trials := 0
	for _, c := range cols {
		trials = max(trials, len(c))
	}
	m := game.NewMatrix(trials, len(cols))
	for j, c := range cols {
		for i, v := range c {
			if err := m.Record(game.Observation{Trial: i, Arm: j, Cost: v}); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
	}
	m.Seal()
	return m
}

func TestRulesOnTwoArmExample(t *testing.T) {
	m := matrix(t, []float64{10, 10, 10}, []float64{0, 0, 30})

	cases := []struct {
		rule  Rule
		arm   int
		value float64
	}{
		{Wald{}, 0, 10},
		{Laplace{}, 0, 10},
		{Savage{}, 0, 0},
		{Hurwicz{Alpha: 0.5}, 0, 10},
		{Hurwicz{Alpha: 0}, 1, 0},
		{Optimism{}, 1, 0},
	}
	for _, c := range cases {
		res, err := Evaluate(m, c.rule)
		if err != nil {
			t.Fatalf("%s: %v", c.rule.Name(), err)
		}
		if res.Arm != c.arm || res.Value != c.value {
			t.Errorf("%s: picked arm %d value %v, want arm %d value %v", c.rule.Name(), res.Arm, res.Value, c.arm, c.value)
		}
		if res.Rule != c.rule.Name() {
			t.Errorf("rule name %q", res.Rule)
		}
	}
}

func TestRegrets(t *testing.T) {
	m := matrix(t, []float64{10, 10, 10}, []float64{0, 0, 30}, nil)
	got := Regrets(m)
	want := [][]float64{{0, 0, 0}, {0, 0, 30}, {}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Regrets = %v, want %v", got, want)
	}

	res, err := Evaluate(m, Savage{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Values[0] != 0 || res.Values[1] != 30 {
		t.Errorf("savage values %v", res.Values)
	}
}

func TestUnobservedArmIsMasked(t *testing.T) {
	// Arm 1 was never sampled; an unobserved zero must not win.
	m := matrix(t, []float64{5, 5}, nil, []float64{7, 0})

	for _, rule := range []Rule{Wald{}, Laplace{}, Savage{}, Hurwicz{Alpha: 0.3}, Optimism{}} {
		res, err := Evaluate(m, rule)
		if err != nil {
			t.Fatalf("%s: %v", rule.Name(), err)
		}
		if res.Arm == 1 {
			t.Errorf("%s selected the unobserved arm", rule.Name())
		}
		if res.Observed[1] || !math.IsNaN(res.Values[1]) {
			t.Errorf("%s: arm 1 observed=%v value=%v", rule.Name(), res.Observed[1], res.Values[1])
		}
		if len(res.Top) != 2 {
			t.Fatalf("%s: top = %v", rule.Name(), res.Top)
		}
		for _, r := range res.Top {
			if r.Arm == 1 {
				t.Errorf("%s: unobserved arm in top", rule.Name())
			}
		}
	}
}

func TestObservedZeroCostCounts(t *testing.T) {
	m := matrix(t, []float64{1, 1}, []float64{0, 0})
	res, err := Evaluate(m, Wald{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Arm != 1 || res.Value != 0 {
		t.Errorf("got arm %d value %v, want arm 1 value 0", res.Arm, res.Value)
	}
}

func TestTopThreeTies(t *testing.T) {
	m := matrix(t, []float64{3}, []float64{1}, []float64{1}, []float64{2}, []float64{1})
	res, err := Evaluate(m, Laplace{})
	if err != nil {
		t.Fatal(err)
	}
	want := []Ranked{{Arm: 1, Value: 1}, {Arm: 2, Value: 1}, {Arm: 4, Value: 1}}
	if !reflect.DeepEqual(res.Top, want) {
		t.Errorf("top = %v, want %v", res.Top, want)
	}
	if res.Arm != 1 {
		t.Errorf("winner = %d, want 1", res.Arm)
	}
}

func TestTopK(t *testing.T) {
	values := []float64{9, 4, 7, 1, 4, 8}
	observed := []bool{true, true, true, true, true, false}

	if got := TopK(values, observed, 0); got != nil {
		t.Errorf("k=0: %v", got)
	}
	got := TopK(values, observed, 4)
	want := []Ranked{{3, 1}, {1, 4}, {4, 4}, {2, 7}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("k=4: %v, want %v", got, want)
	}
	if got := TopK(values, observed, 10); len(got) != 5 {
		t.Errorf("k=10 kept %d arms, want the 5 observed", len(got))
	}
}

func TestEvaluateErrors(t *testing.T) {
	open := game.NewMatrix(2, 2)
	if err := open.Record(game.Observation{Trial: 0, Arm: 0, Cost: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := Evaluate(open, Wald{}); !errors.Is(err, ErrIncompleteMatrix) {
		t.Errorf("unsealed: got %v", err)
	}

	empty := game.NewMatrix(2, 2)
	empty.Seal()
	if _, err := Evaluate(empty, Wald{}); !errors.Is(err, ErrNoObservations) {
		t.Errorf("empty: got %v", err)
	}

	m := matrix(t, []float64{1})
	if _, err := Evaluate(m, Hurwicz{Alpha: 1.5}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("alpha 1.5: got %v", err)
	}
	if _, err := Evaluate(m, nil); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("nil rule: got %v", err)
	}
}

func TestParseRule(t *testing.T) {
	cases := map[string]Rule{
		"wald":     Wald{},
		" Laplace": Laplace{},
		"SAVAGE":   Savage{},
		"regret":   Savage{},
		"bayes":    Laplace{},
		"optimism": Optimism{},
		"hurwicz":  Hurwicz{Alpha: 0.25},
	}
	for name, want := range cases {
		got, err := ParseRule(name, 0.25)
		if err != nil {
			t.Errorf("%q: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("%q = %#v, want %#v", name, got, want)
		}
	}
	if _, err := ParseRule("median", 0); !errors.Is(err, ErrUnknownRule) {
		t.Errorf("median: got %v", err)
	}
	if _, err := ParseRule("hurwicz", -0.1); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("hurwicz -0.1: got %v", err)
	}
}

func TestConvergenceTrace(t *testing.T) {
	m := matrix(t, []float64{2, 4, 6}, []float64{9})
	res, err := Evaluate(m, Laplace{})
	if err != nil {
		t.Fatal(err)
	}

	type point struct {
		n    int
		mean float64
	}
	collect := func() []point {
		var pts []point
		for n, mean := range res.Convergence() {
			pts = append(pts, point{n, mean})
		}
		return pts
	}
	want := []point{{1, 2}, {2, 3}, {3, 4}}
	if got := collect(); !reflect.DeepEqual(got, want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	if got := collect(); !reflect.DeepEqual(got, want) {
		t.Errorf("second pass = %v, want %v", got, want)
	}

	seen := 0
	for range res.Convergence() {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("early break yielded %d points", seen)
	}

	wald, err := Evaluate(m, Wald{})
	if err != nil {
		t.Fatal(err)
	}
	for n := range wald.Convergence() {
		t.Errorf("wald trace should be empty, got point %d", n)
	}
}

func TestEvaluateSampledMatrix(t *testing.T) {
	m := game.NewMatrix(4, 3)
	for trial := 0; trial < 4; trial++ {
		for arm := 0; arm < 3; arm++ {
			if err := m.Record(game.Observation{Trial: trial, Arm: arm, Cost: float64((arm + 1) * (trial + 1))}); err != nil {
				t.Fatal(err)
			}
		}
	}
	m.Seal()
	res, err := Evaluate(m, Laplace{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Arm != 0 || res.Value != 2.5 {
		t.Errorf("arm %d value %v, want arm 0 value 2.5", res.Arm, res.Value)
	}
	if len(res.Top) != 3 || res.Top[2].Arm != 2 {
		t.Errorf("top = %v", res.Top)
	}
}
