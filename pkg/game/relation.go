// Package game evaluates an attacker/defender matrix game by sampling.
//
// The defender picks a non-empty combination of protective measures, the
// attacker a non-empty combination of techniques. The payoff is the cost
// the defender incurs for every measure that counters a technique in play.
// Both strategy spaces are addressed by rank (see package combin) and are
// never enumerated on the attacker side.
package game

import (
	"errors"
	"fmt"
	"sort"

	"github.com/freeeve/secgame/api/pkg/combin"
)

var (
	ErrUnknownAtom        = errors.New("unknown atom")
	ErrInvalidSampleCount = errors.New("invalid sample count")
	ErrMatrixSealed       = errors.New("payoff matrix is sealed")
)

// Oracle answers the two questions the sampler asks of the threat catalog.
type Oracle interface {
	// Covers reports whether the measure mitigates the technique.
	Covers(techniqueID, measureID string) (bool, error)
	// PriceOf returns the non-negative cost of deploying the measure.
	PriceOf(measureID string) (float64, error)
}

// Asset is a priced, defended resource and the measures it implements.
type Asset struct {
	Name        string          `json:"name" yaml:"name"`
	Price       float64         `json:"price" yaml:"price"`
	Loss        combin.Interval `json:"loss" yaml:"loss"`
	Mitigations []string        `json:"mitigations" yaml:"mitigations"`
}

// Mitigates is one "measure mitigates technique" edge.
type Mitigates struct {
	Measure   string
	Technique string
}

type idSet map[string]struct{}

// Relation is the precomputed, read-only Oracle built once per run.
type Relation struct {
	mitigatedBy map[string]idSet // technique -> measures
	mitigates   map[string]idSet // measure -> techniques
	prices      map[string]float64
}

// NewRelation indexes the mitigation edges and folds asset prices per measure.
// Known techniques are the given ids plus every edge target; known measures
// are every edge source plus every measure an asset lists.
func NewRelation(techniques []string, edges []Mitigates, assets []Asset) *Relation {
	r := &Relation{
		mitigatedBy: make(map[string]idSet, len(techniques)),
		mitigates:   make(map[string]idSet),
		prices:      make(map[string]float64),
	}
	for _, t := range techniques {
		r.technique(t)
	}
	for _, e := range edges {
		r.technique(e.Technique)[e.Measure] = struct{}{}
		r.measure(e.Measure)[e.Technique] = struct{}{}
	}
	for _, a := range assets {
		cost := a.Price + a.Loss.Mid()
		seen := make(idSet, len(a.Mitigations))
		for _, m := range a.Mitigations {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			r.measure(m)
			r.prices[m] += cost
		}
	}
	return r
}

func (r *Relation) technique(id string) idSet {
	s, ok := r.mitigatedBy[id]
	if !ok {
		s = make(idSet)
		r.mitigatedBy[id] = s
	}
	return s
}

func (r *Relation) measure(id string) idSet {
	s, ok := r.mitigates[id]
	if !ok {
		s = make(idSet)
		r.mitigates[id] = s
	}
	return s
}

// Covers implements Oracle.
func (r *Relation) Covers(techniqueID, measureID string) (bool, error) {
	measures, ok := r.mitigatedBy[techniqueID]
	if !ok {
		return false, fmt.Errorf("%w: technique %q", ErrUnknownAtom, techniqueID)
	}
	if _, ok := r.mitigates[measureID]; !ok {
		return false, fmt.Errorf("%w: measure %q", ErrUnknownAtom, measureID)
	}
	_, covered := measures[measureID]
	return covered, nil
}

// PriceOf implements Oracle.
func (r *Relation) PriceOf(measureID string) (float64, error) {
	p, ok := r.prices[measureID]
	if !ok {
		return 0, fmt.Errorf("%w: no asset prices measure %q", ErrUnknownAtom, measureID)
	}
	return p, nil
}

// MitigatedBy returns the sorted measures that counter a technique.
func (r *Relation) MitigatedBy(techniqueID string) []string {
	return sortedIDs(r.mitigatedBy[techniqueID])
}

// Mitigations returns the sorted techniques a measure counters.
func (r *Relation) Mitigations(measureID string) []string {
	return sortedIDs(r.mitigates[measureID])
}

func sortedIDs(s idSet) []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DefenderAtoms builds one atom per distinct measure listed by the assets,
// carrying the summed price and summed loss interval. name may be nil.
func DefenderAtoms(assets []Asset, name func(id string) string) []combin.Atom {
	byID := make(map[string]*combin.Atom)
	var order []string
	for _, a := range assets {
		seen := make(idSet, len(a.Mitigations))
		for _, m := range a.Mitigations {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			atom, ok := byID[m]
			if !ok {
				atom = &combin.Atom{ID: m, Name: m}
				if name != nil {
					atom.Name = name(m)
				}
				byID[m] = atom
				order = append(order, m)
			}
			atom.Price += a.Price
			atom.Loss = atom.Loss.Add(a.Loss)
		}
	}
	out := make([]combin.Atom, len(order))
	for i, id := range order {
		out[i] = *byID[id]
	}
	return out
}
