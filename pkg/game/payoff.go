package game

import (
	"fmt"
	"math/big"

	"github.com/freeeve/secgame/api/pkg/combin"
)

// Payoff is the oracle flattened onto universe positions. Building it asks
// the oracle every question up front, so sampling itself cannot fail on a
// lookup.
type Payoff struct {
	defenders *combin.Universe
	attackers *combin.Universe
	cover     [][]bool // cover[d][a]: defender atom d mitigates attacker atom a
	price     []float64
}

// NewPayoff queries o for every (measure, technique) pair and measure price.
func NewPayoff(defenders, attackers *combin.Universe, o Oracle) (*Payoff, error) {
	p := &Payoff{
		defenders: defenders,
		attackers: attackers,
		cover:     make([][]bool, defenders.Len()),
		price:     make([]float64, defenders.Len()),
	}
	for d := 0; d < defenders.Len(); d++ {
		measure := defenders.Atom(d).ID
		price, err := o.PriceOf(measure)
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", measure, err)
		}
		p.price[d] = price

		p.cover[d] = make([]bool, attackers.Len())
		for a := 0; a < attackers.Len(); a++ {
			covered, err := o.Covers(attackers.Atom(a).ID, measure)
			if err != nil {
				return nil, fmt.Errorf("covers %s/%s: %w", attackers.Atom(a).ID, measure, err)
			}
			p.cover[d][a] = covered
		}
	}
	return p, nil
}

// Cost sums price(m) once per (m, a) pair with m in def covering a in atk.
// Redundant measures on the same technique each pay.
func (p *Payoff) Cost(def, atk combin.Strategy) float64 {
	var total float64
	for _, d := range def {
		row := p.cover[d]
		hits := 0
		for _, a := range atk {
			if row[a] {
				hits++
			}
		}
		total += float64(hits) * p.price[d]
	}
	return total
}

// Evaluate is Cost addressed by rank.
func (p *Payoff) Evaluate(defRank uint64, atkRank *big.Int) (float64, error) {
	def, err := p.defenders.UnrankUint64(defRank)
	if err != nil {
		return 0, fmt.Errorf("defender: %w", err)
	}
	atk, err := p.attackers.Unrank(atkRank)
	if err != nil {
		return 0, fmt.Errorf("attacker: %w", err)
	}
	return p.Cost(def, atk), nil
}
