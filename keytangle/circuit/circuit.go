// Package circuit provides quantum channel oracles for keytangle sessions: an
// idealized one, a four-qubit state-vector simulator, and a wrapper that
// forges results the way a tampering party would.
package circuit

import (
	"context"
	"math/rand"
	"sync"

	"github.com/alan-christopher/keytanglement/keytangle"
)

// Ideal is an oracle implementing the exact consistency contract: a round is
// consistent iff both parties chose the same pairing and the same grouping.
type Ideal struct{}

// Verify implements the keytangle.Oracle interface.
func (Ideal) Verify(_ context.Context, _ int, alice, bob keytangle.Round) (bool, error) {
	if err := alice.Validate(); err != nil {
		return false, err
	}
	if err := bob.Validate(); err != nil {
		return false, err
	}
	return alice == bob, nil
}

// A Forger wraps an oracle and, with probability Rate, reports an inconsistent
// round as consistent. It models a party tampering with the oracle's results
// so that mismatched rounds leak into the sifted material.
type Forger struct {
	Oracle keytangle.Oracle
	Rate   float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewForger returns a Forger around o drawing its decisions from r.
func NewForger(o keytangle.Oracle, rate float64, r *rand.Rand) *Forger {
	return &Forger{Oracle: o, Rate: rate, rand: r}
}

// Verify implements the keytangle.Oracle interface.
func (f *Forger) Verify(ctx context.Context, index int, alice, bob keytangle.Round) (bool, error) {
	ok, err := f.Oracle.Verify(ctx, index, alice, bob)
	if err != nil || ok {
		return ok, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rand.Float64() < f.Rate, nil
}
