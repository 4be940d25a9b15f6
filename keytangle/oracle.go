package keytangle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds the number of concurrent oracle calls made by
// VerifySession.
var DefaultParallelism = 8

// An Oracle stands in for the quantum channel. Verify reports whether Bob's
// round, applied as a reversal of Alice's entanglement preparation, measures
// all-zero on every qubit slot.
//
// Verify must behave as a pure function of index, alice and bob. It may be
// called concurrently. The context and error exist for backends with real
// latency; simulated oracles may ignore both.
type Oracle interface {
	Verify(ctx context.Context, index int, alice, bob Round) (bool, error)
}

// OracleFunc adapts an ordinary function to the Oracle interface.
type OracleFunc func(ctx context.Context, index int, alice, bob Round) (bool, error)

// Verify implements the Oracle interface.
func (f OracleFunc) Verify(ctx context.Context, index int, alice, bob Round) (bool, error) {
	return f(ctx, index, alice, bob)
}

// A Verifier runs the oracle over an entire session and returns the ascending
// indices of the consistent rounds.
type Verifier interface {
	VerifySession(ctx context.Context, alice, bob Material) ([]int, error)
}

// OracleVerifier is a Verifier that fans each round out to a local Oracle.
type OracleVerifier struct {
	Oracle Oracle
	// Parallelism bounds concurrent Verify calls. Defaults to
	// DefaultParallelism.
	Parallelism int
}

// VerifySession implements the Verifier interface.
func (v OracleVerifier) VerifySession(ctx context.Context, alice, bob Material) ([]int, error) {
	return VerifySession(ctx, v.Oracle, alice, bob, v.Parallelism)
}

// VerifySession calls o once per round, at most parallelism calls at a time,
// and returns the indices for which it reported consistency in ascending
// order. The first oracle error cancels outstanding calls and is returned.
func VerifySession(ctx context.Context, o Oracle, alice, bob Material, parallelism int) ([]int, error) {
	n := alice.Len()
	if bob.Len() != n {
		return nil, fmt.Errorf("verifying %d alice rounds against %d bob rounds", n, bob.Len())
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	consistent := make([]bool, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < n; i++ {
		i := i
		a, b := alice.Round(i), bob.Round(i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := o.Verify(gctx, i, a, b)
			if err != nil {
				return fmt.Errorf("verifying round %d: %w", i, err)
			}
			consistent[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	indices := make([]int, 0, n)
	for i, ok := range consistent {
		if ok {
			indices = append(indices, i)
		}
	}
	return indices, nil
}
