package keytangle

import (
	"fmt"
	"math/rand"
)

// Detect sacrifices k randomly chosen sifted rounds to check for tampering.
//
// Each draw picks a uniform index into the rounds that remain, compares both
// parties' choices there, and removes the round from both sequences if they
// agree. Removal happens before the next draw, so the population shrinks as
// it is sampled. The first disagreement fails with ErrAttackerDetected and no
// material is returned. At least one round must be left over for the key, so
// k >= alice.Len() fails with ErrInsufficientMaterial before anything is
// drawn.
//
// alice and bob are not modified.
func Detect(r *rand.Rand, alice, bob Material, k int) (aliceRemaining, bobRemaining Material, err error) {
	if k <= 0 {
		return Material{}, Material{}, fmt.Errorf("checking %d rounds: check count must be positive", k)
	}
	if alice.Len() != bob.Len() {
		return Material{}, Material{}, fmt.Errorf("checking %d alice rounds against %d bob rounds", alice.Len(), bob.Len())
	}
	if k >= alice.Len() {
		return Material{}, Material{}, fmt.Errorf("%w: %d check rounds requested from %d sifted rounds", ErrInsufficientMaterial, k, alice.Len())
	}
	aliceRemaining, bobRemaining = alice.clone(), bob.clone()
	for j := 0; j < k; j++ {
		i := r.Intn(aliceRemaining.Len())
		if aliceRemaining.Round(i) != bobRemaining.Round(i) {
			return Material{}, Material{}, fmt.Errorf("%w: check %d of %d disagreed", ErrAttackerDetected, j+1, k)
		}
		aliceRemaining.remove(i)
		bobRemaining.remove(i)
	}
	return aliceRemaining, bobRemaining, nil
}
