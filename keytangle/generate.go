package keytangle

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// GenerateMaterial draws n uniformly random pairings, then n uniformly random
// groupings, using r. n == 0 yields empty material.
func GenerateMaterial(r *rand.Rand, n int) (Material, error) {
	if n < 0 {
		return Material{}, fmt.Errorf("generating material for %d rounds", n)
	}
	m := Material{
		Pairings:  make([]Pairing, n),
		Groupings: make([]Grouping, n),
	}
	for i := range m.Pairings {
		m.Pairings[i] = Pairing(r.Intn(NumPairings))
	}
	for i := range m.Groupings {
		m.Groupings[i] = Grouping(r.Intn(NumGroupings))
	}
	return m, nil
}

// EntropyRand returns a *rand.Rand that draws every value straight from the
// operating system's entropy pool. Results are not reproducible across runs.
func EntropyRand() *rand.Rand {
	return rand.New(entropySource{})
}

type entropySource struct{}

func (entropySource) Uint64() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("keytangle: reading system entropy: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}

func (s entropySource) Int63() int64 {
	return int64(s.Uint64() >> 1)
}

func (entropySource) Seed(int64) {}
