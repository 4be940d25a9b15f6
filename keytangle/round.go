package keytangle

import (
	"fmt"
)

// Qubits is the number of qubit slots entangled per round.
const Qubits = 4

// A Pairing partitions the four qubit slots into two disjoint, ordered pairs.
type Pairing uint8

const (
	Pairing01x23 Pairing = iota
	Pairing02x13
	Pairing03x12

	// NumPairings is the number of valid pairings.
	NumPairings = 3
)

var pairingSlots = [NumPairings][2][2]int{
	Pairing01x23: {{0, 1}, {2, 3}},
	Pairing02x13: {{0, 2}, {1, 3}},
	Pairing03x12: {{0, 3}, {1, 2}},
}

// PairingFromPairs returns the Pairing whose pairs are exactly pairs, in
// order, or ErrInvalidPairing.
func PairingFromPairs(pairs [2][2]int) (Pairing, error) {
	for p, slots := range pairingSlots {
		if slots == pairs {
			return Pairing(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidPairing, pairs)
}

// Valid reports whether p is one of the three pairings.
func (p Pairing) Valid() bool {
	return p < NumPairings
}

// Pairs returns the two qubit-slot pairs of p. It panics if p is not valid;
// material decoded from untrusted input must be validated first.
func (p Pairing) Pairs() [2][2]int {
	if !p.Valid() {
		panic(fmt.Sprintf("keytangle: pairing %d out of range", uint8(p)))
	}
	return pairingSlots[p]
}

func (p Pairing) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Pairing(%d)", uint8(p))
	}
	s := pairingSlots[p]
	return fmt.Sprintf("{%v %v}", s[0], s[1])
}

// A BellState is one of the four maximally entangled two-qubit states.
type BellState uint8

const (
	PhiPlus BellState = iota
	PhiMinus
	PsiPlus
	PsiMinus
)

func (b BellState) String() string {
	switch b {
	case PhiPlus:
		return "phi+"
	case PhiMinus:
		return "phi-"
	case PsiPlus:
		return "psi+"
	case PsiMinus:
		return "psi-"
	}
	return fmt.Sprintf("BellState(%d)", uint8(b))
}

// A Grouping assigns an ordered pair of Bell states to a Pairing's two pairs.
// Its value doubles as the two key bits a surviving round contributes.
type Grouping uint8

const (
	GroupingPhiPlusPhiMinus Grouping = iota
	GroupingPhiMinusPhiPlus
	GroupingPsiPlusPsiMinus
	GroupingPsiMinusPsiPlus

	// NumGroupings is the number of valid groupings.
	NumGroupings = 4
)

var groupingStates = [NumGroupings][2]BellState{
	GroupingPhiPlusPhiMinus: {PhiPlus, PhiMinus},
	GroupingPhiMinusPhiPlus: {PhiMinus, PhiPlus},
	GroupingPsiPlusPsiMinus: {PsiPlus, PsiMinus},
	GroupingPsiMinusPsiPlus: {PsiMinus, PsiPlus},
}

var groupingCodes = [NumGroupings]string{
	GroupingPhiPlusPhiMinus: "00",
	GroupingPhiMinusPhiPlus: "01",
	GroupingPsiPlusPsiMinus: "10",
	GroupingPsiMinusPsiPlus: "11",
}

// Valid reports whether g is one of the four groupings.
func (g Grouping) Valid() bool {
	return g < NumGroupings
}

// States returns the Bell states g prepares on the first and second pair. It
// panics if g is not valid.
func (g Grouping) States() [2]BellState {
	if !g.Valid() {
		panic(fmt.Sprintf("keytangle: grouping %d out of range", uint8(g)))
	}
	return groupingStates[g]
}

func (g Grouping) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Grouping(%d)", uint8(g))
	}
	return groupingCodes[g]
}

// A Round is one party's secret choice for a single round index.
type Round struct {
	Pairing  Pairing
	Grouping Grouping
}

// Validate returns ErrInvalidPairing or ErrInvalidGrouping if either choice is
// out of range.
func (r Round) Validate() error {
	if !r.Pairing.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPairing, uint8(r.Pairing))
	}
	if !r.Grouping.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidGrouping, uint8(r.Grouping))
	}
	return nil
}

// Material is one party's ordered sequence of rounds. Pairings[i] and
// Groupings[i] belong to the same round.
type Material struct {
	Pairings  []Pairing
	Groupings []Grouping
}

// Len returns the number of rounds in m.
func (m Material) Len() int {
	return len(m.Pairings)
}

// Round returns the i-th round of m.
func (m Material) Round(i int) Round {
	return Round{Pairing: m.Pairings[i], Grouping: m.Groupings[i]}
}

// Validate checks that m is index-aligned and that every round is well formed.
func (m Material) Validate() error {
	if len(m.Pairings) != len(m.Groupings) {
		return fmt.Errorf("material has %d pairings but %d groupings", len(m.Pairings), len(m.Groupings))
	}
	for i := range m.Pairings {
		if err := m.Round(i).Validate(); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
	}
	return nil
}

func newMaterial(capacity int) Material {
	return Material{
		Pairings:  make([]Pairing, 0, capacity),
		Groupings: make([]Grouping, 0, capacity),
	}
}

func (m *Material) append(r Round) {
	m.Pairings = append(m.Pairings, r.Pairing)
	m.Groupings = append(m.Groupings, r.Grouping)
}

// remove deletes round i, preserving the order of the rounds after it.
func (m *Material) remove(i int) {
	m.Pairings = append(m.Pairings[:i], m.Pairings[i+1:]...)
	m.Groupings = append(m.Groupings[:i], m.Groupings[i+1:]...)
}

func (m Material) clone() Material {
	c := newMaterial(m.Len())
	c.Pairings = append(c.Pairings, m.Pairings...)
	c.Groupings = append(c.Groupings, m.Groupings...)
	return c
}
