package circuit

import (
	"context"
	"math"
	"sync"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const dim = 1 << keytangle.Qubits

// gates is built on first use and shared by every Simulator.
var gates = sync.OnceValue(newGateSet)

// DefaultTolerance is how far from certainty the all-zero outcome may be when
// a Simulator inspects probabilities exactly.
var DefaultTolerance = 1e-9

// A Simulator is an oracle that runs each round through a state-vector
// simulation of the four qubit slots. Alice's pairing and grouping select the
// Bell-pair preparation circuits, Bob's select the circuits that undo them, and
// the round is consistent iff every qubit then measures zero. The zero value
// inspects probabilities exactly and logs to the logrus standard logger.
//
// Qubit slot q is bit q of a basis-state index. All gates used (H, X, Z, CX)
// are real, so amplitudes are kept as float64s.
type Simulator struct {
	// Shots is the number of measurements sampled per round, as a hardware
	// backend would report a histogram. The round passes iff every shot reads
	// all zeros. Zero means the outcome distribution is inspected exactly.
	Shots int

	// Tolerance is used when Shots is zero. Defaults to DefaultTolerance.
	Tolerance float64

	// Logger receives a trace line per simulated round. Defaults to the
	// logrus standard logger.
	Logger logrus.FieldLogger
}

// NewSimulator returns a Simulator taking the given number of shots per round.
func NewSimulator(shots int) *Simulator {
	return &Simulator{
		Shots:     shots,
		Tolerance: DefaultTolerance,
		Logger:    logrus.StandardLogger(),
	}
}

// Verify implements the keytangle.Oracle interface.
func (s *Simulator) Verify(_ context.Context, index int, alice, bob keytangle.Round) (bool, error) {
	if err := alice.Validate(); err != nil {
		return false, err
	}
	if err := bob.Validate(); err != nil {
		return false, err
	}
	r := newRegister()
	aPairs, aStates := alice.Pairing.Pairs(), alice.Grouping.States()
	for i, st := range aStates {
		s.entangle(r, st, aPairs[i][0], aPairs[i][1])
	}
	bPairs, bStates := bob.Pairing.Pairs(), bob.Grouping.States()
	for i, st := range bStates {
		s.disentangle(r, st, bPairs[i][0], bPairs[i][1])
	}

	probs := r.probabilities()
	consistent := s.allZero(probs)
	log := s.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"round":      index,
		"p_zero":     probs[0],
		"consistent": consistent,
	}).Trace("Simulated round")
	return consistent, nil
}

func (s *Simulator) allZero(probs []float64) bool {
	if s.Shots <= 0 {
		tol := s.Tolerance
		if tol == 0 {
			tol = DefaultTolerance
		}
		return probs[0] >= 1-tol
	}
	outcomes := distuv.NewCategorical(probs, nil)
	for i := 0; i < s.Shots; i++ {
		if outcomes.Rand() != 0 {
			return false
		}
	}
	return true
}

// entangle prepares slots b0 and b1, both initially zero, in state st.
func (s *Simulator) entangle(r *register, st keytangle.BellState, b0, b1 int) {
	g := gates()
	switch st {
	case keytangle.PhiPlus:
		r.apply(g.h[b0], g.cx[b0][b1])
	case keytangle.PhiMinus:
		r.apply(g.x[b0], g.h[b0], g.cx[b0][b1])
	case keytangle.PsiPlus:
		r.apply(g.h[b0], g.x[b1], g.cx[b0][b1])
	case keytangle.PsiMinus:
		r.apply(g.h[b0], g.x[b1], g.z[b0], g.z[b1], g.cx[b0][b1])
	}
}

// disentangle maps state st on slots b0 and b1 back to zero, up to phase.
func (s *Simulator) disentangle(r *register, st keytangle.BellState, b0, b1 int) {
	g := gates()
	switch st {
	case keytangle.PhiPlus:
		r.apply(g.cx[b0][b1], g.h[b0])
	case keytangle.PhiMinus:
		r.apply(g.cx[b0][b1], g.h[b0], g.x[b0])
	case keytangle.PsiPlus:
		r.apply(g.cx[b0][b1], g.x[b1], g.h[b0])
	case keytangle.PsiMinus:
		r.apply(g.cx[b0][b1], g.z[b1], g.z[b0], g.x[b1], g.h[b0])
	}
}

// A register holds the amplitudes of the four-qubit state.
type register struct {
	state *mat.VecDense
}

func newRegister() *register {
	v := mat.NewVecDense(dim, nil)
	v.SetVec(0, 1)
	return &register{state: v}
}

// apply applies gates in order.
func (r *register) apply(ops ...mat.Matrix) {
	for _, g := range ops {
		next := mat.NewVecDense(dim, nil)
		next.MulVec(g, r.state)
		r.state = next
	}
}

func (r *register) probabilities() []float64 {
	p := make([]float64, dim)
	for i := range p {
		a := r.state.AtVec(i)
		p[i] = a * a
	}
	return p
}

// A gateSet holds every single- and two-qubit gate lifted to the full
// register. It is read-only once built.
type gateSet struct {
	h, x, z [keytangle.Qubits]*mat.Dense
	cx      [keytangle.Qubits][keytangle.Qubits]*mat.Dense
}

func newGateSet() *gateSet {
	h := mat.NewDense(2, 2, []float64{1, 1, 1, -1})
	h.Scale(1/math.Sqrt2, h)
	x := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	z := mat.NewDense(2, 2, []float64{1, 0, 0, -1})

	g := new(gateSet)
	for q := 0; q < keytangle.Qubits; q++ {
		g.h[q] = lift(h, q)
		g.x[q] = lift(x, q)
		g.z[q] = lift(z, q)
		for t := 0; t < keytangle.Qubits; t++ {
			if t != q {
				g.cx[q][t] = controlledNot(q, t)
			}
		}
	}
	return g
}

// lift returns the full-register operator applying the 2x2 gate to qubit q.
func lift(gate mat.Matrix, q int) *mat.Dense {
	var upper, full mat.Dense
	upper.Kronecker(identity(1<<(keytangle.Qubits-1-q)), gate)
	full.Kronecker(&upper, identity(1<<q))
	return &full
}

// controlledNot returns the permutation flipping target wherever control is
// set.
func controlledNot(control, target int) *mat.Dense {
	m := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		j := i
		if i>>control&1 == 1 {
			j ^= 1 << target
		}
		m.Set(j, i, 1)
	}
	return m
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
