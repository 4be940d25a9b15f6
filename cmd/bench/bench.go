// bench.go runs a batch of keytangle negotiations for each entry in the
// cartesian product of a collection of tuning parameters, e.g. rounds
// generated and oracle forgery rate, and outputs a CSV of relevant statistics
// for each combination, e.g. consistent rounds and final key length.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"text/template"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/alan-christopher/keytanglement/keytangle/circuit"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gonum.org/v1/gonum/stat"
)

var (
	rounds = flag.IntSlice("rounds", []int{240}, "The number of rounds each party generates per negotiation.")
	k      = flag.IntSlice("k", []int{keytangle.DefaultCorrectionBits}, "The number of sifted rounds sacrificed to the eavesdropper check.")
	shots  = flag.IntSlice("shots", []int{0}, "Simulator shots per round. Zero inspects probabilities exactly, negative uses the ideal oracle.")
	forge  = flag.Float64Slice("forge", []float64{0}, "The probability an inconsistent round is reported as consistent.")
	trials = flag.Int("trials", 20, "Negotiations to run per parameterization.")
	framed = flag.Bool("framed", false, "Verify through an authenticated channel instead of calling the oracle in-process.")
	seed   = flag.Int64("seed", 1, "Seed for all randomness, so runs are reproducible.")
	level  = flag.String("log-level", "warn", "Logging verbosity.")
)

const benchFrameBytes = 1 << 20

var (
	inputs  = []string{"rounds", "k", "shots", "forge"}
	columns = []string{"Rounds", "CorrectionBits", "Shots", "ForgeRate", "Trials",
		"MeanConsistent", "MeanKeyBits", "StdKeyBits", "Detected", "Insufficient",
		"ClassicalBytes", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Rounds         int
	CorrectionBits int
	Shots          int
	ForgeRate      float64
	Trials         int

	// Fields corresponding to experiment results
	MeanConsistent float64
	MeanKeyBits    float64
	StdKeyBits     float64
	Detected       int
	Insufficient   int
	ClassicalBytes int
	Succeeded      int
}

func main() {
	flag.Parse()
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		logrus.Fatalf("Parsing --log-level: %v", err)
	}
	logrus.SetLevel(lvl)

	os.Stdout.WriteString(header() + "\n")
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		vals, err := lookupInput(flag.CommandLine, inp)
		if err != nil {
			logrus.Fatal(err)
		}
		args = append(args, vals)
	}
	r := rand.New(rand.NewSource(*seed))
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Rounds:         args[inpIndex("rounds")].(int),
			CorrectionBits: args[inpIndex("k")].(int),
			Shots:          args[inpIndex("shots")].(int),
			ForgeRate:      args[inpIndex("forge")].(float64),
			Trials:         *trials,
		}
		if err := bench(exp, r); err != nil {
			logrus.WithField("experiment", *exp).Errorf("Benching: %v", err)
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			logrus.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(exp *Experiment, r *rand.Rand) error {
	var oracle keytangle.Oracle = circuit.Ideal{}
	if exp.Shots >= 0 {
		oracle = circuit.NewSimulator(exp.Shots)
	}
	if exp.ForgeRate > 0 {
		oracle = circuit.NewForger(oracle, exp.ForgeRate, rand.New(rand.NewSource(r.Int63())))
	}
	var consistent, keyBits []float64
	for i := 0; i < exp.Trials; i++ {
		stats, classical, err := trial(exp, oracle, r.Int63())
		exp.ClassicalBytes += classical
		consistent = append(consistent, float64(stats.Consistent))
		switch {
		case err == nil:
			exp.Succeeded++
			keyBits = append(keyBits, float64(stats.KeyBits))
		case errors.Is(err, keytangle.ErrAttackerDetected):
			exp.Detected++
		case errors.Is(err, keytangle.ErrInsufficientMaterial):
			exp.Insufficient++
		default:
			return err
		}
	}
	exp.MeanConsistent = stat.Mean(consistent, nil)
	if len(keyBits) > 1 {
		exp.MeanKeyBits, exp.StdKeyBits = stat.MeanStdDev(keyBits, nil)
	} else if len(keyBits) == 1 {
		exp.MeanKeyBits = keyBits[0]
	}
	return nil
}

// trial runs a single negotiation, optionally verifying its rounds on the far
// side of an authenticated in-memory channel.
func trial(exp *Experiment, oracle keytangle.Oracle, trialSeed int64) (keytangle.Stats, int, error) {
	tr := rand.New(rand.NewSource(trialSeed))
	opts := keytangle.SessionOpts{
		CorrectionBits: exp.CorrectionBits,
		NewRand: func() *rand.Rand {
			return rand.New(rand.NewSource(tr.Int63()))
		},
	}
	ctx := context.Background()
	if !*framed {
		opts.Oracle = oracle
		s, err := keytangle.NewSession(opts)
		if err != nil {
			return keytangle.Stats{}, 0, err
		}
		_, stats, err := s.Negotiate(ctx, exp.Rounds)
		return stats, 0, err
	}

	l, r := net.Pipe()
	defer l.Close()
	defer r.Close()
	secret := make([]byte, benchFrameBytes+1<<12)
	tr.Read(secret)
	client, err := newFramer(l, secret)
	if err != nil {
		return keytangle.Stats{}, 0, err
	}
	server, err := newFramer(r, secret)
	if err != nil {
		return keytangle.Stats{}, 0, err
	}
	go func() {
		if err := keytangle.ServeVerifier(ctx, server, keytangle.OracleVerifier{Oracle: oracle}, nil); err != nil {
			logrus.WithError(err).Warn("Verifier failed")
		}
	}()
	remote := keytangle.NewRemoteVerifier(client)
	opts.Verifier = remote
	s, err := keytangle.NewSession(opts)
	if err != nil {
		return keytangle.Stats{}, 0, err
	}
	_, stats, err := s.Negotiate(ctx, exp.Rounds)
	cs := remote.Stats()
	return stats, cs.BytesSent + cs.BytesRead, err
}

func newFramer(ch net.Conn, secret []byte) (*keytangle.Framer, error) {
	return keytangle.NewFramer(keytangle.FramerOpts{
		Channel:       ch,
		Secret:        bytes.NewReader(secret),
		MaxFrameBytes: benchFrameBytes,
	})
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

// lookupInput returns the values given for the slice flag name. Every input
// needs at least one value, or the cartesian product would be empty.
func lookupInput(fs *flag.FlagSet, name string) ([]interface{}, error) {
	var r []interface{}
	if v, err := fs.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := fs.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		return nil, fmt.Errorf("unknown type for input %s", name)
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("--%s needs at least one value", name)
	}
	return r, nil
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) <= 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		rest := make([][]interface{}, len(args))
		copy(l, args)
		copy(rest, args)
		l[i] = args[i][:1]
		rest[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, rest)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
