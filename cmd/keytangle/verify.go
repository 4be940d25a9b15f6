package main

import (
	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/alan-christopher/keytanglement/keytangle/circuit"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	shotsKey       = "shots"
	idealKey       = "ideal"
	parallelismKey = "parallelism"
)

func addOracleFlags(flags *pflag.FlagSet) {
	flags.Int(shotsKey, 0, "Simulator measurements per round; 0 inspects the outcome distribution exactly")
	flags.Bool(idealKey, false, "Compare choices directly instead of simulating circuits")
	flags.Int(parallelismKey, keytangle.DefaultParallelism, "Maximum concurrent oracle calls")
}

func oracleFromFlags(flags *pflag.FlagSet) (keytangle.OracleVerifier, error) {
	ideal, err := flags.GetBool(idealKey)
	if err != nil {
		return keytangle.OracleVerifier{}, err
	}
	parallelism, err := flags.GetInt(parallelismKey)
	if err != nil {
		return keytangle.OracleVerifier{}, err
	}
	if ideal {
		return keytangle.OracleVerifier{Oracle: circuit.Ideal{}, Parallelism: parallelism}, nil
	}
	shots, err := flags.GetInt(shotsKey)
	if err != nil {
		return keytangle.OracleVerifier{}, err
	}
	return keytangle.OracleVerifier{Oracle: circuit.NewSimulator(shots), Parallelism: parallelism}, nil
}

func verifyCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "verify <alice.json> <bob.json>",
		Short: "Runs the quantum channel oracle and records the consistent rounds in both files",
		Args:  cobra.ExactArgs(2),
		RunE:  verifyFunc,
	}
	addOracleFlags(c.Flags())
	return c
}

func verifyFunc(c *cobra.Command, args []string) error {
	ver, err := oracleFromFlags(c.Flags())
	if err != nil {
		return err
	}
	ah, bh, alice, bob, err := readPair(args[0], args[1])
	if err != nil {
		return err
	}
	indices, err := ver.VerifySession(c.Context(), alice, bob)
	if err != nil {
		return err
	}
	ah.CorrectMeasurements, bh.CorrectMeasurements = indices, indices
	if err := writeHandoff(args[0], ah); err != nil {
		return err
	}
	if err := writeHandoff(args[1], bh); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"rounds": alice.Len(), "consistent": len(indices)}).Info("Verified rounds")
	return nil
}
