package main

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const seedKey = "seed"

func generateCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "generate <handoff.json> <rounds>",
		Short: "Draws one party's pairings and groupings into a new handoff file",
		Args:  cobra.ExactArgs(2),
		RunE:  generateFunc,
	}
	c.Flags().Int64(seedKey, 0, "Seed a reproducible pRNG instead of drawing from system entropy. Insecure; for testing only")
	return c
}

func generateFunc(c *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("parsing round count: %w", err)
	}
	r, err := randFromFlags(c)
	if err != nil {
		return err
	}
	m, err := keytangle.GenerateMaterial(r, n)
	if err != nil {
		return err
	}
	if err := writeHandoff(args[0], keytangle.HandoffFromMaterial(m)); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"file": args[0], "rounds": n}).Info("Generated round parameters")
	return nil
}

func randFromFlags(c *cobra.Command) (*rand.Rand, error) {
	seed, err := c.Flags().GetInt64(seedKey)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		return keytangle.EntropyRand(), nil
	}
	return rand.New(rand.NewSource(seed)), nil
}
