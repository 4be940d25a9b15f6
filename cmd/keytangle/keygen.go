package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const checkRoundsKey = "check-rounds"

func keygenCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "keygen <alice.json> <bob.json>",
		Short: "Sifts verified rounds, checks a sample for tampering and writes each party's key",
		Args:  cobra.ExactArgs(2),
		RunE:  keygenFunc,
	}
	c.Flags().Int(checkRoundsKey, keytangle.DefaultCorrectionBits, "Sifted rounds sacrificed to the eavesdropper check")
	c.Flags().Int64(seedKey, 0, "Seed a reproducible pRNG for the check instead of drawing from system entropy. Insecure; for testing only")
	return c
}

func keygenFunc(c *cobra.Command, args []string) error {
	k, err := c.Flags().GetInt(checkRoundsKey)
	if err != nil {
		return err
	}
	r, err := randFromFlags(c)
	if err != nil {
		return err
	}
	ah, bh, alice, bob, err := readPair(args[0], args[1])
	if err != nil {
		return err
	}
	// A failed run must not leave a key from an earlier one behind for
	// encrypt to pick up.
	ah.Code, bh.Code = "", ""
	aliceKey, bobKey, sifted, err := deriveKeys(r, alice, bob, ah.CorrectMeasurements, k)
	if err == nil {
		ah.Code, bh.Code = aliceKey.String(), bobKey.String()
	}
	if werr := writeHandoff(args[0], ah); werr != nil {
		return werr
	}
	if werr := writeHandoff(args[1], bh); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"sifted": sifted, "key_bits": aliceKey.Size()}).Info("Generated keys")
	return nil
}

// deriveKeys sifts the verified rounds, runs the eavesdropper check and
// encodes what is left into each party's key.
func deriveKeys(r *rand.Rand, alice, bob keytangle.Material, indices []int, k int) (aliceKey, bobKey bitmap.Dense, sifted int, err error) {
	if indices == nil {
		return aliceKey, bobKey, 0, errors.New("no correct measurements recorded; run verify first")
	}
	aliceSifted, bobSifted, err := keytangle.Sift(alice, bob, indices)
	if err != nil {
		return aliceKey, bobKey, 0, err
	}
	aliceKeyed, bobKeyed, err := keytangle.Detect(r, aliceSifted, bobSifted, k)
	if err != nil {
		return aliceKey, bobKey, aliceSifted.Len(), err
	}
	if aliceKey, err = keytangle.GenerateCode(aliceKeyed.Groupings); err != nil {
		return aliceKey, bobKey, aliceSifted.Len(), fmt.Errorf("alice: %w", err)
	}
	if bobKey, err = keytangle.GenerateCode(bobKeyed.Groupings); err != nil {
		return aliceKey, bobKey, aliceSifted.Len(), fmt.Errorf("bob: %w", err)
	}
	return aliceKey, bobKey, aliceSifted.Len(), nil
}
