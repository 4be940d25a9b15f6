package main

import (
	"fmt"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
	"github.com/spf13/cobra"
)

func encryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <handoff.json> <message>",
		Short: "Encrypts an ASCII message with the key in a handoff file, printing the ciphertext bits",
		Args:  cobra.ExactArgs(2),
		RunE:  encryptFunc,
	}
}

func encryptFunc(c *cobra.Command, args []string) error {
	key, err := keyFromFile(args[0])
	if err != nil {
		return err
	}
	msg, err := keytangle.EncodeMessage(args[1])
	if err != nil {
		return err
	}
	cipher, err := keytangle.Encrypt(msg, key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), cipher.String())
	return err
}

func decryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <handoff.json> <ciphertext bits>",
		Short: "Decrypts ciphertext bits with the key in a handoff file, printing the message",
		Args:  cobra.ExactArgs(2),
		RunE:  decryptFunc,
	}
}

func decryptFunc(c *cobra.Command, args []string) error {
	key, err := keyFromFile(args[0])
	if err != nil {
		return err
	}
	cipher, err := bitmap.FromString(args[1])
	if err != nil {
		return fmt.Errorf("parsing ciphertext: %w", err)
	}
	plain, err := keytangle.Decrypt(cipher, key)
	if err != nil {
		return err
	}
	text, err := keytangle.DecodeMessage(plain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), text)
	return err
}

func keyFromFile(path string) (bitmap.Dense, error) {
	h, err := readHandoff(path)
	if err != nil {
		return bitmap.Empty(), err
	}
	if h.Code == "" {
		return bitmap.Empty(), fmt.Errorf("%s holds no key; run keygen first", path)
	}
	key, err := bitmap.FromString(h.Code)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%s: parsing code: %w", path, err)
	}
	return key, nil
}
