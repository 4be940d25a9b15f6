package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alan-christopher/keytanglement/keytangle"
)

func readHandoff(path string) (keytangle.Handoff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return keytangle.Handoff{}, err
	}
	var h keytangle.Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return keytangle.Handoff{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return h, nil
}

func writeHandoff(path string, h keytangle.Handoff) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// readPair reads both parties' handoffs and their material.
func readPair(alicePath, bobPath string) (ah, bh keytangle.Handoff, alice, bob keytangle.Material, err error) {
	if ah, err = readHandoff(alicePath); err != nil {
		return
	}
	if bh, err = readHandoff(bobPath); err != nil {
		return
	}
	if alice, err = ah.Material(); err != nil {
		err = fmt.Errorf("%s: %w", alicePath, err)
		return
	}
	if bob, err = bh.Material(); err != nil {
		err = fmt.Errorf("%s: %w", bobPath, err)
	}
	return
}
