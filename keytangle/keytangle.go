// Package keytangle provides utilities for negotiating a shared one-time pad
// from entangled four-qubit rounds, and for using it to encrypt a single text
// message.
//
// Each party secretly picks a Pairing and a Grouping per round. A quantum
// channel Oracle reports which rounds the two choices agreed on; those rounds
// are sifted out, a sample of them is sacrificed to check for tampering, and
// the surviving groupings are encoded as key bits.
package keytangle

import (
	"errors"
	"fmt"
)

var (
	// ErrAttackerDetected is returned when a sampled check round disagrees
	// between the two parties.
	ErrAttackerDetected = errors.New("attacker detected")
	// ErrInsufficientMaterial is returned when too few rounds survived
	// sifting to run the requested number of check rounds.
	ErrInsufficientMaterial = errors.New("insufficient sifted material")
	ErrInvalidGrouping      = errors.New("invalid grouping")
	ErrInvalidPairing       = errors.New("invalid pairing")
	// ErrInsufficientKeyMaterial is returned when a key is shorter than the
	// message it should encrypt.
	ErrInsufficientKeyMaterial = errors.New("insufficient key material")
	// ErrInvalidMessageEncoding is returned for text that is not 7-bit ASCII.
	ErrInvalidMessageEncoding = errors.New("invalid message encoding")
)

// Pipeline stages, as reported by AbortError.
const (
	StageEncode   = "encode"
	StageGenerate = "generate"
	StageVerify   = "verify"
	StageSift     = "sift"
	StageDetect   = "detect"
	StageKeygen   = "keygen"
	StageCipher   = "cipher"
)

// An AbortError reports that a session was abandoned. No key, plaintext or
// ciphertext from an aborted session is ever returned.
type AbortError struct {
	Stage string
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("session aborted: %s: %v", e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
