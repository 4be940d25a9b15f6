package main

import (
	"bytes"
	"context"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/alan-christopher/keytanglement/keytangle/circuit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := rootCommand()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs(append(args, "--log-level", "error"))
	err := c.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err)
	return out
}

func TestStagesOverFiles(t *testing.T) {
	dir := t.TempDir()
	alice := filepath.Join(dir, "alice.json")
	bob := filepath.Join(dir, "bob.json")

	mustRun(t, "generate", alice, "600", "--seed", "1")
	mustRun(t, "generate", bob, "600", "--seed", "2")
	ah, err := readHandoff(alice)
	require.NoError(t, err)
	assert.Len(t, ah.Pairings, 600)
	assert.Nil(t, ah.CorrectMeasurements)

	_, err = run(t, "keygen", alice, bob)
	assert.ErrorContains(t, err, "run verify first")

	mustRun(t, "verify", alice, bob)
	ah, err = readHandoff(alice)
	require.NoError(t, err)
	bh, err := readHandoff(bob)
	require.NoError(t, err)
	assert.NotEmpty(t, ah.CorrectMeasurements)
	assert.Equal(t, ah.CorrectMeasurements, bh.CorrectMeasurements)

	mustRun(t, "keygen", alice, bob, "--seed", "3")
	ah, err = readHandoff(alice)
	require.NoError(t, err)
	bh, err = readHandoff(bob)
	require.NoError(t, err)
	assert.NotEmpty(t, ah.Code)
	assert.Equal(t, ah.Code, bh.Code)
	assert.Equal(t, 2*(len(ah.CorrectMeasurements)-keytangle.DefaultCorrectionBits), len(ah.Code))

	cipher := strings.TrimSpace(mustRun(t, "encrypt", alice, "hi"))
	assert.Len(t, cipher, 16)
	assert.Equal(t, "hi\n", mustRun(t, "decrypt", bob, cipher))

	_, err = run(t, "encrypt", alice, strings.Repeat("x", len(ah.Code)))
	assert.ErrorIs(t, err, keytangle.ErrInsufficientKeyMaterial)

	// A failed rerun drops the keys the earlier run wrote.
	_, err = run(t, "keygen", alice, bob, "--check-rounds", "100000")
	assert.ErrorIs(t, err, keytangle.ErrInsufficientMaterial)
	for _, path := range []string{alice, bob} {
		h, err := readHandoff(path)
		require.NoError(t, err)
		assert.Empty(t, h.Code, path)
		assert.Equal(t, ah.CorrectMeasurements, h.CorrectMeasurements, path)
	}
	_, err = run(t, "encrypt", alice, "hi")
	assert.ErrorContains(t, err, "run keygen first")
}

func TestEncryptWithoutKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice.json")
	mustRun(t, "generate", path, "4", "--seed", "1")
	_, err := run(t, "encrypt", path, "hi")
	assert.ErrorContains(t, err, "run keygen first")
}

func TestExchangeInProcess(t *testing.T) {
	out := mustRun(t, "exchange", "hi", "--ideal")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 16)
	assert.Equal(t, "hi", lines[1])
}

func TestExchangeRemote(t *testing.T) {
	secret := make([]byte, keytangle.DefaultMaxFrameBytes+1<<12)
	rand.New(rand.NewSource(1)).Read(secret)
	secretPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretPath, secret, 0o600))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	flags := serveCommand().Flags()
	require.NoError(t, flags.Set(secretKey, secretPath))
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := l.Accept()
		if err != nil {
			return
		}
		serveConn(context.Background(), flags, conn, keytangle.OracleVerifier{Oracle: circuit.Ideal{}})
	}()

	out := mustRun(t, "exchange", "hi", "--remote", l.Addr().String(), "--secret", secretPath)
	<-done
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hi", lines[1])
}

func TestBadLogLevel(t *testing.T) {
	c := rootCommand()
	c.SetOut(new(bytes.Buffer))
	c.SetArgs([]string{"generate", filepath.Join(t.TempDir(), "x.json"), "1", "--log-level", "loud"})
	assert.Error(t, c.Execute())
}
