package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	oversampleKey    = "oversample"
	remoteKey        = "remote"
	secretKey        = "secret"
	epsilonAuthKey   = "epsilon-auth"
	maxFrameBytesKey = "max-frame-bytes"
)

func addChannelFlags(flags *pflag.FlagSet) {
	flags.String(secretKey, "", "File holding the bootstrap secret shared with the other end")
	flags.Float64(epsilonAuthKey, keytangle.DefaultEpsilonAuth, "Accepted probability of a forged frame passing authentication")
	flags.Int(maxFrameBytesKey, keytangle.DefaultMaxFrameBytes, "Largest frame either end will send; must match the other end")
}

// openFramer wraps conn in a Framer keyed by the secret file named in flags.
// The returned file must be closed once conn is done with.
func openFramer(flags *pflag.FlagSet, conn net.Conn) (*keytangle.Framer, *os.File, error) {
	path, err := flags.GetString(secretKey)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return nil, nil, fmt.Errorf("--%s is required", secretKey)
	}
	eps, err := flags.GetFloat64(epsilonAuthKey)
	if err != nil {
		return nil, nil, err
	}
	maxFrame, err := flags.GetInt(maxFrameBytesKey)
	if err != nil {
		return nil, nil, err
	}
	secret, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := keytangle.NewFramer(keytangle.FramerOpts{
		Channel:       conn,
		Secret:        secret,
		EpsilonAuth:   eps,
		MaxFrameBytes: maxFrame,
	})
	if err != nil {
		secret.Close()
		return nil, nil, err
	}
	return f, secret, nil
}

func exchangeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "exchange <message>",
		Short: "Negotiates a key long enough for message, then encrypts and decrypts it",
		Args:  cobra.ExactArgs(1),
		RunE:  exchangeFunc,
	}
	flags := c.Flags()
	flags.Int(checkRoundsKey, keytangle.DefaultCorrectionBits, "Sifted rounds sacrificed to the eavesdropper check")
	flags.Float64(oversampleKey, keytangle.DefaultOversample, "Factor by which to generate more rounds than expected to be needed")
	flags.String(remoteKey, "", "Address of a verification server; verify in-process if empty")
	addOracleFlags(flags)
	addChannelFlags(flags)
	return c
}

func exchangeFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	k, err := flags.GetInt(checkRoundsKey)
	if err != nil {
		return err
	}
	oversample, err := flags.GetFloat64(oversampleKey)
	if err != nil {
		return err
	}
	remote, err := flags.GetString(remoteKey)
	if err != nil {
		return err
	}
	opts := keytangle.SessionOpts{CorrectionBits: k, Oversample: oversample}
	if remote == "" {
		ver, err := oracleFromFlags(flags)
		if err != nil {
			return err
		}
		opts.Verifier = ver
	} else {
		var d net.Dialer
		conn, err := d.DialContext(c.Context(), "tcp", remote)
		if err != nil {
			return err
		}
		defer conn.Close()
		f, secret, err := openFramer(flags, conn)
		if err != nil {
			return err
		}
		defer secret.Close()
		rv := keytangle.NewRemoteVerifier(f)
		defer func() {
			st := rv.Stats()
			logrus.WithFields(logrus.Fields{
				"remote":        remote,
				"messages_sent": st.MessagesSent,
				"bytes_sent":    st.BytesSent,
				"bytes_read":    st.BytesRead,
			}).Debug("Closing verification channel")
		}()
		opts.Verifier = rv
	}

	s, err := keytangle.NewSession(opts)
	if err != nil {
		return err
	}
	tr, err := s.Exchange(c.Context(), args[0])
	if errors.Is(err, keytangle.ErrAttackerDetected) {
		return fmt.Errorf("%w; discard this session", err)
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"rounds":     tr.Stats.Rounds,
		"consistent": tr.Stats.Consistent,
		"sampled":    tr.Stats.Sampled,
		"key_bits":   tr.Stats.KeyBits,
	}).Info("Exchanged message")
	out := c.OutOrStdout()
	fmt.Fprintln(out, tr.Ciphertext.String())
	_, err = fmt.Fprintln(out, tr.Recovered)
	return err
}
