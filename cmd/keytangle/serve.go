package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os/signal"
	"syscall"

	"github.com/alan-christopher/keytanglement/keytangle"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const listenKey = "listen"

func serveCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Answers verification requests from exchange --remote",
		Long: "Answers verification requests from exchange --remote.\n\n" +
			"Every connection keys its channel from the start of the secret file, so " +
			"both ends reuse the same pad material across connections. This is only " +
			"suitable for demonstrations.",
		Args: cobra.NoArgs,
		RunE: serveFunc,
	}
	flags := c.Flags()
	flags.String(listenKey, "127.0.0.1:7384", "Address to listen on")
	addOracleFlags(flags)
	addChannelFlags(flags)
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	addr, err := flags.GetString(listenKey)
	if err != nil {
		return err
	}
	ver, err := oracleFromFlags(flags)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	logrus.WithField("addr", l.Addr().String()).Info("Serving verification requests")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return l.Close()
	})
	g.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			g.Go(func() error {
				serveConn(gctx, flags, conn, ver)
				return nil
			})
		}
	})
	return g.Wait()
}

// serveConn answers requests on conn until the peer hangs up.
func serveConn(ctx context.Context, flags *pflag.FlagSet, conn net.Conn, ver keytangle.Verifier) {
	defer conn.Close()
	log := logrus.WithField("peer", conn.RemoteAddr().String())
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f, secret, err := openFramer(flags, conn)
	if err != nil {
		log.WithError(err).Error("Setting up channel")
		return
	}
	defer secret.Close()
	var stats keytangle.ChannelStats
	for {
		err := keytangle.ServeVerifier(ctx, f, ver, &stats)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.WithError(err).Warn("Verification request failed")
			break
		}
		log.WithField("requests", stats.MessagesSent).Debug("Answered verification request")
	}
	log.WithFields(logrus.Fields{
		"messages_received": stats.MessagesReceived,
		"bytes_read":        stats.BytesRead,
	}).Info("Peer disconnected")
}
