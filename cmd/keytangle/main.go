// keytangle runs the stages of a keytangle session as separate steps over
// handoff files, or a whole session at once, optionally verifying rounds on a
// remote server.
//
//	keytangle generate alice.json 200
//	keytangle generate bob.json 200
//	keytangle verify alice.json bob.json
//	keytangle keygen alice.json bob.json --check-rounds 4
//	keytangle encrypt alice.json "hi"
//	keytangle decrypt bob.json 0110...
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	logLevelKey = "log-level"
	logJSONKey  = "log-json"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keytangle: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:               "keytangle",
		Short:             "Negotiates one-time pads from entangled four-qubit rounds",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: configureLogging,
	}
	flags := c.PersistentFlags()
	flags.String(logLevelKey, "info", "Logging verbosity (trace, debug, info, warn, error)")
	flags.Bool(logJSONKey, false, "Log as JSON instead of text")
	c.AddCommand(
		generateCommand(),
		verifyCommand(),
		keygenCommand(),
		encryptCommand(),
		decryptCommand(),
		exchangeCommand(),
		serveCommand(),
	)
	return c
}

func configureLogging(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	lvlStr, err := flags.GetString(logLevelKey)
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(lvlStr)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	asJSON, err := flags.GetBool(logJSONKey)
	if err != nil {
		return err
	}
	if asJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}
