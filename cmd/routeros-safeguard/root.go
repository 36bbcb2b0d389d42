package main

import (
	"errors"
	"os"
	"strings"

	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/fgeck/routeros-safeguard/internal/services/routeros"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

// newRouterService builds the router client used by run and list.
var newRouterService = func(logger zerolog.Logger) routeros.Service {
	return routeros.New(logger)
}

var rootCmd = &cobra.Command{
	Use:   "routeros-safeguard",
	Short: "Restore a known-good backup on a MikroTik router",
	Long: `routeros-safeguard connects to a MikroTik router over the RouterOS API and,
if the safe backup file (safe-backup.backup) is present, waits a configurable
safety window and then restores it. The router reboots into the restored
configuration.

A failed restore is retried exactly once on a fresh connection.

Settings come from a JSON or YAML file (--config) or from command line flags.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "settings file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
}

// addConnectionFlags registers the flags read when no settings file is given.
func addConnectionFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "router address")
	fs.String("username", "", "API user name")
	fs.String("password", "", "API password (pass --password \"\" for an empty one)")
	fs.Int("port", models.DefaultAPIPort, "API port")
	fs.Int("delay", models.DefaultRestoreDelaySeconds, "seconds to wait before restoring")
	fs.Bool("tls", false, "use the api-ssl service")
	fs.Bool("insecure", false, "skip TLS certificate verification")
	fs.Duration("timeout", models.DefaultTimeout, "dial and command timeout")
	fs.String("backup-name", models.DefaultBackupName, "backup file to restore")
	fs.String("backup-password", "", "password of the backup file")
}

func setupLogging() {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// interactive reports whether the countdown can be redrawn in place.
func interactive() bool {
	return !jsonOutput && term.IsTerminal(int(os.Stdout.Fd()))
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	log.Error().Err(err).Msg("command failed")
	return 1
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
