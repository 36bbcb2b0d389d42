package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/routeros-safeguard/internal/config"
	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/fgeck/routeros-safeguard/internal/report"
	"github.com/fgeck/routeros-safeguard/internal/services/countdown"
	"github.com/fgeck/routeros-safeguard/internal/services/restorer"
	"github.com/fgeck/routeros-safeguard/internal/services/telegram"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var pauseOnExit bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Restore the safe backup if it exists",
	Long: `Execute the safeguard workflow:
1. Connect to the router API
2. Look for the safe backup among the router's backup files
3. Wait the restore delay (press Ctrl+C to abort)
4. Load the backup; the router reboots
5. On failure, reconnect and retry the load once

Exit status: 0 when the restore was initiated or no safe backup exists,
1 for settings, connection or query errors, 2 when the retry failed too,
130 when aborted.`,
	RunE: runRestore,
}

func init() {
	addConnectionFlags(runCmd.Flags())
	runCmd.Flags().BoolVar(&pauseOnExit, "pause", false, "wait for Enter before exiting")
}

func runRestore(cmd *cobra.Command, args []string) error {
	if pauseOnExit {
		defer waitForEnter()
	}

	console := report.NewConsole(os.Stdout, interactive(), log.Logger)

	// Load configuration
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load settings")
		console.SettingsError(err)
		return &exitError{code: models.OutcomeSettingsInvalid.ExitCode(), err: err}
	}

	log.Info().
		Str("host", cfg.Connection.Host).
		Int("port", cfg.Connection.Port).
		Str("user", cfg.Connection.Username).
		Int("delay_seconds", cfg.Connection.RestoreDelaySeconds).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run restore
	runnerSvc := restorer.NewWithServices(
		log.Logger,
		newRouterService(log.Logger),
		countdown.New(log.Logger),
		telegram.New(log.Logger),
		console,
	)
	result := runnerSvc.Run(ctx, *cfg)
	console.Summary(result)

	if code := result.Outcome.ExitCode(); code != 0 {
		return &exitError{code: code, err: fmt.Errorf("safeguard run ended with %s", result.Outcome)}
	}
	return nil
}

// loadConfig reads the settings file when one is given and the command
// line flags otherwise.
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	parser := config.NewParser()
	if configFile != "" {
		return parser.LoadFile(configFile)
	}
	return parser.LoadFlags(cmd.Flags())
}

func waitForEnter() {
	fmt.Print("\nPress Enter to exit...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
}
