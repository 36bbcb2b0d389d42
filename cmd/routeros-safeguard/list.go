package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/fgeck/routeros-safeguard/internal/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup files on the router",
	Long:  `Connect to the router and list its backup files. The safe backup is marked with *.`,
	RunE:  listBackups,
}

func init() {
	addConnectionFlags(listCmd.Flags())
}

func listBackups(cmd *cobra.Command, args []string) error {
	console := report.NewConsole(os.Stdout, false, log.Logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load settings")
		console.SettingsError(err)
		return &exitError{code: models.OutcomeSettingsInvalid.ExitCode(), err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := newRouterService(log.Logger).Connect(ctx, cfg.Connection)
	if err != nil {
		console.Summary(&models.RunResult{Outcome: models.OutcomeConnectionFailed, Err: err})
		return &exitError{code: models.OutcomeConnectionFailed.ExitCode(), err: err}
	}
	defer session.Disconnect()

	files, err := session.ListBackupFiles(ctx)
	if err != nil {
		console.Summary(&models.RunResult{Outcome: models.OutcomeQueryFailed, Err: err})
		return &exitError{code: models.OutcomeQueryFailed.ExitCode(), err: err}
	}

	fmt.Print(report.FormatFiles(files, cfg.Restore.BackupName))
	if !models.ContainsBackup(files, cfg.Restore.BackupName) {
		fmt.Println()
		fmt.Println(report.StatusMessage(models.OutcomeNoBackupFound))
	}

	return nil
}
