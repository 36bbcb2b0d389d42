package main

import (
	"fmt"

	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate settings",
	Long:  `Validate the settings without connecting to the router.`,
	RunE:  validateConfig,
}

func init() {
	addConnectionFlags(validateCmd.Flags())
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("configuration validation failed")
		return &exitError{code: models.OutcomeSettingsInvalid.ExitCode(), err: err}
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	if configFile != "" {
		fmt.Printf("  Source: %s\n", configFile)
	} else {
		fmt.Println("  Source: command line")
	}
	fmt.Printf("  Host: %s\n", cfg.Connection.Host)
	fmt.Printf("  Port: %d\n", cfg.Connection.Port)
	fmt.Printf("  Username: %s\n", cfg.Connection.Username)
	fmt.Printf("  TLS: %v\n", cfg.Connection.UseTLS)
	fmt.Printf("  Timeout: %s\n", cfg.Connection.Timeout)
	fmt.Println()
	fmt.Println("Restore:")
	fmt.Printf("  Backup: %s\n", cfg.Restore.BackupName)
	fmt.Printf("  Backup password: %v\n", cfg.Restore.BackupPassword != "")
	fmt.Printf("  Delay: %s\n", cfg.Connection.RestoreDelay())
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
