// Package models contains the data structures used throughout routeros-safeguard.
package models

import "time"

const (
	// DefaultBackupName is the backup file restored when none is configured.
	DefaultBackupName = "safe-backup.backup"

	// DefaultAPIPort is the RouterOS API port (plaintext).
	DefaultAPIPort = 8728

	// DefaultRestoreDelaySeconds is the safety window used when no settings file is given.
	DefaultRestoreDelaySeconds = 60

	// MaxRestoreDelaySeconds caps the safety window at one day.
	MaxRestoreDelaySeconds = 24 * 60 * 60

	// DefaultTimeout bounds dialing and login.
	DefaultTimeout = 10 * time.Second
)

// Config holds the complete configuration for a safeguard run.
type Config struct {
	Connection ConnectionConfig
	Restore    RestoreSettings
	Telegram   *TelegramConfig // nil if not configured
}

// ConnectionConfig holds the RouterOS API connection parameters.
type ConnectionConfig struct {
	Host                string
	Username            string
	Password            string
	Port                int
	RestoreDelaySeconds int
	UseTLS              bool          // api-ssl service instead of plaintext api
	InsecureSkipVerify  bool          // accept self-signed router certificates
	Timeout             time.Duration // dial and login timeout
}

// RestoreDelay returns the configured safety window.
func (c ConnectionConfig) RestoreDelay() time.Duration {
	return time.Duration(c.RestoreDelaySeconds) * time.Second
}

// RestoreSettings selects which backup file is restored.
type RestoreSettings struct {
	BackupName     string
	BackupPassword string // empty for unencrypted backups
}

// Request builds the restore request for these settings.
func (s RestoreSettings) Request() RestoreRequest {
	name := s.BackupName
	if name == "" {
		name = DefaultBackupName
	}
	return RestoreRequest{TargetName: name, Password: s.BackupPassword}
}
