package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a restore notification.
type TelegramMessage struct {
	Success    bool
	Outcome    Outcome
	Host       string
	BackupName string
	StartTime  time.Time
	Duration   time.Duration

	ConnectAttempts int
	RestoreAttempts int

	// Error info (if failed).
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
