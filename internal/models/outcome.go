package models

import "time"

// Outcome is the terminal result of a safeguard run.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeNoBackupFound
	OutcomeRestoreInitiated
	OutcomeRestoreInitiatedAfterRetry
	OutcomeRestoreFailedAfterRetry
	OutcomeConnectionFailed
	OutcomeSettingsInvalid
	OutcomeQueryFailed
	OutcomeAborted
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:                    "unknown",
	OutcomeNoBackupFound:              "no_backup_found",
	OutcomeRestoreInitiated:           "restore_initiated",
	OutcomeRestoreInitiatedAfterRetry: "restore_initiated_after_retry",
	OutcomeRestoreFailedAfterRetry:    "restore_failed_after_retry",
	OutcomeConnectionFailed:           "connection_failed",
	OutcomeSettingsInvalid:            "settings_invalid",
	OutcomeQueryFailed:                "query_failed",
	OutcomeAborted:                    "aborted",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return outcomeNames[OutcomeUnknown]
}

// Success reports whether the run ended without requiring operator attention.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeNoBackupFound, OutcomeRestoreInitiated, OutcomeRestoreInitiatedAfterRetry:
		return true
	default:
		return false
	}
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeNoBackupFound, OutcomeRestoreInitiated, OutcomeRestoreInitiatedAfterRetry:
		return 0
	case OutcomeRestoreFailedAfterRetry:
		return 2
	case OutcomeAborted:
		return 130
	default:
		return 1
	}
}

// State is a step of the restore state machine.
type State int

const (
	StateInit State = iota
	StateConnected
	StateChecked
	StateWaiting
	StateRestoring
	StateReconnecting
	StateRetryRestoring
	StateDone
)

var stateNames = [...]string{
	"init", "connected", "checked", "waiting", "restoring", "reconnecting", "retry_restoring", "done",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// RunResult holds the result of a safeguard run.
type RunResult struct {
	Outcome         Outcome
	Err             error // cause of a failed outcome, nil otherwise
	Host            string
	BackupName      string
	BackupFound     bool
	ConnectAttempts int
	RestoreAttempts int
	StartTime       time.Time
	Duration        time.Duration
}
