// Package report renders run progress and the final status for an operator.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/rs/zerolog"
)

// logEvery is the countdown logging interval on non-interactive outputs.
const logEvery = 10

// Console reports progress to a terminal or a log.
type Console struct {
	out         io.Writer
	interactive bool
	logger      zerolog.Logger

	renderer     *lipgloss.Renderer
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	hintStyle    lipgloss.Style

	counting bool
}

// NewConsole creates a reporter writing to out. With interactive set the
// countdown is redrawn in place; otherwise it is logged periodically.
func NewConsole(out io.Writer, interactive bool, logger zerolog.Logger) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:          out,
		interactive:  interactive,
		logger:       logger,
		renderer:     r,
		successStyle: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		errorStyle:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		hintStyle:    r.NewStyle().Foreground(lipgloss.Color("245")).MarginLeft(2),
	}
}

// StateChanged logs state machine transitions.
func (c *Console) StateChanged(state models.State) {
	c.endCountdownLine()

	switch state {
	case models.StateWaiting:
		c.logger.Info().Msg("safe backup found")
	case models.StateRestoring:
		c.logger.Info().Msg("time's up, proceeding with backup restoration")
	case models.StateReconnecting:
		c.logger.Warn().Msg("attempting to reconnect and retry restoration")
	case models.StateRetryRestoring:
		c.logger.Info().Msg("retrying backup restoration")
	default:
		c.logger.Debug().Str("state", state.String()).Msg("state changed")
	}
}

// Countdown reports the time left before the restore is triggered.
func (c *Console) Countdown(remaining time.Duration) {
	secs := int(math.Ceil(remaining.Seconds()))

	if c.interactive {
		if secs == 0 {
			c.endCountdownLine()
			return
		}
		// Trailing spaces clear leftovers when the number gets shorter.
		fmt.Fprintf(c.out, "\rBackup will be restored in %d seconds   ", secs)
		c.counting = true
		return
	}

	if secs > 0 && (secs%logEvery == 0 || secs < logEvery) {
		c.logger.Info().Int("seconds", secs).Msg("backup will be restored")
	}
}

func (c *Console) endCountdownLine() {
	if c.counting {
		fmt.Fprintln(c.out)
		c.counting = false
	}
}

// Summary prints the final status line and, for failures, what to check.
func (c *Console) Summary(result *models.RunResult) {
	c.endCountdownLine()

	msg := StatusMessage(result.Outcome)
	if result.Outcome.Success() {
		fmt.Fprintln(c.out, c.successStyle.Render(msg))
	} else {
		fmt.Fprintln(c.out, c.errorStyle.Render(msg))
		if result.Err != nil {
			fmt.Fprintln(c.out, c.hintStyle.Render("Error: "+result.Err.Error()))
		}
	}

	if hints := Remediation(result.Outcome); len(hints) > 0 {
		fmt.Fprintln(c.out, c.hintStyle.Render("Possible solutions:"))
		for i, h := range hints {
			fmt.Fprintln(c.out, c.hintStyle.Render(fmt.Sprintf("%d. %s", i+1, h)))
		}
	}
}

// SettingsError prints a settings failure, which happens before any run.
func (c *Console) SettingsError(err error) {
	fmt.Fprintln(c.out, c.errorStyle.Render(StatusMessage(models.OutcomeSettingsInvalid)))
	fmt.Fprintln(c.out, c.hintStyle.Render("Error: "+err.Error()))
}

// StatusMessage is the human-readable final line for an outcome.
func StatusMessage(o models.Outcome) string {
	switch o {
	case models.OutcomeNoBackupFound:
		return "Safe backup does not exist, nothing to restore."
	case models.OutcomeRestoreInitiated:
		return "Backup restoration initiated. The router will reboot automatically."
	case models.OutcomeRestoreInitiatedAfterRetry:
		return "Backup restoration retry initiated. The router will reboot automatically."
	case models.OutcomeRestoreFailedAfterRetry:
		return "Could not restore backup after retry. Manual intervention may be required."
	case models.OutcomeConnectionFailed:
		return "Could not connect to the router."
	case models.OutcomeQueryFailed:
		return "Could not list backup files on the router."
	case models.OutcomeSettingsInvalid:
		return "Cannot continue without valid settings. Please check your settings file."
	case models.OutcomeAborted:
		return "Aborted before the backup was restored."
	default:
		return "Run ended in an unknown state."
	}
}

// Remediation lists checks an operator can make for a failed outcome.
func Remediation(o models.Outcome) []string {
	switch o {
	case models.OutcomeConnectionFailed:
		return []string{
			"Verify username and password",
			"Check if the router allows API access",
			"Verify if the router's API service is enabled",
			"Check if your IP is allowed to connect to the router",
		}
	case models.OutcomeQueryFailed:
		return []string{
			"Check that the API user has read permission",
		}
	case models.OutcomeRestoreFailedAfterRetry:
		return []string{
			"Check that the backup file is intact and matches this device",
			"Check the backup password",
			"Restore manually from WinBox or the console",
		}
	default:
		return nil
	}
}

// FormatFiles renders a backup file listing, marking the target.
func FormatFiles(files []models.BackupFile, target string) string {
	if len(files) == 0 {
		return "No backup files found.\n"
	}

	var b strings.Builder
	for _, f := range files {
		marker := " "
		if f.Name == target {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %-40s %10s  %s\n", marker, f.Name, f.Size, f.CreationTime)
	}
	return b.String()
}
