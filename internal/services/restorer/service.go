// Package restorer orchestrates the safe backup restore.
package restorer

import (
	"context"
	"errors"
	"time"

	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/fgeck/routeros-safeguard/internal/services/countdown"
	"github.com/fgeck/routeros-safeguard/internal/services/routeros"
	"github.com/fgeck/routeros-safeguard/internal/services/telegram"
	"github.com/rs/zerolog"
)

const notifyTimeout = 30 * time.Second

// Service defines the interface for the restore runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config) *models.RunResult
}

// Observer receives progress of a run. Calls happen on the goroutine
// executing Run.
type Observer interface {
	StateChanged(state models.State)
	Countdown(remaining time.Duration)
}

type nopObserver struct{}

func (nopObserver) StateChanged(models.State) {}
func (nopObserver) Countdown(time.Duration) {}

// Impl implements the restorer Service interface.
type Impl struct {
	routerSvc    routeros.Service
	countdownSvc countdown.Service
	telegramSvc  telegram.Service
	observer     Observer
	logger       zerolog.Logger
}

// New creates a new restore runner. observer may be nil.
func New(logger zerolog.Logger, observer Observer) *Impl {
	return NewWithServices(
		logger,
		routeros.New(logger),
		countdown.New(logger),
		telegram.New(logger),
		observer,
	)
}

// NewWithServices creates a new restore runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	routerSvc routeros.Service,
	countdownSvc countdown.Service,
	telegramSvc telegram.Service,
	observer Observer,
) *Impl {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Impl{
		routerSvc:    routerSvc,
		countdownSvc: countdownSvc,
		telegramSvc:  telegramSvc,
		observer:     observer,
		logger:       logger,
	}
}

// Run drives one restore attempt to a terminal outcome. At most one router
// session is open at any time and every opened session is released before
// Run returns.
//
//nolint:gocognit,gocyclo // the restore workflow is a linear state machine
func (s *Impl) Run(ctx context.Context, cfg models.Config) *models.RunResult {
	req := cfg.Restore.Request()
	result := &models.RunResult{
		Host:       cfg.Connection.Host,
		BackupName: req.TargetName,
		StartTime:  time.Now(),
	}

	s.logger.Info().
		Str("host", cfg.Connection.Host).
		Str("backup", req.TargetName).
		Int("delay_seconds", cfg.Connection.RestoreDelaySeconds).
		Msg("starting safeguard run")

	defer func() {
		result.Duration = time.Since(result.StartTime)
		s.observer.StateChanged(models.StateDone)
		s.logResult(result)

		// Send notification if configured
		if cfg.Telegram != nil {
			s.sendNotification(ctx, *cfg.Telegram, result)
		}
	}()

	var session routeros.Session
	release := func() {
		if session != nil {
			session.Disconnect()
			session = nil
		}
	}
	defer release()

	s.observer.StateChanged(models.StateInit)

	// Step 1: Connect
	sess, err := s.connect(ctx, cfg.Connection, result)
	if err != nil {
		return s.fail(ctx, result, models.OutcomeConnectionFailed, err)
	}
	session = sess
	s.observer.StateChanged(models.StateConnected)

	// Step 2: Check for the safe backup
	files, err := session.ListBackupFiles(ctx)
	if err != nil {
		return s.fail(ctx, result, models.OutcomeQueryFailed, err)
	}
	result.BackupFound = models.ContainsBackup(files, req.TargetName)
	s.observer.StateChanged(models.StateChecked)

	s.logger.Info().
		Int("backup_files", len(files)).
		Bool("found", result.BackupFound).
		Str("backup", req.TargetName).
		Msg("backup files checked")

	if !result.BackupFound {
		result.Outcome = models.OutcomeNoBackupFound
		return result
	}

	// Step 3: Safety window
	delay := cfg.Connection.RestoreDelay()
	s.observer.StateChanged(models.StateWaiting)
	s.logger.Info().
		Dur("delay", delay).
		Msg("safe backup found, waiting before restore")

	if err := s.countdownSvc.Wait(ctx, delay, s.observer.Countdown); err != nil {
		result.Err = err
		result.Outcome = models.OutcomeAborted
		return result
	}

	// Step 4: Restore
	s.observer.StateChanged(models.StateRestoring)
	result.RestoreAttempts++
	firstErr := session.RestoreBackup(ctx, req)
	if firstErr == nil {
		result.Outcome = models.OutcomeRestoreInitiated
		return result
	}

	if ctx.Err() != nil {
		return s.fail(ctx, result, models.OutcomeAborted, firstErr)
	}

	s.logger.Warn().
		Err(firstErr).
		Msg("restore failed, reconnecting for a single retry")

	// Step 5: Reconnect on a fresh session
	s.observer.StateChanged(models.StateReconnecting)
	release()

	sess, err = s.connect(ctx, cfg.Connection, result)
	if err != nil {
		return s.fail(ctx, result, models.OutcomeConnectionFailed, errors.Join(firstErr, err))
	}
	session = sess

	// Step 6: Single retry
	s.observer.StateChanged(models.StateRetryRestoring)
	result.RestoreAttempts++
	if retryErr := session.RestoreBackup(ctx, req); retryErr != nil {
		return s.fail(ctx, result, models.OutcomeRestoreFailedAfterRetry, errors.Join(firstErr, retryErr))
	}

	result.Outcome = models.OutcomeRestoreInitiatedAfterRetry
	return result
}

func (s *Impl) connect(ctx context.Context, cfg models.ConnectionConfig, result *models.RunResult) (routeros.Session, error) {
	result.ConnectAttempts++
	return s.routerSvc.Connect(ctx, cfg)
}

// fail records a failed outcome. A cancelled context takes precedence:
// the operator stopped the run and no further step is taken.
func (s *Impl) fail(ctx context.Context, result *models.RunResult, outcome models.Outcome, err error) *models.RunResult {
	if ctx.Err() != nil {
		outcome = models.OutcomeAborted
	}
	result.Outcome = outcome
	result.Err = err
	return result
}

func (s *Impl) logResult(result *models.RunResult) {
	var ev *zerolog.Event
	if result.Outcome.Success() {
		ev = s.logger.Info()
	} else {
		ev = s.logger.Error().Err(result.Err)
	}

	ev.Str("outcome", result.Outcome.String()).
		Int("connect_attempts", result.ConnectAttempts).
		Int("restore_attempts", result.RestoreAttempts).
		Dur("duration", result.Duration).
		Msg("safeguard run finished")
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.TelegramConfig, result *models.RunResult) {
	// The run context may already be cancelled by a signal; the operator
	// should still hear about it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	msg := models.TelegramMessage{
		Success:         result.Outcome.Success(),
		Outcome:         result.Outcome,
		Host:            result.Host,
		BackupName:      result.BackupName,
		StartTime:       result.StartTime,
		Duration:        result.Duration,
		ConnectAttempts: result.ConnectAttempts,
		RestoreAttempts: result.RestoreAttempts,
	}
	if result.Err != nil {
		msg.ErrorMessage = result.Err.Error()
	}

	res, err := s.telegramSvc.SendNotification(ctx, cfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if res.Error != nil {
		s.logger.Error().Err(res.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
