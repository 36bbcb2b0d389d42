package restorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/fgeck/routeros-safeguard/internal/services/routeros"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps the order of calls across all mocks.
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

// Mock implementations.
type mockSession struct {
	id              int
	rec             *recorder
	listFunc        func(ctx context.Context) ([]models.BackupFile, error)
	restoreFunc     func(ctx context.Context, req models.RestoreRequest) error
	restoreRequests []models.RestoreRequest
	disconnects     int
}

func (m *mockSession) ListBackupFiles(ctx context.Context) ([]models.BackupFile, error) {
	m.rec.add("list#%d", m.id)
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []models.BackupFile{{Name: models.DefaultBackupName, Type: models.FileTypeBackup}}, nil
}

func (m *mockSession) RestoreBackup(ctx context.Context, req models.RestoreRequest) error {
	m.rec.add("restore#%d", m.id)
	m.restoreRequests = append(m.restoreRequests, req)
	if m.restoreFunc != nil {
		return m.restoreFunc(ctx, req)
	}
	return nil
}

func (m *mockSession) Disconnect() {
	m.rec.add("disconnect#%d", m.id)
	m.disconnects++
}

type mockRouterService struct {
	rec         *recorder
	connectFunc func(attempt int) error
	listFunc    func(ctx context.Context) ([]models.BackupFile, error)
	restoreFunc func(attempt int) error
	sessions    []*mockSession
	restores    int
	configs     []models.ConnectionConfig
}

func (m *mockRouterService) Connect(ctx context.Context, cfg models.ConnectionConfig) (routeros.Session, error) {
	attempt := len(m.configs) + 1
	m.configs = append(m.configs, cfg)
	m.rec.add("connect#%d", attempt)

	if m.connectFunc != nil {
		if err := m.connectFunc(attempt); err != nil {
			return nil, err
		}
	}

	session := &mockSession{
		id:       attempt,
		rec:      m.rec,
		listFunc: m.listFunc,
		restoreFunc: func(ctx context.Context, req models.RestoreRequest) error {
			m.restores++
			if m.restoreFunc != nil {
				return m.restoreFunc(m.restores)
			}
			return nil
		},
	}
	m.sessions = append(m.sessions, session)
	return session, nil
}

func (m *mockRouterService) connects() int {
	return len(m.configs)
}

type mockCountdownService struct {
	rec      *recorder
	waitFunc func(ctx context.Context, total time.Duration) error
	waits    []time.Duration
}

func (m *mockCountdownService) Wait(ctx context.Context, total time.Duration, onTick func(remaining time.Duration)) error {
	m.rec.add("wait %s", total)
	m.waits = append(m.waits, total)
	if m.waitFunc != nil {
		return m.waitFunc(ctx, total)
	}
	if onTick != nil {
		onTick(total)
		onTick(0)
	}
	return nil
}

type mockTelegramService struct {
	sendFunc func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
	messages []models.TelegramMessage
}

func (m *mockTelegramService) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	m.messages = append(m.messages, msg)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, cfg, msg)
	}
	return &models.TelegramResult{MessageSent: true}, nil
}

type mockObserver struct {
	states []models.State
	ticks  []time.Duration
}

func (m *mockObserver) StateChanged(state models.State) {
	m.states = append(m.states, state)
}

func (m *mockObserver) Countdown(remaining time.Duration) {
	m.ticks = append(m.ticks, remaining)
}

type fixture struct {
	rec       *recorder
	router    *mockRouterService
	countdown *mockCountdownService
	telegram  *mockTelegramService
	observer  *mockObserver
	runner    *Impl
}

func newFixture() *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:       rec,
		router:    &mockRouterService{rec: rec},
		countdown: &mockCountdownService{rec: rec},
		telegram:  &mockTelegramService{},
		observer:  &mockObserver{},
	}
	f.runner = NewWithServices(testLogger(), f.router, f.countdown, f.telegram, f.observer)
	return f
}

// assertSessionsReleased checks every opened session was disconnected exactly once.
func (f *fixture) assertSessionsReleased(t *testing.T) {
	t.Helper()
	for _, s := range f.router.sessions {
		assert.Equal(t, 1, s.disconnects, "session %d disconnects", s.id)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.Config {
	return models.Config{
		Connection: models.ConnectionConfig{
			Host:                "192.168.88.1",
			Username:            "admin",
			Password:            "secret",
			Port:                8728,
			RestoreDelaySeconds: 900,
		},
		Restore: models.RestoreSettings{BackupName: models.DefaultBackupName},
	}
}

func TestRun_RestoreInitiated(t *testing.T) {
	f := newFixture()

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
	assert.NoError(t, result.Err)
	assert.True(t, result.BackupFound)
	assert.Equal(t, 1, result.ConnectAttempts)
	assert.Equal(t, 1, result.RestoreAttempts)
	assert.Equal(t, []string{
		"connect#1",
		"list#1",
		"wait 15m0s",
		"restore#1",
		"disconnect#1",
	}, f.rec.calls)
	assert.Equal(t, []models.RestoreRequest{{TargetName: "safe-backup.backup", Password: ""}},
		f.router.sessions[0].restoreRequests)
	assert.Equal(t, []models.State{
		models.StateInit,
		models.StateConnected,
		models.StateChecked,
		models.StateWaiting,
		models.StateRestoring,
		models.StateDone,
	}, f.observer.states)
	f.assertSessionsReleased(t)
}

func TestRun_WaitsExactlyConfiguredDelay(t *testing.T) {
	f := newFixture()
	cfg := testConfig()
	cfg.Connection.RestoreDelaySeconds = 60

	result := f.runner.Run(context.Background(), cfg)

	require.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
	assert.Equal(t, []time.Duration{time.Minute}, f.countdown.waits)
	// Countdown ticks are forwarded to the observer.
	assert.Equal(t, []time.Duration{time.Minute, 0}, f.observer.ticks)
}

func TestRun_NoBackupFound(t *testing.T) {
	f := newFixture()
	f.router.listFunc = func(ctx context.Context) ([]models.BackupFile, error) {
		return []models.BackupFile{
			{Name: "nightly.backup", Type: models.FileTypeBackup},
			{Name: "Safe-Backup.backup", Type: models.FileTypeBackup},
			{Name: "safe-backup.backup.old", Type: models.FileTypeBackup},
		}, nil
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeNoBackupFound, result.Outcome)
	assert.True(t, result.Outcome.Success())
	assert.False(t, result.BackupFound)
	assert.Equal(t, 0, result.RestoreAttempts)
	assert.Empty(t, f.countdown.waits)
	assert.Equal(t, 0, f.router.restores)
	assert.NotContains(t, f.observer.states, models.StateWaiting)
	assert.Equal(t, []string{"connect#1", "list#1", "disconnect#1"}, f.rec.calls)
	f.assertSessionsReleased(t)
}

func TestRun_NoBackupFound_EmptyList(t *testing.T) {
	f := newFixture()
	f.router.listFunc = func(ctx context.Context) ([]models.BackupFile, error) {
		return []models.BackupFile{}, nil
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeNoBackupFound, result.Outcome)
	assert.Equal(t, 0, f.router.restores)
	f.assertSessionsReleased(t)
}

func TestRun_ConnectionFailed(t *testing.T) {
	f := newFixture()
	f.router.connectFunc = func(attempt int) error {
		return fmt.Errorf("%w: dial tcp: connection refused", routeros.ErrConnectionFailed)
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeConnectionFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, routeros.ErrConnectionFailed)
	assert.Equal(t, 1, f.router.connects())
	assert.Empty(t, f.router.sessions)
	assert.Empty(t, f.countdown.waits)
	assert.Equal(t, []models.State{models.StateInit, models.StateDone}, f.observer.states)
}

func TestRun_QueryFailed(t *testing.T) {
	f := newFixture()
	f.router.listFunc = func(ctx context.Context) ([]models.BackupFile, error) {
		return nil, fmt.Errorf("%w: timeout", routeros.ErrQueryFailed)
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeQueryFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, routeros.ErrQueryFailed)
	assert.Equal(t, 0, f.router.restores)
	assert.Empty(t, f.countdown.waits)
	f.assertSessionsReleased(t)
}

func TestRun_RestoreInitiatedAfterRetry(t *testing.T) {
	f := newFixture()
	f.router.restoreFunc = func(attempt int) error {
		if attempt == 1 {
			return fmt.Errorf("%w: connection reset", routeros.ErrRestoreFailed)
		}
		return nil
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeRestoreInitiatedAfterRetry, result.Outcome)
	assert.NoError(t, result.Err)
	assert.Equal(t, 2, f.router.connects())
	assert.Equal(t, 2, f.router.restores)
	assert.Equal(t, 2, result.ConnectAttempts)
	assert.Equal(t, 2, result.RestoreAttempts)

	// The old session is released before the new one is opened and the
	// file list is not queried again.
	assert.Equal(t, []string{
		"connect#1",
		"list#1",
		"wait 15m0s",
		"restore#1",
		"disconnect#1",
		"connect#2",
		"restore#2",
		"disconnect#2",
	}, f.rec.calls)
	assert.Equal(t, []models.State{
		models.StateInit,
		models.StateConnected,
		models.StateChecked,
		models.StateWaiting,
		models.StateRestoring,
		models.StateReconnecting,
		models.StateRetryRestoring,
		models.StateDone,
	}, f.observer.states)

	// Same request on both attempts.
	require.Len(t, f.router.sessions, 2)
	assert.Equal(t, f.router.sessions[0].restoreRequests, f.router.sessions[1].restoreRequests)
	f.assertSessionsReleased(t)
}

func TestRun_ReconnectFails(t *testing.T) {
	f := newFixture()
	f.router.restoreFunc = func(attempt int) error {
		return errors.New("session hiccup")
	}
	f.router.connectFunc = func(attempt int) error {
		if attempt == 2 {
			return fmt.Errorf("%w: no route to host", routeros.ErrConnectionFailed)
		}
		return nil
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeConnectionFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, routeros.ErrConnectionFailed)
	assert.Equal(t, 2, f.router.connects())
	assert.Equal(t, 1, f.router.restores)
	assert.Equal(t, []string{
		"connect#1",
		"list#1",
		"wait 15m0s",
		"restore#1",
		"disconnect#1",
		"connect#2",
	}, f.rec.calls)
	f.assertSessionsReleased(t)
}

func TestRun_RestoreFailedAfterRetry(t *testing.T) {
	f := newFixture()
	firstErr := errors.New("bad file")
	retryErr := errors.New("still a bad file")
	f.router.restoreFunc = func(attempt int) error {
		if attempt == 1 {
			return firstErr
		}
		return retryErr
	}

	result := f.runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeRestoreFailedAfterRetry, result.Outcome)
	assert.False(t, result.Outcome.Success())
	assert.ErrorIs(t, result.Err, firstErr)
	assert.ErrorIs(t, result.Err, retryErr)
	// Retry bound is one: no third attempt.
	assert.Equal(t, 2, f.router.restores)
	assert.Equal(t, 2, f.router.connects())
	assert.Len(t, f.countdown.waits, 1)
	f.assertSessionsReleased(t)
}

func TestRun_AbortedDuringWait(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.countdown.waitFunc = func(ctx context.Context, total time.Duration) error {
		cancel()
		return ctx.Err()
	}

	result := f.runner.Run(ctx, testConfig())

	assert.Equal(t, models.OutcomeAborted, result.Outcome)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, f.router.restores)
	assert.Equal(t, []string{"connect#1", "list#1", "wait 15m0s", "disconnect#1"}, f.rec.calls)
	f.assertSessionsReleased(t)
}

func TestRun_AbortedAfterFailedRestoreSkipsRetry(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.router.restoreFunc = func(attempt int) error {
		cancel()
		return errors.New("interrupted")
	}

	result := f.runner.Run(ctx, testConfig())

	assert.Equal(t, models.OutcomeAborted, result.Outcome)
	assert.Equal(t, 1, f.router.connects())
	assert.Equal(t, 1, f.router.restores)
	f.assertSessionsReleased(t)
}

func TestRun_ZeroDelay(t *testing.T) {
	f := newFixture()
	cfg := testConfig()
	cfg.Connection.RestoreDelaySeconds = 0

	result := f.runner.Run(context.Background(), cfg)

	assert.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
	assert.Equal(t, []time.Duration{0}, f.countdown.waits)
}

func TestRun_CustomBackupName(t *testing.T) {
	f := newFixture()
	f.router.listFunc = func(ctx context.Context) ([]models.BackupFile, error) {
		return []models.BackupFile{{Name: "pre-upgrade.backup", Type: models.FileTypeBackup}}, nil
	}
	cfg := testConfig()
	cfg.Restore = models.RestoreSettings{BackupName: "pre-upgrade.backup", BackupPassword: "pw"}

	result := f.runner.Run(context.Background(), cfg)

	require.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
	assert.Equal(t, "pre-upgrade.backup", result.BackupName)
	assert.Equal(t, []models.RestoreRequest{{TargetName: "pre-upgrade.backup", Password: "pw"}},
		f.router.sessions[0].restoreRequests)
}

func TestRun_PassesConnectionConfig(t *testing.T) {
	f := newFixture()
	f.router.restoreFunc = func(attempt int) error {
		if attempt == 1 {
			return errors.New("hiccup")
		}
		return nil
	}
	cfg := testConfig()

	f.runner.Run(context.Background(), cfg)

	require.Len(t, f.router.configs, 2)
	assert.Equal(t, cfg.Connection, f.router.configs[0])
	assert.Equal(t, cfg.Connection, f.router.configs[1])
}

func TestRun_WithTelegram(t *testing.T) {
	f := newFixture()
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "1:A", ChatID: "42"}

	result := f.runner.Run(context.Background(), cfg)

	require.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
	require.Len(t, f.telegram.messages, 1)
	msg := f.telegram.messages[0]
	assert.True(t, msg.Success)
	assert.Equal(t, models.OutcomeRestoreInitiated, msg.Outcome)
	assert.Equal(t, "192.168.88.1", msg.Host)
	assert.Equal(t, "safe-backup.backup", msg.BackupName)
	assert.Equal(t, 1, msg.RestoreAttempts)
	assert.Empty(t, msg.ErrorMessage)
}

func TestRun_WithTelegram_FailureMessage(t *testing.T) {
	f := newFixture()
	f.router.connectFunc = func(attempt int) error {
		return errors.New("connection refused")
	}
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "1:A", ChatID: "42"}

	f.runner.Run(context.Background(), cfg)

	require.Len(t, f.telegram.messages, 1)
	assert.False(t, f.telegram.messages[0].Success)
	assert.Equal(t, models.OutcomeConnectionFailed, f.telegram.messages[0].Outcome)
	assert.Contains(t, f.telegram.messages[0].ErrorMessage, "connection refused")
}

func TestRun_TelegramFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture()
	f.telegram.sendFunc = func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
		return &models.TelegramResult{Error: errors.New("telegram down")}, nil
	}
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "1:A", ChatID: "42"}

	result := f.runner.Run(context.Background(), cfg)

	assert.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
	assert.NoError(t, result.Err)
}

func TestRun_TelegramSentAfterAbort(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.countdown.waitFunc = func(ctx context.Context, total time.Duration) error {
		cancel()
		return ctx.Err()
	}
	var notifyCtxErr error
	f.telegram.sendFunc = func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
		notifyCtxErr = ctx.Err()
		return &models.TelegramResult{MessageSent: true}, nil
	}
	cfg := testConfig()
	cfg.Telegram = &models.TelegramConfig{BotToken: "1:A", ChatID: "42"}

	result := f.runner.Run(ctx, cfg)

	assert.Equal(t, models.OutcomeAborted, result.Outcome)
	require.Len(t, f.telegram.messages, 1)
	assert.NoError(t, notifyCtxErr)
}

func TestRun_NoTelegramWhenNotConfigured(t *testing.T) {
	f := newFixture()

	f.runner.Run(context.Background(), testConfig())

	assert.Empty(t, f.telegram.messages)
}

func TestNewWithServices_NilObserver(t *testing.T) {
	rec := &recorder{}
	runner := NewWithServices(testLogger(), &mockRouterService{rec: rec}, &mockCountdownService{rec: rec}, &mockTelegramService{}, nil)

	result := runner.Run(context.Background(), testConfig())

	assert.Equal(t, models.OutcomeRestoreInitiated, result.Outcome)
}
