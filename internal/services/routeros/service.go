// Package routeros talks to a MikroTik router through its API service.
package routeros

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/routeros-safeguard/internal/models"
	ros "github.com/go-routeros/routeros/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrConnectionFailed is wrapped by dial and login errors.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrQueryFailed is wrapped by errors listing files on the router.
	ErrQueryFailed = errors.New("backup file query failed")
	// ErrRestoreFailed is wrapped by errors from the backup load call.
	ErrRestoreFailed = errors.New("backup restore failed")
)

// Service defines the interface for router operations.
type Service interface {
	Connect(ctx context.Context, cfg models.ConnectionConfig) (Session, error)
}

// Session is one logged-in API connection.
type Session interface {
	ListBackupFiles(ctx context.Context) ([]models.BackupFile, error)
	RestoreBackup(ctx context.Context, req models.RestoreRequest) error
	// Disconnect releases the connection. It is safe to call more than once.
	Disconnect()
}

// Conn wraps ros.Client for mocking.
type Conn interface {
	RunArgsContext(ctx context.Context, sentence []string) (*ros.Reply, error)
	Close() error
}

// Dialer opens logged-in API connections.
type Dialer interface {
	Dial(ctx context.Context, cfg models.ConnectionConfig) (Conn, error)
}

// DefaultDialer dials the router over TCP, optionally wrapped in TLS.
type DefaultDialer struct{}

// Dial connects and logs in. The timeout bounds both steps and every
// command sent over the returned connection.
func (d *DefaultDialer) Dial(ctx context.Context, cfg models.ConnectionConfig) (Conn, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	netDialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: netDialer,
			Config: &tls.Config{
				ServerName:         cfg.Host,
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // routers usually carry self-signed certs
			},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	client, err := ros.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := client.LoginContext(ctx, cfg.Username, cfg.Password); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("login: %w", err)
	}

	return &deadlineConn{client: client, conn: conn, timeout: cfg.Timeout}, nil
}

// deadlineConn refreshes the socket deadline before every command. The
// client runs in sync mode, where only the socket deadline can interrupt a
// pending read, so cancelling ctx expires the deadline immediately.
type deadlineConn struct {
	client  *ros.Client
	conn    net.Conn
	timeout time.Duration
}

func (c *deadlineConn) RunArgsContext(ctx context.Context, sentence []string) (*ros.Reply, error) {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	reply, err := c.client.RunArgsContext(ctx, sentence)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return reply, err
}

func (c *deadlineConn) Close() error {
	return c.client.Close()
}

// Impl implements the routeros Service interface.
type Impl struct {
	dialer Dialer
	logger zerolog.Logger
}

// New creates a new router service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		dialer: &DefaultDialer{},
		logger: logger,
	}
}

// NewWithDialer creates a new router service with a custom dialer (for testing).
func NewWithDialer(logger zerolog.Logger, dialer Dialer) *Impl {
	return &Impl{
		dialer: dialer,
		logger: logger,
	}
}

// Connect opens a session to the router described by cfg.
func (s *Impl) Connect(ctx context.Context, cfg models.ConnectionConfig) (Session, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	s.logger.Info().
		Str("address", addr).
		Str("user", cfg.Username).
		Bool("tls", cfg.UseTLS).
		Msg("connecting to router")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, addr, err)
	}

	conn, err := s.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, addr, err)
	}

	s.logger.Info().Str("address", addr).Msg("connection successful")

	return &session{
		conn:   conn,
		addr:   addr,
		logger: s.logger.With().Str("address", addr).Logger(),
	}, nil
}

type session struct {
	conn   Conn
	addr   string
	logger zerolog.Logger
	closed bool
}

// ListBackupFiles returns the files of type backup. The filter runs on the router.
func (s *session) ListBackupFiles(ctx context.Context) ([]models.BackupFile, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: session closed", ErrQueryFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	reply, err := s.conn.RunArgsContext(ctx, []string{"/file/print", "?type=backup"})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	files := make([]models.BackupFile, 0, len(reply.Re))
	for _, re := range reply.Re {
		created := re.Map["creation-time"]
		if created == "" {
			created = re.Map["last-modified"]
		}
		files = append(files, models.BackupFile{
			Name:         re.Map["name"],
			Type:         models.ParseFileType(re.Map["type"]),
			Size:         re.Map["size"],
			CreationTime: created,
		})
	}

	s.logger.Debug().Int("count", len(files)).Msg("listed backup files")

	return files, nil
}

// RestoreBackup asks the router to load a backup. The router reboots on
// success, so a nil error only means the request was accepted.
func (s *session) RestoreBackup(ctx context.Context, req models.RestoreRequest) error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrRestoreFailed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	s.logger.Info().Str("backup", req.TargetName).Msg("sending backup load request")

	_, err := s.conn.RunArgsContext(ctx, []string{
		"/system/backup/load",
		"=name=" + req.TargetName,
		"=password=" + req.Password,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRestoreFailed, req.TargetName, err)
	}

	return nil
}

func (s *session) Disconnect() {
	if s.closed {
		return
	}
	s.closed = true

	// The router may already have dropped the connection while rebooting.
	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("error closing router connection")
		return
	}
	s.logger.Debug().Msg("disconnected from router")
}
