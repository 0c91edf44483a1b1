// Package smtp delivers outgoing mail through an authenticated SMTP
// submission server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/teemow/mailmcp/internal/logging"
	"github.com/teemow/mailmcp/internal/mailbox"
)

// Security modes for the submission connection.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"
)

// Config describes the submission server and the account used on it.
type Config struct {
	Host     string
	Port     int
	Security string
	Username string
	Password string
	// From defaults to Username.
	From    string
	Timeout time.Duration

	InsecureSkipVerify bool
}

// Validate reports configuration that can never deliver.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid smtp port %d", c.Port)
	}
	switch c.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return fmt.Errorf("invalid smtp security %q, must be one of: tls, starttls, none", c.Security)
	}
	if c.Username == "" {
		return errors.New("smtp username is required")
	}
	return nil
}

// Sender implements mailbox.Sender.
type Sender struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

var _ mailbox.Sender = (*Sender)(nil)

// NewSender validates cfg and returns a Sender.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{cfg: cfg, logger: logging.WithService(logger, "smtp"), now: time.Now}, nil
}

// Send composes msg and submits it to every To and Cc recipient in one
// transaction. The connection is closed as soon as ctx is done. An
// interruption inside the mail transaction is reported as delivery state
// unknown: the server may have accepted the message before the close.
func (s *Sender) Send(ctx context.Context, msg mailbox.Message) error {
	body, err := Compose(s.cfg.From, msg, s.now())
	if err != nil {
		return err
	}
	rcpt, err := envelopeRecipients(msg)
	if err != nil {
		return err
	}
	envelopeFrom, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return fmt.Errorf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c, stop, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if s.cfg.Timeout > 0 {
		c.CommandTimeout = s.cfg.Timeout
		c.SubmissionTimeout = s.cfg.Timeout
	}

	if s.cfg.Password != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := c.Auth(auth); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("authenticate: %w", ctx.Err())
			}
			return fmt.Errorf("authenticate as %s: %w", logging.AnonymizeEmail(s.cfg.Username), err)
		}
	}
	if err := c.SendMail(envelopeFrom.Address, rcpt, bytes.NewReader(body)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("submission interrupted, delivery state unknown: %w", ctx.Err())
		}
		return fmt.Errorf("submit message: %w", err)
	}
	if err := c.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", logging.Err(err))
	}

	s.logger.Debug("message submitted",
		logging.Count(len(rcpt)),
		slog.Int("bytes", len(body)))
	return nil
}

// dial connects and, for starttls, upgrades the connection. The returned
// stop function detaches the close-on-cancel hook from ctx.
func (s *Sender) dial(ctx context.Context) (*gosmtp.Client, func() bool, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for local bridges
	}
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Security == SecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	if s.cfg.Security != SecurityStartTLS {
		return gosmtp.NewClient(conn), stop, nil
	}
	c, err := gosmtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("starttls with %s: %w", addr, err)
	}
	return c, stop, nil
}
