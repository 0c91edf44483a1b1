package imapconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/client"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/teemow/mailmcp/internal/logging"
	"github.com/teemow/mailmcp/internal/mailbox"
)

// Security modes for the IMAP connection.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"
)

const (
	defaultMaxConnections = 10
	defaultDialTimeout    = 30 * time.Second
)

// Config describes how to reach and authenticate against the IMAP server.
type Config struct {
	Host     string
	Port     int
	Security string
	Username string
	Password string

	// MaxConnections bounds concurrently open sessions. Zero means 10.
	MaxConnections int
	// LoginRate is the sustained number of logins per second. Zero
	// disables pacing.
	LoginRate float64
	// CommandTimeout is handed to go-imap as a per-command backstop.
	CommandTimeout time.Duration
	DialTimeout    time.Duration
	// InsecureSkipVerify disables certificate checks, for local bridges
	// with self-signed certificates.
	InsecureSkipVerify bool
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports configuration that can never connect.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("imap host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid imap port %d", c.Port)
	}
	switch c.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return fmt.Errorf("invalid imap security %q, must be one of: tls, starttls, none", c.Security)
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("imap username and password are required")
	}
	return nil
}

// Provider opens authenticated sessions.
type Provider struct {
	cfg     Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.LoginRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LoginRate), 1)
	}

	return &Provider{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConnections)),
		limiter: limiter,
		logger:  logging.WithService(logger, "imap"),
	}, nil
}

// Open implements mailbox.Provider.
func (p *Provider) Open(ctx context.Context) (mailbox.Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a free connection: %w", err)
	}
	release := func() { p.sem.Release(1) }

	if err := p.limiter.Wait(ctx); err != nil {
		release()
		return nil, fmt.Errorf("login rate limit: %w", err)
	}

	c, err := p.connect(ctx)
	if err != nil {
		release()
		return nil, err
	}

	p.logger.Debug("imap session opened", logging.UserHash(p.cfg.Username))
	return &session{c: c, release: release, logger: p.logger}, nil
}

// connect dials and logs in. The connection is torn down if ctx ends
// before login completes.
func (p *Provider) connect(ctx context.Context) (*client.Client, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	c, err := p.login(conn)
	if !stop() {
		if c != nil {
			_ = c.Terminate()
		}
		return nil, fmt.Errorf("connect to %s: %w", p.cfg.Address(), ctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (p *Provider) login(conn net.Conn) (*client.Client, error) {
	addr := p.cfg.Address()
	c, err := client.New(conn)
	if err != nil {
		return nil, fmt.Errorf("greeting from %s: %w", addr, err)
	}
	c.Timeout = p.cfg.CommandTimeout
	c.ErrorLog = slog.NewLogLogger(p.logger.Handler(), slog.LevelWarn)

	if p.cfg.Security == SecurityStartTLS {
		if err := c.StartTLS(p.tlsConfig()); err != nil {
			_ = c.Terminate()
			return nil, fmt.Errorf("starttls with %s: %w", addr, err)
		}
	}
	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		_ = c.Terminate()
		return nil, fmt.Errorf("login as %s: %w", logging.AnonymizeEmail(p.cfg.Username), err)
	}
	return c, nil
}

func (p *Provider) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         p.cfg.Host,
		InsecureSkipVerify: p.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for local bridges
	}
}

func (p *Provider) dial(ctx context.Context) (net.Conn, error) {
	addr := p.cfg.Address()
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if p.cfg.Security == SecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return conn, nil
}
