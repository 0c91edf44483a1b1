package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/teemow/mailmcp/internal/instrumentation"
)

// Transport names accepted by NewHTTPServer.
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

const (
	// DefaultHTTPAddr is the default listen address for HTTP transports.
	// Binding other interfaces is an explicit choice.
	DefaultHTTPAddr = "127.0.0.1:8080"

	// DefaultHTTPWriteTimeout leaves room for a mailbox operation to finish.
	DefaultHTTPWriteTimeout = 2 * time.Minute

	// DefaultRateLimit is the sustained request rate allowed per client IP.
	DefaultRateLimit = 10
	// DefaultRateBurst is the burst size allowed per client IP.
	DefaultRateBurst = 20

	limiterIdleTTL = 10 * time.Minute

	authRealm = "mailmcp"
)

// ErrAuthTokenRequired is returned by NewHTTPServer without an AuthToken.
var ErrAuthTokenRequired = errors.New("an auth token is required for HTTP transports")

// HTTPServerConfig configures the MCP HTTP server.
type HTTPServerConfig struct {
	Addr      string
	Transport string

	// AuthToken is the bearer token clients must send on the MCP
	// endpoints. Health endpoints stay open.
	AuthToken string

	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64
	RateBurst int

	// Health, when set, is served on the same listener.
	Health  *HealthChecker
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// HTTPServer exposes an MCP server over SSE or streamable HTTP.
type HTTPServer struct {
	cfg        HTTPServerConfig
	handler    http.Handler
	tokenSum   [sha256.Size]byte
	httpServer *http.Server
	limiter    *ipLimiter
	mu         sync.Mutex
	closed     bool
}

// NewHTTPServer builds the HTTP handler for the given transport.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, cfg HTTPServerConfig) (*HTTPServer, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultHTTPAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AuthToken == "" {
		return nil, ErrAuthTokenRequired
	}

	s := &HTTPServer{cfg: cfg, tokenSum: sha256.Sum256([]byte(cfg.AuthToken))}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = DefaultRateBurst
		}
		s.limiter = newIPLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	switch cfg.Transport {
	case TransportSSE:
		sseServer := mcpserver.NewSSEServer(mcpServer,
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
		)
		mux.Handle("/sse", s.wrap("/sse", sseServer))
		mux.Handle("/message", s.wrap("/message", sseServer))
	case TransportStreamableHTTP:
		httpServer := mcpserver.NewStreamableHTTPServer(mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
		)
		mux.Handle("/mcp", s.wrap("/mcp", httpServer))
	default:
		return nil, fmt.Errorf("unsupported server type: %s", cfg.Transport)
	}
	if cfg.Health != nil {
		cfg.Health.RegisterHealthEndpoints(mux)
	}

	s.handler = otelhttp.NewHandler(mux, "mcp-http")
	return s, nil
}

// wrap applies rate limiting, bearer authentication and request metrics to
// an MCP endpoint. Rejected requests still count against the rate limit.
func (s *HTTPServer) wrap(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			s.record(r, path, http.StatusTooManyRequests, 0)
			return
		}
		if code, desc := s.authenticate(r); code != "" {
			writeUnauthorized(w, code, desc)
			s.record(r, path, http.StatusUnauthorized, 0)
			return
		}
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.record(r, path, m.Code, m.Duration)
	})
}

// authenticate returns an OAuth error code and description when r does not
// carry the configured bearer token.
func (s *HTTPServer) authenticate(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "missing_token", "Missing Authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "invalid_token", "Invalid Authorization header format"
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	if subtle.ConstantTimeCompare(sum[:], s.tokenSum[:]) != 1 {
		return "invalid_token", "Invalid bearer token"
	}
	return "", ""
}

func writeUnauthorized(w http.ResponseWriter, code, desc string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error=%q, error_description=%q`, authRealm, code, desc))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": desc,
	})
}

func (s *HTTPServer) record(r *http.Request, path string, code int, d time.Duration) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordHTTPRequest(r.Context(), r.Method, path, code, d)
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      DefaultHTTPWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	if s.limiter != nil {
		go s.limiter.sweep(s.cfg.Logger)
	}
	s.cfg.Logger.Info("starting MCP HTTP server",
		slog.String("addr", s.cfg.Addr), slog.String("transport", s.cfg.Transport))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clients  map[string]*client
	done     chan struct{}
	stopOnce sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()
	l.mu.Unlock()
	return c.limiter.Allow()
}

// sweep drops buckets of clients idle for longer than limiterIdleTTL.
func (l *ipLimiter) sweep(logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			removed := 0
			for ip, c := range l.clients {
				if now.Sub(c.lastSeen) > limiterIdleTTL {
					delete(l.clients, ip)
					removed++
				}
			}
			l.mu.Unlock()
			if removed > 0 {
				logger.Debug("dropped idle rate limiters", slog.Int("count", removed))
			}
		}
	}
}

func (l *ipLimiter) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// clientIP returns the host part of RemoteAddr. Proxy headers are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
