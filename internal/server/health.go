package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// readinessCheckTimeout bounds each dependency check run by /readyz.
const readinessCheckTimeout = 5 * time.Second

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// HealthChecker serves the liveness and readiness probes. Readiness covers
// the ready flag, server shutdown and every registered dependency check.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startedAt time.Time

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker returns a checker that reports ready. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		sc:        sc,
		startedAt: time.Now(),
		checks:    make(map[string]CheckFunc),
	}
	h.ready.Store(true)
	return h
}

func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// AddCheck registers a named dependency check. A later call with the same
// name replaces the earlier check.
func (h *HealthChecker) AddCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Account string            `json:"account,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// probe evaluates readiness. Dependency checks run concurrently, each under
// its own timeout.
func (h *HealthChecker) probe(ctx context.Context) (string, map[string]string) {
	results := map[string]string{
		"ready":    healthStatusOK,
		"shutdown": healthStatusOK,
	}
	status := healthStatusOK

	if !h.ready.Load() {
		results["ready"] = healthStatusNotReady
		status = healthStatusNotReady
	}
	if h.sc != nil && h.sc.IsShutdown() {
		results["shutdown"] = healthStatusShuttingDown
		status = healthStatusShuttingDown
	}

	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	var (
		resultsMu sync.Mutex
		g         errgroup.Group
	)
	for name, fn := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, readinessCheckTimeout)
			defer cancel()
			outcome := healthStatusOK
			if err := fn(cctx); err != nil {
				outcome = err.Error()
			}
			resultsMu.Lock()
			results[name] = outcome
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if status == healthStatusOK {
		for name := range checks {
			if results[name] != healthStatusOK {
				status = healthStatusNotReady
				break
			}
		}
	}
	return status, results
}

func writeHealth(w http.ResponseWriter, status string, body any) {
	w.Header().Set("Content-Type", "application/json")
	if status == healthStatusOK {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers /healthz. It only shows the process is serving.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, healthStatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers /readyz with 503 unless every check passes.
// Shutdown is reported as "not ready" in the overall status.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, checks := h.probe(r.Context())
		if status == healthStatusShuttingDown {
			status = healthStatusNotReady
		}
		writeHealth(w, status, HealthResponse{Status: status, Checks: checks})
	})
}

// DetailedHealthHandler answers /healthz/detailed with uptime, the account
// being served and the individual check results.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, checks := h.probe(r.Context())
		resp := DetailedHealthResponse{
			Status: status,
			Uptime: time.Since(h.startedAt).Truncate(time.Second).String(),
			Checks: checks,
		}
		if h.sc != nil {
			resp.Account = h.sc.Account()
		}
		writeHealth(w, status, resp)
	})
}

// RegisterHealthEndpoints mounts /healthz, /readyz and /healthz/detailed.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
