// Package http provides inbound HTTP adapters for the oracle pusher.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/oracle-pusher/internal/ports/inbound"
)

// HealthServerConfig holds configuration for the health server.
type HealthServerConfig struct {
	// Addr is the address to listen on (e.g., ":8080"). Port 0 picks a free port.
	Addr string

	// Logger for the health server
	Logger *slog.Logger

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// Routes registers additional handlers on the same listener.
	Routes func(mux *http.ServeMux)
}

// HealthServerConfigDefaults returns a config with default values.
func HealthServerConfigDefaults() HealthServerConfig {
	return HealthServerConfig{
		Addr:         ":8080",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// HealthServer serves the health checks an orchestrator uses to roll the pusher.
//
// Endpoints:
//   - GET /health/ready  - 200 once feed state has been seeded from the chain
//   - GET /health/live   - 200 while update cycles keep completing
//   - GET /health        - both flags, for dashboards and load balancers
//
// Every check reports 503 once shuttingDown is set, so a replacement task
// takes over before this one stops sending transactions.
type HealthServer struct {
	server       *http.Server
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger

	listener net.Listener
}

// NewHealthServer creates a new health server.
func NewHealthServer(config HealthServerConfig, checker inbound.HealthChecker, shuttingDown *atomic.Bool) *HealthServer {
	defaults := HealthServerConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if shuttingDown == nil {
		shuttingDown = new(atomic.Bool)
	}

	hs := &HealthServer{
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       config.Logger.With("component", "health-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, _ *http.Request) {
		hs.report(w, checker.IsReady, "ready", "not_ready")
	})
	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, _ *http.Request) {
		hs.report(w, checker.IsHealthy, "healthy", "unhealthy")
	})
	mux.HandleFunc("GET /health", hs.handleHealth)
	if config.Routes != nil {
		config.Routes(mux)
	}

	hs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return hs
}

// Start binds the listen address and serves in a goroutine. It fails if the
// address cannot be bound.
func (hs *HealthServer) Start() error {
	ln, err := net.Listen("tcp", hs.server.Addr)
	if err != nil {
		return fmt.Errorf("health server listen on %s: %w", hs.server.Addr, err)
	}
	hs.listener = ln

	hs.logger.Info("starting health server", "addr", ln.Addr().String())
	go func() {
		if err := hs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("health server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (hs *HealthServer) Addr() string {
	if hs.listener != nil {
		return hs.listener.Addr().String()
	}
	return hs.server.Addr
}

// Shutdown gracefully stops the health server.
func (hs *HealthServer) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) report(w http.ResponseWriter, check func() bool, pass, fail string) {
	switch {
	case hs.shuttingDown.Load():
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
	case check():
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": pass})
	default:
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": fail})
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Ready        bool   `json:"ready"`
	Healthy      bool   `json:"healthy"`
	ShuttingDown bool   `json:"shuttingDown"`
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "shutting_down", ShuttingDown: true})
		return
	}

	resp := healthResponse{
		Status:  "ok",
		Ready:   hs.checker.IsReady(),
		Healthy: hs.checker.IsHealthy(),
	}
	code := http.StatusOK
	if !resp.Ready || !resp.Healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	hs.respondJSON(w, code, resp)
}

func (hs *HealthServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode JSON response", "error", err)
	}
}
