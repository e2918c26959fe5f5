// Package controlplane serves the local daemon API used by the CLI to manage sync sessions.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	"github.com/openmined/bucketsync/internal/controlplane/middleware"
	"github.com/openmined/bucketsync/internal/utils"
)

const (
	DefaultAddr      = "127.0.0.1:7938"
	DefaultRateLimit = middleware.DefaultRate
)

// Config contains configuration for the control plane server
type Config struct {
	Addr      string // Address to bind the control plane server
	AuthToken string // Access token for the control plane server
	RateLimit string // limiter rate, e.g. "20-S"
}

func (c *Config) Validate() error {
	if _, err := addrToURL(c.Addr); err != nil {
		return err
	}
	if c.RateLimit == "" {
		return errors.New("rate limit required")
	}
	return nil
}

// Deps are the services the routes expose.
type Deps struct {
	Sessions handlers.SessionManager
	Syncer   handlers.Syncer
	Events   handlers.EventSource
	History  handlers.HistoryLister
}

type Server struct {
	config   *Config
	server   *http.Server
	listener net.Listener
}

func New(config *Config, deps *Deps) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("control plane config: %w", err)
	}

	routes, err := SetupRoutes(deps, &RouteConfig{
		AuthToken: config.AuthToken,
		RateLimit: config.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// no WriteTimeout, one-shot syncs and event streams are long lived
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return &Server{
		config: config,
		server: httpServer,
	}, nil
}

// Listen binds the address. Useful with ":0" to learn the chosen port before Serve.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	return nil
}

// URL is the base url clients should use.
func (s *Server) URL() string {
	addr := s.config.Addr
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	u, _ := addrToURL(addr)
	return u
}

// Start serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	slog.Info("control plane start", "url", s.URL(), "token", utils.MaskSecret(s.config.AuthToken))
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

// addrToURL turns a listen address into an http url. A missing host means all interfaces.
func addrToURL(addr string) (string, error) {
	if addr == "" || strings.Contains(addr, "://") {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("invalid address %q: missing port", addr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
