// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// APIOptions configures NewAPI.
type APIOptions struct {
	Logger  *slog.Logger
	Metrics HTTPRecorder // optional
	Skip    []glob.Glob  // access-log skip patterns
}

// NewAPI wraps the auth routes with metrics, access logging, and panic
// recovery.
func NewAPI(a Authenticator, opts APIOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(a, WithHandlerLogger(logger))

	mws := make([]Middleware, 0, 3)
	if opts.Metrics != nil {
		mws = append(mws, Instrument(opts.Metrics, h.Route))
	}
	mws = append(mws, AccessLog(logger, opts.Skip), Recovery(logger))
	return Chain(h, mws...)
}

// ServerOptions tunes the HTTP server. Zero timeouts use the defaults.
type ServerOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server timeout defaults.
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	readHeaderTimeout   = 5 * time.Second
	idleTimeout         = 60 * time.Second
)

// Server serves the API on its own listener.
type Server struct {
	addr       string
	handler    http.Handler
	opts       ServerOptions
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a stopped server for handler.
func NewServer(addr string, handler http.Handler, opts ServerOptions) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, opts: opts, logger: logger}
}

// Start listens and serves in the background. The returned channel
// receives a Serve failure and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	srv := s.httpServer
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx ends. Stopping twice is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
