package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/remiblancher/ocspcheck/internal/audit"
)

// Server runs the HTTP API until its context ends.
type Server struct {
	cfg     *Config
	version string
	logger  *slog.Logger
	srv     *http.Server
}

// New creates a new Server serving handler.
func New(cfg *Config, version string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.H2C && !cfg.TLSEnabled() {
		handler = h2c.NewHandler(handler, &http2.Server{IdleTimeout: cfg.IdleTimeout})
	}
	return &Server{
		cfg:     cfg,
		version: version,
		logger:  logger,
		srv: &http.Server{
			Addr:         cfg.Address(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		_ = audit.LogServe(s.cfg.Address(), false, err.Error())
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully within the
// configured shutdown timeout. Start and stop are recorded in the audit log.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	addr := ln.Addr().String()
	if err := audit.LogServe(addr, true, "started"); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "server started",
		slog.String("version", s.version),
		slog.String("address", addr),
		slog.Bool("tls", s.cfg.TLSEnabled()),
		slog.Bool("h2c", s.cfg.H2C && !s.cfg.TLSEnabled()))

	errChan := make(chan error, 1)
	go func() {
		if s.cfg.TLSEnabled() {
			errChan <- s.srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- s.srv.Serve(ln)
		}
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = audit.LogServe(addr, false, err.Error())
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.LogAttrs(context.Background(), slog.LevelInfo, "shutting down",
		slog.Any("cause", context.Cause(ctx)))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		_ = audit.LogServe(addr, false, "shutdown: "+err.Error())
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := audit.LogServe(addr, true, "stopped"); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	s.logger.LogAttrs(context.Background(), slog.LevelInfo, "server stopped gracefully")
	return nil
}

// PrintEndpoints writes the available endpoints to w.
func (s *Server) PrintEndpoints(w io.Writer) {
	scheme := "http"
	if s.cfg.TLSEnabled() {
		scheme = "https"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ocspcheck API Server")
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "  Version:  %s\n", s.version)
	fmt.Fprintf(w, "  Address:  %s://%s\n", scheme, s.cfg.Address())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintln(w, "  GET  /health                - Health check")
	fmt.Fprintln(w, "  GET  /ready                 - Readiness check")
	fmt.Fprintln(w, "  GET  /api/openapi.yaml      - OpenAPI specification")
	fmt.Fprintln(w, "  POST /api/v1/ocsp/validate  - Validate an OCSP response (JSON)")
	fmt.Fprintln(w, "  POST /ocsp/validate         - Validate an OCSP response (DER)")
	fmt.Fprintln(w)
}
