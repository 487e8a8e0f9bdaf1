package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/ocspcheck/internal/api/handler"
	"github.com/remiblancher/ocspcheck/internal/api/router"
	"github.com/remiblancher/ocspcheck/internal/api/server"
	"github.com/remiblancher/ocspcheck/internal/api/service"
	"github.com/remiblancher/ocspcheck/internal/audit"
	"github.com/remiblancher/ocspcheck/internal/trust"
)

// Serve command flags
var (
	servePort          int
	serveHost          string
	serveRoots         string
	serveIntermediates string
	serveWatch         bool
	serveTLSCert       string
	serveTLSKey        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validator over HTTP",
	Long: `Start an HTTP server that validates OCSP responses.

Endpoints:
  POST /api/v1/ocsp/validate   JSON request with the response and nonce
  POST /ocsp/validate          DER response body, ?nonce=<hex>&receipt=true
  GET  /health, /ready         Health and readiness checks

Cleartext HTTP/2 (h2c) is served alongside HTTP/1.1 unless server.h2c is
false. With --watch the trust store is reloaded when its files change; a
failed reload keeps the previous certificates.

Every validation, trust store reload and receipt is recorded in the audit log
when one is configured.

Examples:
  # Serve with a config file
  ocspcheck serve --config ocspcheck.yaml

  # Serve with flags
  ocspcheck serve --port 8080 --roots /etc/ocspcheck/roots --watch

  # Serve with TLS
  ocspcheck serve --port 8443 --roots ca.crt --tls-cert server.crt --tls-key server.key`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: all interfaces)")
	serveCmd.Flags().StringVar(&serveRoots, "roots", "", "Trust anchors (PEM/DER file or directory)")
	serveCmd.Flags().StringVar(&serveIntermediates, "intermediates", "", "Intermediate certificates (file or directory)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the trust store when its files change")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Flags override the config file
	tc := cfg.Trust
	if serveRoots != "" {
		tc.Roots = serveRoots
	}
	if serveIntermediates != "" {
		tc.Intermediates = serveIntermediates
	}
	tc.Watch = tc.Watch || serveWatch
	if tc.Roots == "" {
		return fmt.Errorf("--roots is required (or trust.roots in the config file)")
	}

	repo, err := trust.NewFileRepository(tc.Roots, tc.Intermediates, trust.Options{
		Debounce: tc.Debounce,
		Logger:   logger,
		OnReload: func(ctx context.Context, trusted int, err error) {
			if auditErr := audit.LogTrustReload(tc.Roots, trusted, err); auditErr != nil {
				logger.ErrorContext(ctx, "failed to audit trust store reload", "err", auditErr)
			}
		},
	})
	if err != nil {
		_ = audit.LogTrustReload(tc.Roots, 0, err)
		return err
	}
	defer func() { _ = repo.Close() }()
	if err := audit.LogTrustReload(tc.Roots, len(repo.TrustedCertificates()), nil); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	if tc.Watch {
		go func() {
			if err := repo.Watch(ctx); err != nil {
				logger.ErrorContext(ctx, "trust store watcher stopped", "err", err)
			}
		}()
	}

	checker, err := newChecker(repo, tc, cfg.Validation)
	if err != nil {
		return err
	}
	issuer, err := newReceiptIssuer(cfg.Receipt)
	if err != nil {
		return err
	}
	svc, err := service.NewOCSPService(checker, service.Options{
		Logger:  logger,
		Issuer:  issuer,
		Timeout: cfg.Validation.Timeout,
	})
	if err != nil {
		return err
	}

	h := router.New(&router.Config{
		Version:      version,
		Service:      svc,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
		Ready: map[string]handler.ReadinessCheck{
			"trust_store": func() bool { return len(repo.TrustedCertificates()) > 0 },
		},
	})

	scfg := server.FromConfig(cfg.Server)
	if servePort != 0 {
		scfg.Port = servePort
	}
	if serveHost != "" {
		scfg.Host = serveHost
	}
	scfg.TLSCert = serveTLSCert
	scfg.TLSKey = serveTLSKey

	srv := server.New(scfg, version, h, logger)
	srv.PrintEndpoints(cmd.OutOrStdout())
	return srv.Run(ctx)
}
