// Command ocspcheck validates OCSP responses against a request nonce and a
// trust store, serves the validator over HTTP and verifies the signed
// receipts it issues.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/ocspcheck/internal/audit"
	"github.com/remiblancher/ocspcheck/internal/config"
	"github.com/remiblancher/ocspcheck/internal/crypto"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath   string
	auditLogPath string
	logLevel     string
)

// Loaded by the root command before any subcommand runs.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ocspcheck",
	Short: "OCSP response validator",
	Long: `ocspcheck validates OCSP responses (RFC 6960) against the nonce sent in
the request and a trust store for the responder certificate.

Validation is fail-fast: the response status, the nonce, the responder
certificate chain and the signature are checked in that order, and the first
failure is reported with a machine-readable kind.

Supported signature algorithms:
  Classical: RSA (PKCS#1 v1.5), ECDSA (P-256, P-384, P-521), Ed25519, Ed448
  PQC:       ML-DSA-44, ML-DSA-65, ML-DSA-87 (FIPS 204), SLH-DSA (FIPS 205)

Examples:
  # Validate a response
  ocspcheck validate response.der --nonce 0a1b2c3d --roots ca.crt

  # Validate and write a signed receipt
  ocspcheck validate response.der --nonce 0a1b2c3d --roots ca.crt \
    --receipt-key receipt.key --receipt-out receipt.cbor

  # Serve the validator over HTTP
  ocspcheck serve --config ocspcheck.yaml`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger, err = cfg.Log.NewLogger(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		crypto.Setup()

		// --audit-log wins over OCSPCHECK_AUDIT_LOG and the config file
		if auditLogPath != "" {
			cfg.Audit.Path = auditLogPath
		}
		if cfg.Audit.Path != "" {
			if err := audit.InitFile(cfg.Audit.Path); err != nil {
				return fmt.Errorf("failed to initialize audit log: %w", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Close audit log
		return audit.Close()
	},
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML configuration file (or set "+config.EnvConfig+" env var)")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set "+config.EnvAuditLog+" env var)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(receiptCmd)
	rootCmd.AddCommand(auditCmd)
}
