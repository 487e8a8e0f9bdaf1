// Package config loads the ocspcheck YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvConfig   = "OCSPCHECK_CONFIG"
	EnvAuditLog = "OCSPCHECK_AUDIT_LOG"
)

// Config is the top-level configuration.
type Config struct {
	Trust      TrustConfig      `yaml:"trust"`
	Server     ServerConfig     `yaml:"server"`
	Audit      AuditConfig      `yaml:"audit"`
	Receipt    ReceiptConfig    `yaml:"receipt"`
	Validation ValidationConfig `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
}

// TrustConfig locates the certificates responder certificates are
// validated against.
type TrustConfig struct {
	// Roots is a PEM/DER file or a directory of trust anchors.
	Roots string `yaml:"roots"`

	// Intermediates is an optional file or directory of untrusted
	// intermediate certificates.
	Intermediates string `yaml:"intermediates"`

	// Watch reloads the trust store when its files change.
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`

	// RequireOCSPSigning requires the id-kp-OCSPSigning extended key usage
	// on responder certificates.
	RequireOCSPSigning bool `yaml:"require_ocsp_signing_eku"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// H2C serves cleartext HTTP/2 alongside HTTP/1.1.
	H2C bool `yaml:"h2c"`

	// MaxBodyBytes bounds the size of a request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuditConfig controls the hash-chained audit log.
type AuditConfig struct {
	// Path of the JSONL audit log. Empty disables auditing.
	Path string `yaml:"path"`
}

// ReceiptConfig controls signed validation receipts.
type ReceiptConfig struct {
	// Key is the PEM private key receipts are signed with. Empty disables
	// receipts.
	Key string `yaml:"key"`

	// Certificate is an optional certificate for Key, embedded in receipts.
	Certificate string `yaml:"certificate"`
}

// ValidationConfig tunes the response checker.
type ValidationConfig struct {
	// RejectDuplicateSerials fails validation of a response that reports
	// the same serial number twice.
	RejectDuplicateSerials bool `yaml:"reject_duplicate_serials"`

	// Timeout bounds a single validation. Zero means no bound.
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig controls technical logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Trust: TrustConfig{
			Debounce: 100 * time.Millisecond,
		},
		Server: ServerConfig{
			Port:            8080,
			H2C:             true,
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Validation: ValidationConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path, falling back to the file named
// by OCSPCHECK_CONFIG, and to the defaults when neither is set. Values in the
// file override the defaults; OCSPCHECK_AUDIT_LOG overrides audit.path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvAuditLog); v != "" {
		cfg.Audit.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"validation.timeout":      c.Validation.Timeout,
		"trust.debounce":          c.Trust.Debounce,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Trust.Watch && c.Trust.Roots == "" {
		return fmt.Errorf("trust.watch requires trust.roots")
	}
	if c.Trust.Intermediates != "" && c.Trust.Roots == "" {
		return fmt.Errorf("trust.intermediates requires trust.roots")
	}
	if c.Receipt.Certificate != "" && c.Receipt.Key == "" {
		return fmt.Errorf("receipt.certificate requires receipt.key")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Address returns the listen address of the HTTP API.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}
