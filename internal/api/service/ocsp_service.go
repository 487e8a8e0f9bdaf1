// Package service provides the validation logic shared by the REST API and
// the command line.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/remiblancher/ocspcheck/internal/api/dto"
	"github.com/remiblancher/ocspcheck/internal/audit"
	"github.com/remiblancher/ocspcheck/internal/cose"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

var (
	// ErrInvalidRequest is returned when a request cannot be decoded.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrReceiptsDisabled is returned when a receipt is requested but no
	// receipt key is configured.
	ErrReceiptsDisabled = errors.New("receipts are not enabled")

	// ErrAudit is returned when the audit event for an operation cannot be
	// written. The operation is treated as failed.
	ErrAudit = errors.New("audit log write failed")

	// ErrAborted is returned when the caller's context ends before the
	// validation completes.
	ErrAborted = errors.New("validation aborted")
)

// KindAborted labels validations ended by their context.
const KindAborted = "ABORTED"

// Options configures an OCSPService.
type Options struct {
	// Logger for validation messages. Defaults to slog.Default().
	Logger *slog.Logger

	// Issuer signs receipts. Nil disables receipts.
	Issuer *cose.Issuer

	// Timeout bounds each validation. Zero leaves only the caller's
	// context in effect.
	Timeout time.Duration
}

// Outcome is a successful validation.
type Outcome struct {
	Result  *ocsp.ValidationResult
	Nonce   []byte
	Receipt []byte
}

// OCSPService validates OCSP responses, logging, auditing and counting each
// validation, and issues receipts on request.
type OCSPService struct {
	checker *ocsp.Checker
	issuer  *cose.Issuer
	logger  *slog.Logger
	timeout time.Duration

	validateTotalCounter metric.Int64Counter
	validateErrorCounter metric.Int64Counter
}

// NewOCSPService creates a service around checker.
func NewOCSPService(checker *ocsp.Checker, options Options) (*OCSPService, error) {
	if checker == nil {
		return nil, errors.New("checker is required")
	}
	s := &OCSPService{
		checker: checker,
		issuer:  options.Issuer,
		logger:  options.Logger,
		timeout: options.Timeout,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	meter := otel.Meter("github.com/remiblancher/ocspcheck/internal/api/service")
	var err error
	s.validateTotalCounter, err = meter.Int64Counter("ocspcheck.validate.total")
	if err != nil {
		return nil, fmt.Errorf("service: failed to create otel meter: %w", err)
	}
	s.validateErrorCounter, err = meter.Int64Counter("ocspcheck.validate.errors")
	if err != nil {
		return nil, fmt.Errorf("service: failed to create otel meter: %w", err)
	}
	return s, nil
}

// ReceiptsEnabled reports whether the service can issue receipts.
func (s *OCSPService) ReceiptsEnabled() bool {
	return s.issuer != nil
}

type validation struct {
	result *ocsp.ValidationResult
	err    error
}

// Validate validates a DER-encoded response against nonce. When receipt is
// true a signed receipt is attached to the outcome.
//
// The checker itself is synchronous; Validate stops waiting for it when ctx
// ends or the configured timeout passes and returns ErrAborted.
func (s *OCSPService) Validate(ctx context.Context, der, nonce []byte, receipt bool) (*Outcome, error) {
	if receipt && s.issuer == nil {
		return nil, ErrReceiptsDisabled
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan validation, 1)
	go func() {
		result, err := s.checker.ValidateDER(der, nonce)
		done <- validation{result, err}
	}()

	var v validation
	select {
	case <-ctx.Done():
		v.err = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	case v = <-done:
	}

	s.validateTotalCounter.Add(ctx, 1)
	if v.err != nil {
		return nil, s.fail(ctx, nonce, v.err, time.Since(start))
	}

	if err := audit.LogValidation(v.result, nonce, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAudit, err)
	}

	out := &Outcome{Result: v.result, Nonce: append([]byte(nil), nonce...)}
	if receipt {
		raw, err := s.issuer.Issue(v.result, nonce)
		if err != nil {
			return nil, fmt.Errorf("failed to issue receipt: %w", err)
		}
		if err := audit.LogReceiptIssued("", cose.AlgorithmName(s.issuer.Algorithm()), serials(v.result)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAudit, err)
		}
		out.Receipt = raw
	}

	signer := v.result.SignerCertificate()
	s.logger.LogAttrs(ctx, slog.LevelInfo, "ocsp response validated",
		slog.String("responder", signer.Subject.String()),
		slog.String("algorithm", v.result.SignatureAlgorithm()),
		slog.Int("entries", v.result.Len()),
		slog.Bool("receipt", out.Receipt != nil),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (s *OCSPService) fail(ctx context.Context, nonce []byte, err error, elapsed time.Duration) error {
	kind := ocsp.KindOf(err)
	if errors.Is(err, ErrAborted) {
		kind = KindAborted
	}
	s.validateErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	s.logger.LogAttrs(ctx, slog.LevelWarn, "ocsp response rejected",
		slog.String("kind", kind),
		slog.Duration("elapsed", elapsed),
		slog.Any("err", err))

	if auditErr := audit.LogValidation(nil, nonce, err); auditErr != nil {
		return errors.Join(err, fmt.Errorf("%w: %w", ErrAudit, auditErr))
	}
	return err
}

// ValidateRequest decodes an API request, validates it and builds the API
// response.
func (s *OCSPService) ValidateRequest(ctx context.Context, req *dto.OCSPValidateRequest) (*dto.OCSPValidateResponse, error) {
	der, err := req.Response.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrInvalidRequest, err)
	}
	if len(der) == 0 {
		return nil, fmt.Errorf("%w: response is empty", ErrInvalidRequest)
	}
	nonce, err := hex.DecodeString(req.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrInvalidRequest, err)
	}

	out, err := s.Validate(ctx, der, nonce, req.Receipt)
	if err != nil {
		return nil, err
	}
	return NewValidateResponse(out), nil
}

// NewValidateResponse converts an outcome to its API representation.
func NewValidateResponse(out *Outcome) *dto.OCSPValidateResponse {
	result := out.Result
	resp := &dto.OCSPValidateResponse{
		Valid:              true,
		ProducedAt:         formatTime(result.ProducedAt()),
		SignatureAlgorithm: result.SignatureAlgorithm(),
		Statuses:           []dto.OCSPStatus{},
	}

	if signer := result.SignerCertificate(); signer != nil {
		resp.Responder = &dto.OCSPResponderInfo{
			Name:        signer.Subject.String(),
			Issuer:      signer.Issuer.String(),
			Fingerprint: hex.EncodeToString(cose.CertificateFingerprint(signer)),
			NotAfter:    formatTime(signer.NotAfter),
		}
	}

	for _, info := range result.Statuses() {
		st := dto.OCSPStatus{
			Status:     info.Status.String(),
			ThisUpdate: formatTime(info.ThisUpdate),
		}
		if info.Serial != nil {
			st.Serial = info.Serial.Text(16)
		}
		if !info.NextUpdate.IsZero() {
			st.NextUpdate = formatTime(info.NextUpdate)
		}
		if info.Status == ocsp.CertStatusRevoked {
			code := int(info.RevocationReason)
			st.RevokedAt = formatTime(info.RevocationTime)
			st.RevocationReason = info.RevocationReason.String()
			st.RevocationReasonCode = &code
		}
		resp.Statuses = append(resp.Statuses, st)
	}

	if out.Receipt != nil {
		resp.Receipt = dto.NewBase64(out.Receipt)
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func serials(result *ocsp.ValidationResult) []string {
	var out []string
	for _, info := range result.Statuses() {
		if info.Serial != nil {
			out = append(out, info.Serial.Text(16))
		}
	}
	return out
}
