package audit

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

var (
	// globalWriter is the default audit writer.
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex

	// enabled tracks whether audit logging is active.
	enabled bool
)

// Init installs w as the global audit writer. A nil w disables auditing.
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}

	globalWriter = w
	enabled = true
	return nil
}

// InitFile initializes the global audit logger with a file writer.
// An empty path disables auditing.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}

	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}
	return Init(w)
}

// Close closes the global audit writer and disables auditing.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	err := globalWriter.Close()
	globalWriter = NopWriter{}
	enabled = false
	return err
}

// Enabled returns whether audit logging is active.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Log writes an audit event to the global writer.
func Log(event *Event) error {
	globalMu.RLock()
	w := globalWriter
	globalMu.RUnlock()

	return w.Write(event)
}

// MustLog writes an audit event and returns an error suitable for failing
// the parent operation.
//
// Usage:
//
//	if err := audit.MustLog(event); err != nil {
//	    return nil, err // Operation fails if audit fails
//	}
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

// ValidationEvent builds the OCSP_VALIDATE event for one validation. On
// failure result is nil and err carries the failure kind.
func ValidationEvent(result *ocsp.ValidationResult, nonce []byte, err error) *Event {
	if err != nil {
		return NewEvent(EventOCSPValidate, ResultFailure).
			WithObject(Object{Type: "ocsp_response"}).
			WithContext(Context{
				Kind:   ocsp.KindOf(err),
				Reason: err.Error(),
				Nonce:  hex.EncodeToString(nonce),
			})
	}

	obj := Object{Type: "ocsp_response"}
	if signer := result.SignerCertificate(); signer != nil {
		obj.Subject = signer.Subject.String()
	}
	ctx := Context{
		Nonce:      hex.EncodeToString(nonce),
		Algorithm:  result.SignatureAlgorithm(),
		ProducedAt: result.ProducedAt().UTC().Format(time.RFC3339),
	}
	for _, info := range result.Statuses() {
		obj.Serials = append(obj.Serials, info.Serial.Text(16))
		switch info.Status {
		case ocsp.CertStatusRevoked:
			ctx.Revoked++
		case ocsp.CertStatusUnknown:
			ctx.Unknown++
		}
	}

	return NewEvent(EventOCSPValidate, ResultSuccess).
		WithObject(obj).
		WithContext(ctx)
}

// LogValidation logs the outcome of one validation.
func LogValidation(result *ocsp.ValidationResult, nonce []byte, err error) error {
	return MustLog(ValidationEvent(result, nonce, err))
}

// LogTrustReload logs a reload of the trust store at path.
func LogTrustReload(path string, trusted int, err error) error {
	result := ResultSuccess
	ctx := Context{Trusted: trusted}
	if err != nil {
		result = ResultFailure
		ctx.Reason = err.Error()
	}

	event := NewEvent(EventTrustReloaded, result).
		WithObject(Object{
			Type: "trust_store",
			Path: path,
		}).
		WithContext(ctx)

	return MustLog(event)
}

// LogReceiptIssued logs the issuance of a signed validation receipt.
func LogReceiptIssued(path, algorithm string, serials []string) error {
	event := NewEvent(EventReceiptIssued, ResultSuccess).
		WithObject(Object{
			Type:    "receipt",
			Path:    path,
			Serials: serials,
		}).
		WithContext(Context{
			Algorithm: algorithm,
		})

	return MustLog(event)
}

// LogReceiptVerified logs the verification of a receipt file.
func LogReceiptVerified(path string, success bool, reason string) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventReceiptVerified, result).
		WithObject(Object{
			Type: "receipt",
			Path: path,
		}).
		WithContext(Context{
			Reason: reason,
		})

	return MustLog(event)
}

// LogServe logs the start or stop of the validation API server.
func LogServe(addr string, success bool, reason string) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventServe, result).
		WithObject(Object{
			Type: "server",
			Path: addr,
		}).
		WithContext(Context{
			Reason: reason,
		})

	return MustLog(event)
}
