// Package dto provides Data Transfer Objects for the REST API.
package dto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

// BinaryData represents binary data with encoding metadata.
type BinaryData struct {
	// Data is the encoded content.
	Data string `json:"data"`

	// Encoding specifies the encoding format: "base64" (default), "hex" or
	// "pem".
	Encoding string `json:"encoding,omitempty"`
}

// NewBase64 wraps raw bytes as base64 BinaryData.
func NewBase64(data []byte) *BinaryData {
	return &BinaryData{
		Data:     base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
	}
}

// Decode decodes the binary data based on its encoding. PEM data yields the
// bytes of its first block.
func (b *BinaryData) Decode() ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("binary data is nil")
	}
	switch b.Encoding {
	case "base64", "":
		return base64.StdEncoding.DecodeString(b.Data)
	case "hex":
		return hex.DecodeString(b.Data)
	case "pem":
		block, _ := pem.Decode([]byte(b.Data))
		if block == nil {
			return nil, fmt.Errorf("no PEM block found")
		}
		return block.Bytes, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", b.Encoding)
	}
}

// APIError represents a standardized error response.
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details provides additional context about the error.
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Status is "ok" or "degraded".
	Status string `json:"status"`

	// Version is the server version.
	Version string `json:"version"`

	// Services lists enabled services and their status.
	Services map[string]string `json:"services,omitempty"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	// Ready indicates if the server is ready to accept requests.
	Ready bool `json:"ready"`

	// Checks lists individual readiness checks.
	Checks map[string]bool `json:"checks,omitempty"`
}
