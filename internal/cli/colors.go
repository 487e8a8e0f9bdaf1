// Package cli holds helpers shared by the ocspcheck commands.
package cli

// ANSI color codes for terminal output.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

// FormatStatus returns a colored status string. Color is applied only when
// color is true, so output redirected to a file stays plain.
func FormatStatus(status string, color bool) string {
	if !color {
		return status
	}
	switch status {
	case "good", "valid", "PASSED":
		return ColorGreen + status + ColorReset
	case "revoked", "invalid", "FAILED":
		return ColorRed + status + ColorReset
	case "unknown":
		return ColorYellow + status + ColorReset
	default:
		return status
	}
}
