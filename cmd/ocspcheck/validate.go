package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	apierrors "github.com/remiblancher/ocspcheck/internal/api/errors"
	"github.com/remiblancher/ocspcheck/internal/api/service"
	"github.com/remiblancher/ocspcheck/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate <response-file>",
	Short: "Validate an OCSP response",
	Long: `Validate a DER-encoded OCSP response against the request nonce and the
trust store. Use "-" to read the response from standard input.

On success the status of every certificate in the response is printed. On
failure the failure kind is printed (for example NONCE_MISMATCH or
UNTRUSTED_SIGNER) and the command exits non-zero.

Examples:
  # Validate a response
  ocspcheck validate response.der --nonce 0a1b2c3d --roots ca.crt

  # Require the OCSPSigning EKU on delegated responders
  ocspcheck validate response.der --nonce 0a1b2c3d --roots ca.crt --require-ocsp-eku

  # Write a signed receipt
  ocspcheck validate response.der --nonce 0a1b2c3d --roots ca.crt \
    --receipt-key receipt.key --receipt-cert receipt.crt --receipt-out receipt.cbor

  # JSON output
  curl -s ... | ocspcheck validate - --nonce 0a1b2c3d --roots ca.crt --json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var (
	validateNonce            string
	validateRoots            string
	validateIntermediates    string
	validateRequireOCSPEKU   bool
	validateRejectDuplicates bool
	validateReceiptKey       string
	validateReceiptCert      string
	validateReceiptOut       string
	validateJSON             bool
)

func init() {
	validateCmd.Flags().StringVar(&validateNonce, "nonce", "", "Request nonce (hex, required)")
	validateCmd.Flags().StringVar(&validateRoots, "roots", "", "Trust anchors (PEM/DER file or directory)")
	validateCmd.Flags().StringVar(&validateIntermediates, "intermediates", "", "Intermediate certificates (file or directory)")
	validateCmd.Flags().BoolVar(&validateRequireOCSPEKU, "require-ocsp-eku", false, "Require the OCSPSigning EKU on the responder certificate")
	validateCmd.Flags().BoolVar(&validateRejectDuplicates, "reject-duplicates", false, "Reject responses that report a serial more than once")
	validateCmd.Flags().StringVar(&validateReceiptKey, "receipt-key", "", "Private key for signing a receipt (PEM)")
	validateCmd.Flags().StringVar(&validateReceiptCert, "receipt-cert", "", "Certificate embedded in the receipt (PEM)")
	validateCmd.Flags().StringVar(&validateReceiptOut, "receipt-out", "", "Write a signed receipt to this file")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output as JSON")

	_ = validateCmd.MarkFlagRequired("nonce")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	der, err := cli.ReadInput(args[0])
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	nonce, err := cli.ParseHex(validateNonce)
	if err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}

	// Flags override the config file
	tc := cfg.Trust
	if validateRoots != "" {
		tc.Roots = validateRoots
	}
	if validateIntermediates != "" {
		tc.Intermediates = validateIntermediates
	}
	tc.RequireOCSPSigning = tc.RequireOCSPSigning || validateRequireOCSPEKU
	vc := cfg.Validation
	vc.RejectDuplicateSerials = vc.RejectDuplicateSerials || validateRejectDuplicates
	rc := cfg.Receipt
	if validateReceiptKey != "" {
		rc.Key = validateReceiptKey
		rc.Certificate = validateReceiptCert
	}
	if validateReceiptOut != "" && rc.Key == "" {
		return fmt.Errorf("--receipt-out requires --receipt-key (or receipt.key in the config file)")
	}

	repo, err := loadStaticRepository(tc)
	if err != nil {
		return err
	}
	checker, err := newChecker(repo, tc, vc)
	if err != nil {
		return err
	}
	issuer, err := newReceiptIssuer(rc)
	if err != nil {
		return err
	}
	svc, err := service.NewOCSPService(checker, service.Options{
		Logger:  logger,
		Issuer:  issuer,
		Timeout: vc.Timeout,
	})
	if err != nil {
		return err
	}

	outcome, err := svc.Validate(context.Background(), der, nonce, validateReceiptOut != "")
	if err != nil {
		if validateJSON {
			_, apiErr := apierrors.MapError(err)
			return writeJSON(cmd, apiErr, err)
		}
		cli.PrintValidationError(out, err, isTerminal(out))
		return err
	}

	if outcome.Receipt != nil {
		if err := cli.WriteOutput(validateReceiptOut, outcome.Receipt); err != nil {
			return err
		}
	}

	resp := service.NewValidateResponse(outcome)
	if validateJSON {
		return writeJSON(cmd, resp, nil)
	}
	cli.PrintValidation(out, resp, isTerminal(out))
	if outcome.Receipt != nil {
		fmt.Fprintf(out, "\nReceipt written to %s\n", validateReceiptOut)
	}
	return nil
}

// writeJSON prints v as indented JSON and returns failure.
func writeJSON(cmd *cobra.Command, v any, failure error) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return failure
}
