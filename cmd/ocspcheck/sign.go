package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/ocspcheck/internal/cli"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Create a signed OCSP response",
	Long: `Create a signed OCSP response for one or more serial numbers, for testing
validators and reproducing responder behavior.

The response is signed by the responder key. If no responder certificate is
given, the CA certificate signs directly (CA-signed mode); otherwise the
responder certificate is delegated and the CA certificate is embedded after
it.

Examples:
  # Good status with a nonce
  ocspcheck sign --serial 0A1B2C --status good --nonce 0a1b2c3d \
    --ca ca.crt --cert responder.crt --key responder.key --out response.der

  # Revoked status with reason
  ocspcheck sign --serial 0A1B2C --status revoked --revocation-time 2024-01-15T10:00:00Z \
    --revocation-reason keyCompromise --ca ca.crt --key ca.key --nonce 0a1b2c3d --out response.der

  # Unsuccessful response (no signature)
  ocspcheck sign --error-status tryLater --out response.der`,
	RunE: runSign,
}

var (
	signSerials          []string
	signStatus           string
	signRevocationTime   string
	signRevocationReason string
	signCA               string
	signCert             string
	signKey              string
	signNonce            string
	signValidity         time.Duration
	signByName           bool
	signErrorStatus      string
	signOutput           string
)

func init() {
	signCmd.Flags().StringSliceVar(&signSerials, "serial", nil, "Certificate serial number (hex, repeatable)")
	signCmd.Flags().StringVar(&signStatus, "status", "good", "Certificate status (good, revoked, unknown)")
	signCmd.Flags().StringVar(&signRevocationTime, "revocation-time", "", "Revocation time (RFC3339 format, default: now)")
	signCmd.Flags().StringVar(&signRevocationReason, "revocation-reason", "", "Revocation reason (keyCompromise, cACompromise, affiliationChanged, superseded, cessationOfOperation, certificateHold, removeFromCRL, privilegeWithdrawn, aACompromise)")
	signCmd.Flags().StringVar(&signCA, "ca", "", "CA certificate that issued the certificates (PEM)")
	signCmd.Flags().StringVar(&signCert, "cert", "", "Responder certificate (PEM, default: the CA certificate)")
	signCmd.Flags().StringVar(&signKey, "key", "", "Responder private key (PEM)")
	signCmd.Flags().StringVar(&signNonce, "nonce", "", "Nonce to include (hex, default: none)")
	signCmd.Flags().DurationVar(&signValidity, "validity", time.Hour, "Response validity period (0 omits nextUpdate)")
	signCmd.Flags().BoolVar(&signByName, "responder-by-name", false, "Identify the responder by name instead of key hash")
	signCmd.Flags().StringVar(&signErrorStatus, "error-status", "", "Write an unsuccessful response with this status (malformedRequest, internalError, tryLater, sigRequired, unauthorized)")
	signCmd.Flags().StringVarP(&signOutput, "out", "o", "", "Output file (required)")

	_ = signCmd.MarkFlagRequired("out")
}

func runSign(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if signErrorStatus != "" {
		status, err := cli.ParseResponseStatus(signErrorStatus)
		if err != nil {
			return err
		}
		der, err := ocsp.NewErrorResponse(status)
		if err != nil {
			return err
		}
		if err := cli.WriteOutput(signOutput, der); err != nil {
			return err
		}
		fmt.Fprintf(out, "OCSP response written to %s\n", signOutput)
		fmt.Fprintf(out, "  Response Status: %s\n", status)
		return nil
	}

	params, err := signParams()
	if err != nil {
		return err
	}
	der, err := cli.BuildOCSPSignResponse(params)
	if err != nil {
		return err
	}
	if err := cli.WriteOutput(signOutput, der); err != nil {
		return err
	}
	cli.PrintOCSPSignResult(out, signOutput, params)
	return nil
}

func signParams() (*cli.OCSPSignParams, error) {
	if signCA == "" {
		return nil, fmt.Errorf("--ca is required")
	}
	if len(signSerials) == 0 {
		return nil, fmt.Errorf("--serial is required")
	}

	params := &cli.OCSPSignParams{Validity: signValidity, ResponderByName: signByName}

	for _, s := range signSerials {
		serial, err := cli.ParseOCSPSerial(s)
		if err != nil {
			return nil, err
		}
		params.Serials = append(params.Serials, serial)
	}

	status, err := cli.ParseOCSPCertStatus(signStatus)
	if err != nil {
		return nil, err
	}
	params.CertStatus = status
	if status == ocsp.CertStatusRevoked {
		if params.RevocationTime, err = cli.ParseOCSPRevocationTime(signRevocationTime); err != nil {
			return nil, err
		}
		if signRevocationReason != "" {
			if params.RevocationReason, err = ocsp.ParseRevocationReason(signRevocationReason); err != nil {
				return nil, err
			}
			params.HasReason = true
		}
	}

	if params.CACert, err = cli.LoadCertFromPath(signCA); err != nil {
		return nil, fmt.Errorf("CA certificate: %w", err)
	}
	params.ResponderCert = params.CACert
	if signCert != "" {
		if params.ResponderCert, err = cli.LoadCertFromPath(signCert); err != nil {
			return nil, fmt.Errorf("responder certificate: %w", err)
		}
	}
	if params.Signer, err = cli.LoadSigner(signKey); err != nil {
		return nil, err
	}

	if signNonce != "" {
		if params.Nonce, err = cli.ParseHex(signNonce); err != nil {
			return nil, fmt.Errorf("invalid nonce: %w", err)
		}
	}
	return params, nil
}
