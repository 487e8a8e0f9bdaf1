package main

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/ocspcheck/internal/audit"
	"github.com/remiblancher/ocspcheck/internal/cli"
	"github.com/remiblancher/ocspcheck/internal/cose"
	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
	"github.com/remiblancher/ocspcheck/internal/trust"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Validation receipt operations",
	Long: `Validation receipts are COSE_Sign1 messages (RFC 9052) carrying a CBOR
summary of a validated OCSP response: the responder, the nonce and the
status of every certificate. They let a third party check what was validated
without repeating the validation.

Receipts can be signed with classical (ECDSA, EdDSA, RSA-PSS) or
post-quantum (ML-DSA, SLH-DSA) keys.

Examples:
  # Generate a receipt signing key
  ocspcheck receipt keygen --algorithm ml-dsa-65 --out receipt.key --pub-out receipt.pub

  # Verify a receipt
  ocspcheck receipt verify receipt.cbor --pubkey receipt.pub`,
}

var receiptKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a receipt signing key",
	RunE:  runReceiptKeygen,
}

var receiptVerifyCmd = &cobra.Command{
	Use:   "verify <receipt-file>",
	Short: "Verify a receipt and print its claims",
	Long: `Verify a receipt signature and print its claims.

The verification key is taken from --pubkey, then --cert. With
--trust-embedded the certificate carried in the receipt is used, after it
chains to --roots.

Examples:
  ocspcheck receipt verify receipt.cbor --pubkey receipt.pub
  ocspcheck receipt verify receipt.cbor --cert receipt.crt --nonce 0a1b2c3d
  ocspcheck receipt verify receipt.cbor --trust-embedded --roots ca.crt --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReceiptVerify,
}

var (
	receiptKeygenAlgorithm string
	receiptKeygenOut       string
	receiptKeygenPubOut    string

	receiptVerifyPubKey        string
	receiptVerifyCert          string
	receiptVerifyTrustEmbedded bool
	receiptVerifyRoots         string
	receiptVerifyNonce         string
	receiptVerifyJSON          bool
)

func init() {
	receiptKeygenCmd.Flags().StringVar(&receiptKeygenAlgorithm, "algorithm", string(pkicrypto.AlgMLDSA65), "Key algorithm (ecdsa-sha256, ed25519, ed448, ml-dsa-44, ml-dsa-65, ml-dsa-87, slh-dsa-sha2-128f, ...)")
	receiptKeygenCmd.Flags().StringVar(&receiptKeygenOut, "out", "", "Private key output file (PEM, required)")
	receiptKeygenCmd.Flags().StringVar(&receiptKeygenPubOut, "pub-out", "", "Public key output file (PEM)")
	_ = receiptKeygenCmd.MarkFlagRequired("out")

	receiptVerifyCmd.Flags().StringVar(&receiptVerifyPubKey, "pubkey", "", "Public key (PEM)")
	receiptVerifyCmd.Flags().StringVar(&receiptVerifyCert, "cert", "", "Receipt signer certificate (PEM)")
	receiptVerifyCmd.Flags().BoolVar(&receiptVerifyTrustEmbedded, "trust-embedded", false, "Use the certificate embedded in the receipt")
	receiptVerifyCmd.Flags().StringVar(&receiptVerifyRoots, "roots", "", "Trust anchors for the embedded certificate")
	receiptVerifyCmd.Flags().StringVar(&receiptVerifyNonce, "nonce", "", "Expected nonce (hex)")
	receiptVerifyCmd.Flags().BoolVar(&receiptVerifyJSON, "json", false, "Output as JSON")

	receiptCmd.AddCommand(receiptKeygenCmd)
	receiptCmd.AddCommand(receiptVerifyCmd)
}

func runReceiptKeygen(cmd *cobra.Command, args []string) error {
	alg, err := pkicrypto.ParseAlgorithm(receiptKeygenAlgorithm)
	if err != nil {
		return err
	}
	kp, err := pkicrypto.GenerateKeyPair(alg)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	block, err := pkicrypto.EncodePrivateKeyPEM(kp.PrivateKey)
	if err != nil {
		return err
	}
	if err := cli.WriteOutput(receiptKeygenOut, pem.EncodeToMemory(block)); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Private key written to %s\n", receiptKeygenOut)
	fmt.Fprintf(out, "  Algorithm: %s\n", alg.Description())

	if receiptKeygenPubOut != "" {
		der, err := pkicrypto.MarshalPublicKeyInfo(kp.PublicKey)
		if err != nil {
			return err
		}
		data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
		if err := os.WriteFile(receiptKeygenPubOut, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", receiptKeygenPubOut, err)
		}
		fmt.Fprintf(out, "Public key written to %s\n", receiptKeygenPubOut)
	}
	return nil
}

func runReceiptVerify(cmd *cobra.Command, args []string) error {
	data, err := cli.ReadInput(args[0])
	if err != nil {
		return fmt.Errorf("failed to read receipt: %w", err)
	}

	var vc cose.VerifyConfig
	if receiptVerifyPubKey != "" {
		if vc.PublicKey, err = loadPublicKey(receiptVerifyPubKey); err != nil {
			return err
		}
	}
	if receiptVerifyCert != "" {
		if vc.Certificate, err = cli.LoadCertFromPath(receiptVerifyCert); err != nil {
			return err
		}
	}
	if receiptVerifyTrustEmbedded {
		vc.TrustEmbedded = true
		if receiptVerifyRoots == "" {
			return fmt.Errorf("--trust-embedded requires --roots")
		}
		tc := cfg.Trust
		tc.Roots = receiptVerifyRoots
		repo, err := loadStaticRepository(tc)
		if err != nil {
			return err
		}
		vc.Validator = &trust.PathValidator{Repository: repo}
	}

	receipt, err := cose.Verify(data, vc)
	if err != nil {
		_ = audit.LogReceiptVerified(args[0], false, err.Error())
		return err
	}
	if receiptVerifyNonce != "" {
		want, err := cli.ParseHex(receiptVerifyNonce)
		if err != nil {
			return fmt.Errorf("invalid nonce: %w", err)
		}
		if !bytes.Equal(want, receipt.Claims.Nonce) {
			err := fmt.Errorf("receipt nonce %x does not match expected %x", receipt.Claims.Nonce, want)
			_ = audit.LogReceiptVerified(args[0], false, err.Error())
			return err
		}
	}
	if err := audit.LogReceiptVerified(args[0], true, ""); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	if receiptVerifyJSON {
		return writeJSON(cmd, receipt.Claims, nil)
	}
	printReceipt(cmd.OutOrStdout(), receipt, isTerminal(cmd.OutOrStdout()))
	return nil
}

func loadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%s: no PUBLIC KEY block found", path)
	}
	return pkicrypto.ParsePublicKeyInfo(block.Bytes)
}

func printReceipt(w io.Writer, r *cose.Receipt, color bool) {
	c := r.Claims
	fmt.Fprintf(w, "Receipt: %s\n", cli.FormatStatus("valid", color))
	fmt.Fprintf(w, "  Algorithm:    %s\n", cose.AlgorithmName(r.Algorithm))
	fmt.Fprintf(w, "  Key ID:       %s\n", hex.EncodeToString(r.KeyID))
	if r.Certificate != nil {
		fmt.Fprintf(w, "  Signer:       %s\n", r.Certificate.Subject)
	}
	fmt.Fprintf(w, "  Issued At:    %s\n", unixTime(c.IssuedAt))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "OCSP response:\n")
	fmt.Fprintf(w, "  Responder:    %s\n", c.Responder)
	fmt.Fprintf(w, "  Produced At:  %s\n", unixTime(c.ProducedAt))
	fmt.Fprintf(w, "  Algorithm:    %s\n", c.SignatureAlgorithm)
	if c.Nonce != nil {
		fmt.Fprintf(w, "  Nonce:        %s\n", hex.EncodeToString(c.Nonce))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Statuses (%d):\n", len(c.Entries))
	for _, e := range c.Entries {
		fmt.Fprintf(w, "  %-20s %s", e.Serial, cli.FormatStatus(e.Status, color))
		if e.Reason != nil {
			fmt.Fprintf(w, " reason=%d", *e.Reason)
		}
		if e.RevokedAt != 0 {
			fmt.Fprintf(w, " at %s", unixTime(e.RevokedAt))
		}
		fmt.Fprintln(w)
	}
}

func unixTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
