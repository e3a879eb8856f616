// Command accless-verify is a relying-party tool: given an attestation JWT
// returned by a workload, the attestation service's public key, and the
// measurement a caller expects the workload to carry, it checks the token's
// signature and prints whether the measurement matches, following
// veil-verify's colored pass/fail reporting.
package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/faasm/accless-attest/internal/peerverify"
)

var errMeasurementMismatch = errors.New("measurement does not match")

func parseFlags(out io.Writer, args []string) (jwtPath, keyPath, wantMeasurement string, err error) {
	fs := flag.NewFlagSet("accless-verify", flag.ContinueOnError)
	fs.SetOutput(out)

	jwt := fs.String("jwt", "", "path to a file containing the attestation JWT, or - for stdin")
	key := fs.String("key", "", "path to the attestation service's PEM-encoded public key")
	measurement := fs.String("measurement", "", "expected measurement, hex-encoded")

	if err := fs.Parse(args); err != nil {
		fs.PrintDefaults()
		return "", "", "", fmt.Errorf("failed to parse flags: %w", err)
	}
	if *jwt == "" || *key == "" || *measurement == "" {
		fs.PrintDefaults()
		return "", "", "", fmt.Errorf("jwt, key and measurement are all required")
	}
	return *jwt, *key, *measurement, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func parsePublicKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

func run(_ context.Context, out io.Writer, args []string) (err error) {
	jwtPath, keyPath, wantMeasurementHex, err := parseFlags(out, args)
	if err != nil {
		return err
	}

	jwtBytes, err := readInput(jwtPath)
	if err != nil {
		return fmt.Errorf("failed to read jwt: %w", err)
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	pubKey, err := parsePublicKey(keyBytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	claims, err := peerverify.Verify(string(jwtBytes), pubKey)
	if err != nil {
		color.Red("Attestation JWT signature verification FAILED: %v", err)
		return err
	}
	color.Green("Attestation JWT signature is valid, issued by %q", claims.Issuer)

	if claims.Measurement != wantMeasurementHex {
		color.Red(
			"Measurement mismatch: workload reports %s, expected %s",
			claims.Measurement,
			wantMeasurementHex,
		)
		return errMeasurementMismatch
	}
	color.Green("Measurement matches: %s", claims.Measurement)
	return nil
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		log.Fatalf("accless-verify: %v", err)
	}
}
