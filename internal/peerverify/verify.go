// Package peerverify lets a relying party outside the TEE check the
// authenticity of an attestation-service-issued JWT once it has been
// returned by a workload, without needing the enclave-bound decryption key.
// The in-TEE engine treats the JWT as opaque; this package is only ever
// used downstream of that boundary, following the JWT-claims-inspection
// pattern from reclaimprotocol-reclaim-tee's GCP attestation verifier,
// adapted from Google's Confidential Space JWKS/x5c verification to a
// caller-supplied verification key, since this system's attestation
// service is self-hosted rather than backed by a public JWKS endpoint.
package peerverify

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the fields a relying party cares about in an attestation
// JWT: who issued it, when, and for which measurement.
type Claims struct {
	jwt.RegisteredClaims
	Measurement string `json:"measurement,omitempty"`
}

var errUnexpectedSigningMethod = errors.New("unexpected jwt signing method")

// Verify checks tokenString's signature against key and returns its claims.
// key must be the verification key the attestation service used to sign
// tokens (an *ecdsa.PublicKey or *rsa.PublicKey, depending on deployment);
// callers obtain it out of band, e.g. from the attestation service's own
// configuration.
func Verify(tokenString string, key any) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodECDSA, *jwt.SigningMethodRSA:
			return key, nil
		default:
			return nil, fmt.Errorf("%w: %s", errUnexpectedSigningMethod, t.Method.Alg())
		}
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseUnverified extracts claims from tokenString without checking its
// signature. It exists for tooling that wants to inspect a token's
// measurement or expiry before deciding whether verification is worth the
// round-trip to fetch the signing key.
func ParseUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
