// Package identity implements the per-TEE-instance identity store: the
// ephemeral keypair created once at TEE boot, and the cached report and JWT
// produced by the first successful attestation.
package identity

import (
	"crypto/ecdh"
	"crypto/rand"
	"sync"

	"github.com/faasm/accless-attest/internal/attestcrypto"
	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
)

// Store holds the identity material and attestation cache for one TEE
// instance. It is read-mostly after construction: the keypair is immutable,
// and the report and JWT are written at most once, on the first successful
// attestation. All methods are safe for concurrent use.
type Store struct {
	priv *ecdh.PrivateKey
	pub  attestcrypto.RawPublicKey

	mu              sync.Mutex
	cachedReport    *report.Report
	cachedSignature []byte
	cachedJWT       string
	cachedRespSize  int
	attestedOnce    bool
	reportOnce      bool
	attestEnabled   bool
}

// New creates a Store with a fresh P-256 keypair. attestationEnabled drives
// the value later returned by an is_enabled query.
func New(attestationEnabled bool) (*Store, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	pub, err := attestcrypto.ParseRawPublicKey(priv.PublicKey().Bytes()[1:])
	if err != nil {
		return nil, err
	}
	return &Store{
		priv:          priv,
		pub:           pub,
		attestEnabled: attestationEnabled,
	}, nil
}

// PrivateKey returns the instance's ECDH private key. It never leaves the
// TEE and is only ever used to compute a shared secret with an attestation
// service response.
func (s *Store) PrivateKey() *ecdh.PrivateKey {
	return s.priv
}

// PublicKey returns the instance's raw public point (gx || gy), the value
// bound into every report's EnclaveHeldData.
func (s *Store) PublicKey() attestcrypto.RawPublicKey {
	return s.pub
}

// AttestationEnabled reports whether this instance is configured to attest.
func (s *Store) AttestationEnabled() bool {
	return s.attestEnabled
}

// SetQuote stores q's report and signature as the cached quote, if none has
// been stored yet. Caching the signature alongside the report lets a later
// attestation attempt resubmit the exact same quote that was generated on a
// prior try, rather than asking the platform to produce a fresh one.
func (s *Store) SetQuote(q *report.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reportOnce {
		return
	}
	s.cachedReport = &q.Body
	s.cachedSignature = q.Signature
	s.reportOnce = true
}

// Quote reassembles the cached quote from its report and signature, and
// reports whether one has been stored yet.
func (s *Store) Quote() (*report.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reportOnce {
		return nil, false
	}
	return &report.Quote{Body: *s.cachedReport, Signature: s.cachedSignature}, true
}

// SetAttestation stores jwt and the base64 JWE response size that produced
// it, if no attestation has succeeded yet. respSize is cached alongside the
// JWT (rather than recomputed from it) so that a cache hit reproduces the
// same out-size value a first-time caller would have seen, including the
// response_size-vs-JWT-length quirk the WASM ABI boundary depends on.
func (s *Store) SetAttestation(jwt string, respSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attestedOnce {
		return
	}
	s.cachedJWT = jwt
	s.cachedRespSize = respSize
	s.attestedOnce = true
}

// Attestation returns the cached JWT and response size, and whether
// attestation has succeeded yet.
func (s *Store) Attestation() (jwt string, respSize int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cachedJWT, s.cachedRespSize, s.attestedOnce
}

// Measurement returns the 32-byte measurement from the cached report.
// It fails with errs.NoCachedReport if no report has been cached yet.
func (s *Store) Measurement() ([report.MeasurementSize]byte, error) {
	quote, ok := s.Quote()
	if !ok {
		var zero [report.MeasurementSize]byte
		return zero, errs.NoCachedReport
	}
	return quote.Body.Measurement, nil
}
