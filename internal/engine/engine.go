// Package engine drives the in-TEE attestation protocol: it builds a
// report bound to the instance's ephemeral key, hands it to the host bridge
// for delivery to the attestation service, and decrypts the returned JWE
// into a JWT. It is the direct analogue of veil's enclave.Attester plus
// attestation.Builder split: a small platform-facing interface for the
// primitive that only the TEE hardware can perform, driven by an engine
// that owns the rest of the protocol.
package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/faasm/accless-attest/internal/attestcrypto"
	"github.com/faasm/accless-attest/internal/codec"
	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/hostbridge"
	"github.com/faasm/accless-attest/internal/identity"
	"github.com/faasm/accless-attest/internal/report"
)

// Platform is the in-TEE primitive the engine calls to turn target info and
// enclave-held data into a signed report. It is analogous to veil's
// enclave.Attester, but scoped to report generation only: everything else
// in the protocol (host round-trip, decryption, caching) is common code
// living in Engine, not in the platform-specific implementation.
type Platform interface {
	GenerateReport(targetInfo [report.TargetInfoSize]byte, held report.EnclaveHeldData) (*report.Quote, error)
}

// Engine drives one TEE instance's attestation protocol. It serializes
// concurrent callers with a mutex, per the single-threaded-cooperative
// concurrency model: only the first caller to reach a given cache-filling
// step actually performs it, everyone else observes the cached result.
type Engine struct {
	mu       sync.Mutex
	store    *identity.Store
	platform Platform
	bridge   hostbridge.Bridge
}

// New returns an Engine for one TEE instance.
func New(store *identity.Store, platform Platform, bridge hostbridge.Bridge) *Engine {
	return &Engine{store: store, platform: platform, bridge: bridge}
}

// asResponse mirrors the attestation service's response JSON: an encrypted
// token and the server's ephemeral public key, both base64-encoded.
type asResponse struct {
	EncryptedToken string `json:"encrypted_token"`
	ServerPubKey   string `json:"server_pubkey"`
}

// GetAttestationJWT runs the attestation protocol described in spec §4.5 and
// returns the decrypted JWT. On a cache hit (a prior call already succeeded)
// it returns the cached JWT without re-invoking the host bridge or the
// platform.
func (e *Engine) GetAttestationJWT(ctx context.Context) (jwt string, responseSize int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cachedJWT, cachedSize, ok := e.store.Attestation(); ok {
		return cachedJWT, cachedSize, nil
	}

	jwtOut, respSize, err := e.attest(ctx)
	if err != nil {
		return "", 0, err
	}
	e.store.SetAttestation(jwtOut, respSize)
	return jwtOut, respSize, nil
}

// attest performs the twelve-step protocol of spec §4.5 in full; it is only
// ever called with e.mu held.
func (e *Engine) attest(ctx context.Context) (jwt string, responseSize int, err error) {
	defer errs.Wrap(&err, "attestation failed")

	// Steps 1-3 (target info, enclave-held data, report generation) are
	// skipped on a retry: a cached quote from an earlier successful attempt
	// is reused so a failure past this point doesn't ask the platform to
	// re-attest.
	quote, ok := e.store.Quote()
	if !ok {
		// Step 1: ask the host bridge for QE target info.
		targetInfo, status, err := e.bridge.GetQETargetInfo(ctx)
		if err != nil || !status.OK() {
			if err == nil {
				err = errs.HostCallFailed
			} else {
				errs.WrapErr(&err, errs.HostCallFailed)
			}
			return "", 0, err
		}

		// Step 2: build EnclaveHeldData from the instance's public key. The
		// size check the original protocol performs here is enforced
		// statically: both types are fixed 64-byte arrays.
		pub := e.store.PublicKey()
		var held report.EnclaveHeldData
		copy(held[:], pub[:])

		// Step 3: produce a report over (targetInfo, held); cache on first
		// success only.
		quote, err = e.platform.GenerateReport(targetInfo, held)
		if err != nil {
			errs.WrapErr(&err, errs.ReportGenFailed)
			return "", 0, err
		}
		if err := report.ValidateBinding(quote, held); err != nil {
			return "", 0, err
		}
		e.store.SetQuote(quote)
	}

	// Step 4: submit the quote; the bridge writes a transfer buffer.
	buf, status, err := e.bridge.SubmitQuote(ctx, quote)
	if err != nil || !status.OK() {
		if err == nil {
			err = errs.HostCallFailed
		} else {
			errs.WrapErr(&err, errs.HostCallFailed)
		}
		return "", 0, err
	}

	// Step 5: decode the base64 JWE and size-check it.
	jwe := codec.DecodeStd(string(buf.JWEBase64()))
	if len(jwe) < attestcrypto.IVSize+attestcrypto.TagSize {
		return "", 0, errs.MalformedJwe
	}

	// Step 6: parse the server's public key.
	serverPub, err := attestcrypto.ParseRawPublicKey(buf.ServerPubKeyRaw())
	if err != nil {
		return "", 0, err
	}

	// Step 7: derive the AES key via ECDH + reversal + truncation.
	shared, err := attestcrypto.SharedSecret(e.store.PrivateKey(), serverPub)
	if err != nil {
		return "", 0, err
	}
	key := attestcrypto.DeriveAESKey(shared)

	// Step 8: split the JWE and decrypt.
	iv := jwe[:attestcrypto.IVSize]
	tag := jwe[len(jwe)-attestcrypto.TagSize:]
	ct := jwe[attestcrypto.IVSize : len(jwe)-attestcrypto.TagSize]

	plaintext, err := attestcrypto.GCMDecrypt(key, iv, ct, tag)
	if err != nil {
		return "", 0, err
	}

	// Steps 9-10 (sandbox buffer allocation, writing the offset/size pair)
	// belong to the WASM ABI boundary; see internal/wasmabi. The transfer
	// buffer of step 11 is an ordinary slice with no explicit release. Step 12 (cache the JWT) is performed by the caller,
	// GetAttestationJWT, to keep the compare-and-set logic in one place.
	return string(plaintext), buf.ResponseSize, nil
}

// GetMeasurement returns the cached report's measurement. It fails with
// errs.NoCachedReport if no attestation has succeeded yet.
func (e *Engine) GetMeasurement() ([report.MeasurementSize]byte, error) {
	return e.store.Measurement()
}

// IsEnabled returns whether attestation is enabled for this instance.
func (e *Engine) IsEnabled() bool {
	return e.store.AttestationEnabled()
}

// ParseASResponse extracts the encrypted_token and server_pubkey fields from
// an attestation service response body. accless-hostd's submit-quote
// handler uses it to turn the AS's HTTP response into the transfer buffer's
// on-wire layout.
func ParseASResponse(body []byte) (encryptedToken, serverPubKey string, err error) {
	var resp asResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", errs.MalformedAsResponse
	}
	if resp.EncryptedToken == "" || resp.ServerPubKey == "" {
		return "", "", errs.MalformedAsResponse
	}
	return resp.EncryptedToken, resp.ServerPubKey, nil
}
