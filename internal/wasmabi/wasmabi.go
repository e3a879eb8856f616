// Package wasmabi implements the three functions the attestation core
// exports to workload code running inside the WASM sandbox, following
// veil's internal/service/handle package: thin functions that wrap a shared
// engine and translate its results into the ABI's calling convention,
// rather than embedding any protocol logic themselves.
package wasmabi

import (
	"context"

	"github.com/faasm/accless-attest/internal/engine"
	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
)

// Sandbox is the minimal capability the ABI needs from the WASM runtime: a
// way to copy a payload into newly allocated sandbox memory and get back the
// offset the workload can dereference. It stands in for the "Sandbox
// interface" the spec describes as an external collaborator.
type Sandbox interface {
	// Malloc allocates len(data) bytes inside the sandbox's linear memory,
	// copies data into the allocation, and returns its offset. It fails
	// with errs.OutOfSandboxMemory if the allocation cannot be satisfied.
	Malloc(data []byte) (offset int32, err error)
}

// ABI wires a single TEE instance's engine to the sandbox export surface.
type ABI struct {
	engine  *engine.Engine
	sandbox Sandbox
}

// New returns an ABI backed by eng and sandbox.
func New(eng *engine.Engine, sandbox Sandbox) *ABI {
	return &ABI{engine: eng, sandbox: sandbox}
}

// GetAttestationJWT implements accless_get_attestation_jwt(jwt_ptr_out,
// jwt_size_out), ABI signature "(**)". It writes the sandbox offset of a
// freshly allocated buffer containing the JWT into *jwtPtrOut, and the
// response_size — the length of the base64-encoded JWE, not the JWT's own
// length — into *jwtSizeOut.
//
// This mismatch is deliberate and preserved from the original protocol (see
// the open question in the design notes): callers that treat jwt_size_out
// as len(JWT) will read past the end of the allocated buffer when the JWE
// was base64-longer than the JWT it decrypts to.
func (a *ABI) GetAttestationJWT(ctx context.Context, jwtPtrOut, jwtSizeOut *int32) error {
	jwt, responseSize, err := a.engine.GetAttestationJWT(ctx)
	if err != nil {
		return err
	}

	offset, err := a.sandbox.Malloc([]byte(jwt))
	if err != nil {
		return errs.OutOfSandboxMemory
	}

	*jwtPtrOut = offset
	*jwtSizeOut = int32(responseSize)
	return nil
}

// GetMRENCLAVE implements accless_get_mrenclave(buf, buf_size), ABI
// signature "(*i)". buf_size must equal report.MeasurementSize (32);
// anything else is a caller error rather than a taxonomy error, since it
// indicates a broken ABI binding rather than a runtime condition.
func (a *ABI) GetMRENCLAVE(buf []byte, bufSize int) error {
	if bufSize != report.MeasurementSize {
		return errs.InvalidLength
	}
	measurement, err := a.engine.GetMeasurement()
	if err != nil {
		return err
	}
	copy(buf, measurement[:])
	return nil
}

// IsEnabled implements accless_is_enabled(), ABI signature "()i". It
// returns 0 if attestation is enabled for this instance, 1 otherwise — an
// inverted convention that is part of the external contract and must not be
// "corrected".
func (a *ABI) IsEnabled() int32 {
	if a.engine.IsEnabled() {
		return 0
	}
	return 1
}
