// Package hostbridge defines the untrusted transitions the in-TEE
// attestation engine uses to reach the Quoting Enclave and the attestation
// service through the untrusted host, following the capability-interface
// pattern used for veil's tunnel mechanisms: one abstract object per bridge
// implementation, so the engine can be driven against a test double without
// any real vsock transport.
package hostbridge

import (
	"context"

	"github.com/faasm/accless-attest/internal/report"
)

// TransferBuffer is the shared-memory channel the host uses to hand a
// SubmitQuote response back to the TEE. Layout: [0, ResponseSize) is the
// base64-encoded JWE, and [ResponseSize, ResponseSize+64) is the attestation
// service's raw (already base64-decoded by the bridge) server public key.
//
// The bridge, not the engine, is responsible for decoding the AS response's
// base64 server_pubkey field before placing it here: the AS wire format and
// the transfer buffer disagree on representation (base64 vs. raw), and this
// is the one place that reconciles them.
type TransferBuffer struct {
	Data         []byte
	ResponseSize int
}

// JWEBase64 returns the base64-encoded JWE portion of the buffer.
func (b *TransferBuffer) JWEBase64() []byte {
	return b.Data[:b.ResponseSize]
}

// ServerPubKeyRaw returns the raw 64-byte server public key portion of the
// buffer.
func (b *TransferBuffer) ServerPubKeyRaw() []byte {
	return b.Data[b.ResponseSize : b.ResponseSize+64]
}

// Status is the two-level status every bridge transition returns: a
// transport status (did the bridge call itself succeed) and an inner status
// (did the remote operation succeed). The engine treats any non-zero value
// in either layer as a host-call failure.
type Status struct {
	Transport int
	Inner     int
}

// OK reports whether both status layers indicate success.
func (s Status) OK() bool {
	return s.Transport == 0 && s.Inner == 0
}

// Bridge is the capability interface consumed by the in-TEE attestation
// engine. Implementations own the untrusted transition to the host; the
// engine never talks to the host directly.
type Bridge interface {
	// GetQETargetInfo fetches the Quoting Enclave's target info, a fixed
	// 512-byte opaque blob the platform needs to produce a report that the
	// QE can later turn into a quote.
	GetQETargetInfo(ctx context.Context) ([report.TargetInfoSize]byte, Status, error)

	// SubmitQuote hands a quote to the host for delivery to the
	// attestation service, and returns the resulting transfer buffer.
	SubmitQuote(ctx context.Context, q *report.Quote) (*TransferBuffer, Status, error)
}
