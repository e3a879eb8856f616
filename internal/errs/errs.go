// Package errs defines the error taxonomy shared by the attestation core and
// the sentinel-wrapping helpers used to build it.
package errs

import (
	"errors"
	"fmt"
)

var (
	InvalidFormat = errors.New("invalid format")
	InvalidLength = errors.New("invalid length")
	IsNil         = errors.New("argument must not be nil")

	// HostCallFailed indicates that an untrusted host-bridge transition
	// returned a non-success status at either the transport or the inner
	// layer.
	HostCallFailed = errors.New("host call failed")

	// ReportGenFailed indicates that the platform refused to produce a
	// report over the given target info and enclave-held data.
	ReportGenFailed = errors.New("report generation failed")

	// MalformedJwe indicates that a JWE blob failed structural validation
	// (too short, or otherwise not IV(12) || ciphertext || tag(16)).
	MalformedJwe = errors.New("malformed jwe")

	// MalformedAsResponse indicates that the attestation service's JSON
	// response is missing a required field.
	MalformedAsResponse = errors.New("malformed attestation service response")

	// MalformedReport indicates that a report or quote failed a fixed-size
	// layout check.
	MalformedReport = errors.New("malformed report")

	// InvalidPublicKey indicates that a peer-supplied EC point is not on
	// the expected curve.
	InvalidPublicKey = errors.New("invalid public key")

	// AttestationRejected indicates that AES-GCM tag verification failed
	// while decrypting the attestation service's JWE. This must not be
	// retried with the same inputs.
	AttestationRejected = errors.New("attestation rejected")

	// OutOfSandboxMemory indicates that the sandbox failed to allocate a
	// buffer for the decrypted JWT.
	OutOfSandboxMemory = errors.New("out of sandbox memory")

	// BadAsEndpoint indicates that the configured attestation service URL
	// could not be parsed into a host and port.
	BadAsEndpoint = errors.New("bad attestation service endpoint")

	// ConfigError indicates an invalid or missing configuration value.
	ConfigError = errors.New("configuration error")

	// NoCachedReport indicates that a measurement was requested before any
	// attestation attempt succeeded.
	NoCachedReport = errors.New("no cached report")
)

// AsRejected is returned by the outside-TEE attestation service client when
// the service answers with a non-200 status. It carries the status and body
// so that callers can log the details without losing the sentinel identity.
type AsRejected struct {
	Status int
	Body   string
}

func (e *AsRejected) Error() string {
	return fmt.Sprintf("attestation service rejected request: status %d: %s", e.Status, e.Body)
}

// Wrap prefixes *err with the formatted string, if *err is non-nil. It is
// meant to be used with defer at the top of a function that returns a named
// err, to build a wrapped call chain as the error propagates.
func Wrap(err *error, str string, args ...any) {
	if *err != nil {
		*err = fmt.Errorf("%s: %w", fmt.Sprintf(str, args...), *err)
	}
}

// WrapErr attaches wrapper to *wrapped, preserving wrapped's message as the
// suffix, so that errors.Is(*wrapped, wrapper) succeeds while the original
// detail is still visible in Error().
func WrapErr(wrapped *error, wrapper error) {
	if *wrapped == nil {
		return
	}
	*wrapped = fmt.Errorf("%w: %w", wrapper, *wrapped)
}
