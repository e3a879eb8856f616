// Package report implements typed views over the TEE report and quote
// binary formats, and the enclave-held-data binding invariant that ties a
// report to the instance's ephemeral public key.
package report

import (
	"github.com/faasm/accless-attest/internal/errs"
)

const (
	// MeasurementSize is the length, in bytes, of a report's measurement
	// (a SHA-256 digest of the loaded code, MRENCLAVE in SGX terms).
	MeasurementSize = 32

	// ReportDataSize is the length, in bytes, of the report_data field
	// used to bind caller-supplied data (here, an ephemeral public key)
	// into the report.
	ReportDataSize = 64

	// TargetInfoSize is the length, in bytes, of the opaque target-info
	// blob the Quoting Enclave hands back for report generation.
	TargetInfoSize = 512
)

// EnclaveHeldData is the 64-byte blob bound into a report's report_data
// field. For this system it is always an uncompressed P-256 public point,
// gx || gy.
type EnclaveHeldData [ReportDataSize]byte

// Report is a fixed-size, platform-attested structure binding a measurement
// of the loaded code to caller-supplied report data.
type Report struct {
	Measurement [MeasurementSize]byte
	ReportData  EnclaveHeldData
}

// Quote is a platform-signed wrapper over a Report, produced by the Quoting
// Enclave. Its bytes are opaque to this system beyond the embedded Report.
type Quote struct {
	Body Report
	// Signature holds the QE's signature over Body plus any auxiliary
	// certification data. It is never interpreted here; it is only
	// forwarded to the attestation service.
	Signature []byte
}

// NewReport constructs a Report whose report data is exactly the caller's
// enclave-held data. Both fields are fixed-size arrays, so a size mismatch
// cannot reach this constructor and it has no failure case.
func NewReport(measurement [MeasurementSize]byte, held EnclaveHeldData) *Report {
	return &Report{
		Measurement: measurement,
		ReportData:  held,
	}
}

// Bytes returns quote's opaque signed encoding: the embedded report followed
// by the QE's signature bytes. This is a minimal wire encoding sufficient to
// round-trip through the host bridge and attestation service; the exact
// on-the-wire quote format is platform-defined and treated as opaque past
// this boundary.
func (q *Quote) Bytes() []byte {
	out := make([]byte, 0, MeasurementSize+ReportDataSize+len(q.Signature))
	out = append(out, q.Body.Measurement[:]...)
	out = append(out, q.Body.ReportData[:]...)
	out = append(out, q.Signature...)
	return out
}

// ValidateBinding checks the EnclaveHeldData == Report.report_data[0..64]
// invariant on the report embedded in q, failing with errs.MalformedReport
// otherwise.
func ValidateBinding(q *Quote, held EnclaveHeldData) error {
	if q.Body.ReportData != held {
		return errs.MalformedReport
	}
	return nil
}

// ParseQuote reverses Bytes: it reconstructs a Quote from the wire encoding
// the enclave side produced. The untrusted host uses this to recover the
// measurement and enclave-held data it must forward to the attestation
// service without having to interpret the platform-specific quote body
// itself.
func ParseQuote(b []byte) (*Quote, error) {
	if len(b) < MeasurementSize+ReportDataSize {
		return nil, errs.MalformedReport
	}
	q := &Quote{}
	copy(q.Body.Measurement[:], b[:MeasurementSize])
	copy(q.Body.ReportData[:], b[MeasurementSize:MeasurementSize+ReportDataSize])
	q.Signature = append([]byte(nil), b[MeasurementSize+ReportDataSize:]...)
	return q, nil
}
