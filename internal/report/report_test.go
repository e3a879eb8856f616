package report

import (
	"testing"

	"github.com/faasm/accless-attest/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestValidateBinding(t *testing.T) {
	var held EnclaveHeldData
	copy(held[:], []byte("an ephemeral public key, gx || gy padded out"))

	q := &Quote{Body: Report{ReportData: held}}
	require.NoError(t, ValidateBinding(q, held))

	var other EnclaveHeldData
	other[0] = 0xff
	require.ErrorIs(t, ValidateBinding(q, other), errs.MalformedReport)
}

func TestQuoteBytesEmbedsReportUnchanged(t *testing.T) {
	var measurement [MeasurementSize]byte
	copy(measurement[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))
	var held EnclaveHeldData
	copy(held[:], []byte("gxgxgxgxgxgxgxgxgxgxgxgxgxgxgxgxgygygygygygygygygygygygygygygy"))

	q := &Quote{Body: *NewReport(measurement, held), Signature: []byte("sig")}
	b := q.Bytes()

	require.Equal(t, measurement[:], b[:MeasurementSize])
	require.Equal(t, held[:], b[MeasurementSize:MeasurementSize+ReportDataSize])
	require.Equal(t, []byte("sig"), b[MeasurementSize+ReportDataSize:])
}

func TestParseQuoteRoundTrips(t *testing.T) {
	var measurement [MeasurementSize]byte
	copy(measurement[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))
	var held EnclaveHeldData
	copy(held[:], []byte("gxgxgxgxgxgxgxgxgxgxgxgxgxgxgxgxgygygygygygygygygygygygygygygy"))

	want := &Quote{Body: *NewReport(measurement, held), Signature: []byte("sig-bytes")}

	got, err := ParseQuote(want.Bytes())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestParseQuoteRejectsTooShort(t *testing.T) {
	_, err := ParseQuote(make([]byte, MeasurementSize))
	require.ErrorIs(t, err, errs.MalformedReport)
}
