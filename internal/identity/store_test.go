package identity

import (
	"sync"
	"testing"

	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratesDistinctKeypairs(t *testing.T) {
	a, err := New(true)
	require.NoError(t, err)
	b, err := New(true)
	require.NoError(t, err)

	require.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestSetAttestationFirstWriteWins(t *testing.T) {
	s, err := New(true)
	require.NoError(t, err)

	s.SetAttestation("first-jwt", 10)
	s.SetAttestation("second-jwt", 20)

	jwt, size, ok := s.Attestation()
	require.True(t, ok)
	require.Equal(t, "first-jwt", jwt)
	require.Equal(t, 10, size)
}

func TestSetQuoteFirstWriteWins(t *testing.T) {
	s, err := New(true)
	require.NoError(t, err)

	first := &report.Quote{
		Body:      *report.NewReport([report.MeasurementSize]byte{1}, report.EnclaveHeldData{}),
		Signature: []byte("first-sig"),
	}
	second := &report.Quote{
		Body:      *report.NewReport([report.MeasurementSize]byte{2}, report.EnclaveHeldData{}),
		Signature: []byte("second-sig"),
	}

	s.SetQuote(first)
	s.SetQuote(second)

	got, ok := s.Quote()
	require.True(t, ok)
	require.Equal(t, first, got)
}

func TestMeasurementNoCachedReport(t *testing.T) {
	s, err := New(true)
	require.NoError(t, err)

	_, err = s.Measurement()
	require.ErrorIs(t, err, errs.NoCachedReport)
}

func TestConcurrentSetQuoteIsRaceFree(t *testing.T) {
	s, err := New(true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetQuote(&report.Quote{
				Body: *report.NewReport([report.MeasurementSize]byte{byte(i)}, report.EnclaveHeldData{}),
			})
		}(i)
	}
	wg.Wait()

	_, ok := s.Quote()
	require.True(t, ok)
}
