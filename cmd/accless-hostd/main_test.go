package main

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/faasm/accless-attest/internal/asclient"
	"github.com/faasm/accless-attest/internal/report"
	"github.com/stretchr/testify/require"
)

func b64OfServerPubKeyForTest(key [report.ReportDataSize]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

type fixedQE struct {
	info [report.TargetInfoSize]byte
}

func (q *fixedQE) TargetInfo() [report.TargetInfoSize]byte {
	return q.info
}

func readStatusForTest(t *testing.T, r io.Reader) (transport, inner int) {
	t.Helper()
	var raw [8]byte
	_, err := io.ReadFull(r, raw[:])
	require.NoError(t, err)
	return int(int32(binary.BigEndian.Uint32(raw[:4]))), int(int32(binary.BigEndian.Uint32(raw[4:])))
}

func TestHandleGetQETargetInfoRoundTrips(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	qe := &fixedQE{}
	qe.info[0] = 0x42
	srv := &bridgeServer{qe: qe}

	go func() {
		require.NoError(t, srv.handleGetQETargetInfo(server))
	}()

	transport, inner := readStatusForTest(t, client)
	require.Equal(t, 0, transport)
	require.Equal(t, 0, inner)

	frame, err := readFrame(client)
	require.NoError(t, err)
	require.Len(t, frame, report.TargetInfoSize)
	require.Equal(t, byte(0x42), frame[0])
}

func TestHandleSubmitQuoteRoundTrips(t *testing.T) {
	var wantServerPubKey [report.ReportDataSize]byte
	for i := range wantServerPubKey {
		wantServerPubKey[i] = byte(i)
	}
	as := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"encrypted_token":"jwe-base64","server_pubkey":"` +
			b64OfServerPubKeyForTest(wantServerPubKey) + `"}`))
	}))
	defer as.Close()

	asClient, err := asclient.New(as.URL[len("https://"):])
	require.NoError(t, err)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	srv := &bridgeServer{as: asClient}
	quote := &report.Quote{Body: *report.NewReport([report.MeasurementSize]byte{1}, report.EnclaveHeldData{})}

	go func() {
		require.NoError(t, srv.handleSubmitQuote(server))
	}()
	require.NoError(t, writeFrame(client, quote.Bytes()))

	transport, inner := readStatusForTest(t, client)
	require.Equal(t, 0, transport)
	require.Equal(t, 0, inner)

	var respSizeBuf [4]byte
	_, err = io.ReadFull(client, respSizeBuf[:])
	require.NoError(t, err)
	respSize := int(binary.BigEndian.Uint32(respSizeBuf[:]))
	require.Equal(t, len("jwe-base64"), respSize)

	data, err := readFrame(client)
	require.NoError(t, err)
	require.Equal(t, []byte("jwe-base64"), data[:respSize])
	require.Equal(t, wantServerPubKey[:], data[respSize:])
}
