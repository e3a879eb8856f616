package asclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
	"github.com/stretchr/testify/require"
)

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		wantHost string
		wantPort string
		wantErr  error
	}{
		{name: "https prefix", in: "https://127.0.0.1:8443", wantHost: "127.0.0.1", wantPort: "8443"},
		{name: "no scheme", in: "example.com:443", wantHost: "example.com", wantPort: "443"},
		{name: "no port", in: "https://127.0.0.1", wantErr: errs.BadAsEndpoint},
		{name: "empty port", in: "https://127.0.0.1:", wantErr: errs.BadAsEndpoint},
		{name: "colon at start", in: ":8443", wantErr: errs.BadAsEndpoint},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			host, port, err := splitHostPort(c.in)
			if c.wantErr != nil {
				require.ErrorIs(t, err, c.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.wantHost, host)
			require.Equal(t, c.wantPort, port)
		})
	}
}

func TestAttestEnclaveHappyPath(t *testing.T) {
	var gotBody request
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, verifyPath, r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"encrypted_token":"abc","server_pubkey":"def"}`))
	}))
	defer srv.Close()

	host, port, err := splitHostPort(strings.TrimPrefix(srv.URL, "https://"))
	require.NoError(t, err)
	c := &Client{httpClient: srv.Client(), host: host, port: port}

	var held report.EnclaveHeldData
	body, err := c.AttestEnclave(&report.Quote{}, held)
	require.NoError(t, err)
	require.Contains(t, string(body), "encrypted_token")
	require.Equal(t, "Binary", gotBody.RuntimeData.DataType)
	require.Equal(t, "", gotBody.InitTimeData.Data)
	require.Equal(t, "", gotBody.InitTimeData.DataType)
	require.Equal(t, "", gotBody.DraftPolicyForAttestation)
}

func TestAttestEnclaveNon200(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("rogue quote rejected"))
	}))
	defer srv.Close()

	host, port, err := splitHostPort(strings.TrimPrefix(srv.URL, "https://"))
	require.NoError(t, err)
	c := &Client{httpClient: srv.Client(), host: host, port: port}

	var held report.EnclaveHeldData
	_, err = c.AttestEnclave(&report.Quote{}, held)
	require.Error(t, err)
	var rejected *errs.AsRejected
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, http.StatusForbidden, rejected.Status)
}
