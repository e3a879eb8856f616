// Package asclient implements the outside-TEE HTTP client that reaches the
// remote attestation service on behalf of the host process, following
// veil's httpx.NewUnauthClient pattern: TLS transport with certificate
// verification disabled, because authentication of the response happens one
// layer up, via the enclave-bound GCM key, not via the TLS handshake.
package asclient

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faasm/accless-attest/internal/codec"
	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
)

const verifyPath = "/verify-sgx-report"

// request mirrors the attestation service's request JSON exactly, including
// the fields that are always sent as empty strings. Field order does not
// matter to the service; presence of quote and runtimeData does.
type request struct {
	Quote                     string    `json:"quote"`
	RuntimeData               dataField `json:"runtimeData"`
	InitTimeData              dataField `json:"initTimeData"`
	DraftPolicyForAttestation string    `json:"draftPolicyForAttestation"`
}

type dataField struct {
	Data     string `json:"data"`
	DataType string `json:"dataType"`
}

// Client talks to a single attestation service endpoint.
type Client struct {
	httpClient *http.Client
	host       string
	port       string
}

// New parses rawURL (an optional "https://" prefix followed by "host:port")
// and returns a Client for it. A missing or empty port fails with
// errs.BadAsEndpoint, matching the original protocol's endpoint parsing
// rule.
func New(rawURL string) (*Client, error) {
	host, port, err := splitHostPort(rawURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		httpClient: newUnauthClient(),
		host:       host,
		port:       port,
	}, nil
}

// splitHostPort strips an optional "https://" or "http://" prefix and splits
// the remainder on the last colon. A missing colon, or an empty host/port,
// fails with errs.BadAsEndpoint.
func splitHostPort(rawURL string) (host, port string, err error) {
	defer errs.Wrap(&err, "failed to parse attestation service endpoint %q", rawURL)

	stripped := strings.TrimPrefix(rawURL, "https://")
	stripped = strings.TrimPrefix(stripped, "http://")

	idx := strings.LastIndex(stripped, ":")
	if idx <= 0 || idx == len(stripped)-1 {
		return "", "", errs.BadAsEndpoint
	}
	host, port = stripped[:idx], stripped[idx+1:]
	if host == "" || port == "" {
		return "", "", errs.BadAsEndpoint
	}
	return host, port, nil
}

// newUnauthClient returns an HTTP client that skips TLS certificate
// verification, mirroring httpx.NewUnauthClient. The comment there applies
// here too: this is safe only because the enclave authenticates the
// response via the GCM key bound to its ephemeral public key, not via TLS.
func newUnauthClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS13,
				InsecureSkipVerify: true,
			},
		},
		Timeout: 10 * time.Second,
	}
}

// AttestEnclave sends the quote and enclave-held data to the attestation
// service and returns the response body verbatim. A non-200 response fails
// with *errs.AsRejected.
func (c *Client) AttestEnclave(quote *report.Quote, held report.EnclaveHeldData) (body []byte, err error) {
	defer errs.Wrap(&err, "failed to attest enclave")

	reqBody, err := json.Marshal(request{
		Quote: codec.EncodeURL(quote.Bytes()),
		RuntimeData: dataField{
			Data:     codec.EncodeURL(held[:]),
			DataType: "Binary",
		},
		InitTimeData:              dataField{Data: "", DataType: ""},
		DraftPolicyForAttestation: "",
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s:%s%s", c.host, c.port, verifyPath)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Host = c.host
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.AsRejected{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
