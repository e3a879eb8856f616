// Package config implements the attestation core's configuration surface,
// following veil's Config/Validate(context.Context) pattern: a plain struct
// with a Validate method that returns a field-name-to-problem map, rather
// than failing on the first bad field.
package config

import (
	"context"
	"strings"
)

// Config represents the configuration of the in-TEE attestation engine.
type Config struct {
	// AttestationServiceURL is the attestation service endpoint, e.g.
	// "https://as.example.com:8443". Required; must contain a port.
	AttestationServiceURL string

	// AttestationEnabled controls the value returned by an is_enabled
	// query.
	AttestationEnabled bool

	// Testing marks a test or development deployment, mirroring veil's
	// Testing flag. Validate then does not require VSOCKPort; the flag does
	// not itself select a report generator or host bridge implementation.
	Testing bool

	// VSOCKPort is the port the host bridge dials on the parent CID to
	// reach the untrusted host bridge process. Required unless Testing is
	// set.
	VSOCKPort uint32
}

func (c *Config) Validate(_ context.Context) map[string]string {
	problems := make(map[string]string)

	if c.AttestationServiceURL == "" {
		problems["AttestationServiceURL"] = "is required"
	} else {
		stripped := strings.TrimPrefix(c.AttestationServiceURL, "https://")
		stripped = strings.TrimPrefix(stripped, "http://")
		idx := strings.LastIndex(stripped, ":")
		if idx <= 0 || idx == len(stripped)-1 {
			problems["AttestationServiceURL"] = "must be [https://]host:port"
		}
	}

	if !c.Testing && c.VSOCKPort == 0 {
		problems["VSOCKPort"] = "must not be 0 outside of testing"
	}

	return problems
}
