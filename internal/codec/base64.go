// Package codec implements the byte encodings used at the boundary between
// the attestation core and its untrusted or remote peers: a lenient
// standard-alphabet decoder for bytes coming out of the sandbox transfer
// buffer, and a strict URL-safe codec for the attestation service wire
// format.
package codec

import (
	"encoding/base64"
	"strings"
)

// stdAlphabet is the alphabet accepted by DecodeStd, in the same order the
// original attestation code used it in.
const stdAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// DecodeStd decodes s using the standard Base64 alphabet. Unlike
// encoding/base64's strict decoder, it stops at the first byte that isn't
// part of the alphabet (padding included) and returns whatever valid prefix
// it managed to decode, rather than failing outright. This matches the
// lenient decoder the in-TEE engine relies on when reading the transfer
// buffer, where a NUL terminator or trailing garbage byte is expected.
func DecodeStd(s string) []byte {
	out := make([]byte, 0, len(s)*3/4)
	val, valBits := 0, -8

	for i := 0; i < len(s); i++ {
		c := s[i]
		idx := strings.IndexByte(stdAlphabet, c)
		if idx == -1 {
			break
		}

		val = (val << 6) + idx
		valBits += 6

		if valBits >= 0 {
			out = append(out, byte((val>>uint(valBits))&0xFF))
			valBits -= 8
		}
	}
	return out
}

// EncodeURL encodes b using the URL-safe, unpadded Base64 alphabet.
func EncodeURL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeURL decodes s, which must have been produced by EncodeURL.
func DecodeURL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
