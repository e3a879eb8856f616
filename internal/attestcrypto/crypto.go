// Package attestcrypto implements the elliptic-curve key agreement and
// authenticated decryption the attestation engine uses to unwrap the
// attestation service's response.
package attestcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"

	"github.com/faasm/accless-attest/internal/errs"
)

const (
	// CoordSize is the byte length of a single P-256 affine coordinate.
	CoordSize = 32

	// PubKeySize is the byte length of an uncompressed P-256 public point
	// serialized as gx || gy, without a leading format tag.
	PubKeySize = 2 * CoordSize

	// AESKeySize is the byte length of the AES-128 key derived from the
	// ECDH shared secret.
	AESKeySize = 16

	// IVSize and TagSize are the GCM parameter sizes used by the
	// attestation service's JWE encoding.
	IVSize  = 12
	TagSize = 16
)

// RawPublicKey holds an uncompressed P-256 point as two 32-byte coordinates,
// matching the gx || gy layout used throughout the wire protocol.
type RawPublicKey [PubKeySize]byte

// GX returns the point's X coordinate.
func (k RawPublicKey) GX() []byte { return k[:CoordSize] }

// GY returns the point's Y coordinate.
func (k RawPublicKey) GY() []byte { return k[CoordSize:] }

// ParseRawPublicKey validates and wraps a gx||gy byte slice.
func ParseRawPublicKey(b []byte) (RawPublicKey, error) {
	var k RawPublicKey
	if len(b) != PubKeySize {
		return k, errs.InvalidLength
	}
	copy(k[:], b)
	return k, nil
}

// ecdhUncompressed converts a RawPublicKey into the uncompressed SEC1 point
// encoding crypto/ecdh expects: 0x04 || gx || gy.
func (k RawPublicKey) ecdhUncompressed() []byte {
	out := make([]byte, 1+PubKeySize)
	out[0] = 0x04
	copy(out[1:], k[:])
	return out
}

// SharedSecret performs ECDH over P-256 between priv and peerPub, returning
// the raw 32-byte shared X coordinate.
func SharedSecret(priv *ecdh.PrivateKey, peerPub RawPublicKey) (secret [CoordSize]byte, err error) {
	defer errs.Wrap(&err, "failed to compute ecdh shared secret")

	pub, err := ecdh.P256().NewPublicKey(peerPub.ecdhUncompressed())
	if err != nil {
		errs.WrapErr(&err, errs.InvalidPublicKey)
		return secret, err
	}

	shared, err := priv.ECDH(pub)
	if err != nil {
		errs.WrapErr(&err, errs.InvalidPublicKey)
		return secret, err
	}
	if len(shared) != CoordSize {
		return secret, errs.InvalidLength
	}
	copy(secret[:], shared)
	return secret, nil
}

// DeriveAESKey turns a 32-byte ECDH shared secret into the 16-byte AES key
// the attestation service uses to encrypt the JWT. The server writes the
// shared secret little-endian, so the contract is: reverse the full 32-byte
// secret in place, then take the first 16 bytes. This is a design contract
// with the server, not an optimization, and must not be "simplified" into a
// plain truncation.
func DeriveAESKey(secret [CoordSize]byte) [AESKeySize]byte {
	reversed := secret
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	var key [AESKeySize]byte
	copy(key[:], reversed[:AESKeySize])
	return key
}

// GCMDecrypt decrypts an AES-128-GCM ciphertext with an empty AAD. A tag
// mismatch is reported as errs.AttestationRejected, matching the taxonomy
// used by the calling protocol.
func GCMDecrypt(key [AESKeySize]byte, iv, ciphertext, tag []byte) (plaintext []byte, err error) {
	defer errs.Wrap(&err, "failed to decrypt jwe")

	if len(iv) != IVSize || len(tag) != TagSize || len(ciphertext) == 0 {
		return nil, errs.InvalidLength
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err = gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		err = errs.AttestationRejected
		return nil, err
	}
	return plaintext, nil
}
