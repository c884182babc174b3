package signature

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

var ErrUnsupportedKey = errors.New("signature: unsupported public key")

// Verifier checks signatures over login challenges. The zero value is ready
// to use.
type Verifier struct{}

// Verify reports whether sig is a valid signature of message under the
// encoded public key. Malformed keys never verify.
func (Verifier) Verify(publicKey, message, sig []byte) bool {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	return VerifyKey(pub, message, sig)
}

// VerifyKey verifies sig with an already parsed key. Ed25519 signs the message
// itself; RSA (PKCS #1 v1.5) and ECDSA (ASN.1) sign its SHA-256 digest.
func VerifyKey(pub crypto.PublicKey, message, sig []byte) bool {
	switch k := pub.(type) {
	case ed25519.PublicKey:
		return ED25519Verify(k, message, sig)
	case *rsa.PublicKey:
		digest := sha256.Sum256(message)
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) == nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(k, digest[:], sig)
	default:
		return false
	}
}

// ParsePublicKey accepts a PEM encoded PKIX or PKCS #1 key, an OpenSSH
// authorized_keys line, or a raw 32 byte Ed25519 key.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	if len(data) == ed25519.PublicKeySize {
		return ed25519.PublicKey(bytes.Clone(data)), nil
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrUnsupportedKey
	}

	if block, _ := pem.Decode(data); block != nil {
		switch block.Type {
		case "PUBLIC KEY":
			pub, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("signature: parse pkix key: %w", err)
			}
			return pub, nil
		case "RSA PUBLIC KEY":
			pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("signature: parse pkcs1 key: %w", err)
			}
			return pub, nil
		default:
			return nil, fmt.Errorf("%w: pem block %q", ErrUnsupportedKey, block.Type)
		}
	}

	if sshKey, _, _, _, err := ssh.ParseAuthorizedKey(data); err == nil {
		ck, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, ErrUnsupportedKey
		}
		return ck.CryptoPublicKey(), nil
	}
	return nil, ErrUnsupportedKey
}
