package signature

import (
	"crypto/ed25519"
)

// ED25519Verify reports whether sig signs message under a raw Ed25519 key.
// Keys or signatures of the wrong size never verify.
func ED25519Verify(pubKeyBytes []byte, message []byte, signature []byte) bool {
	if len(pubKeyBytes) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKeyBytes), message, signature)
}
