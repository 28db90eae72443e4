package state

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
)

// certificateKeyInfo reports a leaf public key's type and bit length,
// for internal/kex.SelectSignatureScheme. This duplicates the root
// package's CertificateKeyInfo: internal/state cannot import the root
// tlsengine package (package doc, suites.go), so the one piece of logic
// both sides need is kept in both places rather than shared.
func certificateKeyInfo(pub interface{}) (isRSA, isECDSA, isEd25519 bool, bitLength int) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return true, false, false, k.N.BitLen()
	case *ecdsa.PublicKey:
		return false, true, false, k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return false, false, true, 256
	default:
		return false, false, false, 0
	}
}
