// Package cryptoprim is the one seam between this module and actual
// cryptography. Every primitive the core needs — AEADs, block/stream
// ciphers, HMAC, HKDF, signing/verification, key agreement, and hybrid KEM
// encapsulation — is reached through the interfaces declared here. The
// handshake state machine, record layer, and key schedule never import
// crypto/aes or golang.org/x/crypto directly; they call through a Suite.
//
// Suite is deliberately small and synchronous: nothing in this module runs
// crypto on a background goroutine, so there is no point making these
// interfaces cancelable or batched.
package cryptoprim

import (
	"crypto"
	"hash"
	"io"
)

// AEAD is satisfied by cipher.AEAD (crypto/cipher) directly; it is
// restated here so cryptoprim callers don't need to import crypto/cipher
// just to spell the parameter type.
type AEAD interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// BlockCipher is satisfied by cipher.Block.
type BlockCipher interface {
	BlockSize() int
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

// StreamCipher is satisfied by cipher.Stream (used only for the legacy RC4
// suite family).
type StreamCipher interface {
	XORKeyStream(dst, src []byte)
}

// Hash is satisfied by hash.Hash. Re-exported so the transcript and key
// schedule packages depend on cryptoprim rather than the stdlib hash
// package directly.
type Hash = hash.Hash

// Signer is satisfied by every stdlib private key type this engine
// supports (*rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey).
type Signer = crypto.Signer

// KeyAgreement is one side of a Diffie-Hellman-shaped exchange: ECDHE
// (including X25519/X448, whose "point" is just a 32/56-byte scalar-mult
// output) or classic FFDHE.
type KeyAgreement interface {
	// GenerateKeyPair returns the wire-encoded public value and an opaque
	// private handle to be passed back into ComputeShared.
	GenerateKeyPair(rand io.Reader) (public []byte, private interface{}, err error)

	// ComputeShared derives the shared secret from our private handle and
	// the peer's wire-encoded public value.
	ComputeShared(private interface{}, peerPublic []byte) (shared []byte, err error)
}

// KEM is a key-encapsulation mechanism: the post-quantum half of a hybrid
// TLS 1.3 group.
type KEM interface {
	GenerateKeyPair(rand io.Reader) (public []byte, private interface{}, err error)
	Encapsulate(rand io.Reader, peerPublic []byte) (ciphertext, shared []byte, err error)
	Decapsulate(private interface{}, ciphertext []byte) (shared []byte, err error)
}

// Verifier checks a signature against a public key of whatever concrete
// type the certificate chain collaborator (out of scope per §1) handed
// back. digest is already hashed except for Ed25519, which signs the
// message directly.
type Verifier interface {
	Verify(pub interface{}, digest []byte, hashID crypto.Hash, sig []byte) error
}

// Suite bundles every primitive operation the core needs, constructed
// once per Config and threaded through the record layer, key schedule,
// and key-exchange dispatcher.
type Suite interface {
	Rand() io.Reader

	NewHash(h crypto.Hash) (Hash, error)
	HMAC(h crypto.Hash, key []byte) (Hash, error)

	// HKDFExtract and HKDFExpand implement RFC 5869 directly (TLS 1.3's
	// HKDF-Expand-Label, in internal/keyschedule, is built on top of
	// these two primitives).
	HKDFExtract(h crypto.Hash, salt, ikm []byte) []byte
	HKDFExpand(h crypto.Hash, prk, info []byte, length int) ([]byte, error)

	NewAESCBC(key []byte) (BlockCipher, error)
	NewAESGCM(key []byte) (AEAD, error)
	NewChaCha20Poly1305(key []byte) (AEAD, error)
	NewRC4(key []byte) (StreamCipher, error)
	NewTripleDESCBC(key []byte) (BlockCipher, error)

	Verifier

	KeyAgreementFor(group NamedGroup) (KeyAgreement, error)
	KEMFor(group NamedGroup) (KEM, error)
}

// NamedGroup mirrors the IANA "Supported Groups" registry values used by
// supported_groups / key_share. Only the subset this engine recognizes is
// enumerated.
type NamedGroup uint16

const (
	GroupSECP256R1     NamedGroup = 23
	GroupSECP384R1     NamedGroup = 24
	GroupSECP521R1     NamedGroup = 25
	GroupX25519        NamedGroup = 29
	GroupX448          NamedGroup = 30
	GroupFFDHE2048     NamedGroup = 256
	GroupFFDHE3072     NamedGroup = 257
	GroupFFDHE4096     NamedGroup = 258
	GroupX25519MLKEM768 NamedGroup = 0x11EC
)
