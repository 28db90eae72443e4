// Package kem wraps the hybrid post-quantum key-encapsulation groups this
// engine offers in key_share: X25519MLKEM768 concatenates a classical
// X25519 Diffie-Hellman exchange with an ML-KEM-768 encapsulation. The
// classical half is carried purely as a fallback should ML-KEM ever be
// broken; it contributes no scope reduction on its own.
package kem

import (
	"crypto/ecdh"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

const x25519PublicKeySize = 32

// x25519MLKEM768 implements cryptoprim.KEM. It is a concrete struct rather
// than a bare passthrough of kem.Scheme because the wire encoding
// concatenates two independent keys rather than using either scheme's
// native encoding alone.
type x25519MLKEM768 struct {
	scheme kem.Scheme
}

// NewX25519MLKEM768 returns the hybrid classical/post-quantum KEM
// registered under GroupX25519MLKEM768.
func NewX25519MLKEM768() *x25519MLKEM768 {
	return &x25519MLKEM768{scheme: mlkem768.Scheme()}
}

// x25519MLKEM768KeyPair is the private handle returned by GenerateKeyPair
// and consumed by Decapsulate.
type x25519MLKEM768KeyPair struct {
	x25519Priv *ecdh.PrivateKey
	mlkemPriv  kem.PrivateKey
}

// GenerateKeyPair produces an ephemeral X25519 keypair and an ML-KEM-768
// encapsulation keypair, and returns their concatenated public encodings
// (X25519 public || ML-KEM-768 encapsulation key) as the wire value.
func (k *x25519MLKEM768) GenerateKeyPair(rand io.Reader) ([]byte, interface{}, error) {
	x25519Priv, err := ecdh.X25519().GenerateKey(rand)
	if err != nil {
		return nil, nil, fmt.Errorf("kem: X25519 half of hybrid group: %w", err)
	}

	mlkemPub, mlkemPriv, err := k.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("kem: ML-KEM-768 half of hybrid group: %w", err)
	}
	mlkemPubBytes, err := mlkemPub.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	wire := append(append([]byte{}, x25519Priv.PublicKey().Bytes()...), mlkemPubBytes...)
	return wire, &x25519MLKEM768KeyPair{x25519Priv: x25519Priv, mlkemPriv: mlkemPriv}, nil
}

// Encapsulate is called by whichever side did not send the key_share that
// carries the encapsulation key: it generates the X25519 ephemeral share
// and the ML-KEM-768 ciphertext against the peer's combined public value,
// and returns their concatenation alongside the combined shared secret
// (X25519 shared || ML-KEM-768 shared, matching the order Decapsulate
// recomputes on the peer's side).
func (k *x25519MLKEM768) Encapsulate(rand io.Reader, peerPublic []byte) ([]byte, []byte, error) {
	if len(peerPublic) != x25519PublicKeySize+k.scheme.PublicKeySize() {
		return nil, nil, fmt.Errorf("kem: malformed X25519MLKEM768 public value (%d bytes)", len(peerPublic))
	}
	peerX25519Bytes := peerPublic[:x25519PublicKeySize]
	peerMLKEMBytes := peerPublic[x25519PublicKeySize:]

	peerX25519Pub, err := ecdh.X25519().NewPublicKey(peerX25519Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("kem: invalid X25519 half of peer public value: %w", err)
	}
	ourX25519Priv, err := ecdh.X25519().GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	x25519Shared, err := ourX25519Priv.ECDH(peerX25519Pub)
	if err != nil {
		return nil, nil, err
	}

	peerMLKEMPub, err := k.scheme.UnmarshalBinaryPublicKey(peerMLKEMBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("kem: invalid ML-KEM-768 half of peer public value: %w", err)
	}
	mlkemCiphertext, mlkemShared, err := k.scheme.Encapsulate(peerMLKEMPub)
	if err != nil {
		return nil, nil, err
	}

	ciphertext := append(append([]byte{}, ourX25519Priv.PublicKey().Bytes()...), mlkemCiphertext...)
	shared := append(append([]byte{}, x25519Shared...), mlkemShared...)
	return ciphertext, shared, nil
}

// Decapsulate recomputes the combined shared secret from the private
// handle GenerateKeyPair returned and the peer's concatenated ciphertext.
func (k *x25519MLKEM768) Decapsulate(private interface{}, ciphertext []byte) ([]byte, error) {
	pair, ok := private.(*x25519MLKEM768KeyPair)
	if !ok {
		return nil, fmt.Errorf("kem: mismatched private key handle %T", private)
	}
	if len(ciphertext) != x25519PublicKeySize+k.scheme.CiphertextSize() {
		return nil, fmt.Errorf("kem: malformed X25519MLKEM768 ciphertext (%d bytes)", len(ciphertext))
	}
	peerX25519Bytes := ciphertext[:x25519PublicKeySize]
	mlkemCiphertext := ciphertext[x25519PublicKeySize:]

	peerX25519Pub, err := ecdh.X25519().NewPublicKey(peerX25519Bytes)
	if err != nil {
		return nil, fmt.Errorf("kem: invalid X25519 half of ciphertext: %w", err)
	}
	x25519Shared, err := pair.x25519Priv.ECDH(peerX25519Pub)
	if err != nil {
		return nil, err
	}

	mlkemShared, err := k.scheme.Decapsulate(pair.mlkemPriv, mlkemCiphertext)
	if err != nil {
		return nil, err
	}

	return append(append([]byte{}, x25519Shared...), mlkemShared...), nil
}
