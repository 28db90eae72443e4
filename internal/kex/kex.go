// Package kex implements the key-exchange dispatcher: building and
// consuming ServerKeyExchange/ClientKeyExchange payloads for each
// negotiated method, and computing the resulting premaster/shared
// secret. RSA, DHE, ECDHE, SRP, and TLS 1.3 hybrid KEM groups each get
// their own file; this file holds the shared Method enum.
package kex

import (
	"crypto"
	"fmt"
	"io"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/logging"
)

var log = logging.DefaultLogger.WithTag("kex")

// Method identifies which key-exchange algorithm family a cipher suite
// uses. TLS 1.3 cipher suites are cipher-only (the group comes from
// key_share instead), so they always dispatch through MethodECDHEAnon or
// MethodHybridKEM depending on the negotiated group.
type Method int

const (
	MethodRSA Method = iota
	MethodDHEAnon
	MethodDHERSA
	MethodECDHEAnon
	MethodECDHERSA
	MethodECDHEECDSA
	MethodSRP
	MethodHybridKEM
)

// Authenticated reports whether this method's ServerKeyExchange must be
// signed: true for MethodDHERSA, MethodECDHERSA, and MethodECDHEECDSA;
// false for RSA, the anonymous variants, SRP, and MethodHybridKEM.
func (m Method) Authenticated() bool {
	switch m {
	case MethodDHERSA, MethodECDHERSA, MethodECDHEECDSA:
		return true
	default:
		return false
	}
}

// Result is the outcome of a completed key exchange: the premaster
// secret (1.2) or the raw (EC)DHE/KEM shared secret (1.3, fed into
// internal/keyschedule's Handshake_Secret derivation).
type Result struct {
	Secret []byte
}

// minDHBits and maxDHBits bound the FFDHE prime size this engine accepts
// from a peer, per §4.8's default [1023, 8193] range.
const (
	minDHBits = 1023
	maxDHBits = 8193
)

// RandomPremaster returns a fresh 48-byte value whose first two bytes
// are the given client_version, used both as the genuine RSA premaster
// secret and as the Bleichenbacher-countermeasure substitute when
// ClientKeyExchange decryption or validation fails.
func RandomPremaster(rand io.Reader, clientVersion uint16) ([]byte, error) {
	pms := make([]byte, 48)
	if _, err := io.ReadFull(rand, pms); err != nil {
		return nil, err
	}
	pms[0] = byte(clientVersion >> 8)
	pms[1] = byte(clientVersion)
	return pms, nil
}

// signaturePayload builds the ServerKeyExchange signature input: the
// client and server randoms followed by the method-specific exchange
// parameters, per RFC 5246 §7.4.3.
func signaturePayload(clientRandom, serverRandom, params []byte) []byte {
	buf := make([]byte, 0, 64+len(params))
	buf = append(buf, clientRandom...)
	buf = append(buf, serverRandom...)
	buf = append(buf, params...)
	return buf
}

// SignParams signs a ServerKeyExchange's parameters with the server's
// private key, hashing with h first (every supported scheme here except
// Ed25519, which is not offered for ServerKeyExchange in practice since
// it has no RFC 5246 SignatureAndHashAlgorithm codepoint).
func SignParams(suite cryptoprim.Suite, signer cryptoprim.Signer, h crypto.Hash, clientRandom, serverRandom, params []byte) ([]byte, error) {
	payload := signaturePayload(clientRandom, serverRandom, params)
	digest, err := suite.NewHash(h)
	if err != nil {
		return nil, err
	}
	digest.Write(payload)
	return signer.Sign(suite.Rand(), digest.Sum(nil), h)
}

// VerifyParams checks a ServerKeyExchange signature against the server's
// public key.
func VerifyParams(suite cryptoprim.Suite, pub interface{}, h crypto.Hash, clientRandom, serverRandom, params, sig []byte) error {
	payload := signaturePayload(clientRandom, serverRandom, params)
	digest, err := suite.NewHash(h)
	if err != nil {
		return err
	}
	digest.Write(payload)
	return suite.Verify(pub, digest.Sum(nil), h, sig)
}

func rangeError(bits int) error {
	return fmt.Errorf("kex: group size %d bits outside allowed range [%d, %d]", bits, minDHBits, maxDHBits)
}
