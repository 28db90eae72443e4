package kex

import (
	"io"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

// HybridShare is what goes on the wire in a TLS 1.3 key_share entry for a
// hybrid group (§4.11's ML-KEM expansion): the classical key share
// concatenated with the post-quantum share, in the order the IANA
// registry's combined codepoint defines — classical first, then PQ.
type HybridShare struct {
	Classical []byte
	PQ        []byte
}

// IsHybridGroup reports whether a NamedGroup is a combined classical/PQ
// KEM rather than a pure (EC)DHE group.
func IsHybridGroup(group cryptoprim.NamedGroup) bool {
	return group == cryptoprim.GroupX25519MLKEM768
}

// GenerateHybridKeyShare produces the client's key_share entry for a
// hybrid group: a fresh X25519 key pair plus a fresh ML-KEM-768
// encapsulation key, concatenated for the wire.
func GenerateHybridKeyShare(suite cryptoprim.Suite, rand io.Reader, group cryptoprim.NamedGroup) ([]byte, interface{}, error) {
	kem, err := suite.KEMFor(group)
	if err != nil {
		return nil, nil, err
	}
	pub, priv, err := kem.GenerateKeyPair(rand)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// ServerEncapsulateHybrid is the server's side of a hybrid key_share: it
// encapsulates against the client's combined public key and returns both
// the ciphertext to echo back in its own key_share and the resulting
// shared secret.
func ServerEncapsulateHybrid(suite cryptoprim.Suite, rand io.Reader, group cryptoprim.NamedGroup, clientShare []byte) (ciphertext, shared []byte, err error) {
	kem, err := suite.KEMFor(group)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, shared, err = kem.Encapsulate(rand, clientShare)
	if err == nil {
		log.Debug("encapsulated hybrid shared secret for group %v", group)
	}
	return ciphertext, shared, err
}

// ClientDecapsulateHybrid is the client's side once the server's
// key_share (the KEM ciphertext) has arrived.
func ClientDecapsulateHybrid(suite cryptoprim.Suite, group cryptoprim.NamedGroup, clientPrivate interface{}, serverShare []byte) ([]byte, error) {
	kem, err := suite.KEMFor(group)
	if err != nil {
		return nil, err
	}
	shared, err := kem.Decapsulate(clientPrivate, serverShare)
	if err == nil {
		log.Debug("decapsulated hybrid shared secret for group %v", group)
	}
	return shared, err
}

// MethodForGroup classifies a TLS 1.3 negotiated group into MethodECDHEAnon
// or MethodHybridKEM for logging/dispatch purposes; TLS 1.3 itself has no
// separate "key exchange method" field, only a group.
func MethodForGroup(group cryptoprim.NamedGroup) Method {
	if IsHybridGroup(group) {
		return MethodHybridKEM
	}
	return MethodECDHEAnon
}
