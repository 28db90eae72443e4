// Package keyschedule implements both protocol versions' key derivation:
// the TLS 1.2 PRF-based master secret/key-block/Finished computation, and
// the TLS 1.3 HKDF-Expand-Label cascade from early through application
// traffic secrets. Every primitive operation (HMAC, HKDF) is reached
// through cryptoprim.Suite; this package only sequences them.
package keyschedule

import (
	"crypto"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/logging"
)

var log = logging.DefaultLogger.WithTag("keysched")

// PHash implements the TLS 1.2 P_hash expansion function (RFC 5246
// §5): P_hash(secret, seed) = HMAC(secret, A(1) || seed) ||
// HMAC(secret, A(2) || seed) || ..., where A(0) = seed and
// A(i) = HMAC(secret, A(i-1)).
func PHash(suite cryptoprim.Suite, h crypto.Hash, secret, seed []byte, length int) ([]byte, error) {
	mac, err := suite.HMAC(h, secret)
	if err != nil {
		return nil, err
	}
	hashSize := mac.Size()

	a := seed
	out := make([]byte, 0, length+hashSize)
	for len(out) < length {
		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)

		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)
	}
	return out[:length], nil
}

// PRF is P_hash renamed to the familiar TLS 1.2 call shape: the label
// and seed are concatenated, per RFC 5246 §5's "PRF(secret, label,
// seed) = P_<hash>(secret, label + seed)".
func PRF(suite cryptoprim.Suite, h crypto.Hash, secret []byte, label string, seed []byte, length int) ([]byte, error) {
	combined := append([]byte(label), seed...)
	return PHash(suite, h, secret, combined, length)
}

// MasterSecret12 derives the 48-byte master secret from the premaster
// secret. If extendedMasterSecret is true, seed is the transcript's
// session_hash instead of client_random||server_random (RFC 7627).
func MasterSecret12(suite cryptoprim.Suite, h crypto.Hash, premaster []byte, extendedMasterSecret bool, clientRandom, serverRandom, sessionHash []byte) ([]byte, error) {
	if extendedMasterSecret {
		log.Debug("deriving master secret (extended, RFC 7627)")
		return PRF(suite, h, premaster, "extended master secret", sessionHash, 48)
	}
	log.Debug("deriving master secret")
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return PRF(suite, h, premaster, "master secret", seed, 48)
}

// KeyBlock12 is the output of RFC 5246 §6.3's key_block expansion, split
// into its six fields in the fixed wire order: client_write_MAC_key,
// server_write_MAC_key, client_write_key, server_write_key,
// client_write_IV, server_write_IV. macKeyLen is 0 for
// AEAD suites, which derive no MAC key and use a 4-byte implicit IV/salt
// instead of the fixed CBC/RC4 IV length.
type KeyBlock12 struct {
	ClientWriteMACKey []byte
	ServerWriteMACKey []byte
	ClientWriteKey    []byte
	ServerWriteKey    []byte
	ClientWriteIV     []byte
	ServerWriteIV     []byte
}

// DeriveKeyBlock12 expands the master secret into a KeyBlock12.
func DeriveKeyBlock12(suite cryptoprim.Suite, h crypto.Hash, masterSecret, clientRandom, serverRandom []byte, macKeyLen, encKeyLen, ivLen int) (KeyBlock12, error) {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	total := 2*macKeyLen + 2*encKeyLen + 2*ivLen
	block, err := PRF(suite, h, masterSecret, "key expansion", seed, total)
	if err != nil {
		return KeyBlock12{}, err
	}

	var kb KeyBlock12
	off := 0
	take := func(n int) []byte {
		v := block[off : off+n]
		off += n
		return v
	}
	kb.ClientWriteMACKey = take(macKeyLen)
	kb.ServerWriteMACKey = take(macKeyLen)
	kb.ClientWriteKey = take(encKeyLen)
	kb.ServerWriteKey = take(encKeyLen)
	kb.ClientWriteIV = take(ivLen)
	kb.ServerWriteIV = take(ivLen)
	return kb, nil
}

// FinishedVerifyData12 computes a Finished message's 12-byte verify_data
// (RFC 5246 §7.4.9). label is "client finished" or "server finished".
func FinishedVerifyData12(suite cryptoprim.Suite, h crypto.Hash, masterSecret []byte, label string, transcriptDigest []byte) ([]byte, error) {
	log.Debug("computing %s verify_data", label)
	return PRF(suite, h, masterSecret, label, transcriptDigest, 12)
}

const (
	FinishedLabelClient = "client finished"
	FinishedLabelServer = "server finished"
)
