package record

import (
	"crypto"
	"encoding/binary"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

// Mode names which of the encryption paths a CipherState runs.
type Mode int

const (
	// ModeNull is the initial, pre-handshake state: records travel in
	// the clear.
	ModeNull Mode = iota
	// ModeStreamMAC is RC4 with a MAC-then-encrypt trailer (no IV).
	ModeStreamMAC
	// ModeCBCMtE is block-cipher CBC, MAC computed over the plaintext
	// and appended before encryption (RFC 5246 §6.2.3.2). TLS 1.1+
	// prepends a random explicit IV; TLS 1.0 chains the previous
	// record's final ciphertext block instead.
	ModeCBCMtE
	// ModeCBCEtM is RFC 7366: CBC, but the MAC is computed over the
	// ciphertext and appended after encryption.
	ModeCBCEtM
	// ModeAEAD covers AES-GCM and ChaCha20-Poly1305, both the TLS 1.2 explicit-nonce
	// and TLS 1.3 fully-implicit-nonce constructions.
	ModeAEAD
	// ModeSSLv3MAC is SSL 3.0's pre-HMAC "MAC_SSL" construction: CBC or
	// stream encryption with a non-HMAC padded hash MAC, kept only for
	// reading the brief SSLv3 record framing this engine tolerates.
	ModeSSLv3MAC
)

var modeNames = [...]string{"null", "stream+mac", "cbc-mac-then-encrypt", "cbc-encrypt-then-mac", "aead", "sslv3-mac"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// Params describes one direction's cipher parameters, fixed for the
// lifetime of one CipherState. It is produced by CalcPendingState12 or
// CalcPendingStateTLS13 in state.go from a KeyBlock12 or TrafficKeys.
type Params struct {
	Mode    Mode
	Version Version
	Hash    crypto.Hash // MAC hash; zero for ModeAEAD

	MACKey []byte // ModeStreamMAC, ModeCBCMtE, ModeCBCEtM, ModeSSLv3MAC
	Block  cryptoprim.BlockCipher
	Stream cryptoprim.StreamCipher
	AEAD   cryptoprim.AEAD

	// FixedIV is the CBC implicit IV (TLS 1.0 only, before the first
	// record) or the AEAD salt (TLS 1.2 4-byte salt prefixed to an
	// 8-byte explicit nonce, or the TLS 1.3 full-length IV XORed with
	// the sequence number).
	FixedIV []byte
}

// CipherState is one direction (read or write) of a record connection:
// its cipher parameters plus the mutable sequence number and, for TLS 1.0
// CBC, the chained IV.
type CipherState struct {
	Params
	suite cryptoprim.Suite
	seq   uint64

	// lastCiphertextBlock implements TLS 1.0's implicit per-record IV:
	// each record's IV is the previous record's last ciphertext block.
	// Unused from TLS 1.1 onward, where every record carries its own
	// explicit IV.
	lastCiphertextBlock []byte
}

// NewNullCipherState returns the plaintext initial state for a direction.
func NewNullCipherState(suite cryptoprim.Suite, v Version) *CipherState {
	return &CipherState{Params: Params{Mode: ModeNull, Version: v}, suite: suite}
}

// NewCipherState installs p as a direction's active cipher parameters,
// sequence number reset to zero as §4.6 requires on every cipher-state
// transition.
func NewCipherState(suite cryptoprim.Suite, p Params) *CipherState {
	cs := &CipherState{Params: p, suite: suite}
	if p.Mode == ModeCBCMtE && p.Version == VersionTLS10 {
		cs.lastCiphertextBlock = append([]byte(nil), p.FixedIV...)
	}
	return cs
}

// seqBytes renders the current sequence number as an 8-byte big-endian
// field, the form both the MAC input (TLS/SSLv3) and the AEAD additional
// data use.
func (cs *CipherState) seqBytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], cs.seq)
	return b[:]
}

// advance increments the sequence number, failing closed if it would
// wrap: RFC 8446 §5.5 / RFC 5246 §6.1 both require a connection to be
// torn down and renegotiated rather than reuse a sequence number.
func (cs *CipherState) advance() error {
	if cs.seq == ^uint64(0) {
		return errSequenceOverflow
	}
	cs.seq++
	return nil
}
