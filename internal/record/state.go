package record

import (
	"crypto"
	"fmt"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/keyschedule"
)

// Cipher names the bulk encryption algorithm a KeyMaterial describes,
// naming exactly which cryptoprim.Suite constructor builds it.
type Cipher string

const (
	CipherAES128CBC   Cipher = "aes128-cbc"
	CipherAES256CBC   Cipher = "aes256-cbc"
	Cipher3DESCBC     Cipher = "3des-cbc"
	CipherRC4         Cipher = "rc4"
	CipherAES128GCM   Cipher = "aes128-gcm"
	CipherAES256GCM   Cipher = "aes256-gcm"
	CipherChaCha20Poly1305 Cipher = "chacha20-poly1305"
)

// KeyMaterial describes the shape of keys one negotiated cipher suite
// needs: how many MAC/encryption/IV bytes DeriveKeyBlock12 (TLS 1.2) or
// DeriveTrafficKeys (TLS 1.3) must produce, and which mode and algorithm
// those bytes feed. This is the bridge between a ciphersuite registry
// (negotiated elsewhere, out of this package's scope) and the record
// layer's generic encryption paths.
type KeyMaterial struct {
	Mode       Mode
	Cipher     Cipher
	Hash       crypto.Hash // MAC hash; zero for ModeAEAD
	KeyLen     int
	MACKeyLen  int // 0 for ModeAEAD
	FixedIVLen int // CBC implicit IV (TLS 1.0) or AEAD salt length
}

// newBulkCipher constructs the BlockCipher/StreamCipher/AEAD a KeyMaterial
// names, over the given key.
func newBulkCipher(suite cryptoprim.Suite, km KeyMaterial, key []byte) (cryptoprim.BlockCipher, cryptoprim.StreamCipher, cryptoprim.AEAD, error) {
	switch km.Cipher {
	case CipherAES128CBC, CipherAES256CBC, Cipher3DESCBC:
		var block cryptoprim.BlockCipher
		var err error
		if km.Cipher == Cipher3DESCBC {
			block, err = suite.NewTripleDESCBC(key)
		} else {
			block, err = suite.NewAESCBC(key)
		}
		return block, nil, nil, err
	case CipherRC4:
		stream, err := suite.NewRC4(key)
		return nil, stream, nil, err
	case CipherAES128GCM, CipherAES256GCM:
		aead, err := suite.NewAESGCM(key)
		return nil, nil, aead, err
	case CipherChaCha20Poly1305:
		aead, err := suite.NewChaCha20Poly1305(key)
		return nil, nil, aead, err
	default:
		return nil, nil, nil, fmt.Errorf("record: unknown cipher %q", km.Cipher)
	}
}

// DirectionParams holds both directions' pending Params for one side of a
// handshake: whichever side is driving (client or server) plugs its own
// write key into Write and the peer's into Read.
type DirectionParams struct {
	Read  Params
	Write Params
}

// CalcPendingState12 expands a TLS 1.2 master secret into both
// directions' pending cipher Params (RFC 5246 §6.3), ready to install
// with NewCipherState once a change_cipher_spec is sent or received.
func CalcPendingState12(suite cryptoprim.Suite, km KeyMaterial, masterSecret, clientRandom, serverRandom []byte, v Version, isClient bool) (DirectionParams, error) {
	kb, err := keyschedule.DeriveKeyBlock12(suite, km.Hash, masterSecret, clientRandom, serverRandom, km.MACKeyLen, km.KeyLen, km.FixedIVLen)
	if err != nil {
		return DirectionParams{}, err
	}

	build := func(macKey, key, iv []byte) (Params, error) {
		block, stream, aead, err := newBulkCipher(suite, km, key)
		if err != nil {
			return Params{}, err
		}
		return Params{
			Mode: km.Mode, Version: v, Hash: km.Hash,
			MACKey: macKey, Block: block, Stream: stream, AEAD: aead, FixedIV: iv,
		}, nil
	}

	clientP, err := build(kb.ClientWriteMACKey, kb.ClientWriteKey, kb.ClientWriteIV)
	if err != nil {
		return DirectionParams{}, err
	}
	serverP, err := build(kb.ServerWriteMACKey, kb.ServerWriteKey, kb.ServerWriteIV)
	if err != nil {
		return DirectionParams{}, err
	}

	if isClient {
		return DirectionParams{Read: serverP, Write: clientP}, nil
	}
	return DirectionParams{Read: clientP, Write: serverP}, nil
}

// CalcPendingStateTLS13 expands one TLS 1.3 traffic secret into the
// Params for the direction it protects (RFC 8446 §7.3). TLS 1.3 never
// uses CBC, stream ciphers, or a separate MAC key: km.Mode must be
// ModeAEAD.
func CalcPendingStateTLS13(suite cryptoprim.Suite, km KeyMaterial, trafficSecret []byte) (Params, error) {
	if km.Mode != ModeAEAD {
		return Params{}, fmt.Errorf("record: TLS 1.3 traffic secret requires an AEAD KeyMaterial, got mode %d", km.Mode)
	}
	tk, err := keyschedule.DeriveTrafficKeys(suite, km.Hash, trafficSecret, km.KeyLen, km.FixedIVLen)
	if err != nil {
		return Params{}, err
	}
	_, _, aead, err := newBulkCipher(suite, km, tk.Key)
	if err != nil {
		return Params{}, err
	}
	return Params{Mode: ModeAEAD, Version: VersionTLS13, AEAD: aead, FixedIV: tk.IV}, nil
}

// RekeyTLS13 derives the next traffic secret (RFC 8446 §7.2's
// key_update, or any other post-handshake secret ratchet) and the fresh
// CipherState it seeds, discarding the old keys: this is the forward
// secrecy a KeyUpdate buys. The caller is responsible for swapping the
// returned state in only after it has sent or fully processed the
// KeyUpdate message that triggered it.
func RekeyTLS13(suite cryptoprim.Suite, km KeyMaterial, currentTrafficSecret []byte) (nextSecret []byte, next *CipherState, err error) {
	nextSecret, err = keyschedule.NextTrafficSecret(suite, km.Hash, currentTrafficSecret)
	if err != nil {
		return nil, nil, err
	}
	params, err := CalcPendingStateTLS13(suite, km, nextSecret)
	if err != nil {
		return nil, nil, err
	}
	return nextSecret, NewCipherState(suite, params), nil
}
