// Package state implements the handshake driver: the explicit state
// machine that sequences ClientHello/ServerHello/Certificate/Finished
// exchange for TLS 1.2 and 1.3, on both the client and server side, and
// installs the resulting keys into internal/record's Layer. It is the
// one place in this module that knows the shape of a handshake; every
// other internal package (kex, psk, keyschedule, extension, handshake,
// record) is a primitive this package composes.
//
// This package returns plain errors, not tlsengine.TlsError: the root
// package imports internal/state, so the reverse import would cycle.
// Build converts a returned error (and the alert it should carry) at the
// handshake's single shutdown boundary into a TlsError, per §7.
package state

import (
	"crypto"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/record"
)

// CipherSuite is one negotiable (suite ID, key material shape, key
// exchange method, PRF/transcript hash) bundle. The IDs are the real
// IANA TLS CipherSuite registry values so this engine interops with
// anything that logs or matches on them.
type CipherSuite struct {
	ID         uint16
	Name       string
	Version    record.Version // VersionTLS13 or the lowest of TLS10..TLS12 it's legal in
	KexMethod  kex.Method
	KeyMat     record.KeyMaterial
	PRFHash    crypto.Hash // 1.2 PRF hash, or 1.3 transcript/HKDF hash
}

// Well-known suite IDs (RFC 8446 §B.4 for 1.3; RFC 5246/5288/7905 etc.
// for 1.2). This engine negotiates only this curated list rather than
// the full historical registry, matching §1's scope (modern AEAD suites
// plus three CBC suites, one of them SRP, for interop testing; no RC4 or
// 3DES suite is in DefaultSuites).
const (
	suiteTLS13AES128GCMSHA256       uint16 = 0x1301
	suiteTLS13AES256GCMSHA384       uint16 = 0x1302
	suiteTLS13CHACHA20POLY1305SHA256 uint16 = 0x1303

	suiteECDHERSAAES128GCMSHA256 uint16 = 0xc02f
	suiteECDHERSAAES256GCMSHA384 uint16 = 0xc030
	suiteECDHERSAAES128CBCSHA256 uint16 = 0xc027
	suiteECDHERSACHACHA20POLY1305 uint16 = 0xcca8
	suiteRSAAES128CBCSHA         uint16 = 0x002f
	suiteRSAWITH3DESEDECBCSHA    uint16 = 0x000a
	suiteDHEDSSAES128CBCSHA      uint16 = 0x0032
	suiteECDHEECDSAAES128GCMSHA256 uint16 = 0xc02b
	suiteSRPSHARSAAES128CBCSHA   uint16 = 0xc01e
)

// DefaultSuites is the cipher suite preference list DefaultConfig offers,
// most preferred first, spanning both protocol versions this engine
// negotiates.
var DefaultSuites = []CipherSuite{
	{ID: suiteTLS13AES256GCMSHA384, Name: "TLS_AES_256_GCM_SHA384", Version: record.VersionTLS13,
		PRFHash: crypto.SHA384,
		KeyMat:  record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherAES256GCM, Hash: crypto.SHA384, KeyLen: 32, FixedIVLen: 12}},
	{ID: suiteTLS13AES128GCMSHA256, Name: "TLS_AES_128_GCM_SHA256", Version: record.VersionTLS13,
		PRFHash: crypto.SHA256,
		KeyMat:  record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherAES128GCM, Hash: crypto.SHA256, KeyLen: 16, FixedIVLen: 12}},
	{ID: suiteTLS13CHACHA20POLY1305SHA256, Name: "TLS_CHACHA20_POLY1305_SHA256", Version: record.VersionTLS13,
		PRFHash: crypto.SHA256,
		KeyMat:  record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherChaCha20Poly1305, Hash: crypto.SHA256, KeyLen: 32, FixedIVLen: 12}},

	{ID: suiteECDHERSAAES128GCMSHA256, Name: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", Version: record.VersionTLS12,
		KexMethod: kex.MethodECDHERSA, PRFHash: crypto.SHA256,
		KeyMat: record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherAES128GCM, Hash: crypto.SHA256, KeyLen: 16, FixedIVLen: 4}},
	{ID: suiteECDHERSAAES256GCMSHA384, Name: "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384", Version: record.VersionTLS12,
		KexMethod: kex.MethodECDHERSA, PRFHash: crypto.SHA384,
		KeyMat: record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherAES256GCM, Hash: crypto.SHA384, KeyLen: 32, FixedIVLen: 4}},
	{ID: suiteECDHEECDSAAES128GCMSHA256, Name: "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", Version: record.VersionTLS12,
		KexMethod: kex.MethodECDHEECDSA, PRFHash: crypto.SHA256,
		KeyMat: record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherAES128GCM, Hash: crypto.SHA256, KeyLen: 16, FixedIVLen: 4}},
	{ID: suiteECDHERSACHACHA20POLY1305, Name: "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256", Version: record.VersionTLS12,
		KexMethod: kex.MethodECDHERSA, PRFHash: crypto.SHA256,
		KeyMat: record.KeyMaterial{Mode: record.ModeAEAD, Cipher: record.CipherChaCha20Poly1305, Hash: crypto.SHA256, KeyLen: 32, FixedIVLen: 4}},
	{ID: suiteECDHERSAAES128CBCSHA256, Name: "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256", Version: record.VersionTLS12,
		KexMethod: kex.MethodECDHERSA, PRFHash: crypto.SHA256,
		KeyMat: record.KeyMaterial{Mode: record.ModeCBCMtE, Cipher: record.CipherAES128CBC, Hash: crypto.SHA256, KeyLen: 16, MACKeyLen: 32, FixedIVLen: 16}},
	{ID: suiteSRPSHARSAAES128CBCSHA, Name: "TLS_SRP_SHA_RSA_WITH_AES_128_CBC_SHA", Version: record.VersionTLS12,
		KexMethod: kex.MethodSRP, PRFHash: crypto.SHA256,
		KeyMat: record.KeyMaterial{Mode: record.ModeCBCMtE, Cipher: record.CipherAES128CBC, Hash: crypto.SHA1, KeyLen: 16, MACKeyLen: 20, FixedIVLen: 16}},
	{ID: suiteRSAAES128CBCSHA, Name: "TLS_RSA_WITH_AES_128_CBC_SHA", Version: record.VersionTLS12,
		KexMethod: kex.MethodRSA, PRFHash: crypto.SHA256,
		KeyMat: record.KeyMaterial{Mode: record.ModeCBCMtE, Cipher: record.CipherAES128CBC, Hash: crypto.SHA1, KeyLen: 16, MACKeyLen: 20, FixedIVLen: 16}},
}

// byID looks up one of DefaultSuites (or a caller-supplied override list)
// by its wire ID.
func byID(suites []CipherSuite, id uint16) (CipherSuite, bool) {
	for _, s := range suites {
		if s.ID == id {
			return s, true
		}
	}
	return CipherSuite{}, false
}

// is13 reports whether s is a TLS 1.3-only suite.
func (s CipherSuite) is13() bool { return s.Version == record.VersionTLS13 }

// negotiateSuite picks the first suite in serverPreference (the server's
// own preference order, not the client's) that both matches want13 and
// was offered by the client, per §4.8's "server preference wins" rule.
func negotiateSuite(serverPreference []CipherSuite, clientOffered []uint16, want13 bool) (CipherSuite, bool) {
	offered := make(map[uint16]bool, len(clientOffered))
	for _, id := range clientOffered {
		offered[id] = true
	}
	for _, s := range serverPreference {
		if s.is13() != want13 {
			continue
		}
		if offered[s.ID] {
			return s, true
		}
	}
	return CipherSuite{}, false
}

// groupKeyAgreement returns suite's KeyAgreement for group, straight from
// suite.KeyAgreementFor.
func groupKeyAgreement(suite cryptoprim.Suite, group cryptoprim.NamedGroup) (cryptoprim.KeyAgreement, error) {
	return suite.KeyAgreementFor(group)
}
