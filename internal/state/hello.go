package state

import (
	"crypto"
	"io"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/record"
)

// defaultKeyShareGroups is the set of groups this engine generates an
// eager key_share for when a Conn doesn't name its own preference list:
// two classical curves and one hybrid post-quantum group, matching how a
// modern client avoids a round trip against most servers while still
// being willing to fall back.
var defaultKeyShareGroups = []cryptoprim.NamedGroup{
	cryptoprim.GroupX25519,
	cryptoprim.GroupX25519MLKEM768,
	cryptoprim.GroupSECP256R1,
}

// defaultSupportedGroups extends the key-share groups with the ones this
// engine advertises in supported_groups but won't eagerly generate a
// share for; HelloRetryRequest is not implemented, so no share for them
// is generated later either.
var defaultSupportedGroups = []cryptoprim.NamedGroup{
	cryptoprim.GroupX25519,
	cryptoprim.GroupX25519MLKEM768,
	cryptoprim.GroupSECP256R1,
	cryptoprim.GroupSECP384R1,
	cryptoprim.GroupFFDHE2048,
}

// defaultSignatureSchemes is internal/kex's own unexported preference
// list without its two SHA-1 entries; restated here because SelectSignatureScheme only
// needs the peer's offered list; the offering side's own list is this
// package's to choose.
var defaultSignatureSchemes = []kex.SignatureScheme{
	kex.SigEd25519,
	kex.SigECDSASecp256r1SHA256,
	kex.SigECDSASecp384r1SHA384,
	kex.SigECDSASecp521r1SHA512,
	kex.SigRSAPSSRSAeSHA256,
	kex.SigRSAPSSRSAeSHA384,
	kex.SigRSAPSSRSAeSHA512,
	kex.SigRSAPKCS1SHA256,
	kex.SigRSAPKCS1SHA384,
	kex.SigRSAPKCS1SHA512,
}

func (c *Conn) keyShareGroups() []cryptoprim.NamedGroup {
	if len(c.KeyShareGroups) > 0 {
		return c.KeyShareGroups
	}
	return defaultKeyShareGroups
}

func (c *Conn) supportedGroups() []cryptoprim.NamedGroup {
	groups := append([]cryptoprim.NamedGroup(nil), c.keyShareGroups()...)
	for _, g := range defaultSupportedGroups {
		if !containsGroup(groups, g) {
			groups = append(groups, g)
		}
	}
	return groups
}

func containsGroup(groups []cryptoprim.NamedGroup, g cryptoprim.NamedGroup) bool {
	for _, x := range groups {
		if x == g {
			return true
		}
	}
	return false
}

func (c *Conn) signatureSchemes() []kex.SignatureScheme {
	if len(c.SignatureSchemes) > 0 {
		return c.SignatureSchemes
	}
	return defaultSignatureSchemes
}

// ephemeralShare is one outstanding ephemeral (EC)DHE key pair, or hybrid
// KEM decapsulation key, this side generated for an offered or accepted
// key_share entry. kex is nil for a hybrid group, which computes its
// shared secret through kex.ClientDecapsulateHybrid/ServerEncapsulateHybrid
// instead.
type ephemeralShare struct {
	group   cryptoprim.NamedGroup
	private interface{}
	kex     cryptoprim.KeyAgreement
}

// generateKeyShares builds a KeyShareEntry plus the private halves for
// every group in groups, skipping (rather than failing the handshake
// over) any group this Suite doesn't implement.
func generateKeyShares(suite cryptoprim.Suite, rand io.Reader, groups []cryptoprim.NamedGroup) ([]extension.KeyShareEntry, []ephemeralShare, error) {
	var entries []extension.KeyShareEntry
	var shares []ephemeralShare
	for _, g := range groups {
		if kex.IsHybridGroup(g) {
			pub, priv, err := kex.GenerateHybridKeyShare(suite, rand, g)
			if err != nil {
				continue
			}
			entries = append(entries, extension.KeyShareEntry{Group: uint16(g), KeyExchange: pub})
			shares = append(shares, ephemeralShare{group: g, private: priv})
			continue
		}
		ka, err := suite.KeyAgreementFor(g)
		if err != nil {
			continue
		}
		pub, priv, err := ka.GenerateKeyPair(rand)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, extension.KeyShareEntry{Group: uint16(g), KeyExchange: pub})
		shares = append(shares, ephemeralShare{group: g, private: priv, kex: ka})
	}
	if len(entries) == 0 {
		return nil, nil, fail(AlertInternalError, "no usable key-exchange group among %v", groups)
	}
	return entries, shares, nil
}

// computeShared completes share against peerShare, dispatching to the
// hybrid KEM decapsulation path when share's group calls for it.
func (s ephemeralShare) computeShared(suite cryptoprim.Suite, peerShare []byte) ([]byte, error) {
	if kex.IsHybridGroup(s.group) {
		return kex.ClientDecapsulateHybrid(suite, s.group, s.private, peerShare)
	}
	return s.kex.ComputeShared(s.private, peerShare)
}

func findShare(shares []ephemeralShare, group cryptoprim.NamedGroup) (ephemeralShare, bool) {
	for _, s := range shares {
		if s.group == group {
			return s, true
		}
	}
	return ephemeralShare{}, false
}

// signatureSchemeUints converts a scheme list to the wire uint16 form
// extension.SignatureAlgorithms carries.
func signatureSchemeUints(schemes []kex.SignatureScheme) []uint16 {
	out := make([]uint16, len(schemes))
	for i, s := range schemes {
		out[i] = uint16(s)
	}
	return out
}

// emptyTranscriptHash returns Transcript-Hash("") for h — the fixed input
// RFC 8446's key schedule uses for "derived" labels before any real
// transcript exists.
func emptyTranscriptHash(suite cryptoprim.Suite, h crypto.Hash) ([]byte, error) {
	digest, err := suite.NewHash(h)
	if err != nil {
		return nil, err
	}
	return digest.Sum(nil), nil
}

// marshalMessageHash builds the synthetic 4-byte-header "message_hash"
// pseudo-message RFC 8446 §4.4.1 substitutes for ClientHello1 in the
// transcript once a HelloRetryRequest is seen: a handshake header naming
// TypeMessageHash, carrying Transcript-Hash(ClientHello1) as its sole
// body instead of an actual message.
func marshalMessageHash(clientHello1Hash []byte) []byte {
	out := make([]byte, 4+len(clientHello1Hash))
	out[0] = byte(handshake.TypeMessageHash)
	n := len(clientHello1Hash)
	out[1] = byte(n >> 16)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	copy(out[4:], clientHello1Hash)
	return out
}

// namedGroupsToUint16 converts a NamedGroup list to the wire form
// extension.SupportedGroups carries.
func namedGroupsToUint16(groups []cryptoprim.NamedGroup) []uint16 {
	out := make([]uint16, len(groups))
	for i, g := range groups {
		out[i] = uint16(g)
	}
	return out
}

// candidateHashes returns the distinct transcript/PRF hashes among a
// cipher suite list, for seeding a Transcript before the final suite is
// known.
func candidateHashes(suites []CipherSuite) []crypto.Hash {
	seen := make(map[crypto.Hash]bool)
	var out []crypto.Hash
	for _, s := range suites {
		h := hashForSuite(s)
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

// versionsToOffer returns the supported_versions list this Conn offers,
// most preferred first, honoring MinVersion/MaxVersion.
func (c *Conn) versionsToOffer() []uint16 {
	max, min := c.MaxVersion, c.MinVersion
	if max == 0 {
		max = record.VersionTLS13
	}
	if min == 0 {
		min = record.VersionTLS12
	}
	var out []uint16
	if max >= record.VersionTLS13 && min <= record.VersionTLS13 {
		out = append(out, uint16(record.VersionTLS13))
	}
	if max >= record.VersionTLS12 && min <= record.VersionTLS12 {
		out = append(out, uint16(record.VersionTLS12))
	}
	return out
}
