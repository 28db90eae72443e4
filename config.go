//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for a TLS connection
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package tlsengine

import (
	"crypto/rand"
	"io"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/sessioncache"
	"github.com/lanikai/tlsengine/internal/state"
	"github.com/lanikai/tlsengine/internal/ticket"
)

// ProtocolVersion names the wire version values this engine negotiates.
type ProtocolVersion uint16

const (
	VersionSSL30 ProtocolVersion = 0x0300
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

// PSKConfig is one externally-provisioned PSK identity a Config can
// offer or recognize, independent of session resumption.
type PSKConfig struct {
	Identity string
	Secret   []byte
	Hash     string // "sha256" or "sha384"
}

// Config carries every negotiable setting this engine recognizes (§6).
// Clone copies fields as they are and fills in no defaults; a caller
// typically starts from DefaultConfig(), which sets them.
type Config struct {
	MinVersion ProtocolVersion
	MaxVersion ProtocolVersion

	// CipherNames, MACNames, and KeyExchangeNames filter suite
	// construction; nil means "all this engine supports".
	CipherNames      []string
	MACNames         []string
	KeyExchangeNames []string

	// ECCCurves, DHGroups, and KeyShares are group preference lists, most
	// preferred first.
	ECCCurves []cryptoprim.NamedGroup
	DHGroups  []cryptoprim.NamedGroup
	KeyShares []cryptoprim.NamedGroup

	// RSASigHashes, ECDSASigHashes, DSASigHashes, and MoreSigSchemes
	// together build the advertised signature_algorithms list.
	RSASigHashes   []kex.SignatureScheme
	ECDSASigHashes []kex.SignatureScheme
	DSASigHashes   []kex.SignatureScheme
	MoreSigSchemes []kex.SignatureScheme

	// ECPointFormats defaults to uncompressed-only; this engine never
	// offers or accepts compressed points.
	ECPointFormats []uint8

	// MinKeySize and MaxKeySize hold DH/SRP prime bit bounds, default
	// [1023, 8193]. The connection does not read them; internal/kex checks
	// peer DH primes against its own fixed [1023, 8193] range.
	MinKeySize int
	MaxKeySize int

	UseExtendedMasterSecret     bool
	RequireExtendedMasterSecret bool

	UseEncryptThenMAC bool

	SendFallbackSCSV bool

	PSKConfigs []PSKConfig

	// PSKModes is a subset of {"psk_ke", "psk_dhe_ke"}; default
	// {"psk_dhe_ke"}.
	PSKModes []string

	// TicketKeys is the server-side ticket-encryption keyring. Nil means
	// this engine never issues or accepts session tickets.
	TicketKeys *ticket.Keyring

	// RecordSizeLimit, if > 0, advertises RFC 8449's record_size_limit
	// extension.
	RecordSizeLimit uint16

	// UseHeartbeatExtension advertises RFC 6520's heartbeat extension in
	// peer_allowed_to_send mode.
	UseHeartbeatExtension bool

	// Rand overrides the source of randomness; nil means crypto/rand.
	Rand io.Reader

	// Suite overrides the cryptographic primitive set; nil means
	// cryptoprim.NewDefaultSuite().
	Suite cryptoprim.Suite

	// ServerName is the client's SNI host_name; also the key a
	// SessionCache-bearing client stores/looks up resumption state
	// under.
	ServerName string

	// ALPNProtocols is the client's offered list, most preferred first,
	// or the server's accepted set, in the same preference order.
	ALPNProtocols []string

	// Certificates supplies this side's authentication chain and signing
	// key. A server running a non-anonymous, non-SRP suite must set
	// this; a client leaves it nil unless RequireClientAuth is set on
	// the peer.
	Certificates state.CertificateProvider

	// RequireClientAuth, on a server Config, drives a CertificateRequest
	// (unimplemented: see DESIGN.md's scope note — this engine does not
	// request or verify client certificates).
	RequireClientAuth bool

	// SRPUsername/SRPPassword are this client's TLS-SRP credentials
	// (RFC 5054); SRPVerifiers is the server-side verifier lookup for a
	// single pre-configured username (the TLS-SRP extension carries no
	// per-connection identity, so SRPUsername doubles as the one
	// account this server's listener serves).
	SRPUsername  string
	SRPPassword  string
	SRPVerifiers kex.VerifierStore

	// PSKLookup resolves an externally-provisioned PSK identity,
	// independent of ticket-based resumption.
	PSKLookup state.PSKLookup

	// SessionCache is a client's resumption store, consulted for a PSK
	// to offer and updated when a post-handshake NewSessionTicket
	// arrives. Nil disables resumption.
	SessionCache sessioncache.Cache
}

// DefaultConfig returns a Config with every default from §6 filled in:
// TLS 1.2 through 1.3, uncompressed EC points, [1023, 8193] key-size
// bounds, psk_dhe_ke only, no extended master secret requirement (but
// offered), no ticket support until TicketKeys is set.
func DefaultConfig() *Config {
	return &Config{
		MinVersion:              VersionTLS12,
		MaxVersion:               VersionTLS13,
		ECCCurves: []cryptoprim.NamedGroup{
			cryptoprim.GroupX25519,
			cryptoprim.GroupSECP256R1,
			cryptoprim.GroupSECP384R1,
			cryptoprim.GroupX25519MLKEM768,
		},
		DHGroups:  []cryptoprim.NamedGroup{cryptoprim.GroupFFDHE2048},
		KeyShares: []cryptoprim.NamedGroup{cryptoprim.GroupX25519, cryptoprim.GroupSECP256R1},
		ECPointFormats:          []uint8{0}, // uncompressed
		MinKeySize:              1023,
		MaxKeySize:              8193,
		UseExtendedMasterSecret: true,
		PSKModes:                []string{"psk_dhe_ke"},
	}
}

// Clone deep-copies every slice field so a caller can derive a
// per-connection override without aliasing the parent Config's
// preference lists.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.CipherNames = append([]string(nil), c.CipherNames...)
	clone.MACNames = append([]string(nil), c.MACNames...)
	clone.KeyExchangeNames = append([]string(nil), c.KeyExchangeNames...)
	clone.ECCCurves = append([]cryptoprim.NamedGroup(nil), c.ECCCurves...)
	clone.DHGroups = append([]cryptoprim.NamedGroup(nil), c.DHGroups...)
	clone.KeyShares = append([]cryptoprim.NamedGroup(nil), c.KeyShares...)
	clone.RSASigHashes = append([]kex.SignatureScheme(nil), c.RSASigHashes...)
	clone.ECDSASigHashes = append([]kex.SignatureScheme(nil), c.ECDSASigHashes...)
	clone.DSASigHashes = append([]kex.SignatureScheme(nil), c.DSASigHashes...)
	clone.MoreSigSchemes = append([]kex.SignatureScheme(nil), c.MoreSigSchemes...)
	clone.ECPointFormats = append([]uint8(nil), c.ECPointFormats...)
	clone.PSKConfigs = append([]PSKConfig(nil), c.PSKConfigs...)
	clone.PSKModes = append([]string(nil), c.PSKModes...)
	clone.ALPNProtocols = append([]string(nil), c.ALPNProtocols...)
	return &clone
}

// suite returns the configured Suite, defaulting to the stdlib-backed
// one if the caller never set one.
func (c *Config) suite() cryptoprim.Suite {
	if c.Suite != nil {
		return c.Suite
	}
	return cryptoprim.NewDefaultSuite()
}

// rand returns the configured randomness source, defaulting to
// crypto/rand.Reader.
func (c *Config) rand() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}
