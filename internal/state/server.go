package state

import (
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/record"
	"github.com/lanikai/tlsengine/internal/transcript"
)

// serverHandshake carries state threaded between the pieces of the
// server-side handshake that span more than one function: reading the
// ClientHello, negotiating version/suite, and whichever of the TLS
// 1.3/1.2 continuations the negotiated version dispatches to.
//
// This engine does not implement HelloRetryRequest (mirroring the
// client's stated non-support in client.go) or drive client-certificate
// authentication (mirroring client13.go's empty-Certificate response):
// both are scoped out for the same reason, a curated default key_share
// offer and cert chain cover every peer this engine is meant to
// interoperate with.
type serverHandshake struct {
	conn *Conn

	clientHello    handshake.ClientHello
	clientHelloRaw []byte
	clientRandom   [32]byte
	serverRandom   [32]byte

	// suitePreference is the list negotiateSuite chose from: c.Suites if
	// set, else DefaultSuites. lookupPSK needs it to check a presented
	// ticket's recorded suite against the one already negotiated.
	suitePreference []CipherSuite
}

func (c *Conn) handshakeServer() error {
	if c.Suite == nil {
		return fail(AlertInternalError, "Conn.Suite must be set before Handshake")
	}
	sh := &serverHandshake{conn: c}

	ch, chRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	clientHello, ok := ch.(handshake.ClientHello)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected client_hello, got %T", ch)
	}
	sh.clientHello = clientHello
	sh.clientHelloRaw = chRaw
	copy(sh.clientRandom[:], clientHello.Random[:])

	preference := c.Suites
	if len(preference) == 0 {
		preference = DefaultSuites
	}
	sh.suitePreference = preference

	tr := transcript.New(c.Suite)
	for _, h := range candidateHashes(preference) {
		if err := tr.Register(h); err != nil {
			return failWrap(AlertInternalError, err, "registering transcript hash")
		}
	}
	tr.Add(chRaw)
	c.transcript = tr

	want13, err := sh.negotiateVersion()
	if err != nil {
		return err
	}

	suite, ok := negotiateSuite(preference, clientHello.CipherSuites, want13)
	if !ok {
		return fail(AlertHandshakeFailure, "no cipher suite in common with client")
	}
	c.NegotiatedSuite = suite
	c.transcript.DropUnused(hashForSuite(suite))

	if c.Certificates == nil && suite.KexMethod != kex.MethodSRP {
		return fail(AlertInternalError, "Conn.Certificates must be set to negotiate a non-SRP suite")
	}

	if want13 {
		c.NegotiatedVersion = record.VersionTLS13
		return sh.finishTLS13()
	}
	c.NegotiatedVersion = record.VersionTLS12
	return sh.finishTLS12()
}

// negotiateVersion picks TLS 1.3 or 1.2 from the client's
// supported_versions extension (falling back to its legacy_version when
// absent, per RFC 8446 §4.2.1), constrained to [MinVersion, MaxVersion].
// Anything outside that range, or earlier than TLS 1.2, is rejected: this
// engine's record layer tolerates an SSLv3-framed first record (§4.2)
// but never negotiates a protocol version below TLS 1.2.
func (sh *serverHandshake) negotiateVersion() (want13 bool, err error) {
	c := sh.conn
	max, min := c.MaxVersion, c.MinVersion
	if max == 0 {
		max = record.VersionTLS13
	}
	if min == 0 {
		min = record.VersionTLS12
	}

	offered13 := false
	if sv, ok := extension.First[extension.SupportedVersions](sh.clientHello.Extensions); ok {
		for _, v := range sv.Versions {
			if record.Version(v) == record.VersionTLS13 {
				offered13 = true
			}
		}
		if !offered13 {
			for _, v := range sv.Versions {
				if record.Version(v) == record.VersionTLS12 && max >= record.VersionTLS12 && min <= record.VersionTLS12 {
					return false, nil
				}
			}
			return false, fail(AlertProtocolVersion, "no acceptable protocol version in supported_versions")
		}
	} else if record.Version(sh.clientHello.LegacyVersion) < record.VersionTLS12 {
		return false, fail(AlertProtocolVersion, "client legacy_version below TLS 1.2")
	}

	if offered13 && max >= record.VersionTLS13 && min <= record.VersionTLS13 {
		return true, nil
	}
	if max >= record.VersionTLS12 && min <= record.VersionTLS12 {
		return false, nil
	}
	return false, fail(AlertProtocolVersion, "no protocol version in common with client")
}

// pickALPN selects the first of the client's offered protocols this Conn
// also advertises, per RFC 7301 §3.2 (server preference among its own
// list, restricted to the client's offer).
func (c *Conn) pickALPN(exts *extension.Collection) (string, bool) {
	if len(c.ALPNProtocols) == 0 {
		return "", false
	}
	alpn, ok := extension.First[extension.ALPN](exts)
	if !ok {
		return "", false
	}
	offered := make(map[string]bool, len(alpn.Protocols))
	for _, p := range alpn.Protocols {
		offered[p] = true
	}
	for _, p := range c.ALPNProtocols {
		if offered[p] {
			return p, true
		}
	}
	return "", false
}
