package state

import (
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/psk"
	"github.com/lanikai/tlsengine/internal/record"
	"github.com/lanikai/tlsengine/internal/sessioncache"
	"github.com/lanikai/tlsengine/internal/ticket"
	"github.com/lanikai/tlsengine/internal/transcript"
)

// clientHandshake carries state threaded between the pieces of the
// client-side handshake that span more than one function: the hello
// exchange and whichever of the TLS 1.3/1.2 continuations the negotiated
// version dispatches to.
type clientHandshake struct {
	conn *Conn

	clientRandom [32]byte
	sessionID    []byte
	offered      []CipherSuite
	shares       []ephemeralShare

	pskOffered *pskOffer
}

type pskOffer struct {
	session  sessioncache.Session
	identity psk.Identity
}

func (c *Conn) handshakeClient() error {
	if c.Suite == nil {
		return fail(AlertInternalError, "Conn.Suite must be set before Handshake")
	}
	ch := &clientHandshake{conn: c}

	offered := c.Suites
	if len(offered) == 0 {
		offered = DefaultSuites
	}
	ch.offered = offered

	raw, err := ch.sendClientHello()
	if err != nil {
		return err
	}

	tr := transcript.New(c.Suite)
	for _, h := range candidateHashes(offered) {
		if err := tr.Register(h); err != nil {
			return failWrap(AlertInternalError, err, "registering transcript hash")
		}
	}
	tr.Add(raw)
	c.transcript = tr

	reply, replyRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	sh, ok := reply.(handshake.ServerHello)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected server_hello, got %T", reply)
	}
	if sh.IsHelloRetryRequest() {
		// A second, group-constrained ClientHello in response to a
		// HelloRetryRequest is not implemented: this engine's default
		// key_share offer (X25519, the hybrid ML-KEM group, and
		// P-256) covers every group any real TLS 1.3 server selects in
		// practice, so HelloRetryRequest only arises against a peer
		// this engine isn't meant to interoperate with.
		return fail(AlertHandshakeFailure, "server requested hello_retry_request, which is not supported")
	}
	c.transcript.Add(replyRaw)

	suite, ok := byID(offered, sh.CipherSuite)
	if !ok {
		return fail(AlertIllegalParameter, "server selected unknown cipher suite 0x%04x", sh.CipherSuite)
	}
	c.NegotiatedSuite = suite
	c.transcript.DropUnused(hashForSuite(suite))

	if suite.is13() {
		c.NegotiatedVersion = record.VersionTLS13
		return ch.finishTLS13(sh)
	}
	c.NegotiatedVersion = record.VersionTLS12
	return ch.finishTLS12(sh)
}

// sendClientHello builds and writes the single ClientHello this engine
// sends, returning its marshaled bytes for the caller to seed the
// transcript with.
func (ch *clientHandshake) sendClientHello() ([]byte, error) {
	c := ch.conn
	suite := c.Suite

	if _, err := readFull(suite.Rand(), ch.clientRandom[:]); err != nil {
		return nil, failWrap(AlertInternalError, err, "generating client random")
	}
	ch.sessionID = make([]byte, 32)
	if _, err := readFull(suite.Rand(), ch.sessionID); err != nil {
		return nil, failWrap(AlertInternalError, err, "generating legacy_session_id")
	}

	versions := c.versionsToOffer()
	offer13 := false
	for _, v := range versions {
		if record.Version(v) == record.VersionTLS13 {
			offer13 = true
		}
	}

	var exts []extension.Extension
	exts = append(exts, extension.SupportedVersions{Versions: versions})

	if offer13 {
		groups := c.supportedGroups()
		exts = append(exts, extension.SupportedGroups{Groups: namedGroupsToUint16(groups)})

		entries, shares, err := generateKeyShares(suite, suite.Rand(), c.keyShareGroups())
		if err != nil {
			return nil, err
		}
		ch.shares = shares
		exts = append(exts, extension.KeyShare{ClientShares: entries})
		exts = append(exts, extension.PSKKeyExchangeModes{Modes: []uint8{extension.PSKModePSKDHE}})
	}

	exts = append(exts, extension.SignatureAlgorithms{Schemes: signatureSchemeUints(c.signatureSchemes())})
	exts = append(exts, extension.ECPointFormats{Formats: []uint8{0}})
	exts = append(exts, extension.RenegotiationInfo{})

	if c.ServerName != "" {
		exts = append(exts, extension.ServerName{HostName: c.ServerName})
	}
	if len(c.ALPNProtocols) > 0 {
		exts = append(exts, extension.ALPN{Protocols: c.ALPNProtocols})
	}
	if c.UseExtendedMasterSecret {
		exts = append(exts, extension.ExtendedMasterSecret{})
	}
	if c.RecordSizeLimit > 0 {
		exts = append(exts, extension.RecordSizeLimit{Limit: c.RecordSizeLimit})
	}
	if c.UseHeartbeat {
		exts = append(exts, extension.Heartbeat{Mode: extension.HeartbeatModePeerAllowedToSend})
	}

	if offer13 && c.SessionCache != nil && c.ServerName != "" {
		if sess, ok := c.SessionCache.Get(c.ServerName); ok {
			if s, ok2 := byID(ch.offered, sess.CipherSuite); ok2 && s.is13() {
				ch.pskOffered = &pskOffer{session: sess, identity: psk.Identity{
					Label:        sess.Ticket,
					Secret:       sess.Secret,
					Hash:         hashForSuite(s),
					IsResumption: true,
					AgeAdd:       0,
					ReceivedAt:   ticket.NowUnixMillis(),
				}}
			}
		}
	}
	if ch.pskOffered != nil {
		exts = append(exts, extension.PreSharedKey{
			Identities: []extension.PSKIdentity{{
				Identity:            ch.pskOffered.identity.Label,
				ObfuscatedTicketAge: ch.pskOffered.identity.ObfuscatedAge(ticket.NowUnixMillis()),
			}},
			Binders: [][]byte{make([]byte, ch.pskOffered.identity.Hash.Size())},
		})
	}

	suites := make([]uint16, 0, len(ch.offered))
	for _, s := range ch.offered {
		suites = append(suites, s.ID)
	}

	chMsg := handshake.ClientHello{
		LegacyVersion:      uint16(record.VersionTLS12),
		LegacySessionID:    ch.sessionID,
		CipherSuites:       suites,
		LegacyCompressions: []uint8{0},
		Extensions:         extension.NewCollection(exts...),
	}
	copy(chMsg.Random[:], ch.clientRandom[:])

	raw, err := chMsg.Marshal()
	if err != nil {
		return nil, failWrap(AlertInternalError, err, "marshaling client_hello")
	}

	if ch.pskOffered != nil {
		pskExt, _ := extension.First[extension.PreSharedKey](chMsg.Extensions)
		truncated, err := psk.TruncatedClientHello(raw, pskExt)
		if err != nil {
			return nil, failWrap(AlertInternalError, err, "truncating client_hello for binder")
		}
		binder, err := psk.ComputeBinder(suite, ch.pskOffered.identity, truncated)
		if err != nil {
			return nil, failWrap(AlertInternalError, err, "computing psk binder")
		}
		raw, err = patchLastBinder(raw, binder)
		if err != nil {
			return nil, failWrap(AlertInternalError, err, "patching psk binder")
		}
	}

	if err := c.Layer.WriteRecord(record.ContentTypeHandshake, raw); err != nil {
		return nil, failWrap(AlertInternalError, err, "writing client_hello")
	}
	return raw, nil
}

// patchLastBinder overwrites the single binder entry written as a
// zero-filled placeholder by sendClientHello with its real computed
// value, after marshaling the message once to learn its final layout.
// The binder sits at the very end of the message, so the patch is a
// simple tail overwrite.
func patchLastBinder(raw, binder []byte) ([]byte, error) {
	if len(binder) > len(raw) {
		return nil, fail(AlertInternalError, "binder longer than message")
	}
	out := append([]byte(nil), raw...)
	copy(out[len(out)-len(binder):], binder)
	return out, nil
}

func readFull(r interface {
	Read(p []byte) (int, error)
}, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
