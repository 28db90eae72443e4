// Copyright 2019 Lanikai Labs. All rights reserved.

package tlsengine

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/record"
	"github.com/lanikai/tlsengine/internal/state"
)

// Conn is a TLS connection over an underlying net.Conn: it implements
// net.Conn itself, so it drops into anything expecting one (an
// http.Server, a net.Listener-driven accept loop, cmd/tlsengine-probe).
// The handshake runs lazily on the first Read/Write, or explicitly via
// Handshake.
type Conn struct {
	raw    net.Conn
	config *Config
	state  *state.Conn

	handshakeMu  sync.Mutex
	handshakeErr error
	handshaked   bool

	// readBuf holds the unread tail of the last application-data record
	// ReadAppData returned, when the caller's buffer was smaller than it.
	readBuf []byte
}

// Client returns a Conn that performs the client side of the handshake
// over raw, using config (nil means DefaultConfig()).
func Client(raw net.Conn, config *Config) *Conn {
	return newConn(raw, config, true)
}

// Server returns a Conn that performs the server side of the handshake
// over raw, using config (nil means DefaultConfig()).
func Server(raw net.Conn, config *Config) *Conn {
	return newConn(raw, config, false)
}

func newConn(raw net.Conn, config *Config, isClient bool) *Conn {
	if config == nil {
		config = DefaultConfig()
	}
	return &Conn{raw: raw, config: config, state: buildStateConn(config, raw, isClient)}
}

// Dial opens a TCP connection to addr and returns a client Conn ready
// for Handshake (called automatically by the first Read/Write if the
// caller doesn't call it first).
func Dial(network, addr string, config *Config) (*Conn, error) {
	raw, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	if config != nil && config.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			clone := config.Clone()
			clone.ServerName = host
			config = clone
		}
	}
	return Client(raw, config), nil
}

// A Listener accepts incoming TCP connections and wraps each one as a
// server Conn.
type Listener struct {
	net.Listener
	config *Config
}

// Listen opens a TCP listener on addr whose Accept returns server Conns
// configured per config.
func Listen(network, addr string, config *Config) (*Listener, error) {
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: l, config: config}, nil
}

// Accept waits for the next incoming connection and wraps it as a server
// Conn. It does not run the handshake; call Handshake or Read/Write.
func (l *Listener) Accept() (net.Conn, error) {
	raw, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return Server(raw, l.config), nil
}

// buildStateConn translates a Config's settings into the internal
// state.Conn fields the handshake driver reads.
func buildStateConn(cfg *Config, raw net.Conn, isClient bool) *state.Conn {
	sc := state.NewConn(raw, raw, isClient)
	sc.Suite = cfg.suite()
	sc.Rand = cfg.rand()

	sc.MinVersion = record.Version(cfg.MinVersion)
	sc.MaxVersion = record.Version(cfg.MaxVersion)
	sc.Suites = buildSuites(cfg)

	sc.ServerName = cfg.ServerName
	sc.ALPNProtocols = cfg.ALPNProtocols
	sc.ECCCurves = cfg.ECCCurves
	sc.DHGroups = cfg.DHGroups
	sc.KeyShareGroups = cfg.KeyShares
	sc.SignatureSchemes = buildSignatureSchemes(cfg)

	sc.UseExtendedMasterSecret = cfg.UseExtendedMasterSecret
	sc.RequireExtendedMasterSecret = cfg.RequireExtendedMasterSecret
	sc.UseEncryptThenMAC = cfg.UseEncryptThenMAC
	sc.RecordSizeLimit = cfg.RecordSizeLimit
	sc.UseHeartbeat = cfg.UseHeartbeatExtension

	sc.Certificates = cfg.Certificates
	sc.RequireClientAuth = cfg.RequireClientAuth
	sc.PSKLookup = cfg.PSKLookup
	if cfg.TicketKeys != nil {
		sc.TicketKeys = cfg.TicketKeys
	}
	sc.SessionCache = cfg.SessionCache
	sc.SRPVerifiers = cfg.SRPVerifiers
	sc.SRPUsername = cfg.SRPUsername
	sc.SRPPassword = cfg.SRPPassword

	return sc
}

// buildSuites narrows state.DefaultSuites to cfg's CipherNames/MACNames/
// KeyExchangeNames filters, each a list of substrings that must appear
// somewhere in a candidate suite's full IANA name (e.g. KeyExchangeNames
// "ECDHE_RSA", CipherNames "AES_128_GCM", MACNames "SHA384"); nil filters
// (the common case) leave the default preference list untouched.
func buildSuites(cfg *Config) []state.CipherSuite {
	if len(cfg.CipherNames) == 0 && len(cfg.MACNames) == 0 && len(cfg.KeyExchangeNames) == 0 {
		return nil
	}
	var out []state.CipherSuite
	for _, s := range state.DefaultSuites {
		if !anyContainedIn(cfg.CipherNames, s.Name) {
			continue
		}
		if !anyContainedIn(cfg.MACNames, s.Name) {
			continue
		}
		if !anyContainedIn(cfg.KeyExchangeNames, s.Name) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// anyContainedIn reports whether names is empty (no filter) or at least
// one of its entries is a substring of name.
func anyContainedIn(names []string, name string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

// buildSignatureSchemes concatenates cfg's per-key-type signature-scheme
// preference lists into the single ordered list state.Conn wants, ECDSA
// first (the modern default) then RSA, DSA, and any additional schemes.
func buildSignatureSchemes(cfg *Config) []kex.SignatureScheme {
	var out []kex.SignatureScheme
	out = append(out, cfg.ECDSASigHashes...)
	out = append(out, cfg.RSASigHashes...)
	out = append(out, cfg.DSASigHashes...)
	out = append(out, cfg.MoreSigSchemes...)
	return out
}

// Handshake runs the handshake if it hasn't already, returning its
// cached result on subsequent calls. On failure it sends the
// corresponding fatal TLS alert (best-effort) before returning the
// translated TlsError.
func (c *Conn) Handshake() error {
	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()
	if c.handshaked {
		return c.handshakeErr
	}
	c.handshaked = true
	if err := c.state.Handshake(); err != nil {
		c.handshakeErr = c.shutdown(err)
		return c.handshakeErr
	}
	return nil
}

// shutdown converts a HandshakeError into a TlsError, sending the
// corresponding fatal alert over the record layer first (best-effort:
// a failure to write the alert is not itself returned, since the
// original error is the one the caller needs).
func (c *Conn) shutdown(err error) error {
	he, ok := err.(*state.HandshakeError)
	if !ok {
		return fatalWrap(AlertInternalError, err, "handshake")
	}
	kind, code := alertForName(he.Alert)
	_ = c.state.Layer.WriteRecord(record.ContentTypeAlert, []byte{2, code})
	return fatalWrap(kind, he.Err, "handshake")
}

// alertForName maps an internal/state alert name onto this package's
// AlertKind and the wire alert description code to send for it.
func alertForName(name state.AlertName) (AlertKind, byte) {
	switch name {
	case state.AlertHandshakeFailure:
		return AlertHandshakeFailure, 40
	case state.AlertIllegalParameter:
		return AlertIllegalParameter, 47
	case state.AlertDecodeError:
		return AlertDecodeError, 50
	case state.AlertUnexpectedMessage:
		return AlertUnexpectedMessage, 10
	case state.AlertProtocolVersion:
		return AlertProtocolVersion, 70
	case state.AlertInsufficientSecurity:
		return AlertInsufficientSecurity, 71
	case state.AlertBadRecordMAC:
		return AlertBadRecordMAC, 20
	case state.AlertDecryptionFailed:
		return AlertDecryptionFailed, 21
	case state.AlertUnknownPSKIdentity:
		return AlertUnknownPSKIdentity, 115
	case state.AlertAuthenticationFailure:
		return AlertAuthenticationFailure, 51
	case state.AlertNoRenegotiation:
		return AlertNoRenegotiation, 100
	case state.AlertMissingExtension:
		return AlertIllegalParameter, 109
	default:
		return AlertInternalError, 80
	}
}

// Read implements net.Conn, running the handshake first if needed. A
// record larger than b is buffered and drained by subsequent calls
// before the next record is read off the wire.
func (c *Conn) Read(b []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	if len(c.readBuf) == 0 {
		data, err := c.state.ReadAppData()
		if err != nil {
			if he, ok := err.(*state.HandshakeError); ok {
				return 0, c.shutdown(he)
			}
			return 0, err
		}
		c.readBuf = data
	}
	n := copy(b, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write implements net.Conn, running the handshake first if needed.
func (c *Conn) Write(b []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	if err := c.state.WriteAppData(b); err != nil {
		return 0, c.shutdown(err)
	}
	return len(b), nil
}

// Close sends a close_notify warning alert (§7, the one resumable local
// shutdown path) and closes the underlying connection.
func (c *Conn) Close() error {
	if c.handshaked && c.handshakeErr == nil {
		_ = c.state.Layer.WriteRecord(record.ContentTypeAlert, []byte{1, 0})
	}
	return c.raw.Close()
}

func (c *Conn) LocalAddr() net.Addr                     { return c.raw.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr                    { return c.raw.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error           { return c.raw.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error       { return c.raw.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error      { return c.raw.SetWriteDeadline(t) }

// ConnectionState reports the negotiated parameters of a completed
// handshake.
type ConnectionState struct {
	Version           ProtocolVersion
	CipherSuite       string
	NegotiatedALPN    string
	PeerCertificates  [][]byte
	ResumedSession    bool
}

// ConnectionState returns the zero value until Handshake has completed.
func (c *Conn) ConnectionState() ConnectionState {
	return ConnectionState{
		Version:          ProtocolVersion(c.state.NegotiatedVersion),
		CipherSuite:      c.state.NegotiatedSuite.Name,
		NegotiatedALPN:   c.state.NegotiatedALPN,
		PeerCertificates: c.state.PeerCertificates,
		ResumedSession:   c.state.ResumedSession,
	}
}
