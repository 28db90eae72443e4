package state

import (
	"crypto"
	"io"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/defrag"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/record"
	"github.com/lanikai/tlsengine/internal/sessioncache"
	"github.com/lanikai/tlsengine/internal/transcript"
)

// Conn drives one connection's handshake and holds everything the
// client and server paths share: the record layer, the offered/accepted
// suite list, and every collaborator the spec's External Interfaces
// section names. The public tlsengine package constructs one of these
// per connection and calls Handshake.
type Conn struct {
	IsClient bool
	Suite    cryptoprim.Suite
	Rand     io.Reader
	Layer    *record.Layer
	defrag   *defrag.Reassembler

	MinVersion record.Version
	MaxVersion record.Version
	Suites     []CipherSuite

	ServerName      string
	ALPNProtocols   []string
	ECCCurves       []cryptoprim.NamedGroup
	DHGroups        []cryptoprim.NamedGroup
	KeyShareGroups  []cryptoprim.NamedGroup
	SignatureSchemes []kex.SignatureScheme

	UseExtendedMasterSecret     bool
	RequireExtendedMasterSecret bool
	UseEncryptThenMAC           bool
	RecordSizeLimit             uint16
	UseHeartbeat                bool

	Certificates CertificateProvider
	RequireClientAuth bool

	PSKLookup    PSKLookup
	TicketKeys   TicketSource
	SessionCache sessioncache.Cache
	SRPVerifiers SRPVerifierLookup

	// SRPUsername/SRPPassword are this client's TLS-SRP credentials
	// (RFC 5054); a client Conn offering a TLS_SRP_* suite without these
	// set fails that suite's key exchange rather than silently skipping
	// it, since suite selection happens before credentials are checked.
	SRPUsername string
	SRPPassword string

	// Negotiated state, filled in as Handshake progresses.
	NegotiatedVersion record.Version
	NegotiatedSuite   CipherSuite
	PeerCertificates  [][]byte
	ResumedSession    bool
	NegotiatedALPN    string

	// resumptionMaster is a client connection's TLS 1.3
	// resumption_master_secret, kept only long enough to turn a
	// post-handshake NewSessionTicket's nonce into a resumption PSK
	// (RFC 8446 §4.6.1). Servers never populate this; they derive and
	// seal the PSK themselves in issueSessionTicket.
	resumptionMaster []byte

	transcript *transcript.Transcript
}

// NewConn wires rw into a fresh record.Layer and returns an
// otherwise-empty Conn; the caller fills in the negotiable fields (or
// copies them from a Config) before calling Handshake.
func NewConn(r io.Reader, w io.Writer, isClient bool) *Conn {
	return &Conn{
		IsClient: isClient,
		Layer:    record.New(r, w, !isClient),
		defrag:   defrag.New(),
	}
}

// Handshake runs the client or server handshake to completion,
// installing the negotiated application traffic keys into c.Layer.
func (c *Conn) Handshake() error {
	if c.IsClient {
		return c.handshakeClient()
	}
	return c.handshakeServer()
}

// readHandshake blocks until the next complete handshake message is
// reassembled, returning both the parsed Message and its raw
// (4-byte-header-included) bytes for transcript accumulation. A received
// alert is surfaced as an error instead.
func (c *Conn) readHandshake() (handshake.Message, []byte, error) {
	for {
		if raw, ok := c.defrag.Next(defrag.ContentTypeHandshake); ok {
			msg, err := handshake.Parse(raw)
			if err != nil {
				return nil, nil, failWrap(AlertDecodeError, err, "parsing handshake message")
			}
			return msg, raw, nil
		}
		if raw, ok := c.defrag.Next(defrag.ContentTypeAlert); ok {
			return nil, nil, parseAlertRecord(raw)
		}
		ct, plaintext, err := c.Layer.ReadRecord()
		if err != nil {
			return nil, nil, failWrap(AlertInternalError, err, "reading record")
		}
		if err := c.defrag.Feed(ct, plaintext); err != nil {
			return nil, nil, failWrap(AlertDecodeError, err, "reassembling record")
		}
	}
}

// writeHandshake marshals and sends one handshake message, returning its
// raw bytes for the caller to feed into the transcript.
func (c *Conn) writeHandshake(msg handshake.Message) ([]byte, error) {
	raw, err := msg.Marshal()
	if err != nil {
		return nil, failWrap(AlertInternalError, err, "marshaling %s", msg.MsgType())
	}
	if err := c.Layer.WriteRecord(record.ContentTypeHandshake, raw); err != nil {
		return nil, failWrap(AlertInternalError, err, "writing %s", msg.MsgType())
	}
	return raw, nil
}

// readChangeCipherSpec blocks until a change_cipher_spec record arrives,
// feeding unrelated records to the reassembler in the meantime (a TLS 1.2
// server that sends NewSessionTicket before change_cipher_spec is legal
// and fed through the handshake queue like any other message).
func (c *Conn) readChangeCipherSpec() error {
	for {
		if raw, ok := c.defrag.Next(defrag.ContentTypeChangeCipherSpec); ok {
			if len(raw) != 1 || raw[0] != 1 {
				return fail(AlertDecodeError, "malformed change_cipher_spec")
			}
			return nil
		}
		if raw, ok := c.defrag.Next(defrag.ContentTypeAlert); ok {
			return parseAlertRecord(raw)
		}
		ct, plaintext, err := c.Layer.ReadRecord()
		if err != nil {
			return failWrap(AlertInternalError, err, "reading record")
		}
		if err := c.defrag.Feed(ct, plaintext); err != nil {
			return failWrap(AlertDecodeError, err, "reassembling record")
		}
	}
}

// parseAlertRecord decodes a 2-byte (level, description) alert body into
// a HandshakeError naming the alert the peer sent.
func parseAlertRecord(raw []byte) error {
	if len(raw) != 2 {
		return fail(AlertDecodeError, "malformed alert record (%d bytes)", len(raw))
	}
	isWarning := raw[0] == 1
	desc := raw[1]
	name := alertDescriptionNames[desc]
	if name == "" {
		name = "unknown_alert"
	}
	kind := AlertHandshakeFailure
	if isWarning {
		kind = AlertInternalError
	}
	return &HandshakeError{Alert: kind, Err: &peerAlertError{warning: isWarning, description: name}}
}

type peerAlertError struct {
	warning     bool
	description string
}

func (e *peerAlertError) Error() string {
	level := "fatal"
	if e.warning {
		level = "warning"
	}
	return "peer sent " + level + " alert: " + e.description
}

// IsWarning reports whether the alert this error wraps was a warning
// (including close_notify), so the caller's shutdown boundary can decide
// resumability.
func (e *peerAlertError) IsWarning() bool { return e.warning }

var alertDescriptionNames = map[byte]string{
	0:   "close_notify",
	10:  "unexpected_message",
	20:  "bad_record_mac",
	21:  "decryption_failed",
	22:  "record_overflow",
	40:  "handshake_failure",
	42:  "bad_certificate",
	43:  "unsupported_certificate",
	44:  "certificate_revoked",
	45:  "certificate_expired",
	46:  "certificate_unknown",
	47:  "illegal_parameter",
	48:  "unknown_ca",
	49:  "access_denied",
	50:  "decode_error",
	51:  "decrypt_error",
	70:  "protocol_version",
	71:  "insufficient_security",
	80:  "internal_error",
	86:  "inappropriate_fallback",
	90:  "user_canceled",
	100: "no_renegotiation",
	109: "missing_extension",
	110: "unsupported_extension",
	112: "unrecognized_name",
	115: "unknown_psk_identity",
	116: "certificate_required",
	120: "no_application_protocol",
}

// hashForSuite returns a suite's transcript/PRF hash, defaulting to
// SHA-256 if unset (never true for any entry in DefaultSuites).
func hashForSuite(s CipherSuite) crypto.Hash {
	if s.PRFHash == 0 {
		return crypto.SHA256
	}
	return s.PRFHash
}
