// Package extension implements the typed ClientHello/ServerHello/
// EncryptedExtensions/CertificateRequest/Certificate extension catalog:
// server_name, ALPN, supported_versions, key_share, pre_shared_key,
// signature_algorithms, psk_key_exchange_modes, cookie, supported_groups,
// ec_point_formats, extended_master_secret, encrypt_then_mac,
// session_ticket, renegotiation_info, record_size_limit, and heartbeat.
//
// Every extension's Marshal returns the complete TLV on the wire (2-byte
// type, 2-byte length, body) — not just the body — mirroring how the
// teacher's DTLS extension types serialize themselves.
package extension

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/packet"
)

// Type is the IANA TLS ExtensionType registry value.
type Type uint16

const (
	TypeServerName            Type = 0
	TypeHeartbeat              Type = 15
	TypeSupportedGroups        Type = 10
	TypeECPointFormats         Type = 11
	TypeSignatureAlgorithms    Type = 13
	TypeALPN                   Type = 16
	TypeRecordSizeLimit        Type = 28
	TypeEncryptThenMAC         Type = 22
	TypeExtendedMasterSecret   Type = 23
	TypeSessionTicket          Type = 35
	TypePreSharedKey           Type = 41
	TypeEarlyData              Type = 42
	TypeSupportedVersions      Type = 43
	TypeCookie                 Type = 44
	TypePSKKeyExchangeModes    Type = 45
	TypeCertificateAuthorities Type = 47
	TypeKeyShare               Type = 51
	TypeRenegotiationInfo      Type = 0xff01
)

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("extension(%d)", uint16(t))
}

var typeNames = map[Type]string{
	TypeServerName:             "server_name",
	TypeHeartbeat:              "heartbeat",
	TypeSupportedGroups:        "supported_groups",
	TypeECPointFormats:         "ec_point_formats",
	TypeSignatureAlgorithms:    "signature_algorithms",
	TypeALPN:                   "application_layer_protocol_negotiation",
	TypeRecordSizeLimit:        "record_size_limit",
	TypeEncryptThenMAC:         "encrypt_then_mac",
	TypeExtendedMasterSecret:   "extended_master_secret",
	TypeSessionTicket:          "session_ticket",
	TypePreSharedKey:           "pre_shared_key",
	TypeEarlyData:              "early_data",
	TypeSupportedVersions:      "supported_versions",
	TypeCookie:                 "cookie",
	TypePSKKeyExchangeModes:    "psk_key_exchange_modes",
	TypeCertificateAuthorities: "certificate_authorities",
	TypeKeyShare:               "key_share",
	TypeRenegotiationInfo:      "renegotiation_info",
}

// Context identifies which handshake message an extension was found in,
// since several extension types are only legal in a subset of messages
// (e.g. pre_shared_key is ClientHello/ServerHello only).
type Context int

const (
	ContextClientHello Context = iota
	ContextServerHello
	ContextHelloRetryRequest
	ContextEncryptedExtensions
	ContextCertificateRequest
	ContextCertificate
)

// Extension is implemented by every concrete extension type in this
// package.
type Extension interface {
	Type() Type
	AllowedIn(ctx Context) bool
	Marshal() ([]byte, error)
}

// decodeFunc parses an extension body (the bytes after the 2-byte type
// and 2-byte length) into a concrete Extension.
type decodeFunc func(body []byte) (Extension, error)

var registry = map[Type]decodeFunc{
	TypeServerName:            decodeServerName,
	TypeALPN:                  decodeALPN,
	TypeSupportedVersions:     decodeSupportedVersions,
	TypeKeyShare:              decodeKeyShare,
	TypePreSharedKey:          decodePreSharedKey,
	TypeSignatureAlgorithms:   decodeSignatureAlgorithms,
	TypePSKKeyExchangeModes:   decodePSKKeyExchangeModes,
	TypeCookie:                decodeCookie,
	TypeSupportedGroups:       decodeSupportedGroups,
	TypeECPointFormats:        decodeECPointFormats,
	TypeExtendedMasterSecret:  decodeExtendedMasterSecret,
	TypeEncryptThenMAC:        decodeEncryptThenMAC,
	TypeSessionTicket:         decodeSessionTicket,
	TypeRenegotiationInfo:     decodeRenegotiationInfo,
	TypeRecordSizeLimit:       decodeRecordSizeLimit,
	TypeHeartbeat:             decodeHeartbeat,
}

// Collection holds every extension parsed out of one handshake message,
// in wire order.
type Collection struct {
	items []Extension
	seen  map[Type]bool
}

func newCollection() *Collection {
	return &Collection{seen: make(map[Type]bool)}
}

// NewCollection builds a Collection from extensions this engine
// originates, for outbound ClientHello/ServerHello/EncryptedExtensions
// construction (the state machine's only way to build one; ParseAll is
// for inbound wire bytes).
func NewCollection(exts ...Extension) *Collection {
	c := newCollection()
	for _, e := range exts {
		c.items = append(c.items, e)
		c.seen[e.Type()] = true
	}
	return c
}

// All returns every extension in wire order.
func (c *Collection) All() []Extension {
	return c.items
}

// Has reports whether an extension of type t is present.
func (c *Collection) Has(t Type) bool {
	return c.seen[t]
}

// First returns the first (and, after duplicate rejection, only)
// extension of concrete type T, if present.
func First[T Extension](c *Collection) (T, bool) {
	var zero T
	for _, e := range c.items {
		if t, ok := e.(T); ok {
			return t, true
		}
	}
	return zero, false
}

// ParseAll reads every extension in r (which must hold exactly the
// extensions block, not including its own outer 2-byte length prefix —
// callers read that with GetVar(2) first) for the given context.
// Unrecognized extension types are preserved as opaque blobs rather than
// rejected, since new extensions routinely appear that implementations
// must tolerate; recognized duplicates and extensions out of context are
// both fatal parse errors.
func ParseAll(ctx Context, r *packet.Reader) (*Collection, error) {
	c := newCollection()
	pskSeen := false
	for r.Remaining() > 0 {
		if pskSeen {
			return nil, fmt.Errorf("extension: pre_shared_key must be the last extension in ClientHello")
		}
		typ, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		body, err := r.GetVar(2)
		if err != nil {
			return nil, err
		}
		t := Type(typ)

		decode, known := registry[t]
		if !known {
			ext := opaqueExtension{typ: t, body: append([]byte(nil), body...)}
			c.items = append(c.items, ext)
			c.seen[t] = true
			continue
		}

		if c.seen[t] {
			return nil, fmt.Errorf("extension: duplicate %s", t)
		}
		ext, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("extension: %s: %w", t, err)
		}
		if !ext.AllowedIn(ctx) {
			return nil, fmt.Errorf("extension: %s not allowed in this message", t)
		}
		c.seen[t] = true
		c.items = append(c.items, ext)
		if t == TypePreSharedKey && ctx == ContextClientHello {
			pskSeen = true
		}
	}
	return c, nil
}

// Marshal serializes every extension in c back into the extensions-block
// wire format (no outer length prefix — callers wrap with BeginVector/
// EndVector(2) themselves, since the extensions block is itself nested
// inside a larger message).
func (c *Collection) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	for _, e := range c.items {
		raw, err := e.Marshal()
		if err != nil {
			return nil, err
		}
		w.WriteSlice(raw)
	}
	return w.Bytes(), nil
}

// opaqueExtension preserves an unrecognized extension type byte-for-byte
// so it can be forwarded or re-serialized without this engine
// understanding its semantics.
type opaqueExtension struct {
	typ  Type
	body []byte
}

func (e opaqueExtension) Type() Type                { return e.typ }
func (e opaqueExtension) AllowedIn(ctx Context) bool { return true }
func (e opaqueExtension) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.WriteUint16(uint16(e.typ))
	w.PutVar(2, e.body)
	return w.Bytes(), nil
}

// marshalTLV is the common helper every concrete extension's Marshal
// calls: write the type, reserve the length, let body write itself, patch
// the length.
func marshalTLV(t Type, body func(w *packet.Writer)) []byte {
	w := packet.NewWriter()
	w.WriteUint16(uint16(t))
	mark := w.BeginVector(2)
	body(w)
	w.EndVector(mark, 2)
	return w.Bytes()
}
