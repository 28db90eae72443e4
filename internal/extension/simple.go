package extension

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/packet"
)

// ServerName carries the SNI host_name entry (the only name_type this
// engine, or any deployed client, ever sends).
type ServerName struct {
	HostName string
}

func decodeServerName(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	list, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	lr := packet.NewReader(list)
	nameType, err := lr.ReadByte()
	if err != nil {
		return nil, err
	}
	if nameType != 0 {
		return nil, fmt.Errorf("unsupported server_name type %d", nameType)
	}
	host, err := lr.GetVar(2)
	if err != nil {
		return nil, err
	}
	return ServerName{HostName: string(host)}, nil
}

func (e ServerName) Type() Type { return TypeServerName }
func (e ServerName) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextEncryptedExtensions
}
func (e ServerName) Marshal() ([]byte, error) {
	return marshalTLV(TypeServerName, func(w *packet.Writer) {
		mark := w.BeginVector(2)
		w.WriteByte(0)
		w.PutVar(2, []byte(e.HostName))
		w.EndVector(mark, 2)
	}), nil
}

// ALPN carries the list of application-layer protocols offered (client)
// or selected (server, where exactly one entry is legal).
type ALPN struct {
	Protocols []string
}

func decodeALPN(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	list, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	lr := packet.NewReader(list)
	var protos []string
	for lr.Remaining() > 0 {
		p, err := lr.GetVar(1)
		if err != nil {
			return nil, err
		}
		if len(p) == 0 {
			return nil, fmt.Errorf("empty ALPN protocol name")
		}
		protos = append(protos, string(p))
	}
	return ALPN{Protocols: protos}, nil
}

func (e ALPN) Type() Type { return TypeALPN }
func (e ALPN) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextEncryptedExtensions
}
func (e ALPN) Marshal() ([]byte, error) {
	return marshalTLV(TypeALPN, func(w *packet.Writer) {
		mark := w.BeginVector(2)
		for _, p := range e.Protocols {
			w.PutVar(1, []byte(p))
		}
		w.EndVector(mark, 2)
	}), nil
}

// SupportedVersions carries the client's offered [version...] list, or
// the server's single selected version, distinguished by context.
type SupportedVersions struct {
	Versions []uint16 // populated for ClientHello
	Selected uint16    // populated for ServerHello/HelloRetryRequest
}

func decodeSupportedVersions(body []byte) (Extension, error) {
	// Context determines the shape; we decode permissively (try the list
	// form first) and let ParseAll's AllowedIn gate usage. A 2-byte body
	// can only be the ServerHello single-version form.
	if len(body) == 2 {
		r := packet.NewReader(body)
		v, _ := r.ReadUint16()
		return SupportedVersions{Selected: v}, nil
	}
	r := packet.NewReader(body)
	list, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	if len(list)%2 != 0 {
		return nil, fmt.Errorf("supported_versions list length %d not a multiple of 2", len(list))
	}
	lr := packet.NewReader(list)
	var versions []uint16
	for lr.Remaining() > 0 {
		v, err := lr.ReadUint16()
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return SupportedVersions{Versions: versions}, nil
}

func (e SupportedVersions) Type() Type { return TypeSupportedVersions }
func (e SupportedVersions) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello || ctx == ContextHelloRetryRequest
}
func (e SupportedVersions) Marshal() ([]byte, error) {
	return marshalTLV(TypeSupportedVersions, func(w *packet.Writer) {
		if len(e.Versions) > 0 {
			mark := w.BeginVector(1)
			for _, v := range e.Versions {
				w.WriteUint16(v)
			}
			w.EndVector(mark, 1)
		} else {
			w.WriteUint16(e.Selected)
		}
	}), nil
}

// SignatureAlgorithms carries the ordered (hash, signature) pairs (1.2)
// or SignatureScheme values (1.3, where the two bytes are an opaque
// scheme ID rather than separate hash/sig bytes) a peer is willing to
// verify.
type SignatureAlgorithms struct {
	Schemes []uint16
}

func decodeSignatureAlgorithms(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	list, err := r.GetVarTuple(2, 2)
	if err != nil {
		return nil, err
	}
	schemes := make([]uint16, len(list))
	for i, b := range list {
		schemes[i] = uint16(b[0])<<8 | uint16(b[1])
	}
	return SignatureAlgorithms{Schemes: schemes}, nil
}

func (e SignatureAlgorithms) Type() Type { return TypeSignatureAlgorithms }
func (e SignatureAlgorithms) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextCertificateRequest
}
func (e SignatureAlgorithms) Marshal() ([]byte, error) {
	return marshalTLV(TypeSignatureAlgorithms, func(w *packet.Writer) {
		mark := w.BeginVector(2)
		for _, s := range e.Schemes {
			w.WriteUint16(s)
		}
		w.EndVector(mark, 2)
	}), nil
}

// PSKKeyExchangeMode values, per RFC 8446 §4.2.9.
const (
	PSKModePSKOnly uint8 = 0
	PSKModePSKDHE  uint8 = 1
)

// PSKKeyExchangeModes carries the client's offered PSK exchange modes.
type PSKKeyExchangeModes struct {
	Modes []uint8
}

func decodePSKKeyExchangeModes(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	list, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	return PSKKeyExchangeModes{Modes: append([]uint8(nil), list...)}, nil
}

func (e PSKKeyExchangeModes) Type() Type { return TypePSKKeyExchangeModes }
func (e PSKKeyExchangeModes) AllowedIn(ctx Context) bool { return ctx == ContextClientHello }
func (e PSKKeyExchangeModes) Marshal() ([]byte, error) {
	return marshalTLV(TypePSKKeyExchangeModes, func(w *packet.Writer) {
		w.PutVar(1, e.Modes)
	}), nil
}

// Has reports whether mode is among the offered modes.
func (e PSKKeyExchangeModes) Has(mode uint8) bool {
	for _, m := range e.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Cookie carries the HelloRetryRequest cookie, echoed unmodified by the
// client's second ClientHello.
type Cookie struct {
	Value []byte
}

func decodeCookie(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	v, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	return Cookie{Value: append([]byte(nil), v...)}, nil
}

func (e Cookie) Type() Type { return TypeCookie }
func (e Cookie) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextHelloRetryRequest
}
func (e Cookie) Marshal() ([]byte, error) {
	return marshalTLV(TypeCookie, func(w *packet.Writer) {
		w.PutVar(2, e.Value)
	}), nil
}

// SupportedGroups carries the client's offered key-exchange groups
// (elliptic curves, FFDHE groups, and hybrid KEM group IDs alike — they
// share one IANA registry).
type SupportedGroups struct {
	Groups []uint16
}

func decodeSupportedGroups(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	list, err := r.GetVarTuple(2, 2)
	if err != nil {
		return nil, err
	}
	groups := make([]uint16, len(list))
	for i, b := range list {
		groups[i] = uint16(b[0])<<8 | uint16(b[1])
	}
	return SupportedGroups{Groups: groups}, nil
}

func (e SupportedGroups) Type() Type { return TypeSupportedGroups }
func (e SupportedGroups) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextEncryptedExtensions
}
func (e SupportedGroups) Marshal() ([]byte, error) {
	return marshalTLV(TypeSupportedGroups, func(w *packet.Writer) {
		mark := w.BeginVector(2)
		for _, g := range e.Groups {
			w.WriteUint16(g)
		}
		w.EndVector(mark, 2)
	}), nil
}

// ECPointFormats is TLS 1.2-era only; this engine advertises and accepts
// only the uncompressed format (0).
type ECPointFormats struct {
	Formats []uint8
}

func decodeECPointFormats(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	list, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	return ECPointFormats{Formats: append([]uint8(nil), list...)}, nil
}

func (e ECPointFormats) Type() Type { return TypeECPointFormats }
func (e ECPointFormats) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello
}
func (e ECPointFormats) Marshal() ([]byte, error) {
	return marshalTLV(TypeECPointFormats, func(w *packet.Writer) {
		w.PutVar(1, e.Formats)
	}), nil
}

// ExtendedMasterSecret (RFC 7627) has an empty body; presence is the
// signal.
type ExtendedMasterSecret struct{}

func decodeExtendedMasterSecret(body []byte) (Extension, error) {
	if len(body) != 0 {
		return nil, fmt.Errorf("extended_master_secret must have an empty body")
	}
	return ExtendedMasterSecret{}, nil
}

func (e ExtendedMasterSecret) Type() Type { return TypeExtendedMasterSecret }
func (e ExtendedMasterSecret) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello
}
func (e ExtendedMasterSecret) Marshal() ([]byte, error) {
	return marshalTLV(TypeExtendedMasterSecret, func(w *packet.Writer) {}), nil
}

// EncryptThenMAC (RFC 7366) also has an empty body.
type EncryptThenMAC struct{}

func decodeEncryptThenMAC(body []byte) (Extension, error) {
	if len(body) != 0 {
		return nil, fmt.Errorf("encrypt_then_mac must have an empty body")
	}
	return EncryptThenMAC{}, nil
}

func (e EncryptThenMAC) Type() Type { return TypeEncryptThenMAC }
func (e EncryptThenMAC) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello
}
func (e EncryptThenMAC) Marshal() ([]byte, error) {
	return marshalTLV(TypeEncryptThenMAC, func(w *packet.Writer) {}), nil
}

// SessionTicket (RFC 5077) carries an empty body from the client when
// offering ticket-based resumption, or the opaque ticket blob itself when
// the client is presenting one in place of session_id-based resumption.
type SessionTicket struct {
	Ticket []byte
}

func decodeSessionTicket(body []byte) (Extension, error) {
	return SessionTicket{Ticket: append([]byte(nil), body...)}, nil
}

func (e SessionTicket) Type() Type { return TypeSessionTicket }
func (e SessionTicket) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello
}
func (e SessionTicket) Marshal() ([]byte, error) {
	return marshalTLV(TypeSessionTicket, func(w *packet.Writer) {
		w.WriteSlice(e.Ticket)
	}), nil
}

// RenegotiationInfo (RFC 5746) with an empty Data field is this engine's
// "secure renegotiation, but none attempted" signal: it never performs a
// renegotiation handshake, so Data is always empty on both send and
// verify.
type RenegotiationInfo struct {
	Data []byte
}

func decodeRenegotiationInfo(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	v, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	return RenegotiationInfo{Data: append([]byte(nil), v...)}, nil
}

func (e RenegotiationInfo) Type() Type { return TypeRenegotiationInfo }
func (e RenegotiationInfo) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello
}
func (e RenegotiationInfo) Marshal() ([]byte, error) {
	return marshalTLV(TypeRenegotiationInfo, func(w *packet.Writer) {
		w.PutVar(1, e.Data)
	}), nil
}

// RecordSizeLimit (RFC 8449) advertises the largest plaintext record the
// sender is willing to receive.
type RecordSizeLimit struct {
	Limit uint16
}

func decodeRecordSizeLimit(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	v, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if v < 64 {
		return nil, fmt.Errorf("record_size_limit %d below RFC 8449 minimum of 64", v)
	}
	return RecordSizeLimit{Limit: v}, nil
}

func (e RecordSizeLimit) Type() Type { return TypeRecordSizeLimit }
func (e RecordSizeLimit) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello || ctx == ContextEncryptedExtensions
}
func (e RecordSizeLimit) Marshal() ([]byte, error) {
	return marshalTLV(TypeRecordSizeLimit, func(w *packet.Writer) {
		w.WriteUint16(e.Limit)
	}), nil
}

// Heartbeat (RFC 6520) mode values.
const (
	HeartbeatModePeerAllowedToSend    uint8 = 1
	HeartbeatModePeerNotAllowedToSend uint8 = 2
)

// Heartbeat negotiates whether the peer may send HeartbeatRequest
// messages to this endpoint.
type Heartbeat struct {
	Mode uint8
}

func decodeHeartbeat(body []byte) (Extension, error) {
	r := packet.NewReader(body)
	mode, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if mode != HeartbeatModePeerAllowedToSend && mode != HeartbeatModePeerNotAllowedToSend {
		return nil, fmt.Errorf("invalid heartbeat mode %d", mode)
	}
	return Heartbeat{Mode: mode}, nil
}

func (e Heartbeat) Type() Type { return TypeHeartbeat }
func (e Heartbeat) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello || ctx == ContextEncryptedExtensions
}
func (e Heartbeat) Marshal() ([]byte, error) {
	return marshalTLV(TypeHeartbeat, func(w *packet.Writer) {
		w.WriteByte(e.Mode)
	}), nil
}
