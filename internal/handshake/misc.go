package handshake

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/packet"
)

// ServerKeyExchange and ClientKeyExchange carry opaque method-specific
// payloads: this package has no way to know whether the negotiated
// method is RSA, DHE, ECDHE, SRP, or a hybrid KEM, so it hands the raw
// body to internal/kex, which does know and owns the real parse/build
// logic for each method.
type ServerKeyExchange struct {
	Raw []byte
}

func (m ServerKeyExchange) MsgType() Type { return TypeServerKeyExchange }
func (m ServerKeyExchange) Marshal() ([]byte, error) {
	return marshalHeader(TypeServerKeyExchange, m.Raw), nil
}

type ClientKeyExchange struct {
	Raw []byte
}

func (m ClientKeyExchange) MsgType() Type { return TypeClientKeyExchange }
func (m ClientKeyExchange) Marshal() ([]byte, error) {
	return marshalHeader(TypeClientKeyExchange, m.Raw), nil
}

// ServerHelloDone has no body.
type ServerHelloDone struct{}

func (m ServerHelloDone) MsgType() Type         { return TypeServerHelloDone }
func (m ServerHelloDone) Marshal() ([]byte, error) { return marshalHeader(TypeServerHelloDone, nil), nil }

// HelloRequest has no body. The server sends it to invite renegotiation;
// this engine always refuses (§1 Non-goals), but must still be able to
// recognize and reject it per §4.10's post-handshake rules.
type HelloRequest struct{}

func (m HelloRequest) MsgType() Type            { return TypeHelloRequest }
func (m HelloRequest) Marshal() ([]byte, error) { return marshalHeader(TypeHelloRequest, nil), nil }

// EndOfEarlyData has no body (1.3 only; this engine never sends 0-RTT
// data, but a peer that offered it and has EndOfEarlyData accepted must
// still be recognized and rejected if early data acceptance is off).
type EndOfEarlyData struct{}

func (m EndOfEarlyData) MsgType() Type            { return TypeEndOfEarlyData }
func (m EndOfEarlyData) Marshal() ([]byte, error) { return marshalHeader(TypeEndOfEarlyData, nil), nil }

// Finished carries the PRF/HMAC verify_data computed over the
// transcript; its length is hash-size-dependent in 1.3 and fixed at 12
// bytes in 1.2.
type Finished struct {
	VerifyData []byte
}

func (m Finished) MsgType() Type { return TypeFinished }
func (m Finished) Marshal() ([]byte, error) {
	return marshalHeader(TypeFinished, m.VerifyData), nil
}

// NewSessionTicket carries resumption material. The two protocol
// versions' wire forms differ; is13 picks which shape Marshal produces
// (parseNewSessionTicket detects the shape it was actually given).
type NewSessionTicket struct {
	LifetimeHint uint32
	TicketAgeAdd uint32 // 1.3 only
	Nonce        []byte // 1.3 only
	Ticket       []byte
	Extensions   []byte // 1.3 only, opaque (new_session_ticket extensions are rarely populated; this engine treats them as opaque)
	is13         bool
}

func parseNewSessionTicket(body []byte) (Message, error) {
	r := packet.NewReader(body)
	lifetime, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	save := *r
	if ageAdd, err := r.ReadUint32(); err == nil {
		if nonce, err2 := r.GetVar(1); err2 == nil {
			if ticket, err3 := r.GetVar(2); err3 == nil {
				if exts, err4 := r.GetVar(2); err4 == nil {
					if err5 := r.ExpectEmpty(); err5 == nil {
						return NewSessionTicket{
							LifetimeHint: lifetime,
							TicketAgeAdd: ageAdd,
							Nonce:        append([]byte(nil), nonce...),
							Ticket:       append([]byte(nil), ticket...),
							Extensions:   append([]byte(nil), exts...),
							is13:         true,
						}, nil
					}
				}
			}
		}
	}
	*r = save

	ticket, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return NewSessionTicket{LifetimeHint: lifetime, Ticket: append([]byte(nil), ticket...)}, nil
}

func (m NewSessionTicket) MsgType() Type { return TypeNewSessionTicket }
func (m NewSessionTicket) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.WriteUint32(m.LifetimeHint)
	if m.is13 {
		w.WriteUint32(m.TicketAgeAdd)
		w.PutVar(1, m.Nonce)
		w.PutVar(2, m.Ticket)
		w.PutVar(2, m.Extensions)
	} else {
		w.PutVar(2, m.Ticket)
	}
	return marshalHeader(TypeNewSessionTicket, w.Bytes()), nil
}

// NewNewSessionTicket13 builds a TLS 1.3-form NewSessionTicket.
func NewNewSessionTicket13(lifetime, ageAdd uint32, nonce, ticket []byte) NewSessionTicket {
	return NewSessionTicket{LifetimeHint: lifetime, TicketAgeAdd: ageAdd, Nonce: nonce, Ticket: ticket, is13: true}
}

// KeyUpdateRequest values, RFC 8446 §4.6.3.
const (
	KeyUpdateNotRequested uint8 = 0
	KeyUpdateRequested    uint8 = 1
)

// KeyUpdate rotates the sender's write traffic secret, optionally asking
// the receiver to reciprocate.
type KeyUpdate struct {
	RequestUpdate uint8
}

func parseKeyUpdate(body []byte) (Message, error) {
	r := packet.NewReader(body)
	req, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if req != KeyUpdateNotRequested && req != KeyUpdateRequested {
		return nil, fmt.Errorf("handshake: invalid key_update request value %d", req)
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return KeyUpdate{RequestUpdate: req}, nil
}

func (m KeyUpdate) MsgType() Type { return TypeKeyUpdate }
func (m KeyUpdate) Marshal() ([]byte, error) {
	return marshalHeader(TypeKeyUpdate, []byte{m.RequestUpdate}), nil
}

// CertificateStatus carries an OCSP response alongside the Certificate
// message; OCSP parsing itself is out of scope (§1), so Response is kept
// opaque.
type CertificateStatus struct {
	StatusType uint8
	Response   []byte
}

func parseCertificateStatus(body []byte) (Message, error) {
	r := packet.NewReader(body)
	statusType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if statusType != 1 {
		return nil, fmt.Errorf("handshake: unsupported certificate_status type %d", statusType)
	}
	resp, err := r.GetVar(3)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return CertificateStatus{StatusType: statusType, Response: append([]byte(nil), resp...)}, nil
}

func (m CertificateStatus) MsgType() Type { return TypeCertificateStatus }
func (m CertificateStatus) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.WriteByte(m.StatusType)
	w.PutVar(3, m.Response)
	return marshalHeader(TypeCertificateStatus, w.Bytes()), nil
}

// NextProtocol is the legacy (never-standardized) NPN message, retained
// only so a handshake carrying it from a very old peer parses cleanly
// instead of aborting with unexpected_message; this engine never
// negotiates NPN itself (ALPN supersedes it).
type NextProtocol struct {
	Protocol []byte
	Padding  []byte
}

func parseNextProtocol(body []byte) (Message, error) {
	r := packet.NewReader(body)
	proto, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	padding, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return NextProtocol{Protocol: append([]byte(nil), proto...), Padding: append([]byte(nil), padding...)}, nil
}

func (m NextProtocol) MsgType() Type { return TypeNextProtocol }
func (m NextProtocol) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.PutVar(1, m.Protocol)
	w.PutVar(1, m.Padding)
	return marshalHeader(TypeNextProtocol, w.Bytes()), nil
}
