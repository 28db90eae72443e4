// Package handshake implements the typed handshake message catalog: every
// message type carries its own Parse and Marshal, and Marshal always
// returns the complete wire form including the 4-byte handshake header
// (msg_type, 3-byte length) — the same "self-contained TLV" convention
// internal/extension uses for extensions and internal/record uses for
// whole records.
package handshake

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/logging"
	"github.com/lanikai/tlsengine/internal/packet"
)

var log = logging.DefaultLogger.WithTag("handshake")

// Type is the HandshakeType registry value (RFC 8446 §4, shared with TLS
// 1.2 plus two 1.2-only types retained for compatibility).
type Type uint8

const (
	TypeHelloRequest       Type = 0
	TypeClientHello        Type = 1
	TypeServerHello        Type = 2
	TypeNewSessionTicket   Type = 4
	TypeEndOfEarlyData     Type = 5
	TypeEncryptedExtensions Type = 8
	TypeCertificate        Type = 11
	TypeServerKeyExchange  Type = 12
	TypeCertificateRequest Type = 13
	TypeServerHelloDone    Type = 14
	TypeCertificateVerify  Type = 15
	TypeClientKeyExchange  Type = 16
	TypeFinished           Type = 20
	TypeCertificateStatus  Type = 22
	TypeKeyUpdate          Type = 24
	TypeNextProtocol       Type = 67 // non-standard NPN, retained for legacy interop
	TypeMessageHash        Type = 254
)

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("handshake(%d)", uint8(t))
}

var typeNames = map[Type]string{
	TypeHelloRequest:        "hello_request",
	TypeClientHello:         "client_hello",
	TypeServerHello:         "server_hello",
	TypeNewSessionTicket:    "new_session_ticket",
	TypeEndOfEarlyData:      "end_of_early_data",
	TypeEncryptedExtensions: "encrypted_extensions",
	TypeCertificate:         "certificate",
	TypeServerKeyExchange:   "server_key_exchange",
	TypeCertificateRequest:  "certificate_request",
	TypeServerHelloDone:     "server_hello_done",
	TypeCertificateVerify:   "certificate_verify",
	TypeClientKeyExchange:   "client_key_exchange",
	TypeFinished:            "finished",
	TypeCertificateStatus:   "certificate_status",
	TypeKeyUpdate:           "key_update",
	TypeNextProtocol:        "next_protocol",
	TypeMessageHash:         "message_hash",
}

// Message is implemented by every concrete handshake message type.
type Message interface {
	MsgType() Type
	Marshal() ([]byte, error)
}

// helloRetryRandom is the fixed SHA-256 digest of "HelloRetryRequest"
// (RFC 8446 §4.1.3) that distinguishes a HelloRetryRequest from an
// ordinary ServerHello — the two are otherwise wire-identical.
var helloRetryRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// IsHelloRetryRequest reports whether a 32-byte ServerHello.random value
// is the HelloRetryRequest marker.
func IsHelloRetryRequest(random []byte) bool {
	if len(random) != 32 {
		return false
	}
	for i := range helloRetryRandom {
		if random[i] != helloRetryRandom[i] {
			return false
		}
	}
	return true
}

// marshalHeader wraps body (already fully written) with the 4-byte
// handshake header.
func marshalHeader(t Type, body []byte) []byte {
	w := packet.NewWriterSize(4 + len(body))
	w.WriteByte(byte(t))
	w.WriteUint24(uint32(len(body)))
	w.WriteSlice(body)
	log.Debug("marshaled %s (%d bytes)", t, len(body))
	return w.Bytes()
}

// Parse dispatches on raw's 4-byte header to the matching message parser.
// raw must be exactly one complete handshake message (internal/defrag is
// responsible for reassembly before this is called).
func Parse(raw []byte) (Message, error) {
	r := packet.NewReader(raw)
	msgType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadUint24()
	if err != nil {
		return nil, err
	}
	body, err := r.GetFix(int(length))
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	log.Debug("parsed %s (%d bytes)", Type(msgType), length)

	switch Type(msgType) {
	case TypeClientHello:
		return parseClientHello(body)
	case TypeServerHello:
		return parseServerHello(body)
	case TypeEncryptedExtensions:
		return parseEncryptedExtensions(body)
	case TypeCertificate:
		return parseCertificate(body)
	case TypeCertificateRequest:
		return parseCertificateRequest(body)
	case TypeCertificateVerify:
		return parseCertificateVerify(body)
	case TypeServerKeyExchange:
		return ServerKeyExchange{Raw: append([]byte(nil), body...)}, nil
	case TypeClientKeyExchange:
		return ClientKeyExchange{Raw: append([]byte(nil), body...)}, nil
	case TypeServerHelloDone:
		if len(body) != 0 {
			return nil, fmt.Errorf("handshake: server_hello_done must be empty")
		}
		return ServerHelloDone{}, nil
	case TypeFinished:
		return Finished{VerifyData: append([]byte(nil), body...)}, nil
	case TypeNewSessionTicket:
		return parseNewSessionTicket(body)
	case TypeKeyUpdate:
		return parseKeyUpdate(body)
	case TypeCertificateStatus:
		return parseCertificateStatus(body)
	case TypeNextProtocol:
		return parseNextProtocol(body)
	case TypeEndOfEarlyData:
		if len(body) != 0 {
			return nil, fmt.Errorf("handshake: end_of_early_data must be empty")
		}
		return EndOfEarlyData{}, nil
	case TypeHelloRequest:
		if len(body) != 0 {
			return nil, fmt.Errorf("handshake: hello_request must be empty")
		}
		return HelloRequest{}, nil
	default:
		return nil, fmt.Errorf("handshake: unsupported message type %d", msgType)
	}
}

// parseExtensions reads the trailing <0..2^16-1> extensions vector
// common to ClientHello, ServerHello, EncryptedExtensions, Certificate
// entries, and CertificateRequest.
func parseExtensions(r *packet.Reader, ctx extension.Context) (*extension.Collection, error) {
	blob, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	return extension.ParseAll(ctx, packet.NewReader(blob))
}

func marshalExtensions(w *packet.Writer, c *extension.Collection) error {
	raw, err := c.Marshal()
	if err != nil {
		return err
	}
	w.PutVar(2, raw)
	return nil
}
