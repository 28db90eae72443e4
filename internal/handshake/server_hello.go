package handshake

import (
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/packet"
)

// ServerHello is wire-identical to a HelloRetryRequest; callers
// distinguish the two with IsHelloRetryRequest(Random[:]) after parsing,
// exactly as RFC 8446 §4.1.3 specifies.
type ServerHello struct {
	LegacyVersion     uint16
	Random            [32]byte
	LegacySessionEcho []byte
	CipherSuite       uint16
	LegacyCompression uint8
	Extensions        *extension.Collection
}

func parseServerHello(body []byte) (Message, error) {
	r := packet.NewReader(body)
	version, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	random, err := r.GetFix(32)
	if err != nil {
		return nil, err
	}
	sessionEcho, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	suite, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	compression, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	sh := ServerHello{
		LegacyVersion:     version,
		LegacySessionEcho: append([]byte(nil), sessionEcho...),
		CipherSuite:       suite,
		LegacyCompression: compression,
	}
	copy(sh.Random[:], random)

	if r.Remaining() > 0 {
		ctx := extension.ContextServerHello
		if IsHelloRetryRequest(random) {
			ctx = extension.ContextHelloRetryRequest
		}
		exts, err := parseExtensions(r, ctx)
		if err != nil {
			return nil, err
		}
		sh.Extensions = exts
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return sh, nil
}

func (m ServerHello) MsgType() Type { return TypeServerHello }

// IsHelloRetryRequest reports whether this ServerHello is actually a
// HelloRetryRequest.
func (m ServerHello) IsHelloRetryRequest() bool {
	return IsHelloRetryRequest(m.Random[:])
}

func (m ServerHello) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.WriteUint16(m.LegacyVersion)
	w.WriteSlice(m.Random[:])
	w.PutVar(1, m.LegacySessionEcho)
	w.WriteUint16(m.CipherSuite)
	w.WriteByte(m.LegacyCompression)
	if m.Extensions != nil {
		if err := marshalExtensions(w, m.Extensions); err != nil {
			return nil, err
		}
	}
	return marshalHeader(TypeServerHello, w.Bytes()), nil
}

// NewHelloRetryRequest builds a ServerHello whose random is the
// HelloRetryRequest marker.
func NewHelloRetryRequest(legacyVersion uint16, sessionEcho []byte, cipherSuite uint16, exts *extension.Collection) ServerHello {
	sh := ServerHello{
		LegacyVersion:     legacyVersion,
		LegacySessionEcho: sessionEcho,
		CipherSuite:       cipherSuite,
		Extensions:        exts,
	}
	copy(sh.Random[:], helloRetryRandom[:])
	return sh
}

// EncryptedExtensions carries the TLS 1.3 extensions that don't need to
// be sent before the server's identity is established.
type EncryptedExtensions struct {
	Extensions *extension.Collection
}

func parseEncryptedExtensions(body []byte) (Message, error) {
	r := packet.NewReader(body)
	exts, err := parseExtensions(r, extension.ContextEncryptedExtensions)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return EncryptedExtensions{Extensions: exts}, nil
}

func (m EncryptedExtensions) MsgType() Type { return TypeEncryptedExtensions }
func (m EncryptedExtensions) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	if m.Extensions == nil {
		w.WriteUint16(0)
		return marshalHeader(TypeEncryptedExtensions, w.Bytes()), nil
	}
	if err := marshalExtensions(w, m.Extensions); err != nil {
		return nil, err
	}
	return marshalHeader(TypeEncryptedExtensions, w.Bytes()), nil
}
