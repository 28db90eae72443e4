package handshake

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/packet"
)

// ClientHello is accepted in both its normal TLS form and the legacy
// SSLv2-formatted ClientHello this engine tolerates for upgrade-probe
// compatibility (§4.2); SSLv2Form is set when the latter was parsed, and
// the state machine treats it identically to a normal ClientHello once
// parsed.
type ClientHello struct {
	LegacyVersion      uint16
	Random             [32]byte
	LegacySessionID    []byte
	CipherSuites       []uint16
	LegacyCompressions []uint8
	Extensions         *extension.Collection

	SSLv2Form bool
}

func parseClientHello(body []byte) (Message, error) {
	r := packet.NewReader(body)

	version, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	randomBytes, err := r.GetFix(32)
	if err != nil {
		return nil, err
	}
	sessionID, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	if len(sessionID) > 32 {
		return nil, fmt.Errorf("handshake: legacy_session_id too long (%d bytes)", len(sessionID))
	}

	suiteList, err := r.GetVarTuple(2, 2)
	if err != nil {
		return nil, err
	}
	if len(suiteList) == 0 {
		return nil, fmt.Errorf("handshake: client_hello cipher_suites must not be empty")
	}
	suites := make([]uint16, len(suiteList))
	for i, b := range suiteList {
		suites[i] = uint16(b[0])<<8 | uint16(b[1])
	}

	compressions, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}

	ch := ClientHello{
		LegacyVersion:      version,
		LegacySessionID:    append([]byte(nil), sessionID...),
		CipherSuites:       suites,
		LegacyCompressions: append([]uint8(nil), compressions...),
	}
	copy(ch.Random[:], randomBytes)

	if r.Remaining() > 0 {
		exts, err := parseExtensions(r, extension.ContextClientHello)
		if err != nil {
			return nil, err
		}
		ch.Extensions = exts
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return ch, nil
}

func (m ClientHello) MsgType() Type { return TypeClientHello }

func (m ClientHello) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.WriteUint16(m.LegacyVersion)
	w.WriteSlice(m.Random[:])
	w.PutVar(1, m.LegacySessionID)

	mark := w.BeginVector(2)
	for _, s := range m.CipherSuites {
		w.WriteUint16(s)
	}
	w.EndVector(mark, 2)

	compressions := m.LegacyCompressions
	if compressions == nil {
		compressions = []uint8{0}
	}
	w.PutVar(1, compressions)

	if m.Extensions != nil {
		if err := marshalExtensions(w, m.Extensions); err != nil {
			return nil, err
		}
	}
	return marshalHeader(TypeClientHello, w.Bytes()), nil
}

// ParseSSLv2ClientHello decodes the legacy 2-byte-length, no-handshake-
// header ClientHello format (MSG-CLIENT-HELLO, SSLv2 §A.1) this engine
// tolerates purely to let very old probing clients negotiate up to a
// modern version instead of being dropped outright. The result is
// normalized into the same ClientHello shape as the modern parser
// produces, with SSLv2Form set and no extensions (the format has none).
func ParseSSLv2ClientHello(body []byte) (ClientHello, error) {
	r := packet.NewReader(body)
	msgType, err := r.ReadByte()
	if err != nil {
		return ClientHello{}, err
	}
	if msgType != 1 {
		return ClientHello{}, fmt.Errorf("handshake: not an SSLv2 CLIENT-HELLO (msg type %d)", msgType)
	}
	version, err := r.ReadUint16()
	if err != nil {
		return ClientHello{}, err
	}
	cipherSpecLen, err := r.ReadUint16()
	if err != nil {
		return ClientHello{}, err
	}
	sessionIDLen, err := r.ReadUint16()
	if err != nil {
		return ClientHello{}, err
	}
	challengeLen, err := r.ReadUint16()
	if err != nil {
		return ClientHello{}, err
	}

	cipherSpecs, err := r.GetFix(int(cipherSpecLen))
	if err != nil {
		return ClientHello{}, err
	}
	if cipherSpecLen%3 != 0 {
		return ClientHello{}, fmt.Errorf("handshake: SSLv2 cipher_specs length %d not a multiple of 3", cipherSpecLen)
	}
	var suites []uint16
	for i := 0; i < len(cipherSpecs); i += 3 {
		// A CIPHER-SPEC is 3 bytes; specs with a zero first byte are the
		// modern 2-byte suite padded to 3, which is the only form worth
		// preserving for negotiation.
		if cipherSpecs[i] == 0 {
			suites = append(suites, uint16(cipherSpecs[i+1])<<8|uint16(cipherSpecs[i+2]))
		}
	}

	sessionID, err := r.GetFix(int(sessionIDLen))
	if err != nil {
		return ClientHello{}, err
	}
	challenge, err := r.GetFix(int(challengeLen))
	if err != nil {
		return ClientHello{}, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return ClientHello{}, err
	}

	ch := ClientHello{
		LegacyVersion:      version,
		LegacySessionID:    append([]byte(nil), sessionID...),
		CipherSuites:       suites,
		LegacyCompressions: []uint8{0},
		SSLv2Form:          true,
	}
	// The challenge is conventionally 16-32 bytes; left-pad (or, for an
	// oversized challenge from a non-conformant peer, truncate) into the
	// 32-byte random field the rest of this engine expects.
	if len(challenge) > 32 {
		challenge = challenge[len(challenge)-32:]
	}
	copy(ch.Random[32-len(challenge):], challenge)
	return ch, nil
}
