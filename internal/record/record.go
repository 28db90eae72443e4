// Package record implements the TLS record layer: framing (SSLv2/SSLv3/
// TLS headers), every encryption path this engine supports (CBC
// MAC-then-encrypt, encrypt-then-MAC, stream RC4, AEAD, SSLv3's
// MAC_SSL), 64-bit sequence numbers, TLS 1.3 content-type hiding, and
// the pending/active cipher-state swap. It has no handshake logic: the
// state machine in internal/state drives changeReadState/changeWriteState
// once the key schedule has produced new keys.
package record

import (
	"github.com/lanikai/tlsengine/internal/defrag"
	"github.com/lanikai/tlsengine/internal/packet"
)

// ContentType is re-exported from internal/defrag so record-layer callers
// don't need to import both packages just to spell the type.
type ContentType = defrag.ContentType

const (
	ContentTypeChangeCipherSpec = defrag.ContentTypeChangeCipherSpec
	ContentTypeAlert            = defrag.ContentTypeAlert
	ContentTypeHandshake        = defrag.ContentTypeHandshake
	ContentTypeApplicationData = defrag.ContentTypeApplicationData
	ContentTypeHeartbeat        = defrag.ContentTypeHeartbeat
)

// Version is the wire protocol version carried in a record header.
type Version uint16

const (
	VersionSSL30 Version = 0x0300
	VersionTLS10 Version = 0x0301
	VersionTLS11 Version = 0x0302
	VersionTLS12 Version = 0x0303
	VersionTLS13 Version = 0x0304
)

// maxPlaintext is the largest plaintext payload a single record may
// carry (RFC 8446 §5.1 / RFC 5246 §6.2.1): 2^14 bytes.
const maxPlaintext = 1 << 14

// maxRecordSlack bounds how much larger than maxPlaintext+overhead an
// incoming record's declared length may be before framing itself rejects
// it as record_overflow, ahead of any decryption attempt. Legacy
// (pre-1.3) records get generous slack for interop with padded/CBC
// ciphertext; 1.3 records get RFC 8446 §5.2's tighter 256-byte allowance
// (content-type byte + up to 255 bytes of zero padding + tag).
const (
	maxRecordSlackLegacy = 2048
	maxRecordSlackTLS13  = 256
)

// Header is a parsed 5-byte TLS/SSLv3 record header (or a decoded
// SSLv2 2/3-byte legacy header, recognized only for the very first
// record of a connection).
type Header struct {
	Type    ContentType
	Version Version
	Length  int
	// SSLv2 is true if this header used the legacy 2-or-3-byte framing
	// (high bit set on the first length byte), only ever valid for the
	// very first record a server reads.
	SSLv2 bool
}

// ParseHeader reads one record header from buf, returning the header and
// the number of bytes it occupied. allowSSLv2 should be true only when
// reading the first record of a server-side connection, per the
// SSLv2-ClientHello upgrade-probe tolerance.
func ParseHeader(buf []byte, allowSSLv2 bool) (Header, int, error) {
	if allowSSLv2 && len(buf) >= 1 && buf[0]&0x80 != 0 {
		if len(buf) < 2 {
			return Header{}, 0, errShortHeader
		}
		length := int(buf[0]&0x7f)<<8 | int(buf[1])
		return Header{Type: ContentTypeHandshake, Version: 0, Length: length, SSLv2: true}, 2, nil
	}
	if len(buf) < 5 {
		return Header{}, 0, errShortHeader
	}
	r := packet.NewReader(buf[:5])
	t, _ := r.ReadByte()
	v, _ := r.ReadUint16()
	l, _ := r.ReadUint16()
	return Header{Type: ContentType(t), Version: Version(v), Length: int(l)}, 5, nil
}

// MarshalHeader encodes a TLS/SSLv3 record header (record layer never
// emits SSLv2 framing itself; it only tolerates reading it).
func MarshalHeader(t ContentType, v Version, length int) []byte {
	w := packet.NewWriter()
	w.WriteByte(byte(t))
	w.WriteUint16(uint16(v))
	w.WriteUint16(uint16(length))
	return w.Bytes()
}

// maxRecordSlackFor returns the overflow slack budget for a given
// negotiated version, per §4.6's framing rule.
func maxRecordSlackFor(v Version) int {
	if v == VersionTLS13 {
		return maxRecordSlackTLS13
	}
	return maxRecordSlackLegacy
}
