package record

import (
	"bufio"
	"io"

	"github.com/lanikai/tlsengine/internal/logging"
)

var log = logging.DefaultLogger.WithTag("record")

// Layer is one direction pair's framing and encryption state over a
// single underlying connection: the owned-struct-pair design RFC-quoted
// in this engine's design notes — write and read each get their own
// CipherState, swapped wholesale by changeReadState/changeWriteState
// rather than mutated field-by-field, so a half-negotiated cipher change
// can never leak into in-flight traffic.
type Layer struct {
	r *bufio.Reader
	w io.Writer

	write *CipherState
	read  *CipherState

	pendingWrite *CipherState
	pendingRead  *CipherState

	writeVersion Version // header version this side stamps on outgoing records
	maxPlaintext int     // negotiated record_size_limit, or maxPlaintext

	// allowSSLv2First is consumed (set false) the first time ReadRecord
	// parses a header: the SSLv2-framing tolerance only ever applies to
	// the very first record of a server-side connection.
	allowSSLv2First bool
}

// New wraps rw with a Layer whose read and write directions both start
// in ModeNull (cleartext), as every connection does before its first
// change_cipher_spec (TLS 1.2) or derived handshake traffic secret (TLS
// 1.3).
func New(r io.Reader, w io.Writer, isServer bool) *Layer {
	return &Layer{
		r:               bufio.NewReader(r),
		w:               w,
		writeVersion:    VersionTLS12,
		maxPlaintext:    maxPlaintext,
		allowSSLv2First: isServer,
	}
}

// SetWriteVersion controls the version field stamped on outgoing record
// headers: TLS 1.3 always stamps 0x0303 for middlebox compatibility
// (RFC 8446 §5.1) regardless of the negotiated version, which the state
// machine arranges by never calling SetWriteVersion(VersionTLS13).
func (l *Layer) SetWriteVersion(v Version) { l.writeVersion = v }

// SetMaxPlaintext applies a negotiated RFC 8449 record_size_limit to
// outgoing records; it never exceeds the protocol maximum.
func (l *Layer) SetMaxPlaintext(n int) {
	if n <= 0 || n > maxPlaintext {
		n = maxPlaintext
	}
	l.maxPlaintext = n
}

// SetPendingWrite/SetPendingRead install the next cipher state a
// subsequent changeWriteState/changeReadState will activate. Calling
// either with nil clears a previously staged pending state.
func (l *Layer) SetPendingWrite(cs *CipherState) { l.pendingWrite = cs }
func (l *Layer) SetPendingRead(cs *CipherState)  { l.pendingRead = cs }

// ChangeWriteState activates the pending write cipher state (TLS 1.2's
// change_cipher_spec, or TLS 1.3 installing handshake/application
// traffic keys directly). It is an error to call this with no pending
// state staged.
func (l *Layer) ChangeWriteState() error {
	if l.pendingWrite == nil {
		return errNoPendingState
	}
	l.write, l.pendingWrite = l.pendingWrite, nil
	log.Debug("write cipher state activated: %s", l.write.Mode)
	return nil
}

// ChangeReadState is ChangeWriteState's read-direction counterpart.
func (l *Layer) ChangeReadState() error {
	if l.pendingRead == nil {
		return errNoPendingState
	}
	l.read, l.pendingRead = l.pendingRead, nil
	log.Debug("read cipher state activated: %s", l.read.Mode)
	return nil
}

// RekeyWrite/RekeyRead install an already-built CipherState immediately,
// bypassing the pending/active staging dance: used for TLS 1.3
// KeyUpdate, which takes effect the moment it is sent or fully verified,
// with no change_cipher_spec ceremony.
func (l *Layer) RekeyWrite(cs *CipherState) {
	l.write = cs
	log.Debug("write key installed: %s", cs.Mode)
}
func (l *Layer) RekeyRead(cs *CipherState) {
	l.read = cs
	log.Debug("read key installed: %s", cs.Mode)
}

// WriteRecord frames and, if a cipher state is active, encrypts
// plaintext under content type ct, fragmenting into maxPlaintext-sized
// chunks as necessary (RFC 8446 §5.1). Each fragment is sealed and
// written as its own record.
func (l *Layer) WriteRecord(ct ContentType, plaintext []byte) error {
	if len(plaintext) == 0 {
		return l.writeOneRecord(ct, plaintext)
	}
	for off := 0; off < len(plaintext); off += l.maxPlaintext {
		end := off + l.maxPlaintext
		if end > len(plaintext) {
			end = len(plaintext)
		}
		if err := l.writeOneRecord(ct, plaintext[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) writeOneRecord(ct ContentType, fragment []byte) error {
	cs := l.write
	if cs == nil {
		cs = nullState
	}
	outerType, ciphertext, err := cs.Seal(ct, fragment)
	if err != nil {
		return err
	}
	header := MarshalHeader(outerType, l.writeVersion, len(ciphertext))
	if _, err := l.w.Write(header); err != nil {
		return err
	}
	_, err = l.w.Write(ciphertext)
	log.Trace(9, "wrote %s record, %d bytes plaintext", ct, len(fragment))
	return err
}

// nullState is shared by every Layer before its first WriteRecord with no
// write cipher installed yet; ModeNull has no secret state, so sharing
// one instance across connections is safe, aside from its sequence
// counter, which this package never reads before a real cipher state is
// installed.
var nullState = &CipherState{Params: Params{Mode: ModeNull, Version: VersionTLS12}}

// ReadRecord reads and, if a cipher state is active, decrypts exactly one
// record, enforcing the overflow and declared-length checks of §4.6
// before attempting decryption. It returns the record's real content
// type (recovered from the TLS 1.3 inner plaintext where applicable) and
// plaintext fragment.
func (l *Layer) ReadRecord() (ContentType, []byte, error) {
	peek, err := l.r.Peek(1)
	if err != nil {
		return 0, nil, err
	}
	allowSSLv2 := l.allowSSLv2First
	l.allowSSLv2First = false

	var hdrLen int
	var header Header
	if allowSSLv2 && peek[0]&0x80 != 0 {
		hdrBuf, err := l.r.Peek(2)
		if err != nil {
			return 0, nil, err
		}
		header, hdrLen, err = ParseHeader(hdrBuf, true)
		if err != nil {
			return 0, nil, err
		}
	} else {
		hdrBuf, err := l.r.Peek(5)
		if err != nil {
			return 0, nil, err
		}
		header, hdrLen, err = ParseHeader(hdrBuf, false)
		if err != nil {
			return 0, nil, err
		}
	}
	if _, err := l.r.Discard(hdrLen); err != nil {
		return 0, nil, err
	}

	slackVersion := l.writeVersion
	if l.read != nil && l.read.Version == VersionTLS13 {
		slackVersion = VersionTLS13
	}
	if header.Length > l.maxPlaintext+maxRecordSlackFor(slackVersion) {
		return 0, nil, errRecordOverflow
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(l.r, payload); err != nil {
		return 0, nil, err
	}

	cs := l.read
	if cs == nil {
		cs = nullState
	}
	ct, plaintext, err := cs.Open(header.Type, header.Version, payload)
	if err != nil {
		return 0, nil, err
	}
	log.Trace(9, "read %s record, %d bytes plaintext", ct, len(plaintext))
	return ct, plaintext, nil
}
