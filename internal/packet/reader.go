// Package packet implements the big-endian cursor used to parse and
// serialize every wire structure in this module: records, handshake
// messages, extensions, and the persisted session-ticket blob. It has no
// knowledge of TLS semantics; it is purely a byte cursor.
package packet

import "encoding/binary"

var networkOrder = binary.BigEndian

// Reader is a forward-only cursor over a byte slice. Every method that can
// run past the end of the buffer returns a *DecodeError instead of
// panicking, so callers can propagate a clean protocol error instead of
// crashing on malformed input.
type Reader struct {
	buffer []byte
	offset int
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer: buffer}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}

func (r *Reader) CheckRemaining(needed int) error {
	if r.Remaining() < needed {
		return newDecodeError("%d bytes remaining, %d needed", r.Remaining(), needed)
	}
	return nil
}

// Get reads an n-byte (n ∈ {1,2,3,4,8}) big-endian unsigned integer and
// advances the cursor. This is the "get(n)" primitive from the codec spec.
func (r *Reader) Get(n int) (uint64, error) {
	if err := r.CheckRemaining(n); err != nil {
		return 0, err
	}
	var v uint64
	switch n {
	case 1:
		v = uint64(r.buffer[r.offset])
	case 2:
		v = uint64(networkOrder.Uint16(r.buffer[r.offset:]))
	case 3:
		b := r.buffer[r.offset:]
		v = uint64(b[0])<<16 | uint64(b[1])<<8 | uint64(b[2])
	case 4:
		v = uint64(networkOrder.Uint32(r.buffer[r.offset:]))
	case 8:
		v = networkOrder.Uint64(r.buffer[r.offset:])
	default:
		return 0, newDecodeError("unsupported integer width %d", n)
	}
	r.offset += n
	return v, nil
}

func (r *Reader) ReadByte() (byte, error) {
	v, err := r.Get(1)
	return byte(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.Get(2)
	return uint16(v), err
}

func (r *Reader) ReadUint24() (uint32, error) {
	v, err := r.Get(3)
	return uint32(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.Get(4)
	return uint32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	return r.Get(8)
}

// GetFix reads exactly n raw bytes. The returned slice aliases the
// reader's buffer; callers that retain it across further mutation of the
// underlying array should copy it.
func (r *Reader) GetFix(n int) ([]byte, error) {
	if err := r.CheckRemaining(n); err != nil {
		return nil, err
	}
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

// GetVar reads a length-prefixed blob, where the prefix is lenOfLen bytes
// wide (the "length-of-length" convention TLS uses for vectors: one byte
// for most `<0..255>` vectors, two bytes for `<0..65535>`, three for
// `<0..2^24-1>` vectors like the Certificate list).
func (r *Reader) GetVar(lenOfLen int) ([]byte, error) {
	n, err := r.Get(lenOfLen)
	if err != nil {
		return nil, err
	}
	return r.GetFix(int(n))
}

// GetVarTuple reads a length-prefixed vector of fixed-width elements and
// returns it split into individual element slices. elementWidth is the
// byte width of each element (e.g. 2 for a vector of cipher suites).
func (r *Reader) GetVarTuple(lenOfLen, elementWidth int) ([][]byte, error) {
	blob, err := r.GetVar(lenOfLen)
	if err != nil {
		return nil, err
	}
	if elementWidth <= 0 || len(blob)%elementWidth != 0 {
		return nil, newDecodeError("vector length %d not a multiple of element width %d", len(blob), elementWidth)
	}
	out := make([][]byte, 0, len(blob)/elementWidth)
	for i := 0; i < len(blob); i += elementWidth {
		out = append(out, blob[i:i+elementWidth])
	}
	return out, nil
}

// Skip advances the cursor by n bytes without reading them.
func (r *Reader) Skip(n int) error {
	if err := r.CheckRemaining(n); err != nil {
		return err
	}
	r.offset += n
	return nil
}

// ReadRemaining returns and consumes every byte left in the buffer.
func (r *Reader) ReadRemaining() []byte {
	v := r.buffer[r.offset:]
	r.offset += len(v)
	return v
}

// ExpectEmpty fails with a DecodeError if bytes remain. Every message
// parser calls this once it believes it has consumed the whole body, per
// the "reject trailing bytes" rule.
func (r *Reader) ExpectEmpty() error {
	if r.Remaining() != 0 {
		return newDecodeError("%d unexpected trailing bytes", r.Remaining())
	}
	return nil
}
