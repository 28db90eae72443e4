package packet

import (
	"bytes"
	"testing"
)

func TestReaderGet(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	if v, err := r.Get(1); err != nil || v != 0x01 {
		t.Errorf("Get(1): got %d, %v", v, err)
	}
	if v, err := r.Get(2); err != nil || v != 0x0203 {
		t.Errorf("Get(2): got %#x, %v", v, err)
	}
	if v, err := r.Get(3); err != nil || v != 0x040506 {
		t.Errorf("Get(3): got %#x, %v", v, err)
	}
	if v, err := r.Get(2); err != nil || v != 0x0708 {
		t.Errorf("Get(2): got %#x, %v", v, err)
	}
	if err := r.ExpectEmpty(); err != nil {
		t.Errorf("expected reader to be drained: %v", err)
	}
}

func TestReaderUnderflow(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.Get(2); err == nil {
		t.Fatal("expected a DecodeError on underflow")
	}
	if _, ok := (error)(&DecodeError{}).(*DecodeError); !ok {
		t.Fatal("DecodeError should implement error")
	}
}

func TestReaderGetVar(t *testing.T) {
	// 1-byte length prefix, as in a <0..255> vector.
	r := NewReader([]byte{0x03, 'a', 'b', 'c', 0xff})
	blob, err := r.GetVar(1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, []byte("abc")) {
		t.Errorf("GetVar: got %q", blob)
	}
	if r.Remaining() != 1 {
		t.Errorf("expected 1 byte remaining, got %d", r.Remaining())
	}
}

func TestReaderGetVarTuple(t *testing.T) {
	r := NewReader([]byte{0x00, 0x04, 0xC0, 0x2B, 0xC0, 0x2F})
	elems, err := r.GetVarTuple(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elems))
	}
	if !bytes.Equal(elems[0], []byte{0xC0, 0x2B}) || !bytes.Equal(elems[1], []byte{0xC0, 0x2F}) {
		t.Errorf("unexpected elements: %v", elems)
	}
}

func TestReaderGetVarTupleMisaligned(t *testing.T) {
	r := NewReader([]byte{0x00, 0x03, 0xC0, 0x2B, 0xC0})
	if _, err := r.GetVarTuple(2, 2); err == nil {
		t.Fatal("expected an error for a vector length not a multiple of element width")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteByte(0x01)
	w.WriteUint16(0x0203)
	w.WriteUint24(0x040506)
	w.WriteUint32(0x0708090a)
	w.WriteUint64(0x0b0c0d0e0f101112)

	want := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a,
		0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %#v, want %#v", w.Bytes(), want)
	}

	r := NewReader(w.Bytes())
	if v, _ := r.Get(1); v != 0x01 {
		t.Errorf("byte: got %#x", v)
	}
	if v, _ := r.Get(2); v != 0x0203 {
		t.Errorf("uint16: got %#x", v)
	}
	if v, _ := r.Get(3); v != 0x040506 {
		t.Errorf("uint24: got %#x", v)
	}
	if v, _ := r.Get(4); v != 0x0708090a {
		t.Errorf("uint32: got %#x", v)
	}
	if v, _ := r.Get(8); v != 0x0b0c0d0e0f101112 {
		t.Errorf("uint64: got %#x", v)
	}
}

func TestWriterBeginEndVector(t *testing.T) {
	w := NewWriter()
	mark := w.BeginVector(2)
	w.WriteSlice([]byte("hello"))
	w.EndVector(mark, 2)

	want := []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %#v, want %#v", w.Bytes(), want)
	}
}

func TestWriterNestedVectors(t *testing.T) {
	w := NewWriter()
	outer := w.BeginVector(2)
	inner := w.BeginVector(1)
	w.WriteSlice([]byte{0xC0, 0x2B})
	w.EndVector(inner, 1)
	w.WriteByte(0xAA)
	w.EndVector(outer, 2)

	want := []byte{0x00, 0x04, 0x02, 0xC0, 0x2B, 0xAA}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %#v, want %#v", w.Bytes(), want)
	}
}
