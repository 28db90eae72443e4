package defrag

import (
	"bytes"
	"testing"
)

func TestFeedWholeMessageInOneRecord(t *testing.T) {
	r := New()
	msg := []byte{0x01, 0x00, 0x00, 0x02, 0xAA, 0xBB} // ClientHello, length 2
	if err := r.Feed(ContentTypeHandshake, msg); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !r.Pending(ContentTypeHandshake) {
		t.Fatal("expected a complete handshake message")
	}
	got, ok := r.Next(ContentTypeHandshake)
	if !ok || !bytes.Equal(got, msg) {
		t.Fatalf("Next: got %#v, ok=%v", got, ok)
	}
	if r.Pending(ContentTypeHandshake) {
		t.Fatal("queue should be empty after Next")
	}
}

func TestFeedFragmentedAcrossRecords(t *testing.T) {
	r := New()
	msg := []byte{0x01, 0x00, 0x00, 0x04, 0xAA, 0xBB, 0xCC, 0xDD}

	if err := r.Feed(ContentTypeHandshake, msg[:3]); err != nil {
		t.Fatalf("Feed 1: %v", err)
	}
	if r.Pending(ContentTypeHandshake) {
		t.Fatal("message should not be complete yet")
	}
	if !r.HasPartial() {
		t.Fatal("expected a partial message to be buffered")
	}

	if err := r.Feed(ContentTypeHandshake, msg[3:6]); err != nil {
		t.Fatalf("Feed 2: %v", err)
	}
	if r.Pending(ContentTypeHandshake) {
		t.Fatal("message should still be incomplete")
	}

	if err := r.Feed(ContentTypeHandshake, msg[6:]); err != nil {
		t.Fatalf("Feed 3: %v", err)
	}
	if !r.Pending(ContentTypeHandshake) {
		t.Fatal("expected message to be complete after final fragment")
	}
	if r.HasPartial() {
		t.Fatal("no partial message should remain")
	}

	got, ok := r.Next(ContentTypeHandshake)
	if !ok || !bytes.Equal(got, msg) {
		t.Fatalf("Next: got %#v, ok=%v, want %#v", got, ok, msg)
	}
}

func TestFeedMultipleMessagesInOneRecord(t *testing.T) {
	r := New()
	a := []byte{0x01, 0x00, 0x00, 0x01, 0x01}
	b := []byte{0x02, 0x00, 0x00, 0x01, 0x02}
	if err := r.Feed(ContentTypeHandshake, append(append([]byte{}, a...), b...)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	first, ok := r.Next(ContentTypeHandshake)
	if !ok || !bytes.Equal(first, a) {
		t.Fatalf("first message: got %#v, ok=%v", first, ok)
	}
	second, ok := r.Next(ContentTypeHandshake)
	if !ok || !bytes.Equal(second, b) {
		t.Fatalf("second message: got %#v, ok=%v", second, ok)
	}
}

func TestReadyPriorityOrdersAlertBeforeHandshake(t *testing.T) {
	r := New()
	if err := r.Feed(ContentTypeHandshake, []byte{0x01, 0x00, 0x00, 0x00}); err != nil {
		t.Fatalf("Feed handshake: %v", err)
	}
	if err := r.Feed(ContentTypeAlert, []byte{0x02, 0x0A}); err != nil {
		t.Fatalf("Feed alert: %v", err)
	}
	ct, ok := r.Ready()
	if !ok || ct != ContentTypeAlert {
		t.Fatalf("Ready: got %v, ok=%v, want alert", ct, ok)
	}
}

func TestNonHandshakeContentIsOpaque(t *testing.T) {
	r := New()
	payload := []byte{0x17, 0x03, 0x03}
	if err := r.Feed(ContentTypeApplicationData, payload); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	got, ok := r.Next(ContentTypeApplicationData)
	if !ok || !bytes.Equal(got, payload) {
		t.Fatalf("Next: got %#v, ok=%v", got, ok)
	}
}
