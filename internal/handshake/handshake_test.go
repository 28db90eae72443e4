package handshake

import (
	"bytes"
	"testing"
)

func TestClientHelloRoundTrip(t *testing.T) {
	ch := ClientHello{
		LegacyVersion:      0x0303,
		LegacySessionID:    []byte{0x01, 0x02},
		CipherSuites:       []uint16{0x1301, 0x1302},
		LegacyCompressions: []uint8{0},
	}
	raw, err := ch.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("got %T, want ClientHello", msg)
	}
	if got.LegacyVersion != ch.LegacyVersion || len(got.CipherSuites) != 2 {
		t.Errorf("got %#v", got)
	}
}

func TestServerHelloDetectsHelloRetryRequest(t *testing.T) {
	hrr := NewHelloRetryRequest(0x0303, nil, 0x1301, nil)
	raw, err := hrr.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sh := msg.(ServerHello)
	if !sh.IsHelloRetryRequest() {
		t.Fatal("expected HelloRetryRequest to be recognized")
	}
}

func TestServerHelloOrdinaryIsNotHRR(t *testing.T) {
	sh := ServerHello{LegacyVersion: 0x0303, CipherSuite: 0x1301}
	sh.Random[0] = 0x01
	raw, _ := sh.Marshal()
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := msg.(ServerHello)
	if got.IsHelloRetryRequest() {
		t.Fatal("ordinary ServerHello misidentified as HelloRetryRequest")
	}
}

func TestFinishedRoundTrip(t *testing.T) {
	f := Finished{VerifyData: bytes.Repeat([]byte{0xAB}, 12)}
	raw, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := msg.(Finished)
	if !bytes.Equal(got.VerifyData, f.VerifyData) {
		t.Errorf("got %#v, want %#v", got.VerifyData, f.VerifyData)
	}
}

func TestNewSessionTicket13RoundTrip(t *testing.T) {
	ticket := NewNewSessionTicket13(7200, 0xDEADBEEF, []byte{0x01}, []byte("opaque-ticket"))
	raw, err := ticket.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := msg.(NewSessionTicket)
	if got.LifetimeHint != 7200 || got.TicketAgeAdd != 0xDEADBEEF || !bytes.Equal(got.Ticket, []byte("opaque-ticket")) {
		t.Errorf("got %#v", got)
	}
}

func TestKeyUpdateRejectsInvalidValue(t *testing.T) {
	raw := marshalHeader(TypeKeyUpdate, []byte{0x02})
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for an invalid key_update request value")
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	raw := marshalHeader(TypeServerHelloDone, []byte{0x00})
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for trailing bytes after server_hello_done")
	}
}

func TestCertificateRoundTrip13(t *testing.T) {
	cert := NewCertificate13(nil, []CertificateEntry{
		{Data: []byte("der-bytes-1")},
	})
	raw, err := cert.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := msg.(Certificate)
	if len(got.Entries) != 1 || !bytes.Equal(got.Entries[0].Data, []byte("der-bytes-1")) {
		t.Errorf("got %#v", got)
	}
}
