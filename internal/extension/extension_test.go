package extension

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/lanikai/tlsengine/internal/packet"
)

func TestServerNameRoundTrip(t *testing.T) {
	want := ServerName{HostName: "example.com"}
	raw, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	r := packet.NewReader(raw)
	typ, _ := r.ReadUint16()
	if Type(typ) != TypeServerName {
		t.Fatalf("type = %d, want %d", typ, TypeServerName)
	}
	body, err := r.GetVar(2)
	if err != nil {
		t.Fatalf("GetVar: %v", err)
	}
	got, err := decodeServerName(body)
	if err != nil {
		t.Fatalf("decodeServerName: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestSignatureAlgorithmsMarshal(t *testing.T) {
	want := []byte{
		0x00, 0x0d,
		0x00, 0x06,
		0x00, 0x04,
		0x04, 0x03,
		0x08, 0x04,
	}
	e := SignatureAlgorithms{Schemes: []uint16{0x0403, 0x0804}}
	raw, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(raw, want) {
		t.Errorf("got %#v, want %#v", raw, want)
	}
}

func TestParseAllRejectsDuplicate(t *testing.T) {
	emsRaw, _ := ExtendedMasterSecret{}.Marshal()
	both := append(append([]byte{}, emsRaw...), emsRaw...)
	r := packet.NewReader(both)
	if _, err := ParseAll(ContextClientHello, r); err == nil {
		t.Fatal("expected an error for a duplicate extension")
	}
}

func TestParseAllRejectsWrongContext(t *testing.T) {
	raw, _ := PSKKeyExchangeModes{Modes: []uint8{PSKModePSKDHE}}.Marshal()
	r := packet.NewReader(raw)
	if _, err := ParseAll(ContextServerHello, r); err == nil {
		t.Fatal("expected an error for psk_key_exchange_modes in ServerHello")
	}
}

func TestParseAllPreservesUnknownExtension(t *testing.T) {
	w := packet.NewWriter()
	w.WriteUint16(0xABCD)
	w.PutVar(2, []byte{0x01, 0x02, 0x03})
	r := packet.NewReader(w.Bytes())

	c, err := ParseAll(ContextClientHello, r)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if !c.Has(Type(0xABCD)) {
		t.Fatal("expected unknown extension to be preserved")
	}
}

func TestFirstGeneric(t *testing.T) {
	raw, _ := ALPN{Protocols: []string{"h2"}}.Marshal()
	r := packet.NewReader(raw)
	c, err := ParseAll(ContextClientHello, r)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	alpn, ok := First[ALPN](c)
	if !ok {
		t.Fatal("expected to find ALPN extension")
	}
	if len(alpn.Protocols) != 1 || alpn.Protocols[0] != "h2" {
		t.Errorf("got %#v", alpn)
	}
}

func TestPreSharedKeyMustBeLast(t *testing.T) {
	psk, _ := PreSharedKey{
		Identities: []PSKIdentity{{Identity: []byte("ticket"), ObfuscatedTicketAge: 0}},
		Binders:    [][]byte{bytes.Repeat([]byte{0xAA}, 32)},
	}.Marshal()
	ems, _ := ExtendedMasterSecret{}.Marshal()

	combined := append(append([]byte{}, psk...), ems...)
	r := packet.NewReader(combined)
	if _, err := ParseAll(ContextClientHello, r); err == nil {
		t.Fatal("expected an error when pre_shared_key is not last")
	}
}

func TestKeyShareClientAndServerForms(t *testing.T) {
	client := KeyShare{ClientShares: []KeyShareEntry{{Group: 29, KeyExchange: bytes.Repeat([]byte{0x01}, 32)}}}
	raw, err := client.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	r := packet.NewReader(raw)
	r.ReadUint16()
	body, _ := r.GetVar(2)
	got, err := decodeKeyShare(body)
	if err != nil {
		t.Fatalf("decodeKeyShare: %v", err)
	}
	ks := got.(KeyShare)
	if len(ks.ClientShares) != 1 || ks.ClientShares[0].Group != 29 {
		t.Errorf("got %#v", ks)
	}

	server := KeyShare{ServerShare: KeyShareEntry{Group: 29, KeyExchange: bytes.Repeat([]byte{0x02}, 32)}}
	raw2, _ := server.Marshal()
	r2 := packet.NewReader(raw2)
	r2.ReadUint16()
	body2, _ := r2.GetVar(2)
	got2, err := decodeKeyShare(body2)
	if err != nil {
		t.Fatalf("decodeKeyShare: %v", err)
	}
	ks2 := got2.(KeyShare)
	if ks2.ServerShare.Group != 29 {
		t.Errorf("got %#v", ks2)
	}
}
