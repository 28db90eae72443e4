package record

import (
	"bytes"
	"crypto"
	"testing"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

func pairAEAD12(t *testing.T, suite cryptoprim.Suite) (client, server *CipherState) {
	t.Helper()
	km := KeyMaterial{Mode: ModeAEAD, Cipher: CipherAES128GCM, Hash: crypto.SHA256, KeyLen: 16, FixedIVLen: 4}
	masterSecret := make([]byte, 48)
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	for i := range masterSecret {
		masterSecret[i] = byte(i)
	}
	dp, err := CalcPendingState12(suite, km, masterSecret, clientRandom, serverRandom, VersionTLS12, true)
	if err != nil {
		t.Fatalf("CalcPendingState12: %v", err)
	}
	return NewCipherState(suite, dp.Write), NewCipherState(suite, dp.Read)
}

func TestAEAD12RoundTrip(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairAEAD12(t, suite)

	outerType, ciphertext, err := client.Seal(ContentTypeApplicationData, []byte("hello aead"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if outerType != ContentTypeApplicationData {
		t.Fatalf("TLS 1.2 must not rewrite the outer type, got %v", outerType)
	}
	gotType, plaintext, err := server.Open(outerType, VersionTLS12, ciphertext)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotType != ContentTypeApplicationData || string(plaintext) != "hello aead" {
		t.Fatalf("got (%v, %q)", gotType, plaintext)
	}
}

func TestAEAD12RejectsTamperedCiphertext(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairAEAD12(t, suite)
	_, ciphertext, err := client.Seal(ContentTypeApplicationData, []byte("hello"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xff
	if _, _, err := server.Open(ContentTypeApplicationData, VersionTLS12, tampered); err == nil {
		t.Fatal("expected decryption to fail on tampered ciphertext")
	}
}

func TestAEAD13ContentTypeHiding(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	km := KeyMaterial{Mode: ModeAEAD, Cipher: CipherAES128GCM, Hash: crypto.SHA256, KeyLen: 16, FixedIVLen: 12}
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i + 1)
	}
	writeParams, err := CalcPendingStateTLS13(suite, km, secret)
	if err != nil {
		t.Fatalf("CalcPendingStateTLS13: %v", err)
	}
	readParams, err := CalcPendingStateTLS13(suite, km, secret)
	if err != nil {
		t.Fatalf("CalcPendingStateTLS13: %v", err)
	}
	client := NewCipherState(suite, writeParams)
	server := NewCipherState(suite, readParams)

	outerType, ciphertext, err := client.Seal(ContentTypeHandshake, []byte("finished-shaped payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if outerType != ContentTypeApplicationData {
		t.Fatalf("TLS 1.3 must hide the real content type behind application_data, got %v", outerType)
	}

	realType, plaintext, err := server.Open(outerType, VersionTLS13, ciphertext)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if realType != ContentTypeHandshake || string(plaintext) != "finished-shaped payload" {
		t.Fatalf("got (%v, %q)", realType, plaintext)
	}
}

func pairCBCMtE(t *testing.T, suite cryptoprim.Suite, v Version) (client, server *CipherState) {
	t.Helper()
	km := KeyMaterial{Mode: ModeCBCMtE, Cipher: CipherAES128CBC, Hash: crypto.SHA256, KeyLen: 16, MACKeyLen: 32, FixedIVLen: 16}
	masterSecret := make([]byte, 48)
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	for i := range masterSecret {
		masterSecret[i] = byte(i * 3)
	}
	dp, err := CalcPendingState12(suite, km, masterSecret, clientRandom, serverRandom, v, true)
	if err != nil {
		t.Fatalf("CalcPendingState12: %v", err)
	}
	return NewCipherState(suite, dp.Write), NewCipherState(suite, dp.Read)
}

func TestCBCMtERoundTripTLS12(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairCBCMtE(t, suite, VersionTLS12)

	for i := 0; i < 3; i++ {
		msg := bytes.Repeat([]byte{byte('a' + i)}, 20+i)
		outerType, ciphertext, err := client.Seal(ContentTypeApplicationData, msg)
		if err != nil {
			t.Fatalf("Seal #%d: %v", i, err)
		}
		_, plaintext, err := server.Open(outerType, VersionTLS12, ciphertext)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if !bytes.Equal(plaintext, msg) {
			t.Fatalf("record #%d: got %q want %q", i, plaintext, msg)
		}
	}
}

func TestCBCMtERoundTripTLS10ImplicitIV(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairCBCMtE(t, suite, VersionTLS10)

	for i := 0; i < 3; i++ {
		msg := []byte("implicit iv chaining test record")
		outerType, ciphertext, err := client.Seal(ContentTypeApplicationData, msg)
		if err != nil {
			t.Fatalf("Seal #%d: %v", i, err)
		}
		_, plaintext, err := server.Open(outerType, VersionTLS10, ciphertext)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if !bytes.Equal(plaintext, msg) {
			t.Fatalf("record #%d: got %q want %q", i, plaintext, msg)
		}
	}
}

func TestCBCMtERejectsBadMAC(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairCBCMtE(t, suite, VersionTLS12)
	outerType, ciphertext, err := client.Seal(ContentTypeApplicationData, []byte("tamper me"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0x01
	if _, _, err := server.Open(outerType, VersionTLS12, ciphertext); err != errBadRecordMAC {
		t.Fatalf("got err %v, want errBadRecordMAC", err)
	}
}

func TestSequenceNumbersAdvanceIndependently(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairAEAD12(t, suite)
	for i := 0; i < 5; i++ {
		outerType, ct, err := client.Seal(ContentTypeApplicationData, []byte("x"))
		if err != nil {
			t.Fatalf("Seal #%d: %v", i, err)
		}
		if client.seq != uint64(i+1) {
			t.Fatalf("after record #%d: client.seq = %d", i, client.seq)
		}
		if _, _, err := server.Open(outerType, VersionTLS12, ct); err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if server.seq != uint64(i+1) {
			t.Fatalf("after record #%d: server.seq = %d", i, server.seq)
		}
	}
}

func TestLayerWriteReadRoundTrip(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	client, server := pairAEAD12(t, suite)

	var wire bytes.Buffer
	writer := New(nil, &wire, false)
	writer.RekeyWrite(client)
	if err := writer.WriteRecord(ContentTypeApplicationData, []byte("over the layer")); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	reader := New(&wire, nil, false)
	reader.RekeyRead(server)
	ct, plaintext, err := reader.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if ct != ContentTypeApplicationData || string(plaintext) != "over the layer" {
		t.Fatalf("got (%v, %q)", ct, plaintext)
	}
}
