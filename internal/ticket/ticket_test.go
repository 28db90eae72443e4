package ticket

import (
	"bytes"
	"testing"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

func TestSealOpenRoundTrip(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	kr, err := NewKeyring(suite)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	s := Session{
		CipherSuite:    0x1301,
		Secret:         []byte("resumption secret material"),
		Flags:          FlagIsTLS13 | FlagExtendedMasterSecret,
		NegotiatedALPN: "h2",
		CreatedAt:      1234567890,
	}

	blob, err := kr.Seal(s)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := kr.Open(blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.CipherSuite != s.CipherSuite || !bytes.Equal(got.Secret, s.Secret) ||
		got.Flags != s.Flags || got.NegotiatedALPN != s.NegotiatedALPN || got.CreatedAt != s.CreatedAt {
		t.Errorf("got %#v, want %#v", got, s)
	}
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	kr, _ := NewKeyring(suite)
	blob, _ := kr.Seal(Session{CipherSuite: 0x1301, Secret: []byte("x")})
	blob[len(blob)-1] ^= 0xff
	if _, err := kr.Open(blob); err == nil {
		t.Fatal("expected tampered ciphertext to fail authentication")
	}
}

func TestOpenAcceptsPriorEpochAfterRotate(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	kr, _ := NewKeyring(suite)
	blob, err := kr.Seal(Session{CipherSuite: 0x1301, Secret: []byte("x")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if err := kr.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := kr.Open(blob); err != nil {
		t.Errorf("ticket from the immediately prior epoch should still open: %v", err)
	}

	if err := kr.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := kr.Open(blob); err == nil {
		t.Error("ticket from two epochs ago should no longer open")
	}
}
