package keyschedule

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"testing"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

func TestPRFIsDeterministic(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	secret := []byte("premaster secret value padded to look real")
	seed := []byte("client-random||server-random")

	a, err := PRF(suite, crypto.SHA256, secret, "master secret", seed, 48)
	if err != nil {
		t.Fatalf("PRF: %v", err)
	}
	b, err := PRF(suite, crypto.SHA256, secret, "master secret", seed, 48)
	if err != nil {
		t.Fatalf("PRF: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("PRF must be deterministic for identical inputs")
	}
	if len(a) != 48 {
		t.Fatalf("len(a) = %d, want 48", len(a))
	}

	c, err := PRF(suite, crypto.SHA256, secret, "key expansion", seed, 48)
	if err != nil {
		t.Fatalf("PRF: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatal("different labels must produce different output")
	}
}

func TestDeriveKeyBlock12Lengths(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	master := make([]byte, 48)
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)

	kb, err := DeriveKeyBlock12(suite, crypto.SHA256, master, clientRandom, serverRandom, 0, 16, 4)
	if err != nil {
		t.Fatalf("DeriveKeyBlock12: %v", err)
	}
	if len(kb.ClientWriteMACKey) != 0 || len(kb.ClientWriteKey) != 16 || len(kb.ClientWriteIV) != 4 {
		t.Errorf("got %#v", kb)
	}
}

func TestSchedule13Cascade(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	h := crypto.SHA256
	emptyHash := sha256.Sum256(nil)

	sched := NewSchedule13(suite, h)
	if err := sched.DeriveEarlySecret(nil, emptyHash[:]); err != nil {
		t.Fatalf("DeriveEarlySecret: %v", err)
	}
	if len(sched.EarlySecret) != 32 {
		t.Fatalf("len(EarlySecret) = %d, want 32", len(sched.EarlySecret))
	}

	dheShared := bytes.Repeat([]byte{0x42}, 32)
	transcriptSH := sha256.Sum256([]byte("ClientHello||ServerHello"))
	if err := sched.DeriveHandshakeSecret(dheShared, transcriptSH[:], emptyHash[:]); err != nil {
		t.Fatalf("DeriveHandshakeSecret: %v", err)
	}
	if bytes.Equal(sched.ClientHSTraffic, sched.ServerHSTraffic) {
		t.Fatal("client and server handshake traffic secrets must differ")
	}

	transcriptSF := sha256.Sum256([]byte("ClientHello||...||ServerFinished"))
	if err := sched.DeriveMasterSecret(transcriptSF[:], emptyHash[:]); err != nil {
		t.Fatalf("DeriveMasterSecret: %v", err)
	}
	if len(sched.MasterSecret) != 32 || len(sched.ClientAppTraffic) != 32 {
		t.Errorf("unexpected secret lengths: master=%d, client_ap=%d", len(sched.MasterSecret), len(sched.ClientAppTraffic))
	}

	finKey, err := FinishedKey(suite, h, sched.ServerHSTraffic)
	if err != nil {
		t.Fatalf("FinishedKey: %v", err)
	}
	verifyData, err := FinishedVerifyData13(suite, h, finKey, transcriptSH[:])
	if err != nil {
		t.Fatalf("FinishedVerifyData13: %v", err)
	}
	if len(verifyData) != 32 {
		t.Errorf("len(verifyData) = %d, want 32", len(verifyData))
	}
}

func TestNextTrafficSecretRatchets(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	secret := bytes.Repeat([]byte{0x07}, 32)
	next, err := NextTrafficSecret(suite, crypto.SHA256, secret)
	if err != nil {
		t.Fatalf("NextTrafficSecret: %v", err)
	}
	if bytes.Equal(next, secret) {
		t.Fatal("ratcheted secret must differ from the original")
	}
}
