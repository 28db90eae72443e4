package psk

import (
	"bytes"
	"crypto"
	"testing"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/extension"
)

func TestComputeAndVerifyBinder(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	id := Identity{
		Label:        []byte("ticket-1"),
		Secret:       []byte("resumption master secret bytes!"),
		Hash:         crypto.SHA256,
		IsResumption: true,
		AgeAdd:       12345,
		ReceivedAt:   0,
	}
	clientHelloPrefix := []byte("fake-truncated-clienthello-bytes")

	binder, err := ComputeBinder(suite, id, clientHelloPrefix)
	if err != nil {
		t.Fatalf("ComputeBinder: %v", err)
	}
	if len(binder) != 32 {
		t.Fatalf("len(binder) = %d, want 32", len(binder))
	}

	if err := VerifyBinder(suite, id, clientHelloPrefix, binder); err != nil {
		t.Errorf("VerifyBinder failed on a genuine binder: %v", err)
	}

	tampered := append([]byte{}, binder...)
	tampered[0] ^= 0xff
	if err := VerifyBinder(suite, id, clientHelloPrefix, tampered); err == nil {
		t.Error("VerifyBinder should reject a tampered binder")
	}
}

func TestObfuscatedAgeRoundTrip(t *testing.T) {
	id := Identity{AgeAdd: 1000, ReceivedAt: 0}
	now := int64(5000)
	age := id.ObfuscatedAge(now)
	if age != 1000+5000 {
		t.Errorf("got %d, want %d", age, 6000)
	}
}

func TestSelectIdentityFindsFirstKnown(t *testing.T) {
	offered := []extension.PSKIdentity{
		{Identity: []byte("unknown-1")},
		{Identity: []byte("known-2")},
	}
	idx, id, ok := SelectIdentity(offered, func(label []byte) (Identity, bool) {
		if bytes.Equal(label, []byte("known-2")) {
			return Identity{Label: label}, true
		}
		return Identity{}, false
	})
	if !ok || idx != 1 || !bytes.Equal(id.Label, []byte("known-2")) {
		t.Errorf("got idx=%d ok=%v id=%#v", idx, ok, id)
	}
}
