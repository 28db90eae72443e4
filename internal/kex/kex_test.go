package kex

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

func TestECDHERoundTrip(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	params, serverPriv, err := GenerateServerECDHE(suite, rand.Reader, cryptoprim.GroupX25519)
	if err != nil {
		t.Fatalf("GenerateServerECDHE: %v", err)
	}

	clientPub, clientShared, err := ClientECDHEShared(suite, rand.Reader, params)
	if err != nil {
		t.Fatalf("ClientECDHEShared: %v", err)
	}

	serverShared, err := ServerECDHEShared(suite, cryptoprim.GroupX25519, serverPriv, clientPub)
	if err != nil {
		t.Fatalf("ServerECDHEShared: %v", err)
	}

	if !bytes.Equal(clientShared, serverShared) {
		t.Fatal("client and server computed different shared secrets")
	}
}

func TestECDHEParamsMarshalRoundTrip(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	params, _, err := GenerateServerECDHE(suite, rand.Reader, cryptoprim.GroupSECP256R1)
	if err != nil {
		t.Fatalf("GenerateServerECDHE: %v", err)
	}
	raw := params.Marshal()
	got, consumed, err := ParseServerECDHParams(raw)
	if err != nil {
		t.Fatalf("ParseServerECDHParams: %v", err)
	}
	if got.Group != params.Group || !bytes.Equal(got.PublicKey, params.PublicKey) {
		t.Errorf("got %#v, want %#v", got, params)
	}
	if len(consumed) != len(raw) {
		t.Errorf("consumed %d bytes, want %d", len(consumed), len(raw))
	}
}

func TestDHERoundTrip(t *testing.T) {
	group := DefaultDHEGroup
	serverYs, serverPriv, err := GenerateDHE(group)
	if err != nil {
		t.Fatalf("GenerateDHE (server): %v", err)
	}
	clientYs, clientPriv, err := GenerateDHE(group)
	if err != nil {
		t.Fatalf("GenerateDHE (client): %v", err)
	}

	clientShared, err := ComputeDHEShared(clientPriv, serverYs)
	if err != nil {
		t.Fatalf("ComputeDHEShared (client): %v", err)
	}
	serverShared, err := ComputeDHEShared(serverPriv, clientYs)
	if err != nil {
		t.Fatalf("ComputeDHEShared (server): %v", err)
	}
	if !bytes.Equal(clientShared, serverShared) {
		t.Fatal("DHE shared secrets diverged")
	}
}

func TestRejectDegenerateDHPublic(t *testing.T) {
	group := DefaultDHEGroup
	one := big.NewInt(1)
	if err := rejectDegenerateDHPublic(one, group.P); err == nil {
		t.Fatal("expected y=1 to be rejected")
	}
}

func TestDecryptRSAPremasterAlwaysSucceeds(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	genuine, err := RandomPremaster(rand.Reader, 0x0303)
	if err != nil {
		t.Fatalf("RandomPremaster: %v", err)
	}
	encrypted, err := EncryptRSAPremaster(&priv.PublicKey, genuine)
	if err != nil {
		t.Fatalf("EncryptRSAPremaster: %v", err)
	}

	out, err := DecryptRSAPremaster(priv, encrypted, 0x0303)
	if err != nil {
		t.Fatalf("DecryptRSAPremaster: %v", err)
	}
	if !bytes.Equal(out, genuine) {
		t.Error("valid ciphertext should yield the genuine premaster secret")
	}

	// Corrupted ciphertext must not return an error; it must silently
	// fall back to a random premaster secret (Bleichenbacher countermeasure).
	corrupted := append([]byte{}, encrypted...)
	corrupted[0] ^= 0xff
	out2, err := DecryptRSAPremaster(priv, corrupted, 0x0303)
	if err != nil {
		t.Fatalf("DecryptRSAPremaster on corrupted input must not error: %v", err)
	}
	if len(out2) != 48 {
		t.Errorf("len(out2) = %d, want 48", len(out2))
	}
}

func TestSelectSignatureScheme(t *testing.T) {
	peer := []SignatureScheme{SigRSAPKCS1SHA256, SigECDSASecp256r1SHA256}
	got, err := SelectSignatureScheme(peer, false, true, false)
	if err != nil {
		t.Fatalf("SelectSignatureScheme: %v", err)
	}
	if got != SigECDSASecp256r1SHA256 {
		t.Errorf("got %v, want SigECDSASecp256r1SHA256", got)
	}
}

func TestSelectSignatureSchemeNoMatch(t *testing.T) {
	peer := []SignatureScheme{SigRSAPKCS1SHA256}
	if _, err := SelectSignatureScheme(peer, false, true, false); err == nil {
		t.Fatal("expected an error when no offered scheme matches the key type")
	}
}

func TestCertificateVerifyPayloadDiffersByRole(t *testing.T) {
	hash := bytes.Repeat([]byte{0xAB}, 32)
	client := CertificateVerifyPayload13(hash, false)
	server := CertificateVerifyPayload13(hash, true)
	if bytes.Equal(client, server) {
		t.Fatal("client and server CertificateVerify payloads must differ")
	}
}
