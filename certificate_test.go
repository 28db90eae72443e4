package tlsengine

import (
	"crypto/x509"
	"testing"
)

func TestGenerateSelfSignedCertificate(t *testing.T) {
	der, certPEM, keyPEM, priv, err := GenerateSelfSignedCertificate("tlsengine-test")
	if err != nil {
		t.Fatalf("GenerateSelfSignedCertificate: %v", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 || priv == nil {
		t.Fatal("expected non-empty PEM blocks and a private key")
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	isRSA, isECDSA, isEd25519, bits := CertificateKeyInfo(cert)
	if isRSA || isEd25519 || !isECDSA || bits != 256 {
		t.Errorf("got rsa=%v ecdsa=%v ed25519=%v bits=%d", isRSA, isECDSA, isEd25519, bits)
	}

	fp := CertificateFingerprint(der)
	if len(fp) != 32*2+31 {
		t.Errorf("unexpected fingerprint length: %q", fp)
	}
}
