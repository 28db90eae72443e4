// Portions of this file are:

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsengine

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// publicKey extracts the public half of the private key types this
// engine signs with.
//
// See https://golang.org/src/crypto/tls/generate_cert.go
func publicKey(priv crypto.Signer) interface{} {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return &k.PublicKey
	case *ecdsa.PrivateKey:
		return &k.PublicKey
	default:
		return priv.Public()
	}
}

// pemBlockForKey encodes priv's PEM representation, used by
// GenerateSelfSignedCertificate and cmd/tlsengine-probe's server mode.
//
// See https://golang.org/src/crypto/tls/generate_cert.go
func pemBlockForKey(priv crypto.Signer) (*pem.Block, error) {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}, nil
	case *ecdsa.PrivateKey:
		b, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil, fmt.Errorf("marshal ECDSA private key: %w", err)
		}
		return &pem.Block{Type: "EC PRIVATE KEY", Bytes: b}, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", priv)
	}
}

// GenerateSelfSignedCertificate produces a throwaway leaf certificate and
// key for testing and for cmd/tlsengine-probe's server mode: ECDSA over
// P-256, valid for 30 days, self-signed. Real deployments supply their
// own certificate chain through the Certificate collaborator interface
// (§6); this helper exists so the probe tool and this package's own
// tests never need an external CA.
func GenerateSelfSignedCertificate(commonName string) (certDER []byte, certPEMBlock, keyPEMBlock []byte, priv *ecdsa.PrivateKey, err error) {
	notBefore := time.Now()
	notAfter := notBefore.Add(30 * 24 * time.Hour)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("generate serial number: %w", err)
	}

	priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("generate ECDSA key: %w", err)
	}

	template := x509.Certificate{
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		SerialNumber:       serialNumber,
		Subject:            pkix.Name{CommonName: commonName},
		NotBefore:          notBefore,
		NotAfter:           notAfter,
		DNSNames:           []string{commonName},
	}

	certDER, err = x509.CreateCertificate(rand.Reader, &template, &template, publicKey(priv), priv)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	certPEMBlock = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyBlock, err := pemBlockForKey(priv)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	keyPEMBlock = pem.EncodeToMemory(keyBlock)

	return certDER, certPEMBlock, keyPEMBlock, priv, nil
}

// CertificateFingerprint returns a certificate's SHA-256 fingerprint in
// colon-separated hex, handy for log output and for comparing against a
// pinned value.
func CertificateFingerprint(certDER []byte) string {
	h := sha256.Sum256(certDER)
	out := make([]byte, 0, len(h)*3-1)
	for i, b := range h {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, fmt.Sprintf("%02X", b)...)
	}
	return string(out)
}

// CertificateKeyInfo reports the public-key type and bit length of a
// parsed leaf certificate, as the Certificate chain collaborator
// interface (§6) requires for signature-scheme selection
// (internal/kex.SelectSignatureScheme).
func CertificateKeyInfo(cert *x509.Certificate) (isRSA, isECDSA, isEd25519 bool, bitLength int) {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return true, false, false, pub.N.BitLen()
	case *ecdsa.PublicKey:
		return false, true, false, pub.Curve.Params().BitSize
	case ed25519.PublicKey:
		return false, false, true, 256
	default:
		return false, false, false, 0
	}
}
