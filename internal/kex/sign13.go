package kex

import (
	"crypto"
	"crypto/rsa"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

// SignCertificateVerify13 produces an RFC 8446 §4.4.3 CertificateVerify
// signature over payload (built by CertificateVerifyPayload13) for the
// given scheme. Ed25519 signs the payload directly; the RSA-PSS schemes
// need an explicit *rsa.PSSOptions (crypto.Hash alone defaults to
// PKCS#1 v1.5 on an *rsa.PrivateKey); every other scheme hashes first and
// signs the digest, mirroring verifySignature13's read-side dispatch.
func SignCertificateVerify13(suite cryptoprim.Suite, signer cryptoprim.Signer, scheme SignatureScheme, payload []byte) ([]byte, error) {
	if scheme == SigEd25519 {
		return signer.Sign(suite.Rand(), payload, crypto.Hash(0))
	}

	h := scheme.Hash()
	digest, err := suite.NewHash(h)
	if err != nil {
		return nil, err
	}
	digest.Write(payload)
	sum := digest.Sum(nil)

	switch scheme {
	case SigRSAPSSRSAeSHA256, SigRSAPSSRSAeSHA384, SigRSAPSSRSAeSHA512:
		return signer.Sign(suite.Rand(), sum, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h})
	default:
		return signer.Sign(suite.Rand(), sum, h)
	}
}
