package kex

import (
	"crypto"
	"errors"

	"github.com/lanikai/tlsengine/internal/packet"
)

// SignatureScheme mirrors RFC 8446 §4.2.3's signature_algorithms
// codepoints (also reused by TLS 1.2 CertificateVerify/ServerKeyExchange
// under RFC 5246 §7.4.1.4.1's older SignatureAndHashAlgorithm framing for
// the codepoints that predate TLS 1.3).
type SignatureScheme uint16

const (
	SigRSAPKCS1SHA1   SignatureScheme = 0x0201
	SigRSAPKCS1SHA256 SignatureScheme = 0x0401
	SigRSAPKCS1SHA384 SignatureScheme = 0x0501
	SigRSAPKCS1SHA512 SignatureScheme = 0x0601
	SigECDSASHA1      SignatureScheme = 0x0203
	SigECDSASecp256r1SHA256 SignatureScheme = 0x0403
	SigECDSASecp384r1SHA384 SignatureScheme = 0x0503
	SigECDSASecp521r1SHA512 SignatureScheme = 0x0603
	SigRSAPSSRSAeSHA256 SignatureScheme = 0x0804
	SigRSAPSSRSAeSHA384 SignatureScheme = 0x0805
	SigRSAPSSRSAeSHA512 SignatureScheme = 0x0806
	SigEd25519          SignatureScheme = 0x0807
	SigEd448            SignatureScheme = 0x0808
)

// Hash returns the hash algorithm a scheme uses, for the TLS 1.2
// ServerKeyExchange signature path (which hashes explicitly before
// signing, unlike RSA-PSS/Ed25519's self-hashing conventions on some
// backends).
func (s SignatureScheme) Hash() crypto.Hash {
	switch s {
	case SigRSAPKCS1SHA1, SigECDSASHA1:
		return crypto.SHA1
	case SigRSAPKCS1SHA256, SigECDSASecp256r1SHA256, SigRSAPSSRSAeSHA256:
		return crypto.SHA256
	case SigRSAPKCS1SHA384, SigECDSASecp384r1SHA384, SigRSAPSSRSAeSHA384:
		return crypto.SHA384
	case SigRSAPKCS1SHA512, SigECDSASecp521r1SHA512, SigRSAPSSRSAeSHA512:
		return crypto.SHA512
	default:
		return crypto.Hash(0)
	}
}

// defaultOffered is this package's preference order for choosing a
// scheme, most-preferred first. internal/state advertises its own list,
// which leaves out the two SHA-1 schemes.
var defaultOffered = []SignatureScheme{
	SigEd25519,
	SigECDSASecp256r1SHA256,
	SigECDSASecp384r1SHA384,
	SigECDSASecp521r1SHA512,
	SigRSAPSSRSAeSHA256,
	SigRSAPSSRSAeSHA384,
	SigRSAPSSRSAeSHA512,
	SigRSAPKCS1SHA256,
	SigRSAPKCS1SHA384,
	SigRSAPKCS1SHA512,
	SigRSAPKCS1SHA1,
	SigECDSASHA1,
}

// SelectSignatureScheme picks the first of this engine's preferred
// schemes that the peer also offered, per §4.8's "filter the server's
// capability list by what the peer offered, falling back to
// SHA-256 defaults if the peer sent no extension at all" rule.
func SelectSignatureScheme(peerOffered []SignatureScheme, keyIsRSA, keyIsECDSA, keyIsEd25519 bool) (SignatureScheme, error) {
	if len(peerOffered) == 0 {
		// A peer that sends no signature_algorithms extension gets the
		// SHA-256 scheme for the certificate's own key type.
		peerOffered = []SignatureScheme{SigRSAPKCS1SHA256, SigECDSASecp256r1SHA256}
	}
	offeredSet := make(map[SignatureScheme]bool, len(peerOffered))
	for _, s := range peerOffered {
		offeredSet[s] = true
	}
	for _, s := range defaultOffered {
		if !offeredSet[s] {
			continue
		}
		if keyTypeMatches(s, keyIsRSA, keyIsECDSA, keyIsEd25519) {
			return s, nil
		}
	}
	return 0, errors.New("kex: no mutually supported signature scheme for this certificate's key type")
}

func keyTypeMatches(s SignatureScheme, rsaKey, ecdsaKey, ed25519Key bool) bool {
	switch s {
	case SigRSAPKCS1SHA1, SigRSAPKCS1SHA256, SigRSAPKCS1SHA384, SigRSAPKCS1SHA512,
		SigRSAPSSRSAeSHA256, SigRSAPSSRSAeSHA384, SigRSAPSSRSAeSHA512:
		return rsaKey
	case SigECDSASHA1, SigECDSASecp256r1SHA256, SigECDSASecp384r1SHA384, SigECDSASecp521r1SHA512:
		return ecdsaKey
	case SigEd25519, SigEd448:
		return ed25519Key
	default:
		return false
	}
}

// certificateVerifyContextClient and ...Server are RFC 8446 §4.4.3's
// fixed context strings distinguishing a client's CertificateVerify from
// a server's, so the same transcript can never be replayed in the other
// role.
const (
	certificateVerifyContextServer = "TLS 1.3, server CertificateVerify"
	certificateVerifyContextClient = "TLS 1.3, client CertificateVerify"
)

// CertificateVerifyPayload13 builds RFC 8446 §4.4.3's signature input:
// 64 spaces, the fixed context string, a zero byte, then the transcript
// hash. isServer selects which context string applies.
func CertificateVerifyPayload13(transcriptHash []byte, isServer bool) []byte {
	w := packet.NewWriter()
	for i := 0; i < 64; i++ {
		w.WriteByte(0x20)
	}
	ctx := certificateVerifyContextClient
	if isServer {
		ctx = certificateVerifyContextServer
	}
	w.WriteString(ctx)
	w.WriteByte(0)
	w.WriteSlice(transcriptHash)
	return w.Bytes()
}
