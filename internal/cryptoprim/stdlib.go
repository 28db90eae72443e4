package cryptoprim

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rc4"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/lanikai/tlsengine/internal/cryptoprim/kem"
)

// stdlibSuite is the default Suite, built entirely on crypto/* and the two
// golang.org/x/crypto packages this module still needs (HKDF and
// ChaCha20-Poly1305 have no stdlib equivalent). It is deliberately the
// only file in this package that imports an actual cipher implementation;
// everything else in the module goes through the Suite interface.
type stdlibSuite struct {
	rand io.Reader
}

// NewDefaultSuite returns the Suite used when a Config doesn't override
// one. Tests that need deterministic randomness construct their own
// stdlibSuite-shaped fake instead of calling this.
func NewDefaultSuite() Suite {
	return &stdlibSuite{rand: rand.Reader}
}

func (s *stdlibSuite) Rand() io.Reader { return s.rand }

func (s *stdlibSuite) NewHash(h crypto.Hash) (Hash, error) {
	switch h {
	case crypto.SHA1:
		return sha1.New(), nil
	case crypto.SHA256:
		return sha256.New(), nil
	case crypto.SHA384:
		return sha512.New384(), nil
	case crypto.SHA512:
		return sha512.New(), nil
	case crypto.MD5:
		return nil, fmt.Errorf("cryptoprim: MD5 transcript digest requires crypto/md5 to be imported explicitly by a legacy-signature caller")
	default:
		return nil, fmt.Errorf("cryptoprim: unsupported hash %v", h)
	}
}

func (s *stdlibSuite) HMAC(h crypto.Hash, key []byte) (Hash, error) {
	ctor, err := hashCtor(h)
	if err != nil {
		return nil, err
	}
	return hmac.New(ctor, key), nil
}

func hashCtor(h crypto.Hash) (func() hash, error) {
	switch h {
	case crypto.SHA1:
		return func() hash { return sha1.New() }, nil
	case crypto.SHA256:
		return func() hash { return sha256.New() }, nil
	case crypto.SHA384:
		return func() hash { return sha512.New384() }, nil
	case crypto.SHA512:
		return func() hash { return sha512.New() }, nil
	default:
		return nil, fmt.Errorf("cryptoprim: unsupported HMAC hash %v", h)
	}
}

// hash is a tiny local alias so hashCtor doesn't have to import hash.Hash
// under a name that collides with the crypto/hmac parameter name.
type hash = Hash

func (s *stdlibSuite) HKDFExtract(h crypto.Hash, salt, ikm []byte) []byte {
	ctor, _ := hashCtor(h)
	return hkdf.Extract(ctor, ikm, salt)
}

func (s *stdlibSuite) HKDFExpand(h crypto.Hash, prk, info []byte, length int) ([]byte, error) {
	ctor, err := hashCtor(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(ctor, prk, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *stdlibSuite) NewAESCBC(key []byte) (BlockCipher, error) {
	return aes.NewCipher(key)
}

func (s *stdlibSuite) NewTripleDESCBC(key []byte) (BlockCipher, error) {
	return des.NewTripleDESCipher(key)
}

func (s *stdlibSuite) NewAESGCM(key []byte) (AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *stdlibSuite) NewChaCha20Poly1305(key []byte) (AEAD, error) {
	return chacha20poly1305.New(key)
}

func (s *stdlibSuite) NewRC4(key []byte) (StreamCipher, error) {
	return rc4.NewCipher(key)
}

func (s *stdlibSuite) Verify(pub interface{}, digest []byte, hashID crypto.Hash, sig []byte) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPSS(k, hashID, digest, sig, nil); err == nil {
			return nil
		}
		return rsa.VerifyPKCS1v15(k, hashID, digest, sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(k, digest, sig) {
			return fmt.Errorf("cryptoprim: ECDSA signature verification failed")
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(k, digest, sig) {
			return fmt.Errorf("cryptoprim: Ed25519 signature verification failed")
		}
		return nil
	default:
		return fmt.Errorf("cryptoprim: unsupported public key type %T", pub)
	}
}

// ecdhKeyAgreement wraps crypto/ecdh, which (as of Go 1.20) natively
// supports both the NIST curves and X25519 behind one Curve interface —
// exactly the "raw scalar-mult output" shape the key-exchange dispatcher
// needs for x25519/x448 groups too, except X448 has no crypto/ecdh curve
// and is consequently left unregistered (see DESIGN.md).
type ecdhKeyAgreement struct {
	curve ecdh.Curve
}

func (k *ecdhKeyAgreement) GenerateKeyPair(rand io.Reader) ([]byte, interface{}, error) {
	priv, err := k.curve.GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	return priv.PublicKey().Bytes(), priv, nil
}

func (k *ecdhKeyAgreement) ComputeShared(private interface{}, peerPublic []byte) ([]byte, error) {
	priv, ok := private.(*ecdh.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cryptoprim: mismatched private key handle %T", private)
	}
	pub, err := k.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: invalid peer public value: %w", err)
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, err
	}
	allZero := true
	for _, b := range shared {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, fmt.Errorf("cryptoprim: all-zero shared secret rejected")
	}
	return shared, nil
}

func (s *stdlibSuite) KeyAgreementFor(group NamedGroup) (KeyAgreement, error) {
	switch group {
	case GroupSECP256R1:
		return &ecdhKeyAgreement{curve: ecdh.P256()}, nil
	case GroupSECP384R1:
		return &ecdhKeyAgreement{curve: ecdh.P384()}, nil
	case GroupSECP521R1:
		return &ecdhKeyAgreement{curve: ecdh.P521()}, nil
	case GroupX25519:
		return &ecdhKeyAgreement{curve: ecdh.X25519()}, nil
	default:
		return nil, fmt.Errorf("cryptoprim: unsupported key-agreement group %d", group)
	}
}

func (s *stdlibSuite) KEMFor(group NamedGroup) (KEM, error) {
	switch group {
	case GroupX25519MLKEM768:
		return kem.NewX25519MLKEM768(), nil
	default:
		return nil, fmt.Errorf("cryptoprim: unsupported KEM group %d", group)
	}
}
