package kex

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"errors"

	"github.com/lanikai/tlsengine/internal/packet"
)

// MarshalClientRSAPremaster and ParseClientRSAPremaster implement the
// ClientKeyExchange body for plain RSA key exchange: a single
// opaque<0..2^16-1> EncryptedPreMasterSecret (RFC 5246 §7.4.7.1).
func MarshalClientRSAPremaster(encrypted []byte) []byte {
	w := packet.NewWriter()
	w.PutVar(2, encrypted)
	return w.Bytes()
}

func ParseClientRSAPremaster(body []byte) ([]byte, error) {
	r := packet.NewReader(body)
	enc, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return append([]byte{}, enc...), nil
}

// EncryptRSAPremaster encrypts a 48-byte premaster secret under the
// server's RSA public key for ClientKeyExchange, per RFC 5246 §7.4.7.1's
// PKCS#1 v1.5 requirement (RSA key exchange predates OAEP in TLS and
// never adopted it).
func EncryptRSAPremaster(pub *rsa.PublicKey, premaster []byte) ([]byte, error) {
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, pub, premaster)
	if err == nil {
		log.Debug("encrypted RSA premaster secret, %d-bit key", pub.N.BitLen())
	}
	return enc, err
}

// DecryptRSAPremaster implements the Bleichenbacher countermeasure
// (RFC 5246 §7.4.7.1): regardless of whether decryption or validation
// fails, the server must continue the handshake with a freshly-generated
// random premaster secret rather than reporting the error, so a timing
// or error-message oracle never reveals which failure occurred. Callers
// always get a 48-byte premaster secret back and never learn whether it
// is genuine.
// No logging here, even at trace level: whether decryption or version
// validation failed must never be observable, including through a log
// line's timing or presence.
func DecryptRSAPremaster(priv *rsa.PrivateKey, encrypted []byte, clientVersion uint16) ([]byte, error) {
	fallback, err := RandomPremaster(rand.Reader, clientVersion)
	if err != nil {
		return nil, err
	}

	decrypted, decErr := rsa.DecryptPKCS1v15(rand.Reader, priv, encrypted)
	valid := decErr == nil && len(decrypted) == 48

	// subtle.ConstantTimeSelect chooses between the two buffers without a
	// data-dependent branch so the Bleichenbacher oracle can't be probed
	// through timing either.
	out := make([]byte, 48)
	var versionOK int
	if valid {
		versionOK = subtle.ConstantTimeByteEq(decrypted[0], byte(clientVersion>>8)) &
			subtle.ConstantTimeByteEq(decrypted[1], byte(clientVersion))
	}
	useGenuine := subtle.ConstantTimeSelect(boolToInt(valid)&versionOK, 1, 0)
	for i := 0; i < 48; i++ {
		var genuineByte byte
		if valid {
			genuineByte = decrypted[i]
		}
		out[i] = byte(subtle.ConstantTimeSelect(useGenuine, int(genuineByte), int(fallback[i])))
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var errRSANotSupported = errors.New("kex: RSA key exchange requires an RSA server certificate")
