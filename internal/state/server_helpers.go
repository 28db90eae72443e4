package state

import (
	"crypto/x509"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/packet"
)

// preferredECDHEGroup picks the named group this server generates its
// ephemeral ECDHE share in: the first of c.ECCCurves, or X25519 when
// ECCCurves is empty. The client's supported_groups extension is not
// consulted.
func preferredECDHEGroup(c *Conn) cryptoprim.NamedGroup {
	candidates := c.ECCCurves
	if len(candidates) == 0 {
		candidates = []cryptoprim.NamedGroup{cryptoprim.GroupX25519, cryptoprim.GroupSECP256R1, cryptoprim.GroupSECP384R1}
	}
	return candidates[0]
}

// offeredSchemes reads the client's signature_algorithms extension,
// falling back to this server's own default preference list if the
// client didn't send one (legal pre-TLS 1.2 behavior RFC 5246 §7.4.1.4.1
// otherwise resolves to a fixed SHA-1 default this engine doesn't
// implement; every peer this engine targets sends the extension).
func offeredSchemes(exts *extension.Collection) []kex.SignatureScheme {
	sa, ok := extension.First[extension.SignatureAlgorithms](exts)
	if !ok {
		return defaultSignatureSchemes
	}
	out := make([]kex.SignatureScheme, len(sa.Schemes))
	for i, s := range sa.Schemes {
		out[i] = kex.SignatureScheme(s)
	}
	return out
}

// keyInfoFromChain parses the leaf (first) certificate of chain and
// reports its key type, for internal/kex.SelectSignatureScheme.
func keyInfoFromChain(chain [][]byte) (isRSA, isECDSA, isEd25519 bool, err error) {
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return false, false, false, err
	}
	isRSA, isECDSA, isEd25519, _ = certificateKeyInfo(leaf.PublicKey)
	return isRSA, isECDSA, isEd25519, nil
}

// marshalSignedServerKeyExchange appends a SignatureAndHashAlgorithm and
// length-prefixed signature to already-marshaled ServerKeyExchange
// params, the inverse of client12.go's readSignedServerKeyExchange.
func marshalSignedServerKeyExchange(params []byte, scheme kex.SignatureScheme, sig []byte) []byte {
	w := packet.NewWriter()
	w.WriteSlice(params)
	w.WriteByte(byte(scheme >> 8))
	w.WriteByte(byte(scheme))
	w.PutVar(2, sig)
	return w.Bytes()
}
