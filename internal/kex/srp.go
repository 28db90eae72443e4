package kex

import (
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"math/big"

	"github.com/lanikai/tlsengine/internal/packet"
)

// SRPVerifier is what a verifier database (out of scope per SPEC_FULL.md
// §1; supplied by the embedder) looks up by username: the SRP-6a
// password verifier v, the group's N and g, and the per-user salt.
type SRPVerifier struct {
	N    *big.Int
	G    *big.Int
	Salt []byte
	V    *big.Int
}

// VerifierStore is implemented by the embedding application; this engine
// never stores credentials itself.
type VerifierStore interface {
	Lookup(username string) (SRPVerifier, error)
}

// SRPServerParams is the ServerKeyExchange body for TLS-SRP
// (RFC 5054 §2.3.1): srp_N, srp_g, srp_s, srp_B.
type SRPServerParams struct {
	N, G *big.Int
	Salt []byte
	B    *big.Int
}

func (p SRPServerParams) Marshal() []byte {
	w := packet.NewWriter()
	w.PutVar(2, p.N.Bytes())
	w.PutVar(2, p.G.Bytes())
	w.PutVar(1, p.Salt)
	w.PutVar(2, p.B.Bytes())
	return w.Bytes()
}

func ParseSRPServerParams(body []byte) (SRPServerParams, []byte, error) {
	r := packet.NewReader(body)
	nBytes, err := r.GetVar(2)
	if err != nil {
		return SRPServerParams{}, nil, err
	}
	gBytes, err := r.GetVar(2)
	if err != nil {
		return SRPServerParams{}, nil, err
	}
	salt, err := r.GetVar(1)
	if err != nil {
		return SRPServerParams{}, nil, err
	}
	bBytes, err := r.GetVar(2)
	if err != nil {
		return SRPServerParams{}, nil, err
	}
	consumed := len(body) - r.Remaining()
	n := new(big.Int).SetBytes(nBytes)
	if err := checkGroupSize(n); err != nil {
		return SRPServerParams{}, nil, err
	}
	params := SRPServerParams{
		N:    n,
		G:    new(big.Int).SetBytes(gBytes),
		Salt: append([]byte{}, salt...),
		B:    new(big.Int).SetBytes(bBytes),
	}
	if params.B.Sign() == 0 || new(big.Int).Mod(params.B, params.N).Sign() == 0 {
		return SRPServerParams{}, nil, errors.New("kex: SRP B must not be 0 mod N")
	}
	return params, body[:consumed], nil
}

// srpMultiplierK is RFC 5054's fixed k = SHA1(N || PAD(g)) computation.
func srpMultiplierK(n, g *big.Int) *big.Int {
	pad := make([]byte, len(n.Bytes()))
	gBytes := g.Bytes()
	copy(pad[len(pad)-len(gBytes):], gBytes)
	h := sha1.New()
	h.Write(n.Bytes())
	h.Write(pad)
	return new(big.Int).SetBytes(h.Sum(nil))
}

// GenerateServerSRP computes B = k*v + g^b mod N for a fresh server
// private exponent b, per RFC 5054 §2.2.
func GenerateServerSRP(v SRPVerifier) (b *big.Int, B *big.Int, err error) {
	b, err = rand.Int(rand.Reader, v.N)
	if err != nil {
		return nil, nil, err
	}
	k := srpMultiplierK(v.N, v.G)
	gb := new(big.Int).Exp(v.G, b, v.N)
	kv := new(big.Int).Mul(k, v.V)
	B = new(big.Int).Mod(new(big.Int).Add(kv, gb), v.N)
	return b, B, nil
}

// srpU computes u = SHA1(PAD(A) || PAD(B)), the scrambling parameter.
func srpU(n, a, b *big.Int) *big.Int {
	width := len(n.Bytes())
	pad := func(x *big.Int) []byte {
		xb := x.Bytes()
		out := make([]byte, width)
		copy(out[width-len(xb):], xb)
		return out
	}
	h := sha1.New()
	h.Write(pad(a))
	h.Write(pad(b))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// ServerSRPShared completes the server side once the client's A has
// arrived: S = (A * v^u)^b mod N, premaster secret = S (RFC 5054 §2.2).
func ServerSRPShared(v SRPVerifier, b, clientA *big.Int) ([]byte, error) {
	if clientA.Sign() == 0 || new(big.Int).Mod(clientA, v.N).Sign() == 0 {
		return nil, errors.New("kex: SRP A must not be 0 mod N")
	}
	u := srpU(v.N, clientA, mustRecomputeB(v, b))
	vu := new(big.Int).Exp(v.V, u, v.N)
	base := new(big.Int).Mod(new(big.Int).Mul(clientA, vu), v.N)
	s := new(big.Int).Exp(base, b, v.N)
	log.Debug("computed server-side SRP shared secret")
	return s.Bytes(), nil
}

func mustRecomputeB(v SRPVerifier, b *big.Int) *big.Int {
	k := srpMultiplierK(v.N, v.G)
	gb := new(big.Int).Exp(v.G, b, v.N)
	kv := new(big.Int).Mul(k, v.V)
	return new(big.Int).Mod(new(big.Int).Add(kv, gb), v.N)
}

// ClientSRPShared computes the client side given credentials, per
// RFC 5054 §2.3: x = SHA1(salt || SHA1(username || ":" || password)),
// S = (B - k*g^x)^(a + u*x) mod N.
func ClientSRPShared(params SRPServerParams, username, password string, a, clientA *big.Int) ([]byte, error) {
	if params.B.Sign() == 0 {
		return nil, errors.New("kex: SRP B must not be zero")
	}
	inner := sha1.Sum([]byte(username + ":" + password))
	xh := sha1.New()
	xh.Write(params.Salt)
	xh.Write(inner[:])
	x := new(big.Int).SetBytes(xh.Sum(nil))

	k := srpMultiplierK(params.N, params.G)
	u := srpU(params.N, clientA, params.B)

	gx := new(big.Int).Exp(params.G, x, params.N)
	kgx := new(big.Int).Mod(new(big.Int).Mul(k, gx), params.N)
	base := new(big.Int).Mod(new(big.Int).Sub(params.B, kgx), params.N)
	exp := new(big.Int).Add(a, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(base, exp, params.N)
	log.Debug("computed client-side SRP shared secret")
	return s.Bytes(), nil
}

// MarshalClientSRPPublic and ParseClientSRPPublic implement the
// ClientKeyExchange body for TLS-SRP: opaque<1..2^16-1> srp_A.
func MarshalClientSRPPublic(a *big.Int) []byte {
	w := packet.NewWriter()
	w.PutVar(2, a.Bytes())
	return w.Bytes()
}

func ParseClientSRPPublic(body []byte) (*big.Int, error) {
	r := packet.NewReader(body)
	b, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
