package kex

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/lanikai/tlsengine/internal/packet"
)

// DHParams is the classic (non-FFDHE-named) ServerKeyExchange body for
// plain DHE suites (RFC 5246 §7.4.3): dh_p, dh_g, dh_Ys, all opaque
// <1..2^16-1> vectors of big-endian integers.
type DHParams struct {
	P  *big.Int
	G  *big.Int
	Ys *big.Int
}

func (p DHParams) Marshal() []byte {
	w := packet.NewWriter()
	w.PutVar(2, p.P.Bytes())
	w.PutVar(2, p.G.Bytes())
	w.PutVar(2, p.Ys.Bytes())
	return w.Bytes()
}

func ParseDHParams(body []byte) (DHParams, []byte, error) {
	r := packet.NewReader(body)
	pBytes, err := r.GetVar(2)
	if err != nil {
		return DHParams{}, nil, err
	}
	gBytes, err := r.GetVar(2)
	if err != nil {
		return DHParams{}, nil, err
	}
	ysBytes, err := r.GetVar(2)
	if err != nil {
		return DHParams{}, nil, err
	}
	consumed := len(body) - r.Remaining()
	p := new(big.Int).SetBytes(pBytes)
	if err := checkGroupSize(p); err != nil {
		return DHParams{}, nil, err
	}
	params := DHParams{
		P:  p,
		G:  new(big.Int).SetBytes(gBytes),
		Ys: new(big.Int).SetBytes(ysBytes),
	}
	if err := rejectDegenerateDHPublic(params.Ys, params.P); err != nil {
		return DHParams{}, nil, err
	}
	return params, body[:consumed], nil
}

func checkGroupSize(p *big.Int) error {
	bits := p.BitLen()
	if bits < minDHBits || bits > maxDHBits {
		return rangeError(bits)
	}
	return nil
}

// rejectDegenerateDHPublic rejects the classic invalid-public-value attack
// set {0, 1, p-1}, per §4.8's DHE rejection rules.
func rejectDegenerateDHPublic(y, p *big.Int) error {
	if y.Sign() <= 0 {
		return errors.New("kex: DH public value must be positive")
	}
	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(p, one)
	if y.Cmp(one) == 0 || y.Cmp(pMinus1) == 0 {
		return errors.New("kex: DH public value is a small-subgroup element (0, 1, or p-1)")
	}
	if y.Cmp(p) >= 0 {
		return errors.New("kex: DH public value must be less than p")
	}
	return nil
}

// FFDHEGroup is a finite-field DH group: a name plus the (p, g) pair.
// This engine defines one such group, DefaultDHEGroup; the ffdhe* names
// below have no group constants, and neither RFC 7919's nor RFC 3526's
// group tables are included.
type FFDHEGroup struct {
	Name cryptoprimGroupName
	P    *big.Int
	G    *big.Int
}

type cryptoprimGroupName string

const (
	ffdhe2048Name cryptoprimGroupName = "ffdhe2048"
	ffdhe3072Name cryptoprimGroupName = "ffdhe3072"
	ffdhe4096Name cryptoprimGroupName = "ffdhe4096"
)

// dhPrivate is the server- or client-side ephemeral DH key, kept opaque
// to the handshake state machine between GenerateDHE and the ComputeShared
// step.
type dhPrivate struct {
	x *big.Int
	p *big.Int
}

// GenerateDHE picks a fresh ephemeral exponent for the given group and
// returns both the public value Ys and the opaque private handle.
func GenerateDHE(group FFDHEGroup) (ys *big.Int, private interface{}, err error) {
	x, err := rand.Int(rand.Reader, group.P)
	if err != nil {
		return nil, nil, err
	}
	if x.Sign() == 0 {
		x = big.NewInt(2)
	}
	ys = new(big.Int).Exp(group.G, x, group.P)
	return ys, &dhPrivate{x: x, p: group.P}, nil
}

// ComputeDHEShared derives the premaster secret Z = peerY^x mod p, per
// RFC 5246 §8.1.1. The leading-zero-stripped encoding matches the
// reference implementation's premaster secret convention.
func ComputeDHEShared(private interface{}, peerY *big.Int) ([]byte, error) {
	priv, ok := private.(*dhPrivate)
	if !ok {
		return nil, errors.New("kex: wrong private handle type for DHE")
	}
	if err := rejectDegenerateDHPublic(peerY, priv.p); err != nil {
		return nil, err
	}
	z := new(big.Int).Exp(peerY, priv.x, priv.p)
	log.Debug("computed DHE shared secret, %d-bit group", priv.p.BitLen())
	return z.Bytes(), nil
}

// MarshalClientDHPublic and ParseClientDHPublic implement the
// ClientKeyExchange body for DHE: a single opaque<1..2^16-1> dh_Yc
// (RFC 5246 §7.4.7.1).
func MarshalClientDHPublic(ys *big.Int) []byte {
	w := packet.NewWriter()
	w.PutVar(2, ys.Bytes())
	return w.Bytes()
}

func ParseClientDHPublic(body []byte) (*big.Int, error) {
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
