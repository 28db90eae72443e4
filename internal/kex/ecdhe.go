package kex

import (
	"errors"
	"io"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/packet"
)

// ecNamedCurve is named_curve's value in RFC 4492's curve_type octet; this engine only
// ever emits named_curve (3), but parses the byte to reject the two
// deprecated forms explicitly rather than silently misreading them.
const ecNamedCurve = 3

// ECDHEParams is the ServerKeyExchange body for an (EC)DHE suite using a
// named curve (RFC 4492 §5.4, generalized to X25519/X448 per RFC 8422).
type ECDHEParams struct {
	Group     cryptoprim.NamedGroup
	PublicKey []byte
}

// Marshal encodes the ServerKeyExchange parameters (the
// portion that gets signed, per signaturePayload).
func (p ECDHEParams) Marshal() []byte {
	w := packet.NewWriter()
	w.WriteByte(ecNamedCurve)
	w.WriteUint16(uint16(p.Group))
	w.PutVar(1, p.PublicKey)
	return w.Bytes()
}

// ParseServerECDHParams decodes a ServerKeyExchange body for an
// (EC)DHE suite.
func ParseServerECDHParams(body []byte) (ECDHEParams, []byte, error) {
	r := packet.NewReader(body)
	curveType, err := r.ReadByte()
	if err != nil {
		return ECDHEParams{}, nil, err
	}
	if curveType != ecNamedCurve {
		return ECDHEParams{}, nil, errors.New("kex: only named_curve ECParameters are supported")
	}
	group, err := r.ReadUint16()
	if err != nil {
		return ECDHEParams{}, nil, err
	}
	pub, err := r.GetVar(1)
	if err != nil {
		return ECDHEParams{}, nil, err
	}
	consumed := len(body) - r.Remaining()
	return ECDHEParams{Group: cryptoprim.NamedGroup(group), PublicKey: append([]byte{}, pub...)}, body[:consumed], nil
}

// GenerateServerECDHE picks an ephemeral key pair for the given group and
// returns both the wire params (to embed, signed, in ServerKeyExchange)
// and the opaque private handle to keep until ClientKeyExchange arrives.
func GenerateServerECDHE(suite cryptoprim.Suite, rand io.Reader, group cryptoprim.NamedGroup) (ECDHEParams, interface{}, error) {
	ka, err := suite.KeyAgreementFor(group)
	if err != nil {
		return ECDHEParams{}, nil, err
	}
	pub, priv, err := ka.GenerateKeyPair(rand)
	if err != nil {
		return ECDHEParams{}, nil, err
	}
	return ECDHEParams{Group: group, PublicKey: pub}, priv, nil
}

// ClientECDHEShared completes the client side: generate an ephemeral key
// pair and compute the shared secret against the server's params in one
// step, since the client never needs to retain the private handle.
func ClientECDHEShared(suite cryptoprim.Suite, rand io.Reader, params ECDHEParams) (clientPublic, shared []byte, err error) {
	ka, err := suite.KeyAgreementFor(params.Group)
	if err != nil {
		return nil, nil, err
	}
	pub, priv, err := ka.GenerateKeyPair(rand)
	if err != nil {
		return nil, nil, err
	}
	shared, err = ka.ComputeShared(priv, params.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	if err := rejectDegenerateShared(shared); err != nil {
		return nil, nil, err
	}
	log.Debug("computed ECDHE shared secret for group %v", params.Group)
	return pub, shared, nil
}

// ServerECDHEShared completes the server side once ClientKeyExchange's
// public value has arrived.
func ServerECDHEShared(suite cryptoprim.Suite, group cryptoprim.NamedGroup, serverPrivate interface{}, clientPublic []byte) ([]byte, error) {
	ka, err := suite.KeyAgreementFor(group)
	if err != nil {
		return nil, err
	}
	shared, err := ka.ComputeShared(serverPrivate, clientPublic)
	if err != nil {
		return nil, err
	}
	if err := rejectDegenerateShared(shared); err != nil {
		return nil, err
	}
	log.Debug("computed ECDHE shared secret for group %v", group)
	return shared, nil
}

// rejectDegenerateShared rejects an all-zero shared secret, the small-
// subgroup/identity-point attack outcome for X25519/X448 and the low-order
// point classes on the NIST curves (RFC 7748 §6.1's MUST-reject-zero-output
// rule, generalized to every curve this engine supports).
func rejectDegenerateShared(shared []byte) error {
	allZero := true
	for _, b := range shared {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return errors.New("kex: all-zero (EC)DHE shared secret rejected")
	}
	return nil
}

// MarshalClientECPoint encodes the ClientKeyExchange body for (EC)DHE: just
// the client's public value, length-prefixed (RFC 4492 §5.7).
func MarshalClientECPoint(pub []byte) []byte {
	w := packet.NewWriter()
	w.PutVar(1, pub)
	return w.Bytes()
}

func ParseClientECPoint(body []byte) ([]byte, error) {
	r := packet.NewReader(body)
	pub, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return append([]byte{}, pub...), nil
}
