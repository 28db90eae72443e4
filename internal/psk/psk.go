// Package psk implements TLS 1.3 pre-shared-key binder computation and
// verification (RFC 8446 §4.2.11), and PSK selection against an offered
// identity list. It depends on internal/transcript for the
// truncated-ClientHello hashing and internal/keyschedule for the
// HKDF-Expand-Label cascade that turns a PSK into a binder key.
package psk

import (
	"crypto"
	"crypto/hmac"
	"errors"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/keyschedule"
	"github.com/lanikai/tlsengine/internal/transcript"
)

// Identity is one candidate PSK this engine can offer or look up: either
// a resumption PSK recovered from a NewSessionTicket, or an externally
// provisioned one (out of scope for provisioning, per §1, but the binder
// math is identical either way).
type Identity struct {
	Label      []byte // the on-wire identity bytes
	Secret     []byte // resumption_master_secret or external PSK
	Hash       crypto.Hash
	IsResumption bool
	// AgeAdd is the ticket_age_add this identity's ticket carried, needed
	// to recompute obfuscated_ticket_age.
	AgeAdd uint32
	// ReceivedAt is the Unix-millisecond time this ticket was issued or
	// the external PSK established, for RealAge.
	ReceivedAt int64
}

// RealAge returns the ticket age in milliseconds at the given current
// time, per RFC 8446 §4.2.11.1.
func (id Identity) RealAge(nowUnixMillis int64) uint32 {
	age := nowUnixMillis - id.ReceivedAt
	if age < 0 {
		age = 0
	}
	return uint32(age)
}

// ObfuscatedAge computes obfuscated_ticket_age = (age + ticket_age_add) mod 2^32.
func (id Identity) ObfuscatedAge(nowUnixMillis int64) uint32 {
	return id.RealAge(nowUnixMillis) + id.AgeAdd
}

// binderKey selects the external or resumption binder key label
// depending on the identity's origin (RFC 8446 §4.2.11.2).
func binderKey(suite cryptoprim.Suite, id Identity) ([]byte, error) {
	sched := keyschedule.NewSchedule13(suite, id.Hash)
	emptyHash, err := emptyTranscriptHash(suite, id.Hash)
	if err != nil {
		return nil, err
	}
	if err := sched.DeriveEarlySecret(id.Secret, emptyHash); err != nil {
		return nil, err
	}
	if id.IsResumption {
		return sched.BinderKeyRes, nil
	}
	return sched.BinderKeyExt, nil
}

func emptyTranscriptHash(suite cryptoprim.Suite, h crypto.Hash) ([]byte, error) {
	digest, err := suite.NewHash(h)
	if err != nil {
		return nil, err
	}
	return digest.Sum(nil), nil
}

// ComputeBinder computes PskBinderEntry = HMAC(binder_key, Transcript-Hash(
// Truncate(ClientHello1))), per RFC 8446 §4.2.11.2. truncatedClientHello is
// the ClientHello message bytes up to (but not including) the binders
// list, as located by extension.PreSharedKey.BindersOffset plus the
// 4-byte handshake header.
func ComputeBinder(suite cryptoprim.Suite, id Identity, truncatedClientHello []byte) ([]byte, error) {
	key, err := binderKey(suite, id)
	if err != nil {
		return nil, err
	}
	tr := transcript.New(suite)
	if err := tr.Register(id.Hash); err != nil {
		return nil, err
	}
	tr.Add(truncatedClientHello)
	digest, err := tr.Sum(id.Hash)
	if err != nil {
		return nil, err
	}
	return keyschedule.FinishedVerifyData13(suite, id.Hash, key, digest)
}

// VerifyBinder recomputes the expected binder and compares it against
// the one the peer sent, in constant time.
func VerifyBinder(suite cryptoprim.Suite, id Identity, truncatedClientHello, receivedBinder []byte) error {
	expected, err := ComputeBinder(suite, id, truncatedClientHello)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, receivedBinder) {
		return errors.New("psk: binder verification failed")
	}
	return nil
}

// TruncatedClientHello recomputes the truncation boundary from the
// pre_shared_key extension's own on-wire layout rather than assuming a
// fixed size, per §4.9.
func TruncatedClientHello(fullClientHelloMessage []byte, psk extension.PreSharedKey) ([]byte, error) {
	offsetWithinExtension, err := psk.BindersOffset()
	if err != nil {
		return nil, err
	}
	extBytes, err := psk.Marshal()
	if err != nil {
		return nil, err
	}
	// The extension's own bytes must be a suffix of the full message, so
	// the truncation boundary is simply the full message's length minus
	// however many trailing extension bytes lie at-or-after the binders
	// field.
	trailingAfterOffset := len(extBytes) - offsetWithinExtension
	cut := len(fullClientHelloMessage) - trailingAfterOffset
	if cut < 0 || cut > len(fullClientHelloMessage) {
		return nil, errors.New("psk: pre_shared_key extension not found at expected position")
	}
	return fullClientHelloMessage[:cut], nil
}

// SelectIdentity finds the first offered identity (in client preference
// order) this engine recognizes, returning its index for
// NewServerPreSharedKey and the matched Identity for key-schedule use.
func SelectIdentity(offered []extension.PSKIdentity, known func(label []byte) (Identity, bool)) (int, Identity, bool) {
	for i, cand := range offered {
		if id, ok := known(cand.Identity); ok {
			return i, id, true
		}
	}
	return -1, Identity{}, false
}
