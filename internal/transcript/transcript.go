// Package transcript maintains the running handshake-message digest used
// by Finished, CertificateVerify, and the TLS 1.3 key schedule. Every
// handshake message the state machine sends or receives is fed through
// Add in wire order; Sum and Clone read out snapshots without disturbing
// the live digest.
package transcript

import (
	"crypto"
	"encoding"
	"fmt"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

// Transcript accumulates one digest per algorithm a ClientHello's
// signature_algorithms (or the negotiated 1.2 PRF hash) might require.
// Until the ServerHello fixes the suite, one digest runs for each PRF
// hash among the offered suites; after that, exactly the negotiated
// suite's hash is needed. Callers register whichever set applies before the first
// Add.
type Transcript struct {
	suite  cryptoprim.Suite
	hashes map[crypto.Hash]cryptoprim.Hash
}

// New returns an empty Transcript with no digests registered yet.
func New(suite cryptoprim.Suite) *Transcript {
	return &Transcript{suite: suite, hashes: make(map[crypto.Hash]cryptoprim.Hash)}
}

// Register starts tracking the digest for h if it isn't already. Calling
// Register after Add has been called previously only makes sense before
// any handshake bytes have been written to this Transcript.
func (t *Transcript) Register(h crypto.Hash) error {
	if _, ok := t.hashes[h]; ok {
		return nil
	}
	digest, err := t.suite.NewHash(h)
	if err != nil {
		return fmt.Errorf("transcript: register %v: %w", h, err)
	}
	t.hashes[h] = digest
	return nil
}

// Add feeds raw, already-serialized handshake message bytes (the
// HandshakeHeader included) into every registered digest.
func (t *Transcript) Add(raw []byte) {
	for _, h := range t.hashes {
		// hash.Hash.Write never returns an error.
		h.Write(raw)
	}
}

// Sum returns the current digest for h without resetting it. hash.Hash.Sum
// is specified not to mutate the running digest, so this can be called
// repeatedly as more handshake bytes are added — CertificateVerify reads
// the transcript-so-far, and Finished reads it again one message later.
// Returns an error if h was never registered.
func (t *Transcript) Sum(h crypto.Hash) ([]byte, error) {
	digest, ok := t.hashes[h]
	if !ok {
		return nil, fmt.Errorf("transcript: %v was never registered", h)
	}
	return digest.Sum(nil), nil
}

// DropUnused discards every registered digest except keep. Called once
// the negotiated PRF hash (1.2) or cipher suite hash (1.3) is known, so
// the abandoned algorithm's state isn't carried for the rest of the
// handshake.
func (t *Transcript) DropUnused(keep crypto.Hash) {
	for h := range t.hashes {
		if h != keep {
			delete(t.hashes, h)
		}
	}
}

// Clone returns an independent copy of t whose digests can be fed more
// bytes (or summed) without affecting t, e.g. to hash a prefix such as
// a PSK binder transcript (the ClientHello up to, not including, the
// binders list) while t goes on to include the complete message.
// internal/psk does not use it; its binder transcript comes from New.
//
// Every stdlib hash.Hash this engine registers (sha1, sha256, sha512,
// sha512/384) implements encoding.BinaryMarshaler/BinaryUnmarshaler, which
// is what makes forking mid-stream digest state possible at all.
func (t *Transcript) Clone() (*Transcript, error) {
	clone := New(t.suite)
	for h, digest := range t.hashes {
		marshaler, ok := digest.(encoding.BinaryMarshaler)
		if !ok {
			return nil, fmt.Errorf("transcript: %T does not support state cloning", digest)
		}
		state, err := marshaler.MarshalBinary()
		if err != nil {
			return nil, err
		}

		fresh, err := t.suite.NewHash(h)
		if err != nil {
			return nil, err
		}
		unmarshaler, ok := fresh.(encoding.BinaryUnmarshaler)
		if !ok {
			return nil, fmt.Errorf("transcript: %T does not support state cloning", fresh)
		}
		if err := unmarshaler.UnmarshalBinary(state); err != nil {
			return nil, err
		}
		clone.hashes[h] = fresh
	}
	return clone, nil
}
