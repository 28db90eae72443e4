// Package ticket implements the resumable-session blob this engine
// stitches into NewSessionTicket's opaque ticket field: an AEAD-sealed,
// self-describing encoding of everything a later handshake needs to
// resume without looking anything up server-side (RFC 5077/RFC 8446
// §4.6.1's "stateless ticket" convention). A Keyring supplies the
// sealing key and rotates it; internal/state calls Seal when issuing a
// ticket and Open when a client presents one.
package ticket

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/packet"
)

// Flags bits set inside a sealed ticket's plaintext.
const (
	FlagExtendedMasterSecret uint8 = 1 << 0
	FlagClientAuthenticated  uint8 = 1 << 1
	FlagIsTLS13              uint8 = 1 << 2
)

// Session is the resumable state a sealed ticket carries. For a TLS 1.2
// ticket, Secret is the master_secret; for TLS 1.3, Secret is the
// resumption PSK derived from resumption_master_secret plus the ticket
// nonce (RFC 8446 §4.6.1).
type Session struct {
	CipherSuite    uint16
	Secret         []byte
	SessionID      []byte // 1.2 only, informational
	Flags          uint8
	NegotiatedALPN string
	CreatedAt      int64 // Unix milliseconds
}

func (s Session) is13() bool { return s.Flags&FlagIsTLS13 != 0 }

// encode serializes a Session to the plaintext that gets AEAD-sealed:
// cipher_suite(2) || flags(1) || secret<1..255> || sessionID<0..255> ||
// alpn<0..255> || createdAt(8).
func (s Session) encode() []byte {
	w := packet.NewWriter()
	w.WriteUint16(s.CipherSuite)
	w.WriteByte(s.Flags)
	w.PutVar(1, s.Secret)
	w.PutVar(1, s.SessionID)
	w.PutVar(1, []byte(s.NegotiatedALPN))
	w.WriteUint64(uint64(s.CreatedAt))
	return w.Bytes()
}

func decodeSession(raw []byte) (Session, error) {
	r := packet.NewReader(raw)
	suite, err := r.ReadUint16()
	if err != nil {
		return Session{}, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return Session{}, err
	}
	secret, err := r.GetVar(1)
	if err != nil {
		return Session{}, err
	}
	sessionID, err := r.GetVar(1)
	if err != nil {
		return Session{}, err
	}
	alpn, err := r.GetVar(1)
	if err != nil {
		return Session{}, err
	}
	createdAt, err := r.ReadUint64()
	if err != nil {
		return Session{}, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return Session{}, err
	}
	return Session{
		CipherSuite:    suite,
		Secret:         append([]byte(nil), secret...),
		SessionID:      append([]byte(nil), sessionID...),
		Flags:          flags,
		NegotiatedALPN: string(alpn),
		CreatedAt:      int64(createdAt),
	}, nil
}

// keyEpoch is one generation of the ticket-sealing key.
type keyEpoch struct {
	id  uint32
	key []byte // 32 bytes, AES-256-GCM
}

// Keyring seals and opens ticket blobs, holding up to two key epochs at
// once so tickets issued under the previous key remain acceptable for one
// rotation period (§4.11/A7's key-rotation policy: rotate every interval,
// retain the prior key for exactly one more interval, then discard it —
// resolved as an Open Question in DESIGN.md).
type Keyring struct {
	suite cryptoprim.Suite

	mu      sync.Mutex
	current keyEpoch
	prior   *keyEpoch
	nextID  uint32
}

// NewKeyring creates a keyring with one freshly-generated epoch.
func NewKeyring(suite cryptoprim.Suite) (*Keyring, error) {
	kr := &Keyring{suite: suite}
	if err := kr.rotateLocked(); err != nil {
		return nil, err
	}
	return kr, nil
}

func (kr *Keyring) rotateLocked() error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	if kr.current.key != nil {
		prior := kr.current
		kr.prior = &prior
	}
	kr.current = keyEpoch{id: kr.nextID, key: key}
	kr.nextID++
	return nil
}

// Rotate generates a new sealing key, retiring the current one to
// "prior" status. Nothing in this module calls it on a timer; keys
// rotate only when a caller invokes it.
func (kr *Keyring) Rotate() error {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	return kr.rotateLocked()
}

// Seal encodes and encrypts a Session into an opaque ticket blob:
// epoch_id(4) || nonce(12) || AEAD-sealed(session).
func (kr *Keyring) Seal(s Session) ([]byte, error) {
	kr.mu.Lock()
	epoch := kr.current
	kr.mu.Unlock()

	aead, err := kr.suite.NewAESGCM(epoch.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	plaintext := s.encode()
	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 4+len(nonce)+len(sealed))
	binary.BigEndian.PutUint32(out[:4], epoch.id)
	copy(out[4:4+len(nonce)], nonce)
	copy(out[4+len(nonce):], sealed)
	return out, nil
}

// Open decrypts a ticket blob previously produced by Seal, with the key
// of the epoch the blob names (current or prior). Each failure — short
// blob, unknown epoch, AEAD authentication failure, malformed plaintext
// — returns its own error text; no ticket age or expiry is checked here.
func (kr *Keyring) Open(blob []byte) (Session, error) {
	if len(blob) < 4 {
		return Session{}, errors.New("ticket: blob too short")
	}
	epochID := binary.BigEndian.Uint32(blob[:4])
	rest := blob[4:]

	kr.mu.Lock()
	var key []byte
	switch {
	case epochID == kr.current.id:
		key = kr.current.key
	case kr.prior != nil && epochID == kr.prior.id:
		key = kr.prior.key
	}
	kr.mu.Unlock()
	if key == nil {
		return Session{}, errors.New("ticket: unknown key epoch")
	}

	aead, err := kr.suite.NewAESGCM(key)
	if err != nil {
		return Session{}, err
	}
	nonceLen := aead.NonceSize()
	if len(rest) < nonceLen {
		return Session{}, errors.New("ticket: blob too short for nonce")
	}
	nonce, ciphertext := rest[:nonceLen], rest[nonceLen:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Session{}, errors.New("ticket: authentication failed")
	}
	return decodeSession(plaintext)
}

// NowUnixMillis is the wall clock in Unix milliseconds that internal/state
// stamps on tickets and passes to internal/psk's ObfuscatedAge; it reads
// time.Now() on every call.
func NowUnixMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
