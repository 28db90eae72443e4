package extension

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/packet"
)

// KeyShareEntry is one (group, key_exchange) pair.
type KeyShareEntry struct {
	Group       uint16
	KeyExchange []byte
}

// KeyShare carries either a client's list of offered shares, a server's
// single selected share, or a HelloRetryRequest's single requested group
// (KeyExchange empty in that last case) — the three wire shapes are
// distinguished by context, same as SupportedVersions.
type KeyShare struct {
	ClientShares  []KeyShareEntry // ClientHello
	ServerShare   KeyShareEntry   // ServerHello
	RetryGroup    uint16          // HelloRetryRequest
	isRetry       bool
}

func decodeKeyShare(body []byte) (Extension, error) {
	// A 2-byte body can only be HelloRetryRequest's bare NamedGroup.
	if len(body) == 2 {
		r := packet.NewReader(body)
		g, _ := r.ReadUint16()
		return KeyShare{RetryGroup: g, isRetry: true}, nil
	}

	r := packet.NewReader(body)
	// Try the ClientHello form: a length-prefixed vector of entries.
	// ServerHello's single entry has no such outer vector, so if the
	// declared vector length doesn't consume the whole body we assume
	// it's actually the single-entry ServerHello form instead.
	if r.Remaining() >= 2 {
		save := *r
		if list, err := r.GetVar(2); err == nil && r.Remaining() == 0 {
			lr := packet.NewReader(list)
			var entries []KeyShareEntry
			for lr.Remaining() > 0 {
				e, err := decodeKeyShareEntry(lr)
				if err != nil {
					return nil, err
				}
				entries = append(entries, e)
			}
			return KeyShare{ClientShares: entries}, nil
		}
		*r = save
	}

	entry, err := decodeKeyShareEntry(r)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return KeyShare{ServerShare: entry}, nil
}

func decodeKeyShareEntry(r *packet.Reader) (KeyShareEntry, error) {
	group, err := r.ReadUint16()
	if err != nil {
		return KeyShareEntry{}, err
	}
	ke, err := r.GetVar(2)
	if err != nil {
		return KeyShareEntry{}, err
	}
	return KeyShareEntry{Group: group, KeyExchange: append([]byte(nil), ke...)}, nil
}

func (e KeyShare) Type() Type { return TypeKeyShare }
func (e KeyShare) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello || ctx == ContextHelloRetryRequest
}
func (e KeyShare) Marshal() ([]byte, error) {
	return marshalTLV(TypeKeyShare, func(w *packet.Writer) {
		switch {
		case e.isRetry:
			w.WriteUint16(e.RetryGroup)
		case e.ClientShares != nil:
			mark := w.BeginVector(2)
			for _, entry := range e.ClientShares {
				w.WriteUint16(entry.Group)
				w.PutVar(2, entry.KeyExchange)
			}
			w.EndVector(mark, 2)
		default:
			w.WriteUint16(e.ServerShare.Group)
			w.PutVar(2, e.ServerShare.KeyExchange)
		}
	}), nil
}

// NewRetryKeyShare builds the HelloRetryRequest form naming the group the
// server wants the client to retry with.
func NewRetryKeyShare(group uint16) KeyShare {
	return KeyShare{RetryGroup: group, isRetry: true}
}

// PSKIdentity is one offered pre_shared_key identity with its obfuscated
// ticket age.
type PSKIdentity struct {
	Identity            []byte
	ObfuscatedTicketAge uint32
}

// PreSharedKey carries either the client's offered identities+binders, or
// the server's selected index — distinguished by which field is set.
// Per §4.3, this must be the last extension in a ClientHello; ParseAll
// enforces that ordering rule, not this type.
type PreSharedKey struct {
	Identities   []PSKIdentity // ClientHello
	Binders      [][]byte      // ClientHello, parallel to Identities
	SelectedIdx  uint16
	isServerForm bool
}

func decodePreSharedKey(body []byte) (Extension, error) {
	if len(body) == 2 {
		r := packet.NewReader(body)
		idx, _ := r.ReadUint16()
		return PreSharedKey{SelectedIdx: idx, isServerForm: true}, nil
	}

	r := packet.NewReader(body)
	idList, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	idReader := packet.NewReader(idList)
	var identities []PSKIdentity
	for idReader.Remaining() > 0 {
		id, err := idReader.GetVar(2)
		if err != nil {
			return nil, err
		}
		age, err := idReader.ReadUint32()
		if err != nil {
			return nil, err
		}
		identities = append(identities, PSKIdentity{Identity: append([]byte(nil), id...), ObfuscatedTicketAge: age})
	}

	binderList, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	binderReader := packet.NewReader(binderList)
	var binders [][]byte
	for binderReader.Remaining() > 0 {
		b, err := binderReader.GetVar(1)
		if err != nil {
			return nil, err
		}
		binders = append(binders, append([]byte(nil), b...))
	}

	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	if len(identities) != len(binders) {
		return nil, fmt.Errorf("pre_shared_key: %d identities but %d binders", len(identities), len(binders))
	}
	return PreSharedKey{Identities: identities, Binders: binders}, nil
}

func (e PreSharedKey) Type() Type { return TypePreSharedKey }
func (e PreSharedKey) AllowedIn(ctx Context) bool {
	return ctx == ContextClientHello || ctx == ContextServerHello
}
func (e PreSharedKey) Marshal() ([]byte, error) {
	return marshalTLV(TypePreSharedKey, func(w *packet.Writer) {
		if e.isServerForm {
			w.WriteUint16(e.SelectedIdx)
			return
		}
		idMark := w.BeginVector(2)
		for _, id := range e.Identities {
			w.PutVar(2, id.Identity)
			w.WriteUint32(id.ObfuscatedTicketAge)
		}
		w.EndVector(idMark, 2)

		binderMark := w.BeginVector(2)
		for _, b := range e.Binders {
			w.PutVar(1, b)
		}
		w.EndVector(binderMark, 2)
	}), nil
}

// BindersOffset returns the byte offset, within this extension's own
// Marshal output, at which the binders-list length prefix begins. The
// PSK binder transcript (§4.9) is computed over the ClientHello truncated
// to end just before this point, so internal/psk needs to recompute it
// from the actual on-wire layout rather than assuming a fixed size.
func (e PreSharedKey) BindersOffset() (int, error) {
	if e.isServerForm {
		return 0, fmt.Errorf("pre_shared_key: server form has no binders list")
	}
	raw, err := e.Marshal()
	if err != nil {
		return 0, err
	}
	// raw = type(2) || length(2) || idListLen(2) || idList(idListLen) || ...
	idListLen := int(raw[4])<<8 | int(raw[5])
	return 4 + 2 + idListLen, nil
}

// NewServerPreSharedKey builds the server's selected-index form.
func NewServerPreSharedKey(idx uint16) PreSharedKey {
	return PreSharedKey{SelectedIdx: idx, isServerForm: true}
}
