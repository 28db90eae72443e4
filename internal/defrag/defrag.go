// Package defrag reassembles decrypted record-layer plaintexts into
// complete logical units per content type, and hands them back out in the
// priority order the handshake driver loop expects. One Reassembler
// drives one connection synchronously: this engine processes exactly
// one connection per goroutine (see internal/state), so there is no
// background read loop or cross-goroutine handoff to arbitrate here.
package defrag

import (
	"fmt"

	"github.com/lanikai/tlsengine/internal/packet"
)

// ContentType mirrors the TLS record-layer ContentType registry.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
	ContentTypeHeartbeat        ContentType = 24
)

func (ct ContentType) String() string {
	switch ct {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	case ContentTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("content_type(%d)", uint8(ct))
	}
}

// dispatchPriority fixes the order Ready reports queues in when more than
// one content type has a complete unit waiting: alerts (which may signal
// a fatal abort) jump ahead of whatever handshake or application data
// arrived in the same flight, matching how a real record layer interrupts
// in-progress processing for a received alert.
var dispatchPriority = []ContentType{
	ContentTypeAlert,
	ContentTypeChangeCipherSpec,
	ContentTypeHandshake,
	ContentTypeHeartbeat,
	ContentTypeApplicationData,
}

// Reassembler accumulates record plaintexts per content type and emits
// complete logical units. Only handshake content can span more than one
// record (RFC 8446 §5.1); every other content type's plaintext is already
// a complete unit the moment a record decrypts.
type Reassembler struct {
	partial map[ContentType][]byte
	queues  map[ContentType][][]byte
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{
		partial: make(map[ContentType][]byte),
		queues:  make(map[ContentType][][]byte),
	}
}

// Feed appends one record's plaintext to the reassembly state for ct. For
// handshake content, it peels off as many complete handshake messages
// (4-byte type+length header per RFC 8446 §4, shared with TLS 1.2) as the
// accumulated bytes contain, leaving any trailing partial message
// buffered for the next Feed. For every other content type, plaintext is
// queued as-is: a non-handshake content type containing more than one
// logical unit (e.g. coalesced alerts) is not supported, matching this
// engine's peers.
func (r *Reassembler) Feed(ct ContentType, plaintext []byte) error {
	if ct != ContentTypeHandshake {
		r.queues[ct] = append(r.queues[ct], plaintext)
		return nil
	}

	buf := append(r.partial[ContentTypeHandshake], plaintext...)
	for {
		if len(buf) < 4 {
			break
		}
		reader := packet.NewReader(buf[:4])
		msgType, _ := reader.ReadByte()
		length, _ := reader.ReadUint24()
		total := 4 + int(length)
		if len(buf) < total {
			break
		}
		_ = msgType
		msg := make([]byte, total)
		copy(msg, buf[:total])
		r.queues[ContentTypeHandshake] = append(r.queues[ContentTypeHandshake], msg)
		buf = buf[total:]
	}

	if len(buf) > 0 {
		// Keep only the unconsumed tail; copy it out of the caller's
		// plaintext slice so it isn't retained accidentally.
		r.partial[ContentTypeHandshake] = append([]byte(nil), buf...)
	} else {
		delete(r.partial, ContentTypeHandshake)
	}
	return nil
}

// Pending reports whether a complete unit of ct is ready to be taken by
// Next.
func (r *Reassembler) Pending(ct ContentType) bool {
	return len(r.queues[ct]) > 0
}

// Ready reports the highest-priority content type with a complete unit
// waiting, or false if every queue is empty.
func (r *Reassembler) Ready() (ContentType, bool) {
	for _, ct := range dispatchPriority {
		if r.Pending(ct) {
			return ct, true
		}
	}
	return 0, false
}

// Next dequeues the oldest complete unit of ct. Returns false if none is
// waiting.
func (r *Reassembler) Next(ct ContentType) ([]byte, bool) {
	q := r.queues[ct]
	if len(q) == 0 {
		return nil, false
	}
	msg := q[0]
	r.queues[ct] = q[1:]
	return msg, true
}

// HasPartial reports whether a handshake message is mid-reassembly — the
// connection must not be considered quiescent (e.g. eligible for an
// idle-timeout close) while this is true.
func (r *Reassembler) HasPartial() bool {
	return len(r.partial[ContentTypeHandshake]) > 0
}
