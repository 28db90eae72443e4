package state

import (
	"github.com/lanikai/tlsengine/internal/defrag"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/keyschedule"
	"github.com/lanikai/tlsengine/internal/record"
	"github.com/lanikai/tlsengine/internal/sessioncache"
)

// ReadAppData blocks until one application-data record is available,
// consuming any post-handshake NewSessionTicket interleaved with it. An
// alert, a KeyUpdate, or any other post-handshake handshake message ends
// the read with an error. Call only after Handshake has returned
// successfully.
func (c *Conn) ReadAppData() ([]byte, error) {
	for {
		if raw, ok := c.defrag.Next(defrag.ContentTypeApplicationData); ok {
			return raw, nil
		}
		if raw, ok := c.defrag.Next(defrag.ContentTypeAlert); ok {
			return nil, parseAlertRecord(raw)
		}
		if raw, ok := c.defrag.Next(defrag.ContentTypeHandshake); ok {
			if err := c.handlePostHandshake(raw); err != nil {
				return nil, err
			}
			continue
		}
		ct, plaintext, err := c.Layer.ReadRecord()
		if err != nil {
			return nil, failWrap(AlertInternalError, err, "reading record")
		}
		if err := c.defrag.Feed(ct, plaintext); err != nil {
			return nil, failWrap(AlertDecodeError, err, "reassembling record")
		}
	}
}

// WriteAppData writes b as one or more application-data records,
// fragmenting to the record layer's configured maximum plaintext size.
func (c *Conn) WriteAppData(b []byte) error {
	return c.Layer.WriteRecord(record.ContentTypeApplicationData, b)
}

// handlePostHandshake dispatches one post-handshake handshake-content
// message. A NewSessionTicket13 received by a client with a SessionCache
// configured is turned into a resumption PSK and stored; anything else
// (including a peer-initiated KeyUpdate, whose traffic-secret ratchet
// this engine does not implement) is rejected.
func (c *Conn) handlePostHandshake(raw []byte) error {
	msg, err := handshake.Parse(raw)
	if err != nil {
		return failWrap(AlertDecodeError, err, "parsing post-handshake message")
	}
	nst, ok := msg.(handshake.NewSessionTicket)
	if !ok {
		return fail(AlertUnexpectedMessage, "unsupported post-handshake message %T", msg)
	}
	if !c.IsClient || c.SessionCache == nil || c.ServerName == "" || c.resumptionMaster == nil {
		return nil
	}
	h := hashForSuite(c.NegotiatedSuite)
	digest, err := c.Suite.NewHash(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "preparing ticket psk digest")
	}
	secret, err := keyschedule.HKDFExpandLabel(c.Suite, h, c.resumptionMaster, "resumption", nst.Nonce, digest.Size())
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving resumption psk")
	}
	c.SessionCache.Put(c.ServerName, sessioncache.Session{
		CipherSuite:    c.NegotiatedSuite.ID,
		Secret:         secret,
		Ticket:         nst.Ticket,
		NegotiatedALPN: c.NegotiatedALPN,
	})
	return nil
}
