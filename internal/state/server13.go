package state

import (
	"crypto/subtle"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/keyschedule"
	"github.com/lanikai/tlsengine/internal/psk"
	"github.com/lanikai/tlsengine/internal/record"
	"github.com/lanikai/tlsengine/internal/ticket"
)

// finishTLS13 completes a TLS 1.3 handshake once the cipher suite is
// known: key_share/PSK selection, ServerHello through Finished, and,
// whenever TicketKeys is set (resumed connections included), a single
// NewSessionTicket once the client Finished has verified.
func (sh *serverHandshake) finishTLS13() error {
	c := sh.conn
	suite := c.Suite
	h := hashForSuite(c.NegotiatedSuite)

	if _, err := readFull(suite.Rand(), sh.serverRandom[:]); err != nil {
		return failWrap(AlertInternalError, err, "generating server random")
	}

	clientKS, ok := extension.First[extension.KeyShare](sh.clientHello.Extensions)
	if !ok {
		return fail(AlertMissingExtension, "client_hello missing key_share")
	}
	group, clientShare, ok := selectServerGroup(c, clientKS.ClientShares)
	if !ok {
		// A real HelloRetryRequest round trip (requesting a group the
		// client didn't eagerly send a share for) is not implemented,
		// mirroring the client's own stated non-support.
		return fail(AlertHandshakeFailure, "no key_share group in common with client")
	}

	var dheShared []byte
	var serverShareEntry extension.KeyShareEntry
	if kex.IsHybridGroup(group) {
		ciphertext, shared, err := kex.ServerEncapsulateHybrid(suite, suite.Rand(), group, clientShare)
		if err != nil {
			return failWrap(AlertIllegalParameter, err, "encapsulating hybrid key share")
		}
		dheShared = shared
		serverShareEntry = extension.KeyShareEntry{Group: uint16(group), KeyExchange: ciphertext}
	} else {
		params, priv, err := kex.GenerateServerECDHE(suite, suite.Rand(), group)
		if err != nil {
			return failWrap(AlertInternalError, err, "generating server key share")
		}
		shared, err := kex.ServerECDHEShared(suite, group, priv, clientShare)
		if err != nil {
			return failWrap(AlertIllegalParameter, err, "computing shared secret")
		}
		dheShared = shared
		serverShareEntry = extension.KeyShareEntry{Group: uint16(group), KeyExchange: params.PublicKey}
	}

	usedPSK := false
	var pskIdentity psk.Identity
	var selectedIdx int
	if pskExt, ok := extension.First[extension.PreSharedKey](sh.clientHello.Extensions); ok && offersPSKDHE(sh.clientHello.Extensions) {
		idx, id, found := psk.SelectIdentity(pskExt.Identities, func(label []byte) (psk.Identity, bool) {
			return sh.lookupPSK(label)
		})
		if found {
			truncated, err := psk.TruncatedClientHello(sh.clientHelloRaw, pskExt)
			if err == nil && psk.VerifyBinder(suite, id, truncated, pskExt.Binders[idx]) == nil {
				usedPSK = true
				pskIdentity = id
				selectedIdx = idx
			}
		}
	}

	emptyHash, err := emptyTranscriptHash(suite, h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing empty transcript")
	}
	sched := keyschedule.NewSchedule13(suite, h)
	pskSecret := []byte(nil)
	if usedPSK {
		pskSecret = pskIdentity.Secret
	}
	if err := sched.DeriveEarlySecret(pskSecret, emptyHash); err != nil {
		return failWrap(AlertInternalError, err, "deriving early secret")
	}

	shExts := []extension.Extension{
		extension.SupportedVersions{Versions: []uint16{uint16(record.VersionTLS13)}},
		extension.KeyShare{ServerShare: serverShareEntry},
	}
	if usedPSK {
		shExts = append(shExts, extension.NewServerPreSharedKey(uint16(selectedIdx)))
	}
	shMsg := handshake.ServerHello{
		LegacyVersion:     uint16(record.VersionTLS12),
		LegacySessionEcho: sh.clientHello.LegacySessionID,
		CipherSuite:       c.NegotiatedSuite.ID,
		Extensions:        extension.NewCollection(shExts...),
	}
	copy(shMsg.Random[:], sh.serverRandom[:])
	shRaw, err := c.writeHandshake(shMsg)
	if err != nil {
		return err
	}
	c.transcript.Add(shRaw)

	throughServerHello, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through server_hello")
	}
	if err := sched.DeriveHandshakeSecret(dheShared, throughServerHello, emptyHash); err != nil {
		return failWrap(AlertInternalError, err, "deriving handshake secret")
	}

	km := c.NegotiatedSuite.KeyMat
	writeParams, err := record.CalcPendingStateTLS13(suite, km, sched.ServerHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving server handshake traffic keys")
	}
	readParams, err := record.CalcPendingStateTLS13(suite, km, sched.ClientHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving client handshake traffic keys")
	}
	c.Layer.RekeyWrite(record.NewCipherState(suite, writeParams))
	c.Layer.RekeyRead(record.NewCipherState(suite, readParams))

	var negotiatedALPN string
	eeExts := []extension.Extension{}
	if proto, ok := c.pickALPN(sh.clientHello.Extensions); ok {
		negotiatedALPN = proto
		eeExts = append(eeExts, extension.ALPN{Protocols: []string{proto}})
	}
	eeRaw, err := c.writeHandshake(handshake.EncryptedExtensions{Extensions: extension.NewCollection(eeExts...)})
	if err != nil {
		return err
	}
	c.transcript.Add(eeRaw)
	c.NegotiatedALPN = negotiatedALPN

	if !usedPSK {
		chain, signerKey, err := c.Certificates.Certificate()
		if err != nil {
			return failWrap(AlertInternalError, err, "fetching server certificate")
		}
		if len(chain) == 0 {
			return fail(AlertInternalError, "Conn.Certificates returned an empty chain")
		}
		entries := make([]handshake.CertificateEntry, len(chain))
		for i, der := range chain {
			entries[i] = handshake.CertificateEntry{Data: der}
		}
		certRaw, err := c.writeHandshake(handshake.NewCertificate13(nil, entries))
		if err != nil {
			return err
		}
		c.transcript.Add(certRaw)

		isRSA, isECDSA, isEd25519, err := keyInfoFromChain(chain)
		if err != nil {
			return failWrap(AlertInternalError, err, "parsing server leaf certificate")
		}
		scheme, err := kex.SelectSignatureScheme(offeredSchemes(sh.clientHello.Extensions), isRSA, isECDSA, isEd25519)
		if err != nil {
			return failWrap(AlertHandshakeFailure, err, "selecting signature scheme")
		}
		throughCertificate, err := c.transcript.Sum(h)
		if err != nil {
			return failWrap(AlertInternalError, err, "hashing transcript through certificate")
		}
		payload := kex.CertificateVerifyPayload13(throughCertificate, true)
		sig, err := kex.SignCertificateVerify13(suite, signerKey, scheme, payload)
		if err != nil {
			return failWrap(AlertInternalError, err, "signing certificate_verify")
		}
		cvRaw, err := c.writeHandshake(handshake.CertificateVerify{Algorithm: uint16(scheme), Signature: sig})
		if err != nil {
			return err
		}
		c.transcript.Add(cvRaw)
	}

	throughCertMessages, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through server certificate_verify")
	}
	serverFinKey, err := keyschedule.FinishedKey(suite, h, sched.ServerHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving server finished key")
	}
	serverVerify, err := keyschedule.FinishedVerifyData13(suite, h, serverFinKey, throughCertMessages)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing server finished")
	}
	finRaw, err := c.writeHandshake(handshake.Finished{VerifyData: serverVerify})
	if err != nil {
		return err
	}
	c.transcript.Add(finRaw)

	throughServerFinished, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through server finished")
	}
	if err := sched.DeriveMasterSecret(throughServerFinished, emptyHash); err != nil {
		return failWrap(AlertInternalError, err, "deriving master secret")
	}

	appWrite, err := record.CalcPendingStateTLS13(suite, km, sched.ServerAppTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving server application traffic keys")
	}
	c.Layer.RekeyWrite(record.NewCipherState(suite, appWrite))

	fin, finClientRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	finMsg, ok := fin.(handshake.Finished)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected finished, got %T", fin)
	}
	clientFinKey, err := keyschedule.FinishedKey(suite, h, sched.ClientHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving client finished key")
	}
	expected, err := keyschedule.FinishedVerifyData13(suite, h, clientFinKey, throughServerFinished)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing expected client finished")
	}
	if subtle.ConstantTimeCompare(expected, finMsg.VerifyData) != 1 {
		return fail(AlertAuthenticationFailure, "client finished did not verify")
	}
	c.transcript.Add(finClientRaw)

	throughClientFinished, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through client finished")
	}
	if err := sched.DeriveResumptionMaster(throughClientFinished); err != nil {
		return failWrap(AlertInternalError, err, "deriving resumption master secret")
	}

	appRead, err := record.CalcPendingStateTLS13(suite, km, sched.ClientAppTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving client application traffic keys")
	}
	c.Layer.RekeyRead(record.NewCipherState(suite, appRead))
	c.ResumedSession = usedPSK

	if c.TicketKeys != nil {
		if err := sh.issueSessionTicket(sched); err != nil {
			return err
		}
	}
	return nil
}

// issueSessionTicket sends one NewSessionTicket carrying a resumption PSK
// derived from the just-completed handshake's resumption_master_secret,
// sealed by c.TicketKeys. Sent under application traffic keys, per
// RFC 8446 §4.6.1's post-handshake placement.
func (sh *serverHandshake) issueSessionTicket(sched *keyschedule.Schedule13) error {
	c := sh.conn
	suite := c.Suite
	h := hashForSuite(c.NegotiatedSuite)

	nonce := make([]byte, 8)
	if _, err := readFull(suite.Rand(), nonce); err != nil {
		return failWrap(AlertInternalError, err, "generating ticket nonce")
	}
	digest, err := suite.NewHash(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "preparing ticket psk digest")
	}
	resumptionPSK, err := keyschedule.HKDFExpandLabel(suite, h, sched.ResumptionMaster, "resumption", nonce, digest.Size())
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving ticket psk")
	}

	var flags uint8 = ticket.FlagIsTLS13
	if c.UseExtendedMasterSecret {
		flags |= ticket.FlagExtendedMasterSecret
	}
	blob, err := c.TicketKeys.Seal(ticket.Session{
		CipherSuite:    c.NegotiatedSuite.ID,
		Secret:         resumptionPSK,
		Flags:          flags,
		NegotiatedALPN: c.NegotiatedALPN,
		CreatedAt:      ticket.NowUnixMillis(),
	})
	if err != nil {
		return failWrap(AlertInternalError, err, "sealing session ticket")
	}

	ageAdd := make([]byte, 4)
	if _, err := readFull(suite.Rand(), ageAdd); err != nil {
		return failWrap(AlertInternalError, err, "generating ticket_age_add")
	}
	msg := handshake.NewNewSessionTicket13(7*24*3600, uint32(ageAdd[0])<<24|uint32(ageAdd[1])<<16|uint32(ageAdd[2])<<8|uint32(ageAdd[3]), nonce, blob)
	_, err = c.writeHandshake(msg)
	return err
}

// selectServerGroup picks the first of this server's key-share
// preference groups present among the client's offered shares, returning
// that group's client-sent key_exchange bytes.
func selectServerGroup(c *Conn, offered []extension.KeyShareEntry) (cryptoprim.NamedGroup, []byte, bool) {
	byGroup := make(map[cryptoprim.NamedGroup][]byte, len(offered))
	for _, e := range offered {
		byGroup[cryptoprim.NamedGroup(e.Group)] = e.KeyExchange
	}
	for _, g := range c.keyShareGroups() {
		if ke, ok := byGroup[g]; ok {
			return g, ke, true
		}
	}
	return 0, nil, false
}

// offersPSKDHE reports whether the client's psk_key_exchange_modes
// extension includes psk_dhe_ke, the only mode this engine (client or
// server) ever uses.
func offersPSKDHE(exts *extension.Collection) bool {
	modes, ok := extension.First[extension.PSKKeyExchangeModes](exts)
	if !ok {
		return false
	}
	return modes.Has(extension.PSKModePSKDHE)
}

// lookupPSK resolves an offered PSK identity label to an internal
// Identity: first as a ticket this server itself issued (via
// c.TicketKeys.Open), then as an externally provisioned PSK (via
// c.PSKLookup). A ticket whose recorded cipher suite hash doesn't match
// the suite already negotiated for this connection is rejected, since
// RFC 8446 §4.2.11 ties a PSK's binder hash to its origin suite.
func (sh *serverHandshake) lookupPSK(label []byte) (psk.Identity, bool) {
	c := sh.conn
	h := hashForSuite(c.NegotiatedSuite)
	if c.TicketKeys != nil {
		if sess, err := c.TicketKeys.Open(label); err == nil {
			if s, ok := byID(sh.suitePreference, sess.CipherSuite); !ok || hashForSuite(s) != h {
				return psk.Identity{}, false
			}
			return psk.Identity{Label: label, Secret: sess.Secret, Hash: h, IsResumption: true}, true
		}
	}
	if c.PSKLookup != nil {
		if id, ok := c.PSKLookup(label); ok {
			id.Hash = h
			return id, true
		}
	}
	return psk.Identity{}, false
}
