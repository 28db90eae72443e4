package state

import (
	"crypto/subtle"
	"crypto/x509"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/keyschedule"
	"github.com/lanikai/tlsengine/internal/record"
)

// finishTLS13 completes a TLS 1.3 handshake once the cipher suite is
// known: DHE/hybrid shared secret, handshake/application key schedule,
// EncryptedExtensions through Finished.
func (ch *clientHandshake) finishTLS13(sh handshake.ServerHello) error {
	c := ch.conn
	suite := c.Suite
	h := hashForSuite(c.NegotiatedSuite)

	ks, ok := extension.First[extension.KeyShare](sh.Extensions)
	if !ok {
		return fail(AlertIllegalParameter, "server_hello missing key_share")
	}
	share, ok := findShare(ch.shares, cryptoprim.NamedGroup(ks.ServerShare.Group))
	if !ok {
		return fail(AlertIllegalParameter, "server_hello key_share names a group we didn't offer")
	}
	dheShared, err := share.computeShared(suite, ks.ServerShare.KeyExchange)
	if err != nil {
		return failWrap(AlertIllegalParameter, err, "computing shared secret")
	}

	usedPSK := false
	if sel, ok := extension.First[extension.PreSharedKey](sh.Extensions); ok && ch.pskOffered != nil {
		if sel.SelectedIdx == 0 {
			usedPSK = true
		}
	}

	emptyHash, err := emptyTranscriptHash(suite, h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing empty transcript")
	}
	sched := keyschedule.NewSchedule13(suite, h)
	pskSecret := []byte(nil)
	if usedPSK {
		pskSecret = ch.pskOffered.identity.Secret
	}
	if err := sched.DeriveEarlySecret(pskSecret, emptyHash); err != nil {
		return failWrap(AlertInternalError, err, "deriving early secret")
	}

	throughServerHello, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through server_hello")
	}
	if err := sched.DeriveHandshakeSecret(dheShared, throughServerHello, emptyHash); err != nil {
		return failWrap(AlertInternalError, err, "deriving handshake secret")
	}

	km := c.NegotiatedSuite.KeyMat
	writeParams, err := record.CalcPendingStateTLS13(suite, km, sched.ClientHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving client handshake traffic keys")
	}
	readParams, err := record.CalcPendingStateTLS13(suite, km, sched.ServerHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving server handshake traffic keys")
	}
	c.Layer.RekeyRead(record.NewCipherState(suite, readParams))
	c.Layer.RekeyWrite(record.NewCipherState(suite, writeParams))

	ee, eeRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	encExt, ok := ee.(handshake.EncryptedExtensions)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected encrypted_extensions, got %T", ee)
	}
	c.transcript.Add(eeRaw)
	if alpn, ok := extension.First[extension.ALPN](encExt.Extensions); ok && len(alpn.Protocols) == 1 {
		c.NegotiatedALPN = alpn.Protocols[0]
	}

	var peerCert *x509.Certificate
	var certRequested bool
	var certRequestContext []byte
	if !usedPSK {
		msg, raw, err := c.readHandshake()
		if err != nil {
			return err
		}
		if certReq, ok := msg.(handshake.CertificateRequest); ok {
			c.transcript.Add(raw)
			certRequested = true
			certRequestContext = certReq.RequestContext
			msg, raw, err = c.readHandshake()
			if err != nil {
				return err
			}
		}
		certMsg, ok := msg.(handshake.Certificate)
		if !ok {
			return fail(AlertUnexpectedMessage, "expected certificate, got %T", msg)
		}
		c.transcript.Add(raw)
		if len(certMsg.Entries) == 0 {
			return fail(AlertIllegalParameter, "server certificate chain is empty")
		}
		for _, e := range certMsg.Entries {
			c.PeerCertificates = append(c.PeerCertificates, e.Data)
		}
		peerCert, err = x509.ParseCertificate(certMsg.Entries[0].Data)
		if err != nil {
			return failWrap(AlertBadRecordMAC, err, "parsing server leaf certificate")
		}

		cv, cvRaw, err := c.readHandshake()
		if err != nil {
			return err
		}
		cvMsg, ok := cv.(handshake.CertificateVerify)
		if !ok {
			return fail(AlertUnexpectedMessage, "expected certificate_verify, got %T", cv)
		}
		throughCertificate, err := c.transcript.Sum(h)
		if err != nil {
			return failWrap(AlertInternalError, err, "hashing transcript through certificate")
		}
		payload := kex.CertificateVerifyPayload13(throughCertificate, true)
		scheme := kex.SignatureScheme(cvMsg.Algorithm)
		if err := verifySignature13(suite, peerCert.PublicKey, scheme, payload, cvMsg.Signature); err != nil {
			return failWrap(AlertAuthenticationFailure, err, "verifying server certificate_verify")
		}
		c.transcript.Add(cvRaw)
	}

	fin, finRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	finMsg, ok := fin.(handshake.Finished)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected finished, got %T", fin)
	}
	throughCertMessages, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through server finished")
	}
	serverFinKey, err := keyschedule.FinishedKey(suite, h, sched.ServerHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving server finished key")
	}
	expected, err := keyschedule.FinishedVerifyData13(suite, h, serverFinKey, throughCertMessages)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing expected server finished")
	}
	if subtle.ConstantTimeCompare(expected, finMsg.VerifyData) != 1 {
		return fail(AlertAuthenticationFailure, "server finished did not verify")
	}
	c.transcript.Add(finRaw)

	throughServerFinished, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through server finished message")
	}

	if err := sched.DeriveMasterSecret(throughServerFinished, emptyHash); err != nil {
		return failWrap(AlertInternalError, err, "deriving master secret")
	}

	if certRequested {
		// This engine does not drive client-certificate authentication
		// (§1); respond with an empty Certificate so the handshake stays
		// on the wire instead of stalling, per RFC 8446 §4.4.2.
		certRaw, err := c.writeHandshake(handshake.NewCertificate13(certRequestContext, nil))
		if err != nil {
			return err
		}
		c.transcript.Add(certRaw)
		throughServerFinished, err = c.transcript.Sum(h)
		if err != nil {
			return failWrap(AlertInternalError, err, "hashing transcript through client certificate")
		}
	}

	clientFinKey, err := keyschedule.FinishedKey(suite, h, sched.ClientHSTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving client finished key")
	}
	clientFinVerify, err := keyschedule.FinishedVerifyData13(suite, h, clientFinKey, throughServerFinished)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing client finished")
	}
	clientFinRaw, err := c.writeHandshake(handshake.Finished{VerifyData: clientFinVerify})
	if err != nil {
		return err
	}
	c.transcript.Add(clientFinRaw)

	throughClientFinished, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through client finished")
	}
	if err := sched.DeriveResumptionMaster(throughClientFinished); err != nil {
		return failWrap(AlertInternalError, err, "deriving resumption master secret")
	}

	appWrite, err := record.CalcPendingStateTLS13(suite, km, sched.ClientAppTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving client application traffic keys")
	}
	appRead, err := record.CalcPendingStateTLS13(suite, km, sched.ServerAppTraffic)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving server application traffic keys")
	}
	c.Layer.RekeyWrite(record.NewCipherState(suite, appWrite))
	c.Layer.RekeyRead(record.NewCipherState(suite, appRead))
	c.ResumedSession = usedPSK
	c.resumptionMaster = sched.ResumptionMaster
	return nil
}

// verifySignature13 checks an RFC 8446 §4.4.3 CertificateVerify signature.
// Ed25519 signs the payload directly; every other scheme here hashes it
// first and verifies against the digest, matching cryptoprim.Suite.Verify's
// two calling conventions.
func verifySignature13(suite cryptoprim.Suite, pub interface{}, scheme kex.SignatureScheme, payload, sig []byte) error {
	if scheme == kex.SigEd25519 {
		return suite.Verify(pub, payload, 0, sig)
	}
	h := scheme.Hash()
	digest, err := suite.NewHash(h)
	if err != nil {
		return err
	}
	digest.Write(payload)
	return suite.Verify(pub, digest.Sum(nil), h, sig)
}
