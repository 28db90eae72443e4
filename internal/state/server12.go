package state

import (
	"crypto/rsa"

	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/keyschedule"
	"github.com/lanikai/tlsengine/internal/record"
)

// finishTLS12 completes a TLS 1.2 handshake once the cipher suite is
// known: ServerHello through ServerHelloDone, ClientKeyExchange dispatch
// by key-exchange method, and the change_cipher_spec/Finished exchange.
// A session ticket is never issued mid-1.2-handshake by this engine
// (§client12.go's matching note: a TLS 1.2 NewSessionTicket would need
// its own change_cipher_spec-adjacent placement this engine doesn't
// model); resumption for 1.2 is out of scope here, symmetric with the
// client only ever offering a throwaway random legacy_session_id.
func (sh *serverHandshake) finishTLS12() error {
	c := sh.conn
	suite := c.Suite
	h := hashForSuite(c.NegotiatedSuite)

	if _, err := readFull(suite.Rand(), sh.serverRandom[:]); err != nil {
		return failWrap(AlertInternalError, err, "generating server random")
	}

	shExts := []extension.Extension{extension.RenegotiationInfo{}}
	if em, ok := extension.First[extension.ExtendedMasterSecret](sh.clientHello.Extensions); ok {
		_ = em
		c.UseExtendedMasterSecret = true
		shExts = append(shExts, extension.ExtendedMasterSecret{})
	} else if c.RequireExtendedMasterSecret {
		return fail(AlertHandshakeFailure, "extended_master_secret required but not offered")
	}
	var negotiatedALPN string
	if proto, ok := c.pickALPN(sh.clientHello.Extensions); ok {
		negotiatedALPN = proto
		shExts = append(shExts, extension.ALPN{Protocols: []string{proto}})
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
	c.NegotiatedALPN = negotiatedALPN

	if c.NegotiatedSuite.KexMethod != kex.MethodSRP {
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
		certRaw, err := c.writeHandshake(handshake.Certificate{Entries: entries})
		if err != nil {
			return err
		}
		c.transcript.Add(certRaw)

		var serverECDHEPriv interface{}

		switch c.NegotiatedSuite.KexMethod {
		case kex.MethodECDHERSA, kex.MethodECDHEECDSA:
			group := preferredECDHEGroup(c)
			params, priv, err := kex.GenerateServerECDHE(suite, suite.Rand(), group)
			if err != nil {
				return failWrap(AlertInternalError, err, "generating server ecdhe share")
			}
			serverECDHEPriv = priv
			rawParams := params.Marshal()
			// ECDHEParams.Marshal returns a full handshake-style encoding;
			// the signature covers client_random || server_random || params
			// where params is exactly that encoding (RFC 5246 §7.4.3).
			isRSA, isECDSA, isEd25519, err := keyInfoFromChain(chain)
			if err != nil {
				return failWrap(AlertInternalError, err, "parsing server leaf certificate")
			}
			scheme, err := kex.SelectSignatureScheme(offeredSchemes(sh.clientHello.Extensions), isRSA, isECDSA, isEd25519)
			if err != nil {
				return failWrap(AlertHandshakeFailure, err, "selecting signature scheme")
			}
			sig, err := kex.SignParams(suite, signerKey, scheme.Hash(), sh.clientRandom[:], sh.serverRandom[:], rawParams)
			if err != nil {
				return failWrap(AlertInternalError, err, "signing server_key_exchange")
			}
			skeRaw, err := c.writeHandshake(handshake.ServerKeyExchange{Raw: marshalSignedServerKeyExchange(rawParams, scheme, sig)})
			if err != nil {
				return err
			}
			c.transcript.Add(skeRaw)

			doneRaw, err := c.writeHandshake(handshake.ServerHelloDone{})
			if err != nil {
				return err
			}
			c.transcript.Add(doneRaw)

			msg, raw, err := c.readHandshake()
			if err != nil {
				return err
			}
			if certReq, ok := msg.(handshake.CertificateRequest); ok {
				_ = certReq
				c.transcript.Add(raw)
				msg, raw, err = c.readHandshake()
				if err != nil {
					return err
				}
			}
			cke, ok := msg.(handshake.ClientKeyExchange)
			if !ok {
				return fail(AlertUnexpectedMessage, "expected client_key_exchange, got %T", msg)
			}
			c.transcript.Add(raw)
			clientPub, err := kex.ParseClientECPoint(cke.Raw)
			if err != nil {
				return failWrap(AlertDecodeError, err, "parsing client ecdhe public value")
			}
			shared, err := kex.ServerECDHEShared(suite, group, serverECDHEPriv, clientPub)
			if err != nil {
				return failWrap(AlertIllegalParameter, err, "computing ecdhe shared secret")
			}
			return sh.finishMasterSecretAndFinished(shared)

		case kex.MethodRSA:
			rsaPriv, ok := signerKey.(*rsa.PrivateKey)
			if !ok {
				return fail(AlertInternalError, "negotiated RSA key exchange but signer is not an *rsa.PrivateKey")
			}
			doneRaw, err := c.writeHandshake(handshake.ServerHelloDone{})
			if err != nil {
				return err
			}
			c.transcript.Add(doneRaw)

			msg, raw, err := c.readHandshake()
			if err != nil {
				return err
			}
			cke, ok := msg.(handshake.ClientKeyExchange)
			if !ok {
				return fail(AlertUnexpectedMessage, "expected client_key_exchange, got %T", msg)
			}
			c.transcript.Add(raw)
			encrypted, err := kex.ParseClientRSAPremaster(cke.Raw)
			if err != nil {
				return failWrap(AlertDecodeError, err, "parsing client rsa premaster")
			}
			premaster, err := kex.DecryptRSAPremaster(rsaPriv, encrypted, uint16(record.VersionTLS12))
			if err != nil {
				return failWrap(AlertInternalError, err, "decrypting rsa premaster")
			}
			return sh.finishMasterSecretAndFinished(premaster)

		default:
			return fail(AlertInternalError, "unsupported TLS 1.2 key-exchange method %v", c.NegotiatedSuite.KexMethod)
		}
	}

	// TLS-SRP: no Certificate, a ServerKeyExchange carrying srp_N/srp_g/
	// srp_s/srp_B instead. This engine serves a single pre-configured
	// username (symmetric with the client's own single SRPUsername/
	// SRPPassword fields): the TLS-SRP extension never puts the username
	// on the wire (RFC 5054 doesn't define one), so there is no per-
	// connection identity to branch on here.
	if c.SRPVerifiers == nil || c.SRPUsername == "" {
		return fail(AlertInternalError, "negotiated TLS-SRP suite but no SRPVerifiers/SRPUsername configured")
	}
	verifier, err := c.SRPVerifiers.Lookup(c.SRPUsername)
	if err != nil {
		return failWrap(AlertInsufficientSecurity, err, "looking up srp verifier")
	}
	b, bPub, err := kex.GenerateServerSRP(verifier)
	if err != nil {
		return failWrap(AlertInternalError, err, "generating srp server share")
	}
	srpParams := kex.SRPServerParams{N: verifier.N, G: verifier.G, Salt: verifier.Salt, B: bPub}
	skeRaw, err := c.writeHandshake(handshake.ServerKeyExchange{Raw: srpParams.Marshal()})
	if err != nil {
		return err
	}
	c.transcript.Add(skeRaw)
	doneRaw, err := c.writeHandshake(handshake.ServerHelloDone{})
	if err != nil {
		return err
	}
	c.transcript.Add(doneRaw)

	msg, raw, err := c.readHandshake()
	if err != nil {
		return err
	}
	cke, ok := msg.(handshake.ClientKeyExchange)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected client_key_exchange, got %T", msg)
	}
	c.transcript.Add(raw)
	clientA, err := kex.ParseClientSRPPublic(cke.Raw)
	if err != nil {
		return failWrap(AlertDecodeError, err, "parsing client srp public value")
	}
	shared, err := kex.ServerSRPShared(verifier, b, clientA)
	if err != nil {
		return failWrap(AlertInsufficientSecurity, err, "computing srp shared secret")
	}
	return sh.finishMasterSecretAndFinished(shared)
}

// finishMasterSecretAndFinished derives the master secret from the
// agreed premaster/shared value, installs record keys, and runs the
// change_cipher_spec/Finished exchange: the client's Finished arrives
// first (it always sends ChangeCipherSpec+Finished immediately after
// ClientKeyExchange), then this side replies with its own.
func (sh *serverHandshake) finishMasterSecretAndFinished(premaster []byte) error {
	c := sh.conn
	suite := c.Suite
	h := hashForSuite(c.NegotiatedSuite)

	sessionHash, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript through client_key_exchange")
	}
	masterSecret, err := keyschedule.MasterSecret12(suite, h, premaster, c.UseExtendedMasterSecret, sh.clientRandom[:], sh.serverRandom[:], sessionHash)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving master secret")
	}

	dp, err := record.CalcPendingState12(suite, c.NegotiatedSuite.KeyMat, masterSecret, sh.clientRandom[:], sh.serverRandom[:], record.VersionTLS12, false)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving record keys")
	}

	if err := c.readChangeCipherSpec(); err != nil {
		return err
	}
	c.Layer.SetPendingRead(record.NewCipherState(suite, dp.Read))
	if err := c.Layer.ChangeReadState(); err != nil {
		return failWrap(AlertInternalError, err, "activating read cipher state")
	}

	fin, finRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	finMsg, ok := fin.(handshake.Finished)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected finished, got %T", fin)
	}
	expected, err := keyschedule.FinishedVerifyData12(suite, h, masterSecret, keyschedule.FinishedLabelClient, sessionHash)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing expected client finished")
	}
	if !constantTimeEqualBytes(expected, finMsg.VerifyData) {
		return fail(AlertAuthenticationFailure, "client finished did not verify")
	}
	c.transcript.Add(finRaw)

	c.Layer.SetPendingWrite(record.NewCipherState(suite, dp.Write))
	if err := c.Layer.WriteRecord(record.ContentTypeChangeCipherSpec, []byte{1}); err != nil {
		return failWrap(AlertInternalError, err, "writing change_cipher_spec")
	}
	if err := c.Layer.ChangeWriteState(); err != nil {
		return failWrap(AlertInternalError, err, "activating write cipher state")
	}

	postClientFinishedHash, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript for server finished")
	}
	serverVerify, err := keyschedule.FinishedVerifyData12(suite, h, masterSecret, keyschedule.FinishedLabelServer, postClientFinishedHash)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing server finished")
	}
	if _, err := c.writeHandshake(handshake.Finished{VerifyData: serverVerify}); err != nil {
		return err
	}
	return nil
}
