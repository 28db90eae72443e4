package state

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"math/big"

	"github.com/lanikai/tlsengine/internal/handshake"
	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/keyschedule"
	"github.com/lanikai/tlsengine/internal/packet"
	"github.com/lanikai/tlsengine/internal/record"
)

// finishTLS12 completes a TLS 1.2 handshake once the cipher suite is
// known: Certificate through ServerHelloDone, ClientKeyExchange dispatch
// by key-exchange method, and the change_cipher_spec/Finished exchange.
// Session resumption via a matching session ID is not attempted: this
// engine only ever offers a 32-byte random legacy_session_id, so a
// server never has grounds to echo one back as an abbreviated handshake.
func (ch *clientHandshake) finishTLS12(sh handshake.ServerHello) error {
	c := ch.conn
	suite := c.Suite
	h := hashForSuite(c.NegotiatedSuite)

	msg, raw, err := c.readHandshake()
	if err != nil {
		return err
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
	peerCert, err := x509.ParseCertificate(certMsg.Entries[0].Data)
	if err != nil {
		return failWrap(AlertBadRecordMAC, err, "parsing server leaf certificate")
	}

	var premaster []byte
	var clientKeyExchangeRaw []byte

	switch c.NegotiatedSuite.KexMethod {
	case kex.MethodRSA:
		rsaPub, ok := peerCert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fail(AlertIllegalParameter, "server certificate key is not RSA for an RSA key-exchange suite")
		}
		premaster, err = kex.RandomPremaster(suite.Rand(), uint16(record.VersionTLS12))
		if err != nil {
			return failWrap(AlertInternalError, err, "generating rsa premaster")
		}
		enc, err := kex.EncryptRSAPremaster(rsaPub, premaster)
		if err != nil {
			return failWrap(AlertInternalError, err, "encrypting rsa premaster")
		}
		clientKeyExchangeRaw = kex.MarshalClientRSAPremaster(enc)

	case kex.MethodECDHERSA, kex.MethodECDHEECDSA:
		params, scheme, sig, raw, err := readSignedServerKeyExchange(c)
		if err != nil {
			return err
		}
		c.transcript.Add(raw)
		ecParams, _, perr := kex.ParseServerECDHParams(params)
		if perr != nil {
			return failWrap(AlertDecodeError, perr, "parsing server_key_exchange params")
		}
		if err := kex.VerifyParams(suite, peerCert.PublicKey, scheme.Hash(), ch.clientRandom[:], sh.Random[:], params, sig); err != nil {
			return failWrap(AlertAuthenticationFailure, err, "verifying server_key_exchange signature")
		}
		clientPub, shared, err := kex.ClientECDHEShared(suite, suite.Rand(), ecParams)
		if err != nil {
			return failWrap(AlertIllegalParameter, err, "computing ecdhe shared secret")
		}
		premaster = shared
		clientKeyExchangeRaw = kex.MarshalClientECPoint(clientPub)

	case kex.MethodSRP:
		if c.SRPUsername == "" {
			return fail(AlertInternalError, "negotiated TLS-SRP suite but no SRPUsername/SRPPassword configured")
		}
		msg, raw, err := c.readHandshake()
		if err != nil {
			return err
		}
		ske, ok := msg.(handshake.ServerKeyExchange)
		if !ok {
			return fail(AlertUnexpectedMessage, "expected server_key_exchange, got %T", msg)
		}
		c.transcript.Add(raw)
		srpParams, _, perr := kex.ParseSRPServerParams(ske.Raw)
		if perr != nil {
			return failWrap(AlertDecodeError, perr, "parsing server srp params")
		}
		a, err := rand.Int(suite.Rand(), srpParams.N)
		if err != nil {
			return failWrap(AlertInternalError, err, "generating srp private exponent")
		}
		clientA := new(big.Int).Exp(srpParams.G, a, srpParams.N)
		shared, err := kex.ClientSRPShared(srpParams, c.SRPUsername, c.SRPPassword, a, clientA)
		if err != nil {
			return failWrap(AlertInsufficientSecurity, err, "computing srp shared secret")
		}
		premaster = shared
		clientKeyExchangeRaw = kex.MarshalClientSRPPublic(clientA)

	default:
		return fail(AlertInternalError, "unsupported TLS 1.2 key-exchange method %v", c.NegotiatedSuite.KexMethod)
	}

	msg, raw, err = c.readHandshake()
	if err != nil {
		return err
	}
	if certReq, ok := msg.(handshake.CertificateRequest); ok {
		c.transcript.Add(raw)
		_ = certReq // client-certificate authentication is not driven by this engine
		msg, raw, err = c.readHandshake()
		if err != nil {
			return err
		}
	}
	if _, ok := msg.(handshake.ServerHelloDone); !ok {
		return fail(AlertUnexpectedMessage, "expected server_hello_done, got %T", msg)
	}
	c.transcript.Add(raw)

	ckeRaw, err := c.writeHandshake(handshake.ClientKeyExchange{Raw: clientKeyExchangeRaw})
	if err != nil {
		return err
	}
	c.transcript.Add(ckeRaw)

	sessionHash, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript for extended_master_secret")
	}
	masterSecret, err := keyschedule.MasterSecret12(suite, h, premaster, c.UseExtendedMasterSecret, ch.clientRandom[:], sh.Random[:], sessionHash)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving master secret")
	}

	dp, err := record.CalcPendingState12(suite, c.NegotiatedSuite.KeyMat, masterSecret, ch.clientRandom[:], sh.Random[:], record.VersionTLS12, true)
	if err != nil {
		return failWrap(AlertInternalError, err, "deriving record keys")
	}
	c.Layer.SetPendingWrite(record.NewCipherState(suite, dp.Write))

	if err := c.Layer.WriteRecord(record.ContentTypeChangeCipherSpec, []byte{1}); err != nil {
		return failWrap(AlertInternalError, err, "writing change_cipher_spec")
	}
	if err := c.Layer.ChangeWriteState(); err != nil {
		return failWrap(AlertInternalError, err, "activating write cipher state")
	}

	preFinishedHash, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript for client finished")
	}
	clientVerify, err := keyschedule.FinishedVerifyData12(suite, h, masterSecret, keyschedule.FinishedLabelClient, preFinishedHash)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing client finished")
	}
	finRaw, err := c.writeHandshake(handshake.Finished{VerifyData: clientVerify})
	if err != nil {
		return err
	}
	c.transcript.Add(finRaw)

	if err := c.readChangeCipherSpec(); err != nil {
		return err
	}
	c.Layer.SetPendingRead(record.NewCipherState(suite, dp.Read))
	if err := c.Layer.ChangeReadState(); err != nil {
		return failWrap(AlertInternalError, err, "activating read cipher state")
	}

	fin, finPeerRaw, err := c.readHandshake()
	if err != nil {
		return err
	}
	finMsg, ok := fin.(handshake.Finished)
	if !ok {
		return fail(AlertUnexpectedMessage, "expected finished, got %T", fin)
	}
	postClientFinishedHash, err := c.transcript.Sum(h)
	if err != nil {
		return failWrap(AlertInternalError, err, "hashing transcript for server finished")
	}
	expected, err := keyschedule.FinishedVerifyData12(suite, h, masterSecret, keyschedule.FinishedLabelServer, postClientFinishedHash)
	if err != nil {
		return failWrap(AlertInternalError, err, "computing expected server finished")
	}
	if !constantTimeEqualBytes(expected, finMsg.VerifyData) {
		return fail(AlertAuthenticationFailure, "server finished did not verify")
	}
	c.transcript.Add(finPeerRaw)
	return nil
}

// readSignedServerKeyExchange reads a ServerKeyExchange whose body is
// method-specific params followed by a SignatureAndHashAlgorithm and an
// opaque<0..2^16-1> signature (RFC 5246 §7.4.3), splitting the body into
// the signed params and the signature. Only the ECDHE param shape is
// handled here; plain DHE is never offered (§suites.go).
func readSignedServerKeyExchange(c *Conn) (params []byte, scheme kex.SignatureScheme, sig []byte, raw []byte, err error) {
	msg, raw, err := c.readHandshake()
	if err != nil {
		return nil, 0, nil, nil, err
	}
	ske, ok := msg.(handshake.ServerKeyExchange)
	if !ok {
		return nil, 0, nil, nil, fail(AlertUnexpectedMessage, "expected server_key_exchange, got %T", msg)
	}
	// ECDHEParams is not self-delimiting, so parse it once to learn how
	// many leading bytes it consumed before the trailing signature.
	_, consumed, perr := kex.ParseServerECDHParams(ske.Raw)
	if perr != nil {
		return nil, 0, nil, nil, failWrap(AlertDecodeError, perr, "parsing server_key_exchange params")
	}
	params = consumed
	rest := ske.Raw[len(consumed):]
	r := packet.NewReader(rest)
	hashID, err1 := r.ReadByte()
	sigID, err2 := r.ReadByte()
	if err1 != nil || err2 != nil {
		return nil, 0, nil, nil, fail(AlertDecodeError, "truncated signature_and_hash_algorithm")
	}
	signature, err3 := r.GetVar(2)
	if err3 != nil {
		return nil, 0, nil, nil, failWrap(AlertDecodeError, err3, "parsing server_key_exchange signature")
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, 0, nil, nil, failWrap(AlertDecodeError, err, "trailing bytes after server_key_exchange signature")
	}
	scheme = kex.SignatureScheme(uint16(hashID)<<8 | uint16(sigID))
	return params, scheme, append([]byte(nil), signature...), raw, nil
}

func constantTimeEqualBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	v := byte(0)
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
