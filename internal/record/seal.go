package record

// Seal encrypts (or, in ModeNull, merely frames) one record's plaintext
// fragment for content type ct, returning the outer content type to put
// in the header (only TLS 1.3 ever rewrites this, to application_data)
// and the bytes that follow the 5-byte header on the wire. It advances
// the direction's sequence number on success.
func (cs *CipherState) Seal(ct ContentType, plaintext []byte) (ContentType, []byte, error) {
	var out []byte
	var err error
	outerType := ct

	switch cs.Mode {
	case ModeNull:
		out = plaintext

	case ModeStreamMAC:
		mac, merr := computeMAC(cs, ct, len(plaintext), plaintext)
		if merr != nil {
			return 0, nil, merr
		}
		plain := append(append([]byte(nil), plaintext...), mac...)
		out = make([]byte, len(plain))
		cs.Stream.XORKeyStream(out, plain)

	case ModeCBCMtE, ModeSSLv3MAC:
		mac, merr := computeMAC(cs, ct, len(plaintext), plaintext)
		if merr != nil {
			return 0, nil, merr
		}
		padded := padCBC(append(append([]byte(nil), plaintext...), mac...), cs.Block.BlockSize())
		iv, ciphertext := cs.encryptCBC(padded)
		if cs.Version >= VersionTLS11 && cs.Mode != ModeSSLv3MAC {
			out = append(iv, ciphertext...)
		} else {
			out = ciphertext
		}

	case ModeCBCEtM:
		padded := padCBC(append([]byte(nil), plaintext...), cs.Block.BlockSize())
		iv, ciphertext := cs.encryptCBC(padded)
		withIV := append(iv, ciphertext...)
		mac, merr := computeMAC(cs, ct, len(withIV), withIV)
		if merr != nil {
			return 0, nil, merr
		}
		out = append(withIV, mac...)

	case ModeAEAD:
		out, outerType, err = cs.sealAEAD(ct, plaintext)
		if err != nil {
			return 0, nil, err
		}

	default:
		return 0, nil, errUnknownMode
	}

	if advErr := cs.advance(); advErr != nil {
		return 0, nil, advErr
	}
	return outerType, out, nil
}

// encryptCBC picks the record's IV (explicit random for TLS 1.1+,
// chained from the previous record for TLS 1.0) and runs CBC encryption,
// returning the IV to transmit (empty for TLS 1.0, where it is implicit)
// and the ciphertext.
func (cs *CipherState) encryptCBC(padded []byte) (ivOut, ciphertext []byte) {
	bs := cs.Block.BlockSize()
	var iv []byte
	if cs.Version >= VersionTLS11 && cs.Mode != ModeSSLv3MAC {
		iv = make([]byte, bs)
		cs.suite.Rand().Read(iv)
		ivOut = iv
	} else {
		iv = cs.lastCiphertextBlock
		ivOut = nil
	}
	ciphertext = cbcEncrypt(cs.Block, iv, padded)
	if cs.Version < VersionTLS11 || cs.Mode == ModeSSLv3MAC {
		cs.lastCiphertextBlock = ciphertext[len(ciphertext)-bs:]
	}
	return ivOut, ciphertext
}

// sealAEAD implements both the TLS 1.2 explicit-nonce and TLS 1.3
// implicit-nonce AEAD constructions (RFC 5246 §6.2.3.3 / RFC 8446 §5.2,
// §5.3). TLS 1.3 additionally appends ct as a trailing inner content-type
// byte before encryption and always reports the outer type as
// application_data, hiding the real content type from a passive observer.
func (cs *CipherState) sealAEAD(ct ContentType, plaintext []byte) ([]byte, ContentType, error) {
	inner := plaintext
	outerType := ct
	if cs.Version == VersionTLS13 {
		inner = append(append([]byte(nil), plaintext...), byte(ct))
		outerType = ContentTypeApplicationData
	}

	nonce := aeadNonce(cs)
	aad := cs.aeadAAD(outerType, len(inner)+cs.AEAD.Overhead())
	sealed := cs.AEAD.Seal(nil, nonce, inner, aad)

	if cs.Version == VersionTLS13 {
		return sealed, outerType, nil
	}
	// TLS 1.2: an 8-byte explicit nonce (the sequence number) precedes
	// the ciphertext on the wire; only the 4-byte salt half of the
	// nonce is implicit.
	return append(append([]byte(nil), cs.seqBytes()...), sealed...), outerType, nil
}

// aeadNonce builds the per-record nonce: TLS 1.2 concatenates the fixed
// salt with the explicit sequence-number nonce; TLS 1.3 XORs the fixed
// IV with the sequence number in its low-order bytes (RFC 8446 §5.3).
func aeadNonce(cs *CipherState) []byte {
	if cs.Version == VersionTLS13 {
		nonce := append([]byte(nil), cs.FixedIV...)
		seq := cs.seqBytes()
		off := len(nonce) - len(seq)
		for i, b := range seq {
			nonce[off+i] ^= b
		}
		return nonce
	}
	return append(append([]byte(nil), cs.FixedIV...), cs.seqBytes()...)
}

// aeadAAD builds the additional authenticated data: TLS 1.2 authenticates
// seq_num || type || version || length (of the plaintext, RFC 5246
// §6.2.3.3); TLS 1.3 authenticates the outer record header bytes
// verbatim (RFC 8446 §5.2), which is why the caller passes the
// already-outer type and the post-encryption length.
func (cs *CipherState) aeadAAD(outerType ContentType, cipherLen int) []byte {
	if cs.Version == VersionTLS13 {
		return MarshalHeader(outerType, VersionTLS12, cipherLen)
	}
	plainLen := cipherLen - cs.AEAD.Overhead()
	w := make([]byte, 0, 13)
	w = append(w, cs.seqBytes()...)
	w = append(w, byte(outerType))
	w = append(w, byte(cs.Version>>8), byte(cs.Version))
	w = append(w, byte(plainLen>>8), byte(plainLen))
	return w
}
