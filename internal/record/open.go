package record

import "crypto/hmac"

// Open decrypts and authenticates one record. headerType/headerVersion
// are exactly what was read off the wire; payload is everything after
// the 5-byte header. It returns the record's real content type (for TLS
// 1.3, recovered from the decrypted inner plaintext's trailing byte,
// since the header always claims application_data) and the plaintext
// fragment. It advances the direction's sequence number on success only;
// a failed record leaves the sequence number unchanged so a caller that
// chooses to keep reading after a non-fatal problem doesn't desync.
func (cs *CipherState) Open(headerType ContentType, headerVersion Version, payload []byte) (ContentType, []byte, error) {
	var realType ContentType
	var plaintext []byte
	var err error

	switch cs.Mode {
	case ModeNull:
		realType, plaintext = headerType, payload

	case ModeStreamMAC:
		realType, plaintext, err = cs.openStreamMAC(headerType, payload)

	case ModeCBCMtE, ModeSSLv3MAC:
		realType, plaintext, err = cs.openCBCMtE(headerType, payload)

	case ModeCBCEtM:
		realType, plaintext, err = cs.openCBCEtM(headerType, payload)

	case ModeAEAD:
		realType, plaintext, err = cs.openAEAD(headerType, headerVersion, payload)

	default:
		err = errUnknownMode
	}
	if err != nil {
		return 0, nil, err
	}
	if advErr := cs.advance(); advErr != nil {
		return 0, nil, advErr
	}
	return realType, plaintext, nil
}

func (cs *CipherState) openStreamMAC(headerType ContentType, payload []byte) (ContentType, []byte, error) {
	macSize, err := cs.macSize()
	if err != nil {
		return 0, nil, err
	}
	decrypted := make([]byte, len(payload))
	cs.Stream.XORKeyStream(decrypted, payload)
	if len(decrypted) < macSize {
		return 0, nil, errBadRecordMAC
	}
	content, recvMAC := decrypted[:len(decrypted)-macSize], decrypted[len(decrypted)-macSize:]
	wantMAC, err := computeMAC(cs, headerType, len(content), content)
	if err != nil {
		return 0, nil, err
	}
	if !hmac.Equal(wantMAC, recvMAC) {
		return 0, nil, errBadRecordMAC
	}
	return headerType, content, nil
}

func (cs *CipherState) openCBCMtE(headerType ContentType, payload []byte) (ContentType, []byte, error) {
	bs := cs.Block.BlockSize()
	macSize, err := cs.macSize()
	if err != nil {
		return 0, nil, err
	}

	var iv, ciphertext []byte
	if cs.Version >= VersionTLS11 && cs.Mode != ModeSSLv3MAC {
		if len(payload) < bs {
			return 0, nil, errBadRecordMAC
		}
		iv, ciphertext = payload[:bs], payload[bs:]
	} else {
		iv, ciphertext = cs.lastCiphertextBlock, payload
	}
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return 0, nil, errBadRecordMAC
	}
	decrypted := cbcDecrypt(cs.Block, iv, ciphertext)
	if cs.Version < VersionTLS11 || cs.Mode == ModeSSLv3MAC {
		cs.lastCiphertextBlock = append([]byte(nil), ciphertext[len(ciphertext)-bs:]...)
	}

	unpadded, perr := unpadCBC(decrypted, bs)
	// A padding failure is folded into the same bad_record_mac outcome
	// as a MAC mismatch (§7): surfacing it distinctly would be a padding
	// oracle.
	if perr != nil || len(unpadded) < macSize {
		cs.drainConstantTime(decrypted, macSize)
		return 0, nil, errBadRecordMAC
	}
	content, recvMAC := unpadded[:len(unpadded)-macSize], unpadded[len(unpadded)-macSize:]
	wantMAC, err := computeMAC(cs, headerType, len(content), content)
	if err != nil {
		return 0, nil, err
	}
	if !hmac.Equal(wantMAC, recvMAC) {
		return 0, nil, errBadRecordMAC
	}
	return headerType, content, nil
}

// drainConstantTime still computes a MAC over a plausible-length slice
// on the padding-failure path, so the work done (if not its outcome)
// looks the same to a timing observer as the success path.
func (cs *CipherState) drainConstantTime(decrypted []byte, macSize int) {
	if len(decrypted) >= macSize {
		_, _ = computeMAC(cs, ContentTypeApplicationData, len(decrypted)-macSize, decrypted[:len(decrypted)-macSize])
	}
}

func (cs *CipherState) openCBCEtM(headerType ContentType, payload []byte) (ContentType, []byte, error) {
	macSize, err := cs.macSize()
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < macSize {
		return 0, nil, errBadRecordMAC
	}
	withIV, recvMAC := payload[:len(payload)-macSize], payload[len(payload)-macSize:]
	wantMAC, err := computeMAC(cs, headerType, len(withIV), withIV)
	if err != nil {
		return 0, nil, err
	}
	if !hmac.Equal(wantMAC, recvMAC) {
		return 0, nil, errBadRecordMAC
	}

	bs := cs.Block.BlockSize()
	if len(withIV) < bs || (len(withIV)-bs)%bs != 0 {
		return 0, nil, errBadRecordMAC
	}
	iv, ciphertext := withIV[:bs], withIV[bs:]
	decrypted := cbcDecrypt(cs.Block, iv, ciphertext)
	unpadded, perr := unpadCBC(decrypted, bs)
	if perr != nil {
		return 0, nil, errBadRecordMAC
	}
	return headerType, unpadded, nil
}

func (cs *CipherState) openAEAD(headerType ContentType, headerVersion Version, payload []byte) (ContentType, []byte, error) {
	var nonce, ciphertext []byte
	if cs.Version == VersionTLS13 {
		nonce = aeadNonce(cs)
		ciphertext = payload
	} else {
		if len(payload) < 8 {
			return 0, nil, errBadRecordMAC
		}
		explicit, rest := payload[:8], payload[8:]
		nonce = append(append([]byte(nil), cs.FixedIV...), explicit...)
		ciphertext = rest
	}

	aad := cs.aeadAAD(headerType, len(ciphertext))
	inner, err := cs.AEAD.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return 0, nil, errDecryptionFailed
	}

	if cs.Version != VersionTLS13 {
		return headerType, inner, nil
	}

	idx := len(inner) - 1
	for idx >= 0 && inner[idx] == 0 {
		idx--
	}
	if idx < 0 {
		return 0, nil, errEmptyInnerPlain
	}
	return ContentType(inner[idx]), inner[:idx], nil
}

// macSize reports the MAC's byte length for the direction's hash, or an
// error if the state has no MAC (ModeAEAD never calls this).
func (cs *CipherState) macSize() (int, error) {
	h, err := cs.suite.NewHash(cs.Hash)
	if err != nil {
		return 0, err
	}
	return h.Size(), nil
}
