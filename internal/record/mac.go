package record

import (
	"encoding/binary"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

// macPlaintext computes the HMAC this engine uses for every non-SSLv3 MAC
// path (stream RC4, CBC MAC-then-encrypt, CBC encrypt-then-MAC): RFC
// 5246 §6.2.3.1, seq_num || type || version || length || fragment.
func macPlaintext(cs *CipherState, ct ContentType, length int, fragment []byte) ([]byte, error) {
	h, err := cs.suite.HMAC(cs.Hash, cs.MACKey)
	if err != nil {
		return nil, err
	}
	h.Write(cs.seqBytes())
	h.Write([]byte{byte(ct)})
	var v [2]byte
	binary.BigEndian.PutUint16(v[:], uint16(cs.Version))
	h.Write(v[:])
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(length))
	h.Write(l[:])
	h.Write(fragment)
	return h.Sum(nil), nil
}

// sslv3Pad1And2 returns SSL 3.0's two MAC padding sequences, sized per the
// underlying hash (48 bytes of 0x36/0x5c for MD5, 40 for SHA-1 and
// anything wider).
func sslv3Pad1And2(hashSize int) (pad1, pad2 []byte) {
	n := 40
	if hashSize == 16 {
		n = 48
	}
	pad1 = make([]byte, n)
	pad2 = make([]byte, n)
	for i := range pad1 {
		pad1[i] = 0x36
		pad2[i] = 0x5c
	}
	return pad1, pad2
}

// sslv3MAC computes SSL 3.0's MAC_SSL construction, never standardized as
// HMAC: hash(secret || pad2 || hash(secret || pad1 || seq_num || type ||
// length || fragment)). This engine only ever needs to verify it when
// tolerating an SSLv3 framed peer; it never negotiates SSL 3.0 itself as
// a record-protection version.
func sslv3MAC(cs *CipherState, ct ContentType, length int, fragment []byte) ([]byte, error) {
	inner, err := cs.suite.NewHash(cs.Hash)
	if err != nil {
		return nil, err
	}
	pad1, pad2 := sslv3Pad1And2(inner.Size())
	inner.Write(cs.MACKey)
	inner.Write(pad1)
	inner.Write(cs.seqBytes())
	inner.Write([]byte{byte(ct)})
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(length))
	inner.Write(l[:])
	inner.Write(fragment)
	innerSum := inner.Sum(nil)

	outer, err := cs.suite.NewHash(cs.Hash)
	if err != nil {
		return nil, err
	}
	outer.Write(cs.MACKey)
	outer.Write(pad2)
	outer.Write(innerSum)
	return outer.Sum(nil), nil
}

// computeMAC dispatches to the SSLv3 or HMAC-based construction depending
// on the cipher state's mode.
func computeMAC(cs *CipherState, ct ContentType, length int, fragment []byte) ([]byte, error) {
	if cs.Mode == ModeSSLv3MAC {
		return sslv3MAC(cs, ct, length, fragment)
	}
	return macPlaintext(cs, ct, length, fragment)
}

// cbcEncrypt runs CBC chaining by hand: cryptoprim.BlockCipher only
// exposes single-block Encrypt/Decrypt, mirroring the primitive surface
// the rest of this engine is built on.
func cbcEncrypt(block cryptoprim.BlockCipher, iv, plaintext []byte) []byte {
	bs := block.BlockSize()
	out := make([]byte, len(plaintext))
	prev := append([]byte(nil), iv...)
	for off := 0; off < len(plaintext); off += bs {
		chunk := make([]byte, bs)
		for i := 0; i < bs; i++ {
			chunk[i] = plaintext[off+i] ^ prev[i]
		}
		block.Encrypt(out[off:off+bs], chunk)
		prev = out[off : off+bs]
	}
	return out
}

func cbcDecrypt(block cryptoprim.BlockCipher, iv, ciphertext []byte) []byte {
	bs := block.BlockSize()
	out := make([]byte, len(ciphertext))
	prev := append([]byte(nil), iv...)
	plain := make([]byte, bs)
	for off := 0; off < len(ciphertext); off += bs {
		block.Decrypt(plain, ciphertext[off:off+bs])
		for i := 0; i < bs; i++ {
			out[off+i] = plain[i] ^ prev[i]
		}
		prev = append([]byte(nil), ciphertext[off:off+bs]...)
	}
	return out
}

// padCBC appends SSLv3/TLS-style CBC padding: the last byte is the
// padding length p, preceded by p bytes each holding value p, chosen so
// the total length becomes a block-size multiple.
func padCBC(data []byte, blockSize int) []byte {
	p := blockSize - (len(data)+1)%blockSize
	if p < 0 {
		p += blockSize
	}
	padded := append(data, make([]byte, p+1)...)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(p)
	}
	return padded
}

// unpadCBC strips and validates TLS/SSLv3 CBC padding. It runs in
// non-constant time deliberately kept simple; the padding-oracle
// resistant part of this engine's threat model is the MAC check in
// Open, not the unpad step — on the MAC-then-encrypt path Open still
// computes a MAC when the pad is invalid, and an invalid pad and a
// forged MAC both collapse to the same bad_record_mac outcome.
func unpadCBC(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}
	p := int(data[len(data)-1])
	if p+1 > len(data) {
		return nil, errBadPadding
	}
	for i := len(data) - 1 - p; i < len(data); i++ {
		if data[i] != byte(p) {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-p-1], nil
}
