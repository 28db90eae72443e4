package keyschedule

import (
	"crypto"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
	"github.com/lanikai/tlsengine/internal/packet"
)

// HKDFExpandLabel implements RFC 8446 §7.1's HKDF-Expand-Label:
// HKDF-Expand(secret, HkdfLabel, length), where HkdfLabel is
// struct { uint16 length; opaque label<7..255> = "tls13 " + Label;
// opaque context<0..255> = Context; }.
func HKDFExpandLabel(suite cryptoprim.Suite, h crypto.Hash, secret []byte, label string, context []byte, length int) ([]byte, error) {
	w := packet.NewWriter()
	w.WriteUint16(uint16(length))
	w.PutVar(1, append([]byte("tls13 "), label...))
	w.PutVar(1, context)
	return suite.HKDFExpand(h, secret, w.Bytes(), length)
}

// DeriveSecret implements RFC 8446 §7.1's Derive-Secret(Secret, Label,
// Messages) = HKDF-Expand-Label(Secret, Label, Transcript-Hash(Messages),
// Hash.length). messageTranscriptHash is the caller-supplied digest over
// whichever message range the label calls for.
func DeriveSecret(suite cryptoprim.Suite, h crypto.Hash, secret []byte, label string, messageTranscriptHash []byte) ([]byte, error) {
	return HKDFExpandLabel(suite, h, secret, label, messageTranscriptHash, hashLen(h))
}

func hashLen(h crypto.Hash) int {
	switch h {
	case crypto.SHA256:
		return 32
	case crypto.SHA384:
		return 48
	case crypto.SHA512:
		return 64
	default:
		return h.Size()
	}
}

// Schedule13 holds every secret this engine's TLS 1.3 key schedule
// produces, named after RFC 8446 §7.1's key schedule diagram. Callers
// derive it incrementally as each transcript point is reached; fields
// are populated in the order early → handshake → master as the
// handshake progresses, matching the diagram's top-to-bottom flow.
type Schedule13 struct {
	suite cryptoprim.Suite
	hash  crypto.Hash

	EarlySecret      []byte
	BinderKeyExt     []byte
	BinderKeyRes     []byte
	ClientEarlyTraffic []byte
	EarlyExporterMaster []byte

	HandshakeSecret  []byte
	ClientHSTraffic  []byte
	ServerHSTraffic  []byte

	MasterSecret       []byte
	ClientAppTraffic   []byte
	ServerAppTraffic   []byte
	ExporterMaster     []byte
	ResumptionMaster   []byte
}

// NewSchedule13 starts a key schedule for the given cipher suite hash.
func NewSchedule13(suite cryptoprim.Suite, h crypto.Hash) *Schedule13 {
	return &Schedule13{suite: suite, hash: h}
}

// zeros returns a hash-length all-zero buffer, used as the Early_Secret
// salt, the absent-PSK IKM for Early_Secret, the absent-DHE IKM for
// Handshake_Secret, and the IKM for Master_Secret.
func (s *Schedule13) zeros() []byte {
	return make([]byte, hashLen(s.hash))
}

func (s *Schedule13) derive(secret []byte, label string, transcriptHash []byte) ([]byte, error) {
	return DeriveSecret(s.suite, s.hash, secret, label, transcriptHash)
}

// DeriveEarlySecret computes Early_Secret from the resumption PSK (or no
// PSK at all, in which case psk should be a hash-length zero buffer) and
// the binder keys derived from it. emptyTranscriptHash is
// Transcript-Hash("") for this suite's hash, needed by the "derived"
// label's empty-context convention.
func (s *Schedule13) DeriveEarlySecret(psk []byte, emptyTranscriptHash []byte) error {
	if psk == nil {
		psk = s.zeros()
	}
	s.EarlySecret = s.suite.HKDFExtract(s.hash, s.zeros(), psk)
	log.Debug("derived early secret")

	binderExt, err := s.derive(s.EarlySecret, "ext binder", emptyTranscriptHash)
	if err != nil {
		return err
	}
	binderRes, err := s.derive(s.EarlySecret, "res binder", emptyTranscriptHash)
	if err != nil {
		return err
	}
	s.BinderKeyExt, s.BinderKeyRes = binderExt, binderRes
	return nil
}

// DeriveHandshakeSecret computes Handshake_Secret and the two
// handshake traffic secrets from the (EC)DHE shared secret and the
// transcript hash through ServerHello.
func (s *Schedule13) DeriveHandshakeSecret(dheShared []byte, transcriptThroughServerHello, emptyTranscriptHash []byte) error {
	if dheShared == nil {
		dheShared = s.zeros()
	}
	derivedSalt, err := s.derive(s.EarlySecret, "derived", emptyTranscriptHash)
	if err != nil {
		return err
	}
	s.HandshakeSecret = s.suite.HKDFExtract(s.hash, derivedSalt, dheShared)
	log.Debug("derived handshake secret")

	clientHS, err := s.derive(s.HandshakeSecret, "c hs traffic", transcriptThroughServerHello)
	if err != nil {
		return err
	}
	serverHS, err := s.derive(s.HandshakeSecret, "s hs traffic", transcriptThroughServerHello)
	if err != nil {
		return err
	}
	s.ClientHSTraffic, s.ServerHSTraffic = clientHS, serverHS
	return nil
}

// DeriveMasterSecret computes Master_Secret, the application traffic
// secrets, and the exporter master secret; the resumption master secret
// comes later, from DeriveResumptionMaster.
func (s *Schedule13) DeriveMasterSecret(transcriptThroughServerFinished, emptyTranscriptHash []byte) error {
	derivedSalt, err := s.derive(s.HandshakeSecret, "derived", emptyTranscriptHash)
	if err != nil {
		return err
	}
	s.MasterSecret = s.suite.HKDFExtract(s.hash, derivedSalt, s.zeros())
	log.Debug("derived master secret")

	clientAP, err := s.derive(s.MasterSecret, "c ap traffic", transcriptThroughServerFinished)
	if err != nil {
		return err
	}
	serverAP, err := s.derive(s.MasterSecret, "s ap traffic", transcriptThroughServerFinished)
	if err != nil {
		return err
	}
	exporter, err := s.derive(s.MasterSecret, "exp master", transcriptThroughServerFinished)
	if err != nil {
		return err
	}
	s.ClientAppTraffic, s.ServerAppTraffic, s.ExporterMaster = clientAP, serverAP, exporter
	return nil
}

// DeriveResumptionMaster computes resumption_master_secret once the
// client Finished has been processed; it feeds the PSKs offered in
// future NewSessionTicket messages (§4.9, §4.11/A7).
func (s *Schedule13) DeriveResumptionMaster(transcriptThroughClientFinished []byte) error {
	rm, err := s.derive(s.MasterSecret, "res master", transcriptThroughClientFinished)
	if err != nil {
		return err
	}
	s.ResumptionMaster = rm
	log.Debug("derived resumption master secret")
	return nil
}

// TrafficKeys is the per-direction {key, iv} pair the record layer
// installs for a traffic secret (RFC 8446 §7.3).
type TrafficKeys struct {
	Key []byte
	IV  []byte
}

// DeriveTrafficKeys expands a traffic secret into its AEAD key and IV.
func DeriveTrafficKeys(suite cryptoprim.Suite, h crypto.Hash, trafficSecret []byte, keyLen, ivLen int) (TrafficKeys, error) {
	key, err := HKDFExpandLabel(suite, h, trafficSecret, "key", nil, keyLen)
	if err != nil {
		return TrafficKeys{}, err
	}
	iv, err := HKDFExpandLabel(suite, h, trafficSecret, "iv", nil, ivLen)
	if err != nil {
		return TrafficKeys{}, err
	}
	return TrafficKeys{Key: key, IV: iv}, nil
}

// FinishedKey derives a Finished message's HMAC key from its traffic
// secret (RFC 8446 §4.4.4).
func FinishedKey(suite cryptoprim.Suite, h crypto.Hash, trafficSecret []byte) ([]byte, error) {
	return HKDFExpandLabel(suite, h, trafficSecret, "finished", nil, hashLen(h))
}

// FinishedVerifyData13 computes Finished.verify_data =
// HMAC(finished_key, Transcript-Hash(Messages)).
func FinishedVerifyData13(suite cryptoprim.Suite, h crypto.Hash, finishedKey, transcriptHash []byte) ([]byte, error) {
	mac, err := suite.HMAC(h, finishedKey)
	if err != nil {
		return nil, err
	}
	mac.Write(transcriptHash)
	return mac.Sum(nil), nil
}

// NextTrafficSecret implements KeyUpdate's ratchet (RFC 8446 §7.2):
// traffic_secret_N+1 = HKDF-Expand-Label(traffic_secret_N, "traffic upd", "", Hash.length).
func NextTrafficSecret(suite cryptoprim.Suite, h crypto.Hash, trafficSecret []byte) ([]byte, error) {
	return HKDFExpandLabel(suite, h, trafficSecret, "traffic upd", nil, hashLen(h))
}
