package record

import "errors"

// Sentinel errors this package returns. internal/state maps these (and
// any wrapped decode error from internal/packet) onto the appropriate
// tlsengine.AlertKind at the handshake driver's single shutdown
// boundary, per §7: this package has no dependency on the root package,
// to avoid an import cycle (the root package imports internal/record).
var (
	errShortHeader      = errors.New("record: truncated header")
	errRecordOverflow   = errors.New("record: declared length exceeds maximum")
	errBadRecordMAC     = errors.New("record: MAC verification failed")
	errBadPadding       = errors.New("record: invalid CBC padding")
	errDecryptionFailed = errors.New("record: AEAD open failed")
	errSequenceOverflow = errors.New("record: sequence number exhausted")
	errEmptyInnerPlain  = errors.New("record: TLS 1.3 inner plaintext has no content type")
	errUnknownMode      = errors.New("record: cipher state has no encryption mode set")
	errNoPendingState   = errors.New("record: no pending cipher state staged")
)
