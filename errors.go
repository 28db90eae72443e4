package tlsengine

import (
	"fmt"

	"github.com/pkg/errors"
)

// AlertKind is the error taxonomy surfaced to callers (§6), each one
// mapping onto a TLS alert description this engine sends or received
// from the peer.
type AlertKind int

const (
	AlertClosedConnection AlertKind = iota
	AlertAbruptClose
	AlertProtocolVersion
	AlertInsufficientSecurity
	AlertHandshakeFailure
	AlertIllegalParameter
	AlertDecodeError
	AlertUnexpectedMessage
	AlertRecordOverflow
	AlertDecryptionFailed
	AlertBadRecordMAC
	AlertUnknownPSKIdentity
	AlertFingerprintMismatch
	AlertAuthenticationFailure
	AlertAuthorizationFailure
	AlertDecryptError
	AlertNoRenegotiation
	AlertInternalError
)

func (k AlertKind) String() string {
	switch k {
	case AlertClosedConnection:
		return "closed_connection"
	case AlertAbruptClose:
		return "abrupt_close"
	case AlertProtocolVersion:
		return "protocol_version"
	case AlertInsufficientSecurity:
		return "insufficient_security"
	case AlertHandshakeFailure:
		return "handshake_failure"
	case AlertIllegalParameter:
		return "illegal_parameter"
	case AlertDecodeError:
		return "decode_error"
	case AlertUnexpectedMessage:
		return "unexpected_message"
	case AlertRecordOverflow:
		return "record_overflow"
	case AlertDecryptionFailed:
		return "decryption_failed"
	case AlertBadRecordMAC:
		return "bad_record_mac"
	case AlertUnknownPSKIdentity:
		return "unknown_psk_identity"
	case AlertFingerprintMismatch:
		return "fingerprint_mismatch"
	case AlertAuthenticationFailure:
		return "authentication_failure"
	case AlertAuthorizationFailure:
		return "authorization_failure"
	case AlertDecryptError:
		return "decrypt_error"
	case AlertNoRenegotiation:
		return "no_renegotiation"
	case AlertInternalError:
		return "internal_error"
	default:
		return "unknown_alert"
	}
}

// TlsError is the single error sum type every internal package and the
// public API funnels through. Msg is a free-text diagnostic; Err, when
// non-nil, is the underlying cause (a decode error, a crypto failure, an
// I/O error) Unwrap exposes for errors.Is/errors.As. Resumable records
// §7's per-category resumability rule: false for every local-fatal error
// and every non-close_notify remote alert, true for a local warning or a
// peer close_notify.
type TlsError struct {
	Alert     AlertKind
	Msg       string
	Err       error
	Resumable bool
}

func (e *TlsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tlsengine: %s: %s: %v", e.Alert, e.Msg, e.Err)
	}
	return fmt.Sprintf("tlsengine: %s: %s", e.Alert, e.Msg)
}

func (e *TlsError) Unwrap() error { return e.Err }

// fatal builds a local-fatal TlsError (§7 category 1): a protocol
// invariant the peer or a crypto failure violated. The caller's shutdown
// path sends alert as a fatal-level TLS alert and marks the session
// non-resumable. errors.WithStack attaches a call stack for diagnostics
// without changing what errors.Is/errors.As see.
func fatal(alert AlertKind, format string, args ...interface{}) error {
	return errors.WithStack(&TlsError{Alert: alert, Msg: fmt.Sprintf(format, args...)})
}

// fatalWrap is fatal but preserving an underlying cause for Unwrap.
func fatalWrap(alert AlertKind, err error, format string, args ...interface{}) error {
	return errors.WithStack(&TlsError{Alert: alert, Msg: fmt.Sprintf(format, args...), Err: err})
}

// warning builds a local-warning TlsError (§7 category 2): disallowed
// renegotiation or a polite close. The session remains resumable.
func warning(alert AlertKind, format string, args ...interface{}) error {
	return &TlsError{Alert: alert, Msg: fmt.Sprintf(format, args...), Resumable: true}
}

// remoteAlert builds a TlsError representing an alert the peer sent
// (§7 category 3). isWarning controls whether the session remains
// resumable (true only for close_notify).
func remoteAlert(kind AlertKind, isWarning bool, description string) error {
	return &TlsError{Alert: kind, Msg: "peer sent alert: " + description, Resumable: isWarning}
}
