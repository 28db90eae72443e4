package state

import (
	"crypto"

	"github.com/lanikai/tlsengine/internal/kex"
	"github.com/lanikai/tlsengine/internal/psk"
	"github.com/lanikai/tlsengine/internal/ticket"
)

// CertificateProvider hands back the certificate chain (leaf first, DER
// encoded) and signing key this side of the handshake authenticates
// with. A client that was never asked for a certificate, or a server
// running an anonymous-DH/SRP suite, may leave this nil.
type CertificateProvider interface {
	Certificate() (chain [][]byte, signer crypto.Signer, err error)
}

// StaticCertificate is the common case: one fixed chain and key for the
// lifetime of the listener/dialer.
type StaticCertificate struct {
	Chain  [][]byte
	Signer crypto.Signer
}

func (s StaticCertificate) Certificate() (chain [][]byte, signer crypto.Signer, err error) {
	return s.Chain, s.Signer, nil
}

// PSKLookup resolves an offered external PSK identity (provisioned out
// of band, independent of ticket-based resumption) to its secret.
type PSKLookup func(identity []byte) (psk.Identity, bool)

// TicketSource is the subset of internal/ticket.Keyring the state
// machine needs: seal a fresh ticket payload, or open a presented one.
// Held as an interface so a server with TicketKeys == nil simply never
// offers resumption.
type TicketSource interface {
	Seal(s ticket.Session) ([]byte, error)
	Open(blob []byte) (ticket.Session, error)
}

// SRPVerifierLookup resolves a username to its stored SRP verifier, for
// the TLS_SRP_* suites. It is exactly kex.VerifierStore, restated here so
// callers configuring a Conn don't need to import internal/kex just to
// spell the type.
type SRPVerifierLookup = kex.VerifierStore
