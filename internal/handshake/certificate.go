package handshake

import (
	"github.com/lanikai/tlsengine/internal/extension"
	"github.com/lanikai/tlsengine/internal/packet"
)

// CertificateEntry is one entry of the certificate_list. Extensions is
// always nil/empty in TLS 1.2, where Certificate carries no per-entry
// extensions.
type CertificateEntry struct {
	Data       []byte // DER-encoded certificate; X.509 parsing is out of scope (§1)
	Extensions *extension.Collection
}

// Certificate carries the sender's certificate chain. RequestContext is
// empty except when sent in response to a post-handshake
// CertificateRequest (not modeled by this engine, which only requests
// client auth during the initial handshake), and for the server's
// Certificate, which always has an empty context.
type Certificate struct {
	RequestContext []byte
	Entries        []CertificateEntry
	is13           bool
}

func parseCertificate(body []byte) (Message, error) {
	r := packet.NewReader(body)

	// A 1.2 Certificate has no request_context byte; disambiguate by
	// trying the 1.3 shape and falling back if the declared
	// certificate_list length doesn't line up with the remaining bytes.
	save := *r
	if ctx, err := r.GetVar(1); err == nil {
		afterCtx := *r
		if listLen, err2 := r.Get(3); err2 == nil && uint64(r.Remaining()) == listLen {
			*r = afterCtx
			entries, err3 := parseCertificateEntries(r, true)
			if err3 == nil {
				return Certificate{RequestContext: append([]byte(nil), ctx...), Entries: entries, is13: true}, nil
			}
		}
	}
	*r = save

	entries, err := parseCertificateEntries(r, false)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return Certificate{Entries: entries}, nil
}

func parseCertificateEntries(r *packet.Reader, withExtensions bool) ([]CertificateEntry, error) {
	list, err := r.GetVar(3)
	if err != nil {
		return nil, err
	}
	lr := packet.NewReader(list)
	var entries []CertificateEntry
	for lr.Remaining() > 0 {
		der, err := lr.GetVar(3)
		if err != nil {
			return nil, err
		}
		entry := CertificateEntry{Data: append([]byte(nil), der...)}
		if withExtensions {
			exts, err := parseExtensions(lr, extension.ContextCertificate)
			if err != nil {
				return nil, err
			}
			entry.Extensions = exts
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (m Certificate) MsgType() Type { return TypeCertificate }
func (m Certificate) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	if m.is13 {
		w.PutVar(1, m.RequestContext)
	}
	mark := w.BeginVector(3)
	for _, e := range m.Entries {
		w.PutVar(3, e.Data)
		if m.is13 {
			if e.Extensions != nil {
				if err := marshalExtensions(w, e.Extensions); err != nil {
					return nil, err
				}
			} else {
				w.WriteUint16(0)
			}
		}
	}
	w.EndVector(mark, 3)
	return marshalHeader(TypeCertificate, w.Bytes()), nil
}

// NewCertificate13 builds a TLS 1.3-form Certificate message.
func NewCertificate13(requestContext []byte, entries []CertificateEntry) Certificate {
	return Certificate{RequestContext: requestContext, Entries: entries, is13: true}
}

// DistinguishedName is one entry of a 1.2 CertificateRequest's
// certificate_authorities list.
type DistinguishedName = []byte

// CertificateRequest asks the peer to authenticate with a client
// certificate. The 1.2 and 1.3 wire forms differ (client certificate
// types + supported signature algorithms + DN list, vs. a bare context +
// extensions block); is13 picks which Marshal/parse shape applies.
type CertificateRequest struct {
	RequestContext          []byte // 1.3 only
	CertificateTypes        []uint8
	SupportedSignatureAlgs  []uint16
	CertificateAuthorities  []DistinguishedName
	Extensions              *extension.Collection // 1.3 only
	is13                    bool
}

func parseCertificateRequest(body []byte) (Message, error) {
	r := packet.NewReader(body)

	save := *r
	if ctx, err := r.GetVar(1); err == nil {
		exts, err2 := parseExtensions(r, extension.ContextCertificateRequest)
		if err2 == nil && r.Remaining() == 0 {
			return CertificateRequest{RequestContext: append([]byte(nil), ctx...), Extensions: exts, is13: true}, nil
		}
	}
	*r = save

	certTypes, err := r.GetVar(1)
	if err != nil {
		return nil, err
	}
	sigAlgs, err := r.GetVarTuple(2, 2)
	if err != nil {
		return nil, err
	}
	schemes := make([]uint16, len(sigAlgs))
	for i, b := range sigAlgs {
		schemes[i] = uint16(b[0])<<8 | uint16(b[1])
	}
	dnBlob, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	dnReader := packet.NewReader(dnBlob)
	var authorities []DistinguishedName
	for dnReader.Remaining() > 0 {
		dn, err := dnReader.GetVar(2)
		if err != nil {
			return nil, err
		}
		authorities = append(authorities, append([]byte(nil), dn...))
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return CertificateRequest{
		CertificateTypes:       append([]uint8(nil), certTypes...),
		SupportedSignatureAlgs: schemes,
		CertificateAuthorities: authorities,
	}, nil
}

func (m CertificateRequest) MsgType() Type { return TypeCertificateRequest }
func (m CertificateRequest) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	if m.is13 {
		w.PutVar(1, m.RequestContext)
		if m.Extensions != nil {
			if err := marshalExtensions(w, m.Extensions); err != nil {
				return nil, err
			}
		} else {
			w.WriteUint16(0)
		}
		return marshalHeader(TypeCertificateRequest, w.Bytes()), nil
	}

	w.PutVar(1, m.CertificateTypes)
	mark := w.BeginVector(2)
	for _, s := range m.SupportedSignatureAlgs {
		w.WriteUint16(s)
	}
	w.EndVector(mark, 2)
	dnMark := w.BeginVector(2)
	for _, dn := range m.CertificateAuthorities {
		w.PutVar(2, dn)
	}
	w.EndVector(dnMark, 2)
	return marshalHeader(TypeCertificateRequest, w.Bytes()), nil
}

// NewCertificateRequest13 builds a TLS 1.3-form CertificateRequest.
func NewCertificateRequest13(requestContext []byte, exts *extension.Collection) CertificateRequest {
	return CertificateRequest{RequestContext: requestContext, Extensions: exts, is13: true}
}

// CertificateVerify proves possession of the private key for the most
// recently sent Certificate.
type CertificateVerify struct {
	Algorithm uint16
	Signature []byte
}

func parseCertificateVerify(body []byte) (Message, error) {
	r := packet.NewReader(body)
	alg, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	sig, err := r.GetVar(2)
	if err != nil {
		return nil, err
	}
	if err := r.ExpectEmpty(); err != nil {
		return nil, err
	}
	return CertificateVerify{Algorithm: alg, Signature: append([]byte(nil), sig...)}, nil
}

func (m CertificateVerify) MsgType() Type { return TypeCertificateVerify }
func (m CertificateVerify) Marshal() ([]byte, error) {
	w := packet.NewWriter()
	w.WriteUint16(m.Algorithm)
	w.PutVar(2, m.Signature)
	return marshalHeader(TypeCertificateVerify, w.Bytes()), nil
}
