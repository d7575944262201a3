package sarchive

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"slices"

	"github.com/meigma/sarchive/internal/toc"
)

// DigestAlgorithm is the digest signed by every signature.
const DigestAlgorithm = "sha256"

// Signature records one signing operation over the table of contents.
//
// The digest and signature bytes are produced when the archive is written
// and are read back from the container by Open; they are never recomputed.
type Signature struct {
	archive   *Archive
	identity  Identity
	style     string
	certs     [][]byte
	digest    []byte
	signature []byte
}

// Identity returns the identity the signature was created with. It is nil
// for signatures read from a container.
func (s *Signature) Identity() Identity {
	return s.identity
}

// Style returns the signature scheme.
func (s *Signature) Style() string {
	return s.style
}

// DigestAlgorithm returns the name of the signed digest.
func (s *Signature) DigestAlgorithm() string {
	return DigestAlgorithm
}

// Certificates returns the DER certificate chain in stored order.
func (s *Signature) Certificates() [][]byte {
	out := make([][]byte, len(s.certs))
	for i, c := range s.certs {
		out[i] = slices.Clone(c)
	}
	return out
}

// AddCertificate appends a DER certificate to the chain.
func (s *Signature) AddCertificate(der []byte) error {
	if s.archive == nil {
		return ErrClosed
	}
	if err := s.archive.checkWritable(); err != nil {
		return err
	}
	s.certs = append(s.certs, slices.Clone(der))
	return nil
}

// Verify reports whether cert is part of the stored chain.
func (s *Signature) Verify(cert []byte) bool {
	return slices.ContainsFunc(s.certs, func(c []byte) bool {
		return bytes.Equal(c, cert)
	})
}

// Digest returns the digest and signature bytes. It fails with ErrNotSigned
// until the archive has been written.
func (s *Signature) Digest() (digest, signature []byte, err error) {
	if s.signature == nil {
		return nil, nil, ErrNotSigned
	}
	return slices.Clone(s.digest), slices.Clone(s.signature), nil
}

// AddSignature records a signature by identity, produced when the archive is
// written. With includeCertificate false only the leaf certificate is kept.
func (a *Archive) AddSignature(identity Identity, includeCertificate bool) (*Signature, error) {
	if err := a.checkWritable(); err != nil {
		return nil, err
	}
	p := a.provider
	if p == nil {
		return nil, ErrNoProvider
	}
	chain, err := p.Chain(identity)
	if err != nil {
		return nil, fmt.Errorf("certificate chain: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty certificate chain", ErrInvalidState)
	}
	if !includeCertificate {
		chain = chain[:1]
	}
	s := &Signature{archive: a, identity: identity, style: p.Style(), certs: chain}
	a.signatures = append(a.signatures, s)
	return s, nil
}

// Signatures returns the signatures in the order they were added.
func (a *Archive) Signatures() []*Signature {
	if a.checkOpen() != nil {
		return nil
	}
	return slices.Clone(a.signatures)
}

// SignatureForCertificate returns the first signature whose chain contains
// cert, or nil.
func (a *Archive) SignatureForCertificate(cert []byte) *Signature {
	if a.checkOpen() != nil {
		return nil
	}
	for _, s := range a.signatures {
		if s.Verify(cert) {
			return s
		}
	}
	return nil
}

// VerifySignatures checks every stored signature against the table of
// contents of an opened archive.
func (a *Archive) VerifySignatures() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if a.provider == nil {
		return ErrNoProvider
	}
	want := sha256.Sum256(a.tocRaw)
	for i, s := range a.signatures {
		if s.signature == nil || len(s.certs) == 0 {
			return fmt.Errorf("%w: signature %d is incomplete", ErrSignatureInvalid, i)
		}
		if !bytes.Equal(s.digest, want[:]) {
			return fmt.Errorf("%w: signature %d digest does not match", ErrSignatureInvalid, i)
		}
		ok, err := a.provider.Verify(s.certs[0], s.digest, s.signature)
		if err != nil {
			return fmt.Errorf("%w: signature %d: %w", ErrSignatureInvalid, i, err)
		}
		if !ok {
			return fmt.Errorf("%w: signature %d", ErrSignatureInvalid, i)
		}
	}
	return nil
}

// sign produces the digest and signature bytes for every signature.
func (a *Archive) sign(raw []byte) ([]toc.SignatureBlock, error) {
	if len(a.signatures) == 0 {
		return nil, nil
	}
	digest := sha256.Sum256(raw)
	blocks := make([]toc.SignatureBlock, len(a.signatures))
	for i, s := range a.signatures {
		sig, err := a.provider.Sign(s.identity, digest[:])
		if err != nil {
			return nil, fmt.Errorf("sign with signature %d: %w", i, err)
		}
		s.digest = slices.Clone(digest[:])
		s.signature = sig
		blocks[i] = toc.SignatureBlock{Digest: s.digest, Signature: sig}
	}
	return blocks, nil
}

func (s *Signature) encode() toc.Signature {
	return toc.Signature{Style: s.style, Certificates: s.certs}
}
