package sarchive

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

// Identity is an opaque reference to a signing identity, interpreted only by
// the Provider that issued it.
type Identity any

// Provider performs the cryptographic work behind archive signatures.
type Provider interface {
	// Style names the signature scheme, for example "x509".
	Style() string

	// Chain returns the DER certificate chain of id, leaf first.
	Chain(id Identity) ([][]byte, error)

	// Sign signs digest, a SHA-256 digest of the table of contents, with id.
	Sign(id Identity, digest []byte) ([]byte, error)

	// Verify reports whether signature over digest verifies against cert.
	Verify(cert, digest, signature []byte) (bool, error)
}

// ErrUnsupportedKey is returned by X509Provider for keys it cannot use.
var ErrUnsupportedKey = errors.New("sarchive: unsupported key type")

// X509Identity is the Identity understood by X509Provider.
type X509Identity struct {
	// Chain is the certificate chain, leaf first.
	Chain []*x509.Certificate

	// Key signs with the leaf certificate's public key.
	Key crypto.Signer
}

// X509Provider signs with X509Identity values using RSA PKCS #1 v1.5,
// ECDSA or Ed25519 keys.
type X509Provider struct{}

// Style implements Provider.
func (X509Provider) Style() string {
	return "x509"
}

// Chain implements Provider.
func (X509Provider) Chain(id Identity) ([][]byte, error) {
	xid, ok := id.(*X509Identity)
	if !ok || len(xid.Chain) == 0 {
		return nil, fmt.Errorf("%w: identity %T has no certificate chain", ErrInvalidState, id)
	}
	chain := make([][]byte, len(xid.Chain))
	for i, c := range xid.Chain {
		chain[i] = c.Raw
	}
	return chain, nil
}

// Sign implements Provider.
func (X509Provider) Sign(id Identity, digest []byte) ([]byte, error) {
	xid, ok := id.(*X509Identity)
	if !ok || xid.Key == nil {
		return nil, fmt.Errorf("%w: identity %T has no signing key", ErrInvalidState, id)
	}
	var opts crypto.SignerOpts = crypto.SHA256
	if _, ok := xid.Key.Public().(ed25519.PublicKey); ok {
		opts = crypto.Hash(0)
	}
	return xid.Key.Sign(rand.Reader, digest, opts)
}

// Verify implements Provider.
func (X509Provider) Verify(cert, digest, signature []byte) (bool, error) {
	c, err := x509.ParseCertificate(cert)
	if err != nil {
		return false, err
	}
	switch pub := c.PublicKey.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, signature) == nil, nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(pub, digest, signature), nil
	case ed25519.PublicKey:
		return ed25519.Verify(pub, digest, signature), nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}
