package sarchive

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sarchive/internal/testutil"
)

func ed25519Identity(t *testing.T) *X509Identity {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ed25519 signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &X509Identity{Chain: []*x509.Certificate{cert}, Key: key}
}

func TestSignatures(t *testing.T) {
	t.Parallel()

	cert, key := testutil.SelfSigned(t, "ecdsa signer")
	ecdsaID := &X509Identity{Chain: []*x509.Certificate{cert}, Key: key}
	edID := ed25519Identity(t)

	a, fsys := newTestArchive(t)
	_, err := a.AddFileWithName("f", []byte("signed content"), nil)
	require.NoError(t, err)

	first, err := a.AddSignature(ecdsaID, true)
	require.NoError(t, err)
	second, err := a.AddSignature(edID, true)
	require.NoError(t, err)
	assert.Equal(t, "x509", first.Style())
	assert.Equal(t, DigestAlgorithm, first.DigestAlgorithm())
	assert.Equal(t, ecdsaID, first.Identity())

	_, _, err = first.Digest()
	require.ErrorIs(t, err, ErrNotSigned)

	b := reopen(t, a, fsys)

	digest, sig, err := first.Digest()
	require.NoError(t, err)
	assert.Len(t, digest, 32)
	assert.NotEmpty(t, sig)
	_, _, err = second.Digest()
	require.NoError(t, err)

	require.Len(t, b.Signatures(), 2)
	require.NoError(t, b.VerifySignatures())

	got := b.SignatureForCertificate(cert.Raw)
	require.NotNil(t, got)
	assert.True(t, got.Verify(cert.Raw))
	assert.False(t, got.Verify(edID.Chain[0].Raw))
	assert.Nil(t, got.Identity())
	gotDigest, gotSig, err := got.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, gotDigest)
	assert.Equal(t, sig, gotSig)

	assert.Equal(t, b.Signatures()[1], b.SignatureForCertificate(edID.Chain[0].Raw))
	assert.Nil(t, b.SignatureForCertificate([]byte("not a certificate")))
}

func TestSignatureLeafOnly(t *testing.T) {
	t.Parallel()

	leaf, key := testutil.SelfSigned(t, "leaf")
	intermediate, _ := testutil.SelfSigned(t, "intermediate")
	id := &X509Identity{Chain: []*x509.Certificate{leaf, intermediate}, Key: key}

	a, fsys := newTestArchive(t)
	full, err := a.AddSignature(id, true)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{leaf.Raw, intermediate.Raw}, full.Certificates())

	short, err := a.AddSignature(id, false)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{leaf.Raw}, short.Certificates())
	require.NoError(t, short.AddCertificate(intermediate.Raw))
	assert.True(t, short.Verify(intermediate.Raw))

	b := reopen(t, a, fsys)
	require.NoError(t, b.VerifySignatures())
	assert.Len(t, b.Signatures()[1].Certificates(), 2)
	require.ErrorIs(t, b.Signatures()[0].AddCertificate(leaf.Raw), ErrReadOnly)
}

// rejectingProvider refuses every signature.
type rejectingProvider struct {
	X509Provider
}

func (rejectingProvider) Verify([]byte, []byte, []byte) (bool, error) {
	return false, nil
}

func TestVerifySignaturesRejects(t *testing.T) {
	t.Parallel()

	cert, key := testutil.SelfSigned(t, "signer")
	a, fsys := newTestArchive(t)
	_, err := a.AddSignature(&X509Identity{Chain: []*x509.Certificate{cert}, Key: key}, true)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(testPath, WithFs(fsys), WithProvider(rejectingProvider{}))
	require.NoError(t, err)
	defer b.Close()
	assert.ErrorIs(t, b.VerifySignatures(), ErrSignatureInvalid)
}

func TestAddSignatureInvalidIdentity(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	_, err := a.AddSignature("not an identity", true)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, a.Signatures())

	b, _ := newTestArchive(t, WithProvider(nil))
	_, err = b.AddSignature(&X509Identity{}, true)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestUnsignedArchiveVerifies(t *testing.T) {
	t.Parallel()

	a, fsys := newTestArchive(t)
	b := reopen(t, a, fsys)
	assert.Empty(t, b.Signatures())
	assert.NoError(t, b.VerifySignatures())
}
