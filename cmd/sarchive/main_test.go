package main

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sarchive/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(context.Background(), append([]string{"sarchive", "--log-level", "error"}, args...))
	return out.String(), err
}

func writePEM(t *testing.T, path, typ string, der []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}), 0o600))
}

func TestCreateListExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("readme"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "a.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "b.txt"), []byte("same"), 0o644))
	notes := filepath.Join(dir, "notes.xml")
	require.NoError(t, os.WriteFile(notes, []byte("<notes/>"), 0o644))

	cert, key := testutil.SelfSigned(t, "cli signer")
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	certPath, keyPath := filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
	writePEM(t, certPath, "CERTIFICATE", cert.Raw)
	writePEM(t, keyPath, "PRIVATE KEY", keyDER)

	cfgPath := filepath.Join(dir, "sarchive.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("compression: zstd\ncoalesce: true\n"), 0o644))

	archive := filepath.Join(dir, "out", "project.sar")
	_, err = run(t, "--config", cfgPath, "create",
		"--checksum", "sha256", "--doc", "notes="+notes, "--cert", certPath, "--key", keyPath,
		archive, src)
	require.NoError(t, err)

	out, err := run(t, "list", archive)
	require.NoError(t, err)
	assert.Equal(t, "project\nproject/README\nproject/lib\nproject/lib/a.txt\nproject/lib/b.txt\n", out)

	out, err = run(t, "list", "--long", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "sha256:")
	assert.Contains(t, out, "zstd")
	assert.Contains(t, out, "5 entries, 14 bytes, 1 documents, 1 signatures")

	out, err = run(t, "docs", archive)
	require.NoError(t, err)
	assert.Equal(t, "notes\t8\n", out)
	out, err = run(t, "docs", archive, "notes")
	require.NoError(t, err)
	assert.Equal(t, "<notes/>", out)

	out, err = run(t, "verify", archive)
	require.NoError(t, err)
	assert.Equal(t, "OK 5 entries, 1 signatures\n", out)

	dest := filepath.Join(dir, "dest")
	_, err = run(t, "extract", "--chown=false", "--prefix", "project/lib", archive, dest)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dest, "project", "lib", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "same", string(got))
	_, err = os.Stat(filepath.Join(dest, "project", "README"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateRequiresSources(t *testing.T) {
	_, err := run(t, "create", filepath.Join(t.TempDir(), "a.sar"))
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("compression: rar\n"), 0o644))

	_, err := run(t, "--config", cfgPath, "create", filepath.Join(dir, "a.sar"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed 'oneof' validation")
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(src, []byte("content to be damaged"), 0o644))
	archive := filepath.Join(dir, "a.sar")
	_, err := run(t, "create", "--compression", "none", archive, src)
	require.NoError(t, err)

	raw, err := os.ReadFile(archive)
	require.NoError(t, err)
	i := bytes.Index(raw, []byte("content to be damaged"))
	require.GreaterOrEqual(t, i, 0)
	raw[i] ^= 0xff
	require.NoError(t, os.WriteFile(archive, raw, 0o644))

	out, err := run(t, "verify", archive)
	require.Error(t, err)
	assert.Contains(t, out, "FAILED data")
}
