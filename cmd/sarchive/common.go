package main

import (
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/meigma/sarchive"
	"github.com/meigma/sarchive/internal/config"
)

// loadConfig returns the configuration named by --config, or an empty one.
func loadConfig(fsys afero.Fs, command *cli.Command) (*config.File, error) {
	path := command.String("config")
	if path == "" {
		return &config.File{}, nil
	}
	f, err := config.Load(fsys, path)
	if err != nil {
		return nil, formatValidationError(err)
	}
	return f, nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("config has %d validation error(s):", len(validationErrs)))
		for _, fe := range validationErrs {
			sb.WriteString(fmt.Sprintf("\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			if fe.Param() != "" {
				sb.WriteString(fmt.Sprintf(" (param: %s)", fe.Param()))
			}
		}
		return errors.New(sb.String())
	}
	return err
}

func openArchive(fsys afero.Fs, logger *zap.Logger, path string) (*sarchive.Archive, error) {
	a, err := sarchive.Open(path, sarchive.WithFs(fsys), sarchive.WithLogger(slogger(logger)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return a, nil
}

// closeArchive closes a and reports its error through errp unless an
// earlier error is already there.
func closeArchive(a *sarchive.Archive, errp *error) {
	if err := a.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("failed to close archive: %w", err)
	}
}

// contentDigest formats the recorded checksum of e as algorithm:hex.
func contentDigest(e *sarchive.Entry) string {
	kind, sum, ok := e.Checksum()
	if !ok || kind == sarchive.ChecksumNone {
		return "-"
	}
	return digest.NewDigestFromEncoded(digest.Algorithm(kind.String()), hex.EncodeToString(sum)).String()
}

// loadIdentity reads a PEM certificate chain (leaf first) and a PEM private key.
func loadIdentity(fsys afero.Fs, certPath, keyPath string) (*sarchive.X509Identity, error) {
	certPEM, err := afero.ReadFile(fsys, certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	var chain []*x509.Certificate
	for block, rest := pem.Decode(certPEM); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificate found in %s", certPath)
	}

	keyPEM, err := afero.ReadFile(fsys, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", keyPath)
	}
	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key %s: %w", keyPath, err)
	}
	return &sarchive.X509Identity{Chain: chain, Key: key}, nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("key type %T cannot sign", key)
		}
		return signer, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}
