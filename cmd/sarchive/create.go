package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/meigma/sarchive"
)

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create an archive from files and directories",
		ArgsUsage: "<archive> <source>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "compression",
				Usage: "Content compression (none, gzip, bzip2, lzma, xz, zstd, lz4)",
			},
			&cli.StringFlag{
				Name:  "checksum",
				Usage: "Content checksum (none, sha1, sha256, sha512, md5, blake3)",
			},
			&cli.StringFlag{
				Name:  "toc-checksum",
				Usage: "Table of contents checksum",
			},
			&cli.BoolFlag{
				Name:  "coalesce",
				Usage: "Store identical content once",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-property",
				Usage: "Property not written to the archive (can be repeated)",
			},
			&cli.StringSliceFlag{
				Name:  "doc",
				Usage: "Attach a document as name=path (can be repeated)",
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "PEM certificate chain used to sign the archive",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "PEM private key matching --cert",
			},
			&cli.BoolFlag{
				Name:  "leaf-only",
				Usage: "Store only the leaf certificate with the signature",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := getLogger(ctx)
			fsys := afero.NewOsFs()

			if command.Args().Len() < 2 {
				return errors.New("an archive path and at least one source are required")
			}
			path := command.Args().First()
			sources := command.Args().Tail()

			cfg, err := loadConfig(fsys, command)
			if err != nil {
				return err
			}

			a, err := sarchive.Create(path,
				sarchive.WithFs(fsys),
				sarchive.WithLogger(slogger(logger)),
				sarchive.WithOptions(cfg.ArchiveOptions()),
			)
			if err != nil {
				return fmt.Errorf("failed to create archive: %w", err)
			}

			if err := populate(ctx, command, fsys, a, sources); err != nil {
				_ = a.Close()          //nolint:errcheck // best-effort cleanup
				_ = fsys.Remove(path) //nolint:errcheck // best-effort cleanup
				return err
			}
			if err := a.Close(); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}

			logger.Info("archive written", zap.String("path", path), zap.Int("sources", len(sources)))
			return nil
		},
	}
}

func populate(ctx context.Context, command *cli.Command, fsys afero.Fs, a *sarchive.Archive, sources []string) error {
	for flag, key := range map[string]string{
		"compression":  sarchive.OptionCompression,
		"checksum":     sarchive.OptionFileChecksum,
		"toc-checksum": sarchive.OptionTOCChecksum,
	} {
		if !command.IsSet(flag) {
			continue
		}
		if err := a.SetOptionValue(key, command.String(flag)); err != nil {
			return fmt.Errorf("failed to set %s: %w", flag, err)
		}
	}
	if command.IsSet("coalesce") {
		if err := a.SetBoolOption(sarchive.OptionCoalesce, command.Bool("coalesce")); err != nil {
			return fmt.Errorf("failed to set coalesce: %w", err)
		}
	}
	for _, name := range command.StringSlice("exclude-property") {
		if err := a.ExcludeProperty(name); err != nil {
			return fmt.Errorf("failed to exclude property %s: %w", name, err)
		}
	}

	for _, src := range sources {
		if _, err := a.AddTree(ctx, src, nil); err != nil {
			return fmt.Errorf("failed to add %s: %w", src, err)
		}
	}

	for _, spec := range command.StringSlice("doc") {
		name, file, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid document %q: expected name=path", spec)
		}
		payload, err := afero.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", name, err)
		}
		doc, err := a.AddDocumentWithName(name)
		if err != nil {
			return fmt.Errorf("failed to add document %s: %w", name, err)
		}
		if err := doc.SetPayload(payload); err != nil {
			return fmt.Errorf("failed to add document %s: %w", name, err)
		}
	}

	certPath, keyPath := command.String("cert"), command.String("key")
	if certPath == "" && keyPath == "" {
		return nil
	}
	if certPath == "" || keyPath == "" {
		return errors.New("--cert and --key must be used together")
	}
	id, err := loadIdentity(fsys, certPath, keyPath)
	if err != nil {
		return err
	}
	if _, err := a.AddSignature(id, !command.Bool("leaf-only")); err != nil {
		return fmt.Errorf("failed to add signature: %w", err)
	}
	return nil
}
