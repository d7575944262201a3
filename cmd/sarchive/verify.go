package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check stored content against its checksums and verify signatures",
		ArgsUsage: "<archive>",
		Action: func(ctx context.Context, command *cli.Command) (err error) {
			logger := getLogger(ctx)
			path := command.Args().First()
			if path == "" {
				return errors.New("no archive provided")
			}

			a, err := openArchive(afero.NewOsFs(), logger, path)
			if err != nil {
				return err
			}
			defer closeArchive(a, &err)

			w := command.Root().Writer
			var bad int
			for e := range a.FileEnumerator().All() {
				if _, _, ok := e.Checksum(); !ok {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if !e.Verify() {
					bad++
					fmt.Fprintf(w, "FAILED %s\n", e.Path())
					logger.Warn("checksum mismatch", zap.String("entry", e.Path()))
				}
			}

			if err := a.VerifySignatures(); err != nil {
				return fmt.Errorf("signature check failed: %w", err)
			}
			if bad > 0 {
				return fmt.Errorf("%d entries failed verification", bad)
			}
			fmt.Fprintf(w, "OK %d entries, %d signatures\n", a.FileCount(), len(a.Signatures()))
			return nil
		},
	}
}
