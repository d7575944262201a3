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

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Aliases:   []string{"x"},
		Usage:     "Extract an archive into a directory",
		ArgsUsage: "<archive> <destination>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "overwrite",
				Value: true,
				Usage: "Replace existing files",
			},
			&cli.BoolFlag{
				Name:  "chown",
				Usage: "Apply recorded ownership (default when running as root)",
			},
			&cli.BoolFlag{
				Name:  "keep-going",
				Usage: "Continue past non-fatal errors",
			},
			&cli.StringSliceFlag{
				Name:  "prefix",
				Usage: "Only extract entries below this path (can be repeated)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) (err error) {
			logger := getLogger(ctx)
			fsys := afero.NewOsFs()

			if command.Args().Len() != 2 {
				return errors.New("an archive path and a destination are required")
			}
			path, dest := command.Args().Get(0), command.Args().Get(1)

			cfg, err := loadConfig(fsys, command)
			if err != nil {
				return err
			}
			opts := append([]sarchive.ExtractOption{sarchive.ExtractWithFs(fsys)}, cfg.ExtractOptions()...)
			if command.IsSet("overwrite") {
				opts = append(opts, sarchive.ExtractWithOverwrite(command.Bool("overwrite")))
			}
			if command.IsSet("chown") {
				opts = append(opts, sarchive.ExtractWithOwnership(command.Bool("chown")))
			}

			a, err := openArchive(fsys, logger, path)
			if err != nil {
				return err
			}
			defer closeArchive(a, &err)
			if err := cfg.Apply(a); err != nil {
				return err
			}

			h := newExtractHandler(logger, command.StringSlice("prefix"), command.Bool("keep-going"))
			state, err := a.Extract(ctx, dest, h, opts...)
			if err != nil {
				return fmt.Errorf("failed to extract: %w", err)
			}

			logger.Info("extraction finished",
				zap.String("state", state.String()),
				zap.Int("extracted", h.extracted),
				zap.Int("errors", h.errors),
			)
			switch state {
			case sarchive.StateCancelled:
				return errors.New("extraction cancelled")
			case sarchive.StateFailed:
				return fmt.Errorf("extraction failed after %d error(s)", h.errors)
			}
			return nil
		},
	}
}

// extractHandler logs extraction progress and selects entries by prefix.
type extractHandler struct {
	logger    *zap.Logger
	prefixes  []string
	keepGoing bool
	extracted int
	errors    int
}

func newExtractHandler(logger *zap.Logger, prefixes []string, keepGoing bool) *extractHandler {
	return &extractHandler{logger: logger.Named("extract"), prefixes: prefixes, keepGoing: keepGoing}
}

func (h *extractHandler) ShouldProcessFile(e *sarchive.Entry) bool {
	if len(h.prefixes) == 0 {
		return true
	}
	p := e.Path()
	for _, prefix := range h.prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func (h *extractHandler) DidExtractFile(e *sarchive.Entry, path string) {
	h.extracted++
	h.logger.Debug("extracted", zap.String("entry", e.Path()), zap.String("path", path))
}

func (h *extractHandler) ShouldProceedAfterError(err error, severity sarchive.Severity) bool {
	h.errors++
	h.logger.Warn("extraction error",
		zap.Error(err),
		zap.Stringer("severity", severity),
		zap.Stringer("kind", sarchive.KindOf(err)),
	)
	return h.keepGoing
}
