package sarchive

import (
	"log/slog"
	"maps"

	"github.com/spf13/afero"
)

// Option configures an Archive.
type Option func(*Archive)

// WithFs sets the filesystem holding the container file.
// By default the OS filesystem is used.
func WithFs(fsys afero.Fs) Option {
	return func(a *Archive) {
		a.fs = fsys
	}
}

// WithSourceFs sets the filesystem that AddFile and AddTree read from.
// By default it is the container filesystem.
func WithSourceFs(fsys afero.Fs) Option {
	return func(a *Archive) {
		a.srcFs = fsys
	}
}

// WithLogger sets the logger for archive operations.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithProvider sets the crypto provider used for signatures.
// By default X509Provider is used.
func WithProvider(p Provider) Option {
	return func(a *Archive) {
		a.provider = p
	}
}

// WithOptions seeds the archive option map. For archives opened with Open,
// these override the persisted values.
func WithOptions(options map[string]string) Option {
	return func(a *Archive) {
		a.seed = maps.Clone(options)
	}
}

// WithMaxDecoderMemory limits the maximum memory used by the zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(a *Archive) {
		a.maxDecoderMemory = limit
	}
}

// ExtractOption configures Extract and Entry.ExtractTo.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	fs        afero.Fs
	overwrite bool
	ownership *bool
}

// ExtractWithFs sets the destination filesystem.
// By default the OS filesystem is used.
func ExtractWithFs(fsys afero.Fs) ExtractOption {
	return func(c *extractConfig) {
		c.fs = fsys
	}
}

// ExtractWithOverwrite controls replacing existing files.
// By default existing files are replaced.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithOwnership controls whether recorded owners are applied.
// By default owners are applied only when running as root.
func ExtractWithOwnership(apply bool) ExtractOption {
	return func(c *extractConfig) {
		c.ownership = &apply
	}
}

func newExtractConfig(opts []ExtractOption) extractConfig {
	cfg := extractConfig{overwrite: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	return cfg
}
