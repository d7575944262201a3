// Package config loads archive and extraction settings from YAML files.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"github.com/meigma/sarchive"
)

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// File is the document read from a configuration file. Zero values leave
// the corresponding archive option unset so the archive default applies.
type File struct {
	Compression  string `yaml:"compression" validate:"omitempty,oneof=none gzip bzip2 lzma xz zstd lz4"`
	FileChecksum string `yaml:"file-checksum" validate:"omitempty,oneof=none sha1 sha256 sha512 md5 blake3"`
	TOCChecksum  string `yaml:"toc-checksum" validate:"omitempty,oneof=none sha1 sha256 sha512 md5 blake3"`
	Ownership    string `yaml:"ownership" validate:"omitempty,oneof=symbolic numeric"`
	ReadSize     int    `yaml:"read-size" validate:"gte=0,lte=1048576"`

	SaveSUID *bool `yaml:"savesuid"`
	Coalesce *bool `yaml:"coalesce"`
	LinkSame *bool `yaml:"linksame"`

	IncludeProperties []string `yaml:"include-properties" validate:"dive,required,excludesall=0x2C"`
	ExcludeProperties []string `yaml:"exclude-properties" validate:"dive,required,excludesall=0x2C"`

	// Options are stored verbatim in the archive option map after the
	// typed fields above, so they can carry keys this package does not know.
	Options map[string]string `yaml:"options" validate:"dive,keys,required,endkeys"`

	Extract Extract `yaml:"extract"`
}

// Extract holds extraction settings.
type Extract struct {
	Overwrite *bool `yaml:"overwrite"`
	Chown     *bool `yaml:"chown"`
}

// Parse decodes and validates a YAML document. Unknown top-level keys are
// rejected; free-form keys belong under options.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := defaultValidator.Struct(f); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &f, nil
}

// Load reads and parses the file at path.
func Load(fsys afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ArchiveOptions returns the archive option map described by f.
func (f *File) ArchiveOptions() map[string]string {
	out := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	setBool := func(key string, value *bool) {
		if value == nil {
			return
		}
		out[key] = sarchive.False
		if *value {
			out[key] = sarchive.True
		}
	}

	set(sarchive.OptionCompression, f.Compression)
	set(sarchive.OptionFileChecksum, f.FileChecksum)
	set(sarchive.OptionTOCChecksum, f.TOCChecksum)
	set(sarchive.OptionOwnership, f.Ownership)
	if f.ReadSize > 0 {
		out[sarchive.OptionReadSize] = strconv.Itoa(f.ReadSize)
	}
	setBool(sarchive.OptionSaveSUID, f.SaveSUID)
	setBool(sarchive.OptionCoalesce, f.Coalesce)
	setBool(sarchive.OptionLinkSame, f.LinkSame)
	set(sarchive.OptionIncludedProperty, strings.Join(f.IncludeProperties, ","))
	set(sarchive.OptionExcludedProperty, strings.Join(f.ExcludeProperties, ","))

	for k, v := range f.Options {
		out[k] = v
	}
	return out
}

// Apply stores the options of f on a.
func (f *File) Apply(a *sarchive.Archive) error {
	for k, v := range f.ArchiveOptions() {
		if err := a.SetOptionValue(k, v); err != nil {
			return fmt.Errorf("apply option %s: %w", k, err)
		}
	}
	return nil
}

// ExtractOptions returns the extraction options described by f.
func (f *File) ExtractOptions() []sarchive.ExtractOption {
	var opts []sarchive.ExtractOption
	if f.Extract.Overwrite != nil {
		opts = append(opts, sarchive.ExtractWithOverwrite(*f.Extract.Overwrite))
	}
	if f.Extract.Chown != nil {
		opts = append(opts, sarchive.ExtractWithOwnership(*f.Extract.Chown))
	}
	return opts
}
