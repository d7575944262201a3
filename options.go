package sarchive

import (
	"maps"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/meigma/sarchive/internal/checksum"
	"github.com/meigma/sarchive/internal/encoding"
	"github.com/meigma/sarchive/internal/heap"
)

// Option keys understood by an Archive. Other keys are stored and persisted
// without interpretation.
const (
	OptionOwnership        = "ownership"
	OptionSaveSUID         = "savesuid"
	OptionTOCChecksum      = "toc-cksum"
	OptionFileChecksum     = "file-chksum"
	OptionCompression      = "compression"
	OptionIncludedProperty = "prop-include"
	OptionExcludedProperty = "prop-exclude"
	OptionReadSize         = "rsize"
	OptionCoalesce         = "coalesce"
	OptionLinkSame         = "linksame"
)

// Values of OptionOwnership.
const (
	OwnershipSymbolic = "symbolic"
	OwnershipNumeric  = "numeric"
)

// Canonical boolean option tokens.
const (
	True  = "true"
	False = "false"
)

// Defaults applied when the corresponding option is absent.
const (
	DefaultTOCChecksum  = checksum.SHA1
	DefaultFileChecksum = checksum.SHA1
	DefaultCompression  = encoding.Gzip
	DefaultReadSize     = heap.DefaultBufferSize
)

// MaxReadSize bounds OptionReadSize. Larger values are clamped.
const MaxReadSize = 1 << 20

// OptionValue returns the value stored for key. A closed archive has no
// options.
func (a *Archive) OptionValue(key string) (string, bool) {
	if a.checkOpen() != nil {
		return "", false
	}
	v, ok := a.options[key]
	return v, ok
}

// SetOptionValue stores value for key. Options can be changed on opened
// archives too; they then only affect extraction.
func (a *Archive) SetOptionValue(key, value string) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if a.options == nil {
		a.options = make(map[string]string)
	}
	a.options[key] = value
	return nil
}

// UnsetOption removes key.
func (a *Archive) UnsetOption(key string) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	delete(a.options, key)
	return nil
}

// BoolOption interprets the value of key as a boolean. Absent and
// unrecognized values are false.
func (a *Archive) BoolOption(key string) bool {
	v, ok := a.OptionValue(key)
	return ok && v == True
}

// SetBoolOption stores the canonical token for value under key.
func (a *Archive) SetBoolOption(key string, value bool) error {
	if value {
		return a.SetOptionValue(key, True)
	}
	return a.SetOptionValue(key, False)
}

// Options returns a copy of the option map, or nil once the archive is closed.
func (a *Archive) Options() map[string]string {
	if a.checkOpen() != nil {
		return nil
	}
	return maps.Clone(a.options)
}

// IncludeProperty adds name to the properties written to the container. Once
// any property is included, only included properties are written.
func (a *Archive) IncludeProperty(name string) error {
	return a.appendListOption(OptionIncludedProperty, name)
}

// ExcludeProperty stops name from being written to the container.
func (a *Archive) ExcludeProperty(name string) error {
	return a.appendListOption(OptionExcludedProperty, name)
}

func (a *Archive) appendListOption(key, name string) error {
	list := a.listOption(key)
	if lo.Contains(list, name) {
		return a.checkOpen()
	}
	return a.SetOptionValue(key, strings.Join(append(list, name), ","))
}

func (a *Archive) listOption(key string) []string {
	v, ok := a.options[key]
	if !ok {
		return nil
	}
	return lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}

// propertyFilter returns the export-time property filter, or nil to keep all.
func (a *Archive) propertyFilter() func(string) bool {
	include := a.listOption(OptionIncludedProperty)
	exclude := a.listOption(OptionExcludedProperty)
	if len(include) == 0 && len(exclude) == 0 {
		return nil
	}
	return func(name string) bool {
		if len(include) > 0 && !lo.Contains(include, name) {
			return false
		}
		return !lo.Contains(exclude, name)
	}
}

func (a *Archive) checksumOption(key string, def checksum.Kind) checksum.Kind {
	v, ok := a.options[key]
	if !ok {
		return def
	}
	k, err := checksum.Parse(v)
	if err != nil {
		a.log().Warn("unknown checksum option, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return k
}

func (a *Archive) compressionOption() encoding.Kind {
	v, ok := a.options[OptionCompression]
	if !ok {
		return DefaultCompression
	}
	k, err := encoding.Parse(v)
	if err != nil {
		a.log().Warn("unknown compression option, using default", "value", v, "default", DefaultCompression.String())
		return DefaultCompression
	}
	return k
}

func (a *Archive) readSize() int {
	v, ok := a.options[OptionReadSize]
	if !ok {
		return DefaultReadSize
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return DefaultReadSize
	}
	return min(n, MaxReadSize)
}
