package sarchive

import (
	"maps"
	"slices"

	"github.com/meigma/sarchive/internal/toc"
)

// Well-known property names recorded for entries added from a filesystem.
const (
	PropertyUID    = "uid"
	PropertyGID    = "gid"
	PropertyUser   = "user"
	PropertyGroup  = "group"
	PropertyMtime  = "mtime"
	PropertyLink   = "link"
	PropertyDevice = "device"

	// AttributeMajor and AttributeMinor are attributes of PropertyDevice.
	AttributeMajor = "major"
	AttributeMinor = "minor"
)

// Properties is a two-level metadata store: property name to value, and
// (property name, attribute name) to value.
//
// A property exists while it has a value or at least one attribute. Reading
// a missing property or attribute reports absence, never an error. There is
// no inheritance: an entry's Properties never consult its ancestors.
//
// The zero value is an empty store ready for use.
type Properties struct {
	m map[string]*property
}

type property struct {
	value    string
	hasValue bool
	attrs    map[string]string
}

func (p *property) empty() bool {
	return !p.hasValue && len(p.attrs) == 0
}

// Value returns the value of a property.
func (p *Properties) Value(name string) (string, bool) {
	prop, ok := p.m[name]
	if !ok || !prop.hasValue {
		return "", false
	}
	return prop.value, true
}

// Set sets the value of a property.
func (p *Properties) Set(name, value string) {
	prop := p.get(name)
	prop.value = value
	prop.hasValue = true
}

// Unset makes the value of a property absent. The property itself is removed
// unless it still carries attributes.
func (p *Properties) Unset(name string) {
	prop, ok := p.m[name]
	if !ok {
		return
	}
	prop.value, prop.hasValue = "", false
	p.prune(name, prop)
}

// Attribute returns the value of an attribute of a property.
func (p *Properties) Attribute(name, attr string) (string, bool) {
	prop, ok := p.m[name]
	if !ok {
		return "", false
	}
	v, ok := prop.attrs[attr]
	return v, ok
}

// SetAttribute sets an attribute of a property, creating the property if needed.
func (p *Properties) SetAttribute(name, attr, value string) {
	prop := p.get(name)
	if prop.attrs == nil {
		prop.attrs = make(map[string]string)
	}
	prop.attrs[attr] = value
}

// UnsetAttribute removes an attribute of a property.
func (p *Properties) UnsetAttribute(name, attr string) {
	prop, ok := p.m[name]
	if !ok {
		return
	}
	delete(prop.attrs, attr)
	p.prune(name, prop)
}

// Attributes returns a copy of the attributes of a property.
func (p *Properties) Attributes(name string) map[string]string {
	prop, ok := p.m[name]
	if !ok || len(prop.attrs) == 0 {
		return nil
	}
	return maps.Clone(prop.attrs)
}

// Has reports whether a property exists.
func (p *Properties) Has(name string) bool {
	_, ok := p.m[name]
	return ok
}

// Names returns the property names in sorted order.
func (p *Properties) Names() []string {
	return slices.Sorted(maps.Keys(p.m))
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	return len(p.m)
}

func (p *Properties) get(name string) *property {
	if p.m == nil {
		p.m = make(map[string]*property)
	}
	prop, ok := p.m[name]
	if !ok {
		prop = &property{}
		p.m[name] = prop
	}
	return prop
}

func (p *Properties) prune(name string, prop *property) {
	if prop.empty() {
		delete(p.m, name)
	}
}

// encode serializes the properties accepted by keep.
func (p *Properties) encode(keep func(string) bool) map[string]toc.Property {
	if len(p.m) == 0 {
		return nil
	}
	out := make(map[string]toc.Property, len(p.m))
	for name, prop := range p.m {
		if keep != nil && !keep(name) {
			continue
		}
		out[name] = toc.Property{
			Value:      prop.value,
			HasValue:   prop.hasValue,
			Attributes: maps.Clone(prop.attrs),
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeProperties(in map[string]toc.Property) Properties {
	var p Properties
	for name, tp := range in {
		if !tp.HasValue && len(tp.Attributes) == 0 {
			continue
		}
		prop := p.get(name)
		prop.value, prop.hasValue = tp.Value, tp.HasValue
		if len(tp.Attributes) > 0 {
			prop.attrs = maps.Clone(tp.Attributes)
		}
	}
	return p
}
