package sarchive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesUnsetRemoves(t *testing.T) {
	t.Parallel()

	var p Properties
	p.Set("x", "v")
	v, ok := p.Value("x")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	p.Unset("x")
	_, ok = p.Value("x")
	assert.False(t, ok)
	assert.False(t, p.Has("x"))
	assert.Zero(t, p.Len())
}

func TestPropertiesMissingIsAbsent(t *testing.T) {
	t.Parallel()

	var p Properties
	_, ok := p.Value("missing")
	assert.False(t, ok)
	_, ok = p.Attribute("missing", "attr")
	assert.False(t, ok)
	assert.Nil(t, p.Attributes("missing"))
	p.Unset("missing")
	p.UnsetAttribute("missing", "attr")
	assert.Zero(t, p.Len())
}

func TestPropertiesAttributes(t *testing.T) {
	t.Parallel()

	var p Properties
	p.SetAttribute("device", "major", "8")
	p.SetAttribute("device", "minor", "1")
	assert.True(t, p.Has("device"))
	_, ok := p.Value("device")
	assert.False(t, ok, "attributes do not create a value")

	// Unsetting the value keeps a property that still has attributes.
	p.Set("device", "sda1")
	p.Unset("device")
	require.True(t, p.Has("device"))
	assert.Equal(t, map[string]string{"major": "8", "minor": "1"}, p.Attributes("device"))

	p.UnsetAttribute("device", "major")
	p.UnsetAttribute("device", "minor")
	assert.False(t, p.Has("device"))
}

func TestPropertiesAttributesCopy(t *testing.T) {
	t.Parallel()

	var p Properties
	p.SetAttribute("a", "k", "v")
	attrs := p.Attributes("a")
	attrs["k"] = "changed"

	v, _ := p.Attribute("a", "k")
	assert.Equal(t, "v", v)
}

func TestPropertiesNamesSorted(t *testing.T) {
	t.Parallel()

	var p Properties
	for _, name := range []string{"c", "a", "b"} {
		p.Set(name, name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, p.Names())
}

func TestPropertiesEncodeFilter(t *testing.T) {
	t.Parallel()

	var p Properties
	p.Set("keep", "1")
	p.Set("drop", "2")
	p.SetAttribute("attr-only", "k", "v")

	enc := p.encode(func(name string) bool { return name != "drop" })
	assert.Len(t, enc, 2)

	back := decodeProperties(enc)
	v, ok := back.Value("keep")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.False(t, back.Has("drop"))
	_, ok = back.Value("attr-only")
	assert.False(t, ok)
	got, _ := back.Attribute("attr-only", "k")
	assert.Equal(t, "v", got)
}
