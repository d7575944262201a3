package sarchive

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/meigma/sarchive/internal/toc"
)

// Document is a named metadata record attached to an archive rather than
// to an entry. Its payload is opaque to the archive.
type Document struct {
	archive *Archive
	name    string
	props   Properties
	payload []byte
}

// Name returns the document name.
func (d *Document) Name() string {
	return d.name
}

// SetName renames the document. It fails if another document already uses name.
func (d *Document) SetName(name string) error {
	a := d.archive
	if a == nil {
		return ErrClosed
	}
	if err := a.checkWritable(); err != nil {
		return err
	}
	if name == d.name {
		return nil
	}
	if name == "" {
		return fmt.Errorf("%w: empty document name", ErrInvalidName)
	}
	if _, ok := a.documents[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, name)
	}
	delete(a.documents, d.name)
	a.documents[name] = d
	d.name = name
	return nil
}

// Properties returns the document's metadata store.
func (d *Document) Properties() *Properties {
	return &d.props
}

// Payload returns the document payload.
func (d *Document) Payload() []byte {
	return d.payload
}

// SetPayload replaces the document payload.
func (d *Document) SetPayload(payload []byte) error {
	if d.archive == nil {
		return ErrClosed
	}
	if err := d.archive.checkWritable(); err != nil {
		return err
	}
	d.payload = slices.Clone(payload)
	return nil
}

// AddDocumentWithName creates an empty document. It fails with
// ErrDuplicateDocument if the name is taken.
func (a *Archive) AddDocumentWithName(name string) (*Document, error) {
	if err := a.checkWritable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty document name", ErrInvalidName)
	}
	if _, ok := a.documents[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, name)
	}
	d := &Document{archive: a, name: name}
	a.documents[name] = d
	return d, nil
}

// DocumentWithName returns the named document, or nil.
func (a *Archive) DocumentWithName(name string) *Document {
	if a.checkOpen() != nil {
		return nil
	}
	return a.documents[name]
}

// Documents returns all documents sorted by name.
func (a *Archive) Documents() []*Document {
	if a.checkOpen() != nil {
		return nil
	}
	return a.sortedDocuments()
}

func (a *Archive) sortedDocuments() []*Document {
	names := lo.Keys(a.documents)
	slices.Sort(names)
	return lo.Map(names, func(name string, _ int) *Document {
		return a.documents[name]
	})
}

func (d *Document) encode(keep func(string) bool) toc.Document {
	return toc.Document{
		Name:       d.name,
		Properties: d.props.encode(keep),
		Payload:    d.payload,
	}
}
