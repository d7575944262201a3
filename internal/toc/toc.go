// Package toc defines the table of contents of a container and its on-disk
// framing: a fixed header, the zlib-compressed CBOR table of contents, the
// table-of-contents digest, the signature block, and finally the heap.
package toc

// Entry types as recorded in the table of contents.
const (
	TypeFile         = "file"
	TypeDirectory    = "directory"
	TypeSymlink      = "symlink"
	TypeFIFO         = "fifo"
	TypeSocket       = "socket"
	TypeBlockSpecial = "block special"
	TypeCharSpecial  = "character special"
	TypeWithout      = "without"
)

// TOC is the decoded table of contents.
type TOC struct {
	Created    int64             `cbor:"created,omitempty"`
	Options    map[string]string `cbor:"options,omitempty"`
	Files      []File            `cbor:"files,omitempty"`
	Documents  []Document        `cbor:"documents,omitempty"`
	Signatures []Signature       `cbor:"signatures,omitempty"`
}

// Property is one serialized property with its attributes.
type Property struct {
	Value      string            `cbor:"v,omitempty"`
	HasValue   bool              `cbor:"h,omitempty"`
	Attributes map[string]string `cbor:"a,omitempty"`
}

// File is one node of the entry tree.
type File struct {
	ID         uint64              `cbor:"id"`
	Name       string              `cbor:"name"`
	Path       string              `cbor:"path,omitempty"`
	Type       string              `cbor:"type"`
	Mode       uint32              `cbor:"mode"`
	Size       uint64              `cbor:"size,omitempty"`
	Properties map[string]Property `cbor:"props,omitempty"`
	Data       *Data               `cbor:"data,omitempty"`
	Files      []File              `cbor:"files,omitempty"`
}

// Data references the heap block holding a file's content.
type Data struct {
	Offset            uint64 `cbor:"offset"`
	Length            uint64 `cbor:"length"`
	Size              uint64 `cbor:"size"`
	Encoding          string `cbor:"encoding"`
	Checksum          string `cbor:"checksum"`
	ArchivedChecksum  []byte `cbor:"archived,omitempty"`
	ExtractedChecksum []byte `cbor:"extracted,omitempty"`
}

// Document is an archive-level metadata record.
type Document struct {
	Name       string              `cbor:"name"`
	Properties map[string]Property `cbor:"props,omitempty"`
	Payload    []byte              `cbor:"payload,omitempty"`
}

// Signature records the signing style and certificate chain of one
// signature. The signature bytes themselves live in the signature block,
// since they cover the encoded table of contents.
type Signature struct {
	Style        string   `cbor:"style"`
	Certificates [][]byte `cbor:"certs,omitempty"`
}

// SignatureBlock holds the digest and signature produced for the
// Signature at the same index.
type SignatureBlock struct {
	Digest    []byte `cbor:"digest"`
	Signature []byte `cbor:"sig"`
}

// Walk calls fn for every file in pre-order. Returning false stops the walk.
func (t *TOC) Walk(fn func(path string, f *File) bool) {
	for i := range t.Files {
		if !walk("", &t.Files[i], fn) {
			return
		}
	}
}

func walk(prefix string, f *File, fn func(string, *File) bool) bool {
	path := f.Name
	if prefix == "" && f.Path != "" {
		path = f.Path
	}
	if prefix != "" {
		path = prefix + "/" + f.Name
	}
	if !fn(path, f) {
		return false
	}
	for i := range f.Files {
		if !walk(path, &f.Files[i], fn) {
			return false
		}
	}
	return true
}
