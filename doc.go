// Package sarchive builds, inspects and extracts hierarchical archive
// containers.
//
// A container holds a tree of entries (files, directories, symbolic links
// and special nodes), archive-level documents, and optional signatures over
// its table of contents. Entry content lives in a heap of checksummed,
// optionally compressed blocks.
//
// Containers consist of:
//   - Header: magic, version and table of contents sizes
//   - Table of contents: zlib-compressed CBOR describing every entry, document and signature
//   - Signature block: digest and signature bytes for each signature
//   - Heap: concatenated content blocks referenced by offset and length
//
// # Building
//
//	a, err := sarchive.Create("out.sar")
//	if err != nil {
//	    return err
//	}
//	a.SetOptionValue(sarchive.OptionCompression, "zstd")
//	a.SetBoolOption(sarchive.OptionCoalesce, true)
//	dir, _ := a.AddFolderWithName("docs", nil, nil)
//	_, err = a.AddFileWithName("readme.txt", []byte("hello"), dir)
//	if err != nil {
//	    return err
//	}
//	return a.Close() // writes the container
//
// # Extracting
//
//	a, err := sarchive.Open("out.sar")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	state, err := a.Extract(ctx, "dest", sarchive.HandlerFuncs{
//	    OnError: func(err error, sev sarchive.Severity) bool {
//	        return sev < sarchive.SeverityNonFatal
//	    },
//	})
//
// Only one extraction runs per archive at a time; Cancel stops a running
// extraction before its next entry.
package sarchive
