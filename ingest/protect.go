package ingest

import (
	"io"
	"path"
	"strings"

	"github.com/StrongheartedX/onyx/parser"
)

// IsProtected reports whether the stream at its current position holds an
// encrypted document. Malformed input reports false. The stream position is
// restored before returning, even on error.
func IsProtected(rs io.ReadSeeker) bool {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	defer rs.Seek(start, io.SeekStart)

	data, err := io.ReadAll(rs)
	if err != nil {
		return false
	}
	protected, err := parser.Probe(data)
	if err != nil {
		return false
	}
	return protected
}

// IsProtectedFile gates IsProtected on the file name. Names with an
// extension other than .pdf report false without touching the stream;
// matching is case-insensitive. A name without an extension falls through
// to content probing rather than reporting false, so unnamed temp files
// still get a real answer.
func IsProtectedFile(name string, rs io.ReadSeeker) bool {
	return IsProtectedFileExt(name, path.Ext(name), rs)
}

// IsProtectedFileExt is IsProtectedFile with the extension supplied by the
// caller instead of derived from the name. An empty ext falls through to
// content probing.
func IsProtectedFileExt(name, ext string, rs io.ReadSeeker) bool {
	ext = strings.ToLower(ext)
	if ext != "" && ext != ".pdf" {
		return false
	}
	return IsProtected(rs)
}
