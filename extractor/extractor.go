// Package extractor pulls text, metadata, and embedded images out of a
// parsed document. Every routine is best effort: a page that cannot be
// decoded contributes an empty result instead of failing the run.
package extractor

import (
	"context"
	"errors"

	"github.com/StrongheartedX/onyx/object"
	"github.com/StrongheartedX/onyx/parser"
)

// ErrPageDecode wraps per-page failures reported by PageImages.
var ErrPageDecode = errors.New("page decode failed")

// Extractor exposes helper routines over a parsed document.
type Extractor struct {
	doc       *parser.Document
	fontCache map[object.Ref]*fontDecoder
}

// New creates an extractor backed by doc.
func New(doc *parser.Document) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	return &Extractor{doc: doc}, nil
}

// PageCount returns the number of pages discovered in the page tree.
func (e *Extractor) PageCount() int { return len(e.doc.Pages) }

func (e *Extractor) resolve(ctx context.Context, o object.Object) object.Object {
	return e.doc.Resolve(ctx, o)
}

func (e *Extractor) resolveDict(ctx context.Context, o object.Object) *object.Dict {
	d, _ := e.resolve(ctx, o).(*object.Dict)
	return d
}

// streamBytes resolves o to a stream and returns its decoded payload.
func (e *Extractor) streamBytes(ctx context.Context, o object.Object) []byte {
	st, _ := e.resolve(ctx, o).(*object.Stream)
	if st == nil {
		return nil
	}
	data, err := e.doc.StreamData(ctx, st)
	if err != nil {
		return nil
	}
	return data
}

// collectContentStreams gathers the decoded content streams referenced by a
// page's Contents entry, which may be a single stream or an array.
func (e *Extractor) collectContentStreams(ctx context.Context, contents object.Object) [][]byte {
	switch v := e.resolve(ctx, contents).(type) {
	case *object.Stream:
		data, err := e.doc.StreamData(ctx, v)
		if err != nil {
			return nil
		}
		return [][]byte{data}
	case *object.Array:
		var out [][]byte
		for _, item := range v.Items {
			out = append(out, e.collectContentStreams(ctx, item)...)
		}
		return out
	}
	return nil
}
