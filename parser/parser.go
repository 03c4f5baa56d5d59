// Package parser turns bytes into a Document: the parsed trailer,
// cross-reference data, page sequence, and encryption state of one PDF. It
// is the only package that decides whether input is structurally a PDF at
// all; higher layers translate its errors into degraded results.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/StrongheartedX/onyx/filters"
	"github.com/StrongheartedX/onyx/object"
	"github.com/StrongheartedX/onyx/observability"
	"github.com/StrongheartedX/onyx/recovery"
	"github.com/StrongheartedX/onyx/security"
	"github.com/StrongheartedX/onyx/xref"
)

// ErrMalformed reports input whose structure cannot be parsed as a PDF:
// missing or unusable trailer, unreadable cross-reference data, or an
// unlocatable document catalog.
var ErrMalformed = errors.New("pdf: malformed document")

// Config controls parsing.
type Config struct {
	Password string
	Limits   security.Limits
	Recovery recovery.Strategy
	Logger   observability.Logger
}

// Encryption describes the document's encryption declaration and the outcome
// of the password attempt made while opening.
type Encryption struct {
	V, R, KeyBits int
	// Opened is true once a password attempt succeeded. It is set at most
	// once per Open; reopening with the same password is deterministic.
	Opened bool

	handler security.Handler
}

// Page is one element of the document's page sequence.
type Page struct {
	Index     int
	Dict      *object.Dict
	Resources *object.Dict // with page-tree inheritance applied
}

// Document is an opened, parsed PDF. It is owned by the call that created it
// and must not be shared across concurrent operations.
type Document struct {
	Trailer    *object.Dict
	Catalog    *object.Dict
	Info       *object.Dict
	Pages      []Page
	Version    string
	Encryption *Encryption

	data      []byte
	cfg       Config
	table     *xref.Table
	pipeline  *filters.Pipeline
	sec       security.Handler
	decryptOK bool
	cache     map[object.Ref]object.Object
	loading   map[object.Ref]bool
	objstm    map[int]map[int]object.Object
	encRef    *object.Ref
}

// Open parses data into a Document. A wrong or missing password is not an
// error here: the returned document carries an Encryption descriptor with
// Opened == false and its string/stream payloads stay undecrypted.
func Open(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	cfg.Limits = cfg.Limits.Merged()
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	pipeline := filters.NewPipeline(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize})

	table, err := xref.Resolve(data, xref.Config{
		MaxSections: cfg.Limits.MaxXRefSections,
		Recovery:    cfg.Recovery,
		Filters:     pipeline,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	trailer := table.Trailer()
	if trailer == nil {
		trailer = object.NewDict()
	}

	d := &Document{
		Trailer:  trailer,
		Version:  headerVersion(data),
		data:     data,
		cfg:      cfg,
		table:    table,
		pipeline: pipeline,
		sec:      security.NoopHandler(),
		cache:    make(map[object.Ref]object.Object),
		loading:  make(map[object.Ref]bool),
	}

	d.setupEncryption(ctx)

	if err := d.locateCatalog(ctx); err != nil {
		return nil, err
	}
	d.collectPages(ctx)
	d.loadInfo(ctx)
	return d, nil
}

// Probe reports whether data declares encryption, without loading objects
// beyond the trailer. Input that is not structurally a PDF yields an error
// wrapping ErrMalformed.
func Probe(data []byte) (bool, error) {
	table, err := xref.Resolve(data, xref.Config{})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	trailer := table.Trailer()
	if trailer == nil {
		return false, fmt.Errorf("%w: trailer not found", ErrMalformed)
	}
	enc, ok := trailer.Get("Encrypt")
	if !ok {
		return false, nil
	}
	if _, isNull := enc.(object.Null); isNull {
		return false, nil
	}
	return true, nil
}

// setupEncryption builds the security handler from the trailer's Encrypt
// dictionary and makes exactly one password attempt.
func (d *Document) setupEncryption(ctx context.Context) {
	encObj, ok := d.Trailer.Get("Encrypt")
	if !ok {
		return
	}
	if ref, ok := encObj.(object.Ref); ok {
		d.encRef = &ref
	}
	encDict, _ := d.Resolve(ctx, encObj).(*object.Dict)
	if encDict == nil {
		return
	}
	d.Encryption = &Encryption{}
	handler, err := security.NewHandler(encDict, trailerFileID(d.Trailer))
	if err != nil {
		// Declared encrypted with an unsupported scheme: report protection,
		// extraction degrades to empty.
		d.cfg.Logger.Warn("unsupported encryption scheme", observability.Error("err", err))
		return
	}
	d.Encryption.V, d.Encryption.R, d.Encryption.KeyBits = handler.Params()
	d.Encryption.handler = handler
	if err := handler.Authenticate(d.cfg.Password); err != nil {
		d.cfg.Logger.Warn("password attempt failed", observability.Error("err", err))
		return
	}
	d.Encryption.Opened = true
	d.sec = handler
	d.decryptOK = true
	// Drop anything cached before authentication so ciphertext never leaks
	// into decrypted reads.
	d.cache = make(map[object.Ref]object.Object)
}

func trailerFileID(trailer *object.Dict) []byte {
	idObj, ok := trailer.Get("ID")
	if !ok {
		return nil
	}
	arr, ok := idObj.(*object.Array)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.At(0).(object.String); ok {
		return s.Data
	}
	return nil
}

func (d *Document) locateCatalog(ctx context.Context) error {
	if rootObj, ok := d.Trailer.Get("Root"); ok {
		if dict, ok := d.Resolve(ctx, rootObj).(*object.Dict); ok {
			d.Catalog = dict
			return nil
		}
	}
	// Repaired documents may lack a usable Root; scan for a catalog object.
	for _, num := range d.table.Objects() {
		entry, _ := d.table.Lookup(num)
		if entry.Type == xref.EntryFree {
			continue
		}
		obj, err := d.Load(ctx, object.Ref{Num: num, Gen: entry.Gen})
		if err != nil {
			continue
		}
		if dict, ok := obj.(*object.Dict); ok {
			if typ, _ := dict.Name("Type"); typ == "Catalog" {
				d.Catalog = dict
				return nil
			}
		}
	}
	return fmt.Errorf("%w: document catalog not found", ErrMalformed)
}

// collectPages walks the page tree in order, applying Resources inheritance.
// Damaged subtrees are skipped; an empty tree is a valid document.
func (d *Document) collectPages(ctx context.Context) {
	pagesObj, ok := d.Catalog.Get("Pages")
	if !ok {
		return
	}
	visited := make(map[object.Ref]bool)
	d.walkPageNode(ctx, pagesObj, nil, visited, 0)
}

func (d *Document) walkPageNode(ctx context.Context, node object.Object, inherited *object.Dict, visited map[object.Ref]bool, depth int) {
	if depth > d.cfg.Limits.MaxPageTreeDepth {
		return
	}
	if ref, ok := node.(object.Ref); ok {
		if visited[ref] {
			return
		}
		visited[ref] = true
	}
	dict, ok := d.Resolve(ctx, node).(*object.Dict)
	if !ok {
		return
	}
	resources := inherited
	if res, ok := dict.Get("Resources"); ok {
		if resDict, ok := d.Resolve(ctx, res).(*object.Dict); ok {
			resources = resDict
		}
	}
	typ, _ := dict.Name("Type")
	if typ == "Page" {
		d.Pages = append(d.Pages, Page{Index: len(d.Pages), Dict: dict, Resources: resources})
		return
	}
	kidsObj, ok := dict.Get("Kids")
	if !ok {
		// Leaf without a declared Type: treat as a page if it has content.
		if _, hasContents := dict.Get("Contents"); hasContents {
			d.Pages = append(d.Pages, Page{Index: len(d.Pages), Dict: dict, Resources: resources})
		}
		return
	}
	kids, ok := d.Resolve(ctx, kidsObj).(*object.Array)
	if !ok {
		return
	}
	for _, kid := range kids.Items {
		d.walkPageNode(ctx, kid, resources, visited, depth+1)
	}
}

func (d *Document) loadInfo(ctx context.Context) {
	infoObj, ok := d.Trailer.Get("Info")
	if !ok {
		return
	}
	if dict, ok := d.Resolve(ctx, infoObj).(*object.Dict); ok {
		d.Info = dict
	}
}

// Resolve follows indirect references until a direct object is reached.
// Unresolvable references yield Null.
func (d *Document) Resolve(ctx context.Context, o object.Object) object.Object {
	for i := 0; i < d.cfg.Limits.MaxIndirectDepth; i++ {
		ref, ok := o.(object.Ref)
		if !ok {
			return o
		}
		loaded, err := d.Load(ctx, ref)
		if err != nil {
			return object.Null{}
		}
		o = loaded
	}
	return object.Null{}
}

// StreamData returns the decoded payload of a stream object: filters applied
// in order, stopping before terminal image codecs so image files reach the
// caller in their native encoding.
func (d *Document) StreamData(ctx context.Context, s *object.Stream) ([]byte, error) {
	names, parms := filters.Names(s.Dict, func(o object.Object) object.Object { return d.Resolve(ctx, o) })
	return d.pipeline.Decode(s.Raw, names, parms)
}

func headerVersion(data []byte) string {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return ""
	}
	rest := head[idx+5:]
	end := 0
	for end < len(rest) && end < 8 {
		c := rest[end]
		if (c >= '0' && c <= '9') || c == '.' {
			end++
			continue
		}
		break
	}
	return string(rest[:end])
}
