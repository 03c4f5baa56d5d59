package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/StrongheartedX/onyx/filters"
	"github.com/StrongheartedX/onyx/object"
	"github.com/StrongheartedX/onyx/recovery"
	"github.com/StrongheartedX/onyx/scanner"
	"github.com/StrongheartedX/onyx/security"
	"github.com/StrongheartedX/onyx/xref"
)

// Load returns the indirect object ref, reading and decrypting it on first
// use. Missing and free objects load as Null, matching how conforming
// readers treat dangling references.
func (d *Document) Load(ctx context.Context, ref object.Ref) (object.Object, error) {
	if obj, ok := d.cache[ref]; ok {
		return obj, nil
	}
	if d.loading[ref] {
		return object.Null{}, nil
	}
	if len(d.cache) >= d.cfg.Limits.MaxObjects {
		return nil, errors.New("object budget exhausted")
	}
	d.loading[ref] = true
	defer delete(d.loading, ref)

	obj, err := d.loadOnce(ctx, ref)
	if err != nil {
		loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "loader"}
		if recovery.Decide(d.cfg.Recovery, err, loc) == recovery.ActionFail {
			return nil, err
		}
		obj = object.Null{}
	}
	d.cache[ref] = obj
	return obj, nil
}

func (d *Document) loadOnce(ctx context.Context, ref object.Ref) (object.Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	entry, found := d.table.Lookup(ref.Num)
	if !found || entry.Type == xref.EntryFree {
		return object.Null{}, nil
	}
	if entry.Type == xref.EntryInStream {
		return d.loadFromObjectStream(ctx, ref, entry.StreamNum, entry.StreamIdx)
	}
	obj, err := d.scanObjectAt(ctx, ref.Num, entry.Offset)
	if err != nil {
		return nil, err
	}
	return d.decryptLoaded(ref, obj)
}

// scanObjectAt parses "num gen obj <object> [stream ...]" at offset.
func (d *Document) scanObjectAt(ctx context.Context, objNum int, offset int64) (object.Object, error) {
	s := scanner.New(d.data, scanner.Config{MaxStringLength: d.cfg.Limits.MaxStringLength})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tr := object.NewTokenReader(s)
	numTok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt || int(numTok.Int) != objNum {
		return nil, fmt.Errorf("object header mismatch at offset %d: want %d", offset, objNum)
	}
	genTok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return nil, errors.New("object header generation malformed")
	}
	objTok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return nil, errors.New("obj keyword missing")
	}
	obj, err := object.Parse(tr)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*object.Dict)
	if !ok {
		return obj, nil
	}
	streamTok, err := tr.Next()
	if err != nil || streamTok.Type != scanner.TokenKeyword || streamTok.Str != "stream" {
		return dict, nil
	}
	length := d.streamLength(ctx, dict)
	payload, _, ok2 := scanner.StreamPayload(d.data, s.Pos(), length)
	if !ok2 {
		return nil, errors.New("stream payload truncated")
	}
	raw := make([]byte, len(payload))
	copy(raw, payload)
	return &object.Stream{Dict: dict, Raw: raw}, nil
}

// streamLength resolves /Length, which may itself be an indirect object
// stored elsewhere in the file. A broken Length is reported as -1 and the
// payload is recovered by endstream search instead.
func (d *Document) streamLength(ctx context.Context, dict *object.Dict) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case object.Integer:
		return int64(n)
	case object.Ref:
		if loaded, err := d.Load(ctx, n); err == nil {
			if i, ok := loaded.(object.Integer); ok {
				return int64(i)
			}
		}
	}
	return -1
}

// loadFromObjectStream extracts a compressed object from its container
// stream (/Type /ObjStm). Containers are parsed once and memoized.
func (d *Document) loadFromObjectStream(ctx context.Context, ref object.Ref, containerNum, idx int) (object.Object, error) {
	if d.objstm == nil {
		d.objstm = make(map[int]map[int]object.Object)
	}
	objs, ok := d.objstm[containerNum]
	if !ok {
		var err error
		objs, err = d.parseObjectStream(ctx, containerNum)
		if err != nil {
			return nil, err
		}
		d.objstm[containerNum] = objs
	}
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return object.Null{}, nil
}

func (d *Document) parseObjectStream(ctx context.Context, containerNum int) (map[int]object.Object, error) {
	entry, found := d.table.Lookup(containerNum)
	if !found || entry.Type != xref.EntryInFile {
		return nil, errors.New("object stream container missing")
	}
	containerObj, err := d.scanObjectAt(ctx, containerNum, entry.Offset)
	if err != nil {
		return nil, err
	}
	st, ok := containerObj.(*object.Stream)
	if !ok {
		return nil, errors.New("object stream container is not a stream")
	}
	// Object streams are encrypted as streams of their own object number.
	if decrypted, err := d.decryptLoaded(object.Ref{Num: containerNum, Gen: entry.Gen}, st); err == nil {
		st, _ = decrypted.(*object.Stream)
	}
	if st == nil {
		return nil, errors.New("object stream container unreadable")
	}
	data, err := d.StreamData(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("decode object stream: %w", err)
	}
	n, _ := st.Dict.Int("N")
	first, _ := st.Dict.Int("First")
	if first < 0 || first > int64(len(data)) || n < 0 {
		return nil, errors.New("object stream header out of range")
	}

	// Header: n pairs of (object number, relative offset).
	hs := scanner.New(data[:first], scanner.Config{})
	type pair struct{ num, off int }
	pairs := make([]pair, 0, n)
	for int64(len(pairs)) < n {
		numTok, err := hs.Next()
		if err != nil {
			return nil, errors.New("object stream header truncated")
		}
		offTok, err := hs.Next()
		if err != nil {
			return nil, errors.New("object stream header truncated")
		}
		if numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, errors.New("object stream header malformed")
		}
		pairs = append(pairs, pair{num: int(numTok.Int), off: int(offTok.Int)})
	}

	body := data[first:]
	objs := make(map[int]object.Object, len(pairs))
	for _, p := range pairs {
		if p.off < 0 || p.off >= len(body) {
			continue
		}
		s := scanner.New(body, scanner.Config{MaxStringLength: d.cfg.Limits.MaxStringLength})
		if err := s.SeekTo(int64(p.off)); err != nil {
			continue
		}
		obj, err := object.Parse(object.NewTokenReader(s))
		if err != nil {
			loc := recovery.Location{ObjectNum: p.num, Component: "objstm"}
			if recovery.Decide(d.cfg.Recovery, err, loc) == recovery.ActionFail {
				return nil, err
			}
			continue
		}
		objs[p.num] = obj
	}
	return objs, nil
}

// decryptLoaded walks an object graph applying string/stream decryption.
// Compressed objects (in object streams) are never decrypted individually;
// their container already was.
func (d *Document) decryptLoaded(ref object.Ref, obj object.Object) (object.Object, error) {
	if !d.decryptOK {
		return obj, nil
	}
	if d.encRef != nil && *d.encRef == ref {
		// The Encrypt dictionary itself is exempt from encryption.
		return obj, nil
	}
	return d.decryptValue(ref, obj)
}

func (d *Document) decryptValue(ref object.Ref, obj object.Object) (object.Object, error) {
	switch v := obj.(type) {
	case object.String:
		dec, err := d.sec.Decrypt(ref.Num, ref.Gen, v.Data, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return object.String{Data: dec, Hex: v.Hex}, nil
	case *object.Array:
		for i, item := range v.Items {
			dec, err := d.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *object.Dict:
		for key, item := range v.KV {
			dec, err := d.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[key] = dec
		}
		return v, nil
	case *object.Stream:
		if v.Dict == nil {
			return v, nil
		}
		if _, err := d.decryptValue(ref, v.Dict); err != nil {
			return nil, err
		}
		typ, _ := v.Dict.Name("Type")
		if typ == "XRef" {
			// Cross-reference streams are never encrypted.
			return v, nil
		}
		if hasCryptFilter(v.Dict) {
			// A /Crypt filter names its own handling; treat as identity.
			return v, nil
		}
		class := security.DataClassStream
		if typ == "Metadata" {
			class = security.DataClassMetadataStream
		}
		dec, err := d.sec.Decrypt(ref.Num, ref.Gen, v.Raw, class)
		if err != nil {
			return nil, err
		}
		v.Raw = dec
		return v, nil
	default:
		return obj, nil
	}
}

func hasCryptFilter(dict *object.Dict) bool {
	names, _ := filters.Names(dict, nil)
	for _, n := range names {
		if n == "Crypt" {
			return true
		}
	}
	return false
}
