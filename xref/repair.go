package xref

import (
	"errors"
	"io"

	"github.com/StrongheartedX/onyx/object"
	"github.com/StrongheartedX/onyx/scanner"
)

// Repair reconstructs a table by scanning the whole file for "num gen obj"
// headers and trailer dictionaries. Offsets recorded by a damaged or missing
// xref table are ignored entirely; the scan's own positions win.
func Repair(data []byte) (*Table, error) {
	s := scanner.New(data, scanner.Config{})
	t := &Table{entries: make(map[int]Entry)}
	var lastTrailer *object.Dict

	for {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Resynchronize after junk bytes.
			continue
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			tr := object.NewTokenReader(s)
			if obj, err := object.Parse(tr); err == nil {
				if dict, ok := obj.(*object.Dict); ok {
					lastTrailer = dict
				}
			}
			continue
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		genTok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			continue
		}
		if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
			// genTok may itself start an object header; rescan from it.
			if err := s.SeekTo(genTok.Pos); err != nil {
				return nil, err
			}
			continue
		}
		objTok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			continue
		}
		if objTok.Type == scanner.TokenKeyword && objTok.Str == "obj" {
			// Later definitions win: incremental updates append at the end.
			t.entries[int(tok.Int)] = Entry{Type: EntryInFile, Offset: tok.Pos, Gen: int(genTok.Int)}
			skipObjectBody(data, s)
			continue
		}
		if err := s.SeekTo(genTok.Pos); err != nil {
			return nil, err
		}
	}

	if len(t.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	t.trailer = lastTrailer
	return t, nil
}

// skipObjectBody advances past a stream payload if the freshly found object
// has one, so stream contents are not misread as object headers.
func skipObjectBody(data []byte, s *scanner.Scanner) {
	tr := object.NewTokenReader(s)
	obj, err := object.Parse(tr)
	if err != nil {
		return
	}
	dict, ok := obj.(*object.Dict)
	if !ok {
		return
	}
	tok, err := tr.Next()
	if err != nil {
		return
	}
	if tok.Type != scanner.TokenKeyword || tok.Str != "stream" {
		// Not a stream; rescanning the already-parsed tokens is harmless.
		return
	}
	length := int64(-1)
	if v, ok := dict.Int("Length"); ok {
		length = v
	}
	if _, end, ok := scanner.StreamPayload(data, s.Pos(), length); ok {
		_ = s.SeekTo(end)
	}
}
