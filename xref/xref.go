// Package xref locates and parses cross-reference information: classic
// tables, cross-reference streams, and Prev/XRefStm chains. When none of
// that can be located it falls back to a full-file repair scan.
package xref

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/StrongheartedX/onyx/filters"
	"github.com/StrongheartedX/onyx/object"
	"github.com/StrongheartedX/onyx/recovery"
	"github.com/StrongheartedX/onyx/scanner"
)

// EntryType distinguishes how an object is stored.
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInFile
	EntryInStream
)

// Entry locates one indirect object.
type Entry struct {
	Type      EntryType
	Offset    int64 // EntryInFile
	Gen       int
	StreamNum int // EntryInStream: containing object stream
	StreamIdx int // EntryInStream: index within the stream
}

// Table maps object numbers to entries and carries the merged trailer.
type Table struct {
	entries map[int]Entry
	trailer *object.Dict
}

// Lookup returns the entry for an object number.
func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

// Trailer returns the merged trailer dictionary.
func (t *Table) Trailer() *object.Dict { return t.trailer }

// Objects returns all known object numbers, unordered.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Config bounds resolution.
type Config struct {
	MaxSections int
	Recovery    recovery.Strategy
	Filters     *filters.Pipeline
}

const defaultMaxSections = 50

// Resolve parses the cross-reference information of data. Structural damage
// triggers the repair scan before giving up.
func Resolve(data []byte, cfg Config) (*Table, error) {
	if cfg.MaxSections <= 0 {
		cfg.MaxSections = defaultMaxSections
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewPipeline(filters.Limits{})
	}
	table, err := resolveFromStartxref(data, cfg)
	if err == nil && table.trailer != nil {
		return table, nil
	}
	if act := recovery.Decide(cfg.Recovery, firstErr(err, errors.New("trailer missing")), recovery.Location{Component: "xref"}); act == recovery.ActionFail {
		return nil, firstErr(err, errors.New("trailer missing"))
	}
	repaired, rerr := Repair(data)
	if rerr != nil {
		return nil, firstErr(err, rerr)
	}
	return repaired, nil
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func resolveFromStartxref(data []byte, cfg Config) (*Table, error) {
	offset, err := startxrefOffset(data)
	if err != nil {
		return nil, err
	}
	t := &Table{entries: make(map[int]Entry)}
	seen := make(map[int64]bool)
	sections := 0
	for offset >= 0 {
		if seen[offset] {
			break
		}
		seen[offset] = true
		sections++
		if sections > cfg.MaxSections {
			return nil, errors.New("xref chain too long")
		}
		trailer, err := parseSection(data, offset, t, cfg)
		if err != nil {
			return nil, err
		}
		if t.trailer == nil {
			t.trailer = trailer
		}
		offset = -1
		if trailer != nil {
			// Hybrid files point at a cross-reference stream from the classic
			// trailer; visit it before following Prev.
			if v, ok := trailer.Int("XRefStm"); ok && !seen[v] {
				if _, err := parseSection(data, v, t, cfg); err == nil {
					seen[v] = true
				}
			}
			if v, ok := trailer.Int("Prev"); ok {
				offset = v
			}
		}
	}
	return t, nil
}

// startxrefOffset finds the last startxref marker and its operand.
func startxrefOffset(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := data[idx+len("startxref"):]
	if len(rest) > 64 {
		rest = rest[:64]
	}
	fields := bytes.Fields(rest)
	if len(fields) == 0 {
		return 0, errors.New("startxref operand missing")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", off)
	}
	return off, nil
}

// parseSection parses either a classic table or a cross-reference stream at
// offset and merges its entries (earlier sections win: the chain is walked
// newest first).
func parseSection(data []byte, offset int64, t *Table, cfg Config) (*object.Dict, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, errors.New("xref section offset out of range")
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	s.SkipSpace()
	if bytes.HasPrefix(data[s.Pos():], []byte("xref")) {
		return parseClassic(s, t)
	}
	return parseStream(data, s, t, cfg)
}

func parseClassic(s *scanner.Scanner, t *Table) (*object.Dict, error) {
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}
	tr := object.NewTokenReader(s)
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, errors.New("unexpected end of xref section")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := object.Parse(tr)
			if err != nil {
				return nil, fmt.Errorf("parse trailer: %w", err)
			}
			trailer, ok := obj.(*object.Dict)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return trailer, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("invalid xref subsection header at offset %d", tok.Pos)
		}
		start := int(tok.Int)
		countTok, err := tr.Next()
		if err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return nil, errors.New("invalid xref subsection count")
		}
		count := int(countTok.Int)
		if count < 0 || count > 1<<22 {
			return nil, errors.New("xref subsection count out of range")
		}
		for i := 0; i < count; i++ {
			offTok, err := tr.Next()
			if err != nil || offTok.Type != scanner.TokenNumber {
				return nil, errors.New("invalid xref entry offset")
			}
			genTok, err := tr.Next()
			if err != nil || genTok.Type != scanner.TokenNumber {
				return nil, errors.New("invalid xref entry generation")
			}
			kindTok, err := tr.Next()
			if err != nil || kindTok.Type != scanner.TokenKeyword {
				return nil, errors.New("invalid xref entry kind")
			}
			num := start + i
			if _, exists := t.entries[num]; exists {
				continue
			}
			switch kindTok.Str {
			case "n":
				t.entries[num] = Entry{Type: EntryInFile, Offset: offTok.Int, Gen: int(genTok.Int)}
			case "f":
				t.entries[num] = Entry{Type: EntryFree, Gen: int(genTok.Int)}
			default:
				return nil, fmt.Errorf("invalid xref entry kind %q", kindTok.Str)
			}
		}
	}
}

// parseStream parses a cross-reference stream: "num gen obj <<...>> stream".
func parseStream(data []byte, s *scanner.Scanner, t *Table, cfg Config) (*object.Dict, error) {
	tr := object.NewTokenReader(s)
	for i := 0; i < 3; i++ { // num gen obj
		tok, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if i < 2 && (tok.Type != scanner.TokenNumber || !tok.IsInt) {
			return nil, errors.New("not an xref stream object header")
		}
		if i == 2 && (tok.Type != scanner.TokenKeyword || tok.Str != "obj") {
			return nil, errors.New("obj keyword missing at xref stream offset")
		}
	}
	obj, err := object.Parse(tr)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*object.Dict)
	if !ok {
		return nil, errors.New("xref stream has no dictionary")
	}
	if typ, _ := dict.Name("Type"); typ != "XRef" {
		return nil, errors.New("object at startxref is not an XRef stream")
	}
	streamTok, err := tr.Next()
	if err != nil || streamTok.Type != scanner.TokenKeyword || streamTok.Str != "stream" {
		return nil, errors.New("xref stream payload missing")
	}
	length := int64(-1)
	if v, ok := dict.Int("Length"); ok {
		length = v
	}
	payload, _, ok := scanner.StreamPayload(data, s.Pos(), length)
	if !ok {
		return nil, errors.New("xref stream payload truncated")
	}
	names, parms := filters.Names(dict, nil)
	decoded, err := cfg.Filters.Decode(payload, names, parms)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	if err := mergeStreamEntries(dict, decoded, t); err != nil {
		return nil, err
	}
	return dict, nil
}

func mergeStreamEntries(dict *object.Dict, data []byte, t *Table) error {
	wObj, ok := dict.Get("W")
	if !ok {
		return errors.New("xref stream missing W")
	}
	wArr, ok := wObj.(*object.Array)
	if !ok || wArr.Len() < 3 {
		return errors.New("xref stream W malformed")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := wArr.At(i).(object.Integer)
		if !ok || n < 0 || n > 8 {
			return errors.New("xref stream W malformed")
		}
		w[i] = int(n)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return errors.New("xref stream W is all zero")
	}

	size, _ := dict.Int("Size")
	var index []int64
	if idxObj, ok := dict.Get("Index"); ok {
		if arr, ok := idxObj.(*object.Array); ok {
			for _, item := range arr.Items {
				if n, ok := item.(object.Integer); ok {
					index = append(index, int64(n))
				}
			}
		}
	}
	if len(index) == 0 {
		index = []int64{0, size}
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for k := int64(0); k < count; k++ {
			if pos+rowLen > len(data) {
				return errors.New("xref stream data truncated")
			}
			f1 := readField(data[pos:pos+w[0]], 1) // default type 1 when W[0]==0
			f2 := readField(data[pos+w[0]:pos+w[0]+w[1]], 0)
			f3 := readField(data[pos+w[0]+w[1]:pos+rowLen], 0)
			pos += rowLen
			num := int(start + k)
			if _, exists := t.entries[num]; exists {
				continue
			}
			switch f1 {
			case 0:
				t.entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				t.entries[num] = Entry{Type: EntryInFile, Offset: f2, Gen: int(f3)}
			case 2:
				t.entries[num] = Entry{Type: EntryInStream, StreamNum: int(f2), StreamIdx: int(f3)}
			}
		}
	}
	return nil
}

func readField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
