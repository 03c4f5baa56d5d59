package extractor

import (
	"errors"
	"io"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/StrongheartedX/onyx/scanner"
)

// CMap maps character codes to Unicode text per a ToUnicode stream.
type CMap struct {
	entries map[string]string
	lengths []int
}

// ParseToUnicode parses the bfchar, bfrange, and codespacerange sections of
// a ToUnicode CMap. Unrecognized PostScript surrounding them is skipped.
func ParseToUnicode(data []byte) *CMap {
	m := &CMap{entries: make(map[string]string)}
	lengthSet := make(map[int]struct{})
	s := scanner.New(data, scanner.Config{})

	for {
		tok, err := next(s)
		if err != nil {
			break
		}
		if tok.Type != scanner.TokenKeyword {
			continue
		}
		switch tok.Str {
		case "begincodespacerange":
			parseCodespace(s, lengthSet)
		case "beginbfchar":
			parseBFChar(s, m, lengthSet)
		case "beginbfrange":
			parseBFRange(s, m, lengthSet)
		}
	}

	if len(lengthSet) == 0 {
		for k := range m.entries {
			lengthSet[len(k)] = struct{}{}
		}
	}
	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m
}

// next skips over malformed tokens, which a hand-written CMap may contain.
func next(s *scanner.Scanner) (scanner.Token, error) {
	for {
		tok, err := s.Next()
		if err == nil {
			return tok, nil
		}
		if errors.Is(err, io.EOF) {
			return tok, err
		}
	}
}

func parseCodespace(s *scanner.Scanner, lengthSet map[int]struct{}) {
	for {
		tok, err := next(s)
		if err != nil || (tok.Type == scanner.TokenKeyword && tok.Str == "endcodespacerange") {
			return
		}
		if tok.Type == scanner.TokenString && len(tok.Bytes) > 0 {
			lengthSet[len(tok.Bytes)] = struct{}{}
		}
	}
}

func parseBFChar(s *scanner.Scanner, m *CMap, lengthSet map[int]struct{}) {
	var src []byte
	for {
		tok, err := next(s)
		if err != nil || (tok.Type == scanner.TokenKeyword && tok.Str == "endbfchar") {
			return
		}
		if tok.Type != scanner.TokenString {
			continue
		}
		if src == nil {
			src = append([]byte(nil), tok.Bytes...)
			continue
		}
		if len(src) > 0 {
			m.entries[string(src)] = decodeUTF16BE(tok.Bytes)
			lengthSet[len(src)] = struct{}{}
		}
		src = nil
	}
}

func parseBFRange(s *scanner.Scanner, m *CMap, lengthSet map[int]struct{}) {
	for {
		lo, ok := nextStringUntil(s, "endbfrange")
		if !ok {
			return
		}
		hiTok, err := next(s)
		if err != nil || hiTok.Type != scanner.TokenString {
			return
		}
		start := bytesToInt(lo)
		end := bytesToInt(hiTok.Bytes)
		width := len(lo)
		if width == 0 || end < start || end-start > 0x10000 {
			continue
		}
		lengthSet[width] = struct{}{}

		valTok, err := next(s)
		if err != nil {
			return
		}
		switch valTok.Type {
		case scanner.TokenArrayOpen:
			// [ <dst> <dst> ... ] with one destination per code.
			i := 0
			for {
				itemTok, err := next(s)
				if err != nil || itemTok.Type == scanner.TokenArrayClose {
					break
				}
				if itemTok.Type == scanner.TokenString && start+i <= end {
					m.entries[string(intToBytes(start+i, width))] = decodeUTF16BE(itemTok.Bytes)
				}
				i++
			}
		case scanner.TokenString:
			dstStart := bytesToInt(valTok.Bytes)
			dstLen := len(valTok.Bytes)
			for i := 0; i <= end-start; i++ {
				dst := intToBytes(dstStart+i, dstLen)
				m.entries[string(intToBytes(start+i, width))] = decodeUTF16BE(dst)
			}
		default:
			return
		}
	}
}

// nextStringUntil returns the next string token, or ok=false when the
// terminator keyword or the end of input arrives first.
func nextStringUntil(s *scanner.Scanner, terminator string) ([]byte, bool) {
	for {
		tok, err := next(s)
		if err != nil {
			return nil, false
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == terminator {
			return nil, false
		}
		if tok.Type == scanner.TokenString {
			return append([]byte(nil), tok.Bytes...), true
		}
	}
}

// Decode maps raw string bytes through the CMap. Codes without a mapping
// pass through one byte at a time.
func (m *CMap) Decode(data []byte) string {
	if len(m.lengths) == 0 {
		return string(data)
	}
	var out strings.Builder
	for len(data) > 0 {
		matched := false
		for _, l := range m.lengths {
			if len(data) < l {
				continue
			}
			if val, ok := m.entries[string(data[:l])]; ok {
				out.WriteString(val)
				data = data[l:]
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(data[0])
			data = data[1:]
		}
	}
	return out.String()
}

func decodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return ""
	}
	buf := make([]uint16, len(data)/2)
	for i := range buf {
		buf[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(buf))
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = val<<8 | int(by)
	}
	return val
}

func intToBytes(value, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value)
		value >>= 8
	}
	return buf
}
