// Package scanner tokenizes PDF syntax. It operates over an in-memory byte
// slice and reports positions so callers can seek to cross-reference offsets
// and re-scan from arbitrary points.
package scanner

import (
	"errors"
	"io"
	"strconv"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenNumber     TokenType = iota
	TokenName                 // '/Name', value carried with the solidus stripped
	TokenString               // literal or hex string, payload decoded
	TokenDictOpen             // '<<'
	TokenDictClose            // '>>'
	TokenArrayOpen            // '['
	TokenArrayClose           // ']'
	TokenKeyword              // obj, endobj, stream, R, true, null, trailer, ...
)

// Token is one lexical unit.
type Token struct {
	Type  TokenType
	Pos   int64
	Int   int64
	Real  float64
	IsInt bool
	Str   string
	Bytes []byte
	Hex   bool
}

// ErrSyntax reports bytes that cannot form a valid token.
var ErrSyntax = errors.New("pdf syntax error")

// Config bounds scanner behavior on hostile input.
type Config struct {
	MaxStringLength int64
	MaxNameLength   int
}

const (
	defaultMaxString = 10 * 1024 * 1024
	defaultMaxName   = 4096
)

// Scanner walks tokens over a byte slice.
type Scanner struct {
	data []byte
	pos  int64
	cfg  Config
}

// New creates a scanner over data.
func New(data []byte, cfg Config) *Scanner {
	if cfg.MaxStringLength <= 0 {
		cfg.MaxStringLength = defaultMaxString
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = defaultMaxName
	}
	return &Scanner{data: data, cfg: cfg}
}

// Pos reports the current byte offset.
func (s *Scanner) Pos() int64 { return s.pos }

// SeekTo repositions the scanner.
func (s *Scanner) SeekTo(off int64) error {
	if off < 0 || off > int64(len(s.data)) {
		return errors.New("scanner: seek out of range")
	}
	s.pos = off
	return nil
}

// Data exposes the underlying bytes. Callers must not mutate them.
func (s *Scanner) Data() []byte { return s.data }

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

// SkipSpace advances past whitespace and comments.
func (s *Scanner) SkipSpace() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// Next returns the next token, or io.EOF when the input is exhausted.
func (s *Scanner) Next() (Token, error) {
	s.SkipSpace()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch {
	case c == '/':
		return s.scanName(start)
	case c == '(':
		return s.scanLiteralString(start)
	case c == '<':
		if s.pos+1 < int64(len(s.data)) && s.data[s.pos+1] == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Pos: start}, nil
		}
		return s.scanHexString(start)
	case c == '>':
		if s.pos+1 < int64(len(s.data)) && s.data[s.pos+1] == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Pos: start}, nil
		}
		s.pos++
		return Token{}, ErrSyntax
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayClose, Pos: start}, nil
	case c == '{' || c == '}':
		// PostScript procedure braces appear inside type 4 functions; surface
		// them as keywords so object parsing can skip them.
		s.pos++
		return Token{Type: TokenKeyword, Pos: start, Str: string(c)}, nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.scanNumber(start)
	case c == ')':
		s.pos++
		return Token{}, ErrSyntax
	default:
		return s.scanKeyword(start)
	}
}

func (s *Scanner) scanName(start int64) (Token, error) {
	s.pos++ // consume '/'
	var out []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if !isRegular(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi, ok1 := fromHex(s.data[s.pos+1])
			lo, ok2 := fromHex(s.data[s.pos+2])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
		if len(out) > s.cfg.MaxNameLength {
			return Token{}, ErrSyntax
		}
	}
	return Token{Type: TokenName, Pos: start, Str: string(out)}, nil
}

func (s *Scanner) scanNumber(start int64) (Token, error) {
	end := s.pos
	n := int64(len(s.data))
	if s.data[end] == '+' || s.data[end] == '-' {
		end++
	}
	isReal := false
	for end < n {
		c := s.data[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && !isReal {
			isReal = true
			end++
			continue
		}
		break
	}
	text := string(s.data[s.pos:end])
	s.pos = end
	if text == "" || text == "+" || text == "-" || text == "." {
		return Token{}, ErrSyntax
	}
	if !isReal {
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Token{}, ErrSyntax
		}
		return Token{Type: TokenNumber, Pos: start, Int: v, Real: float64(v), IsInt: true}, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, ErrSyntax
	}
	return Token{Type: TokenNumber, Pos: start, Real: v}, nil
}

func (s *Scanner) scanLiteralString(start int64) (Token, error) {
	s.pos++ // consume '('
	depth := 1
	var out []byte
	n := int64(len(s.data))
	for s.pos < n {
		if int64(len(out)) > s.cfg.MaxStringLength {
			return Token{}, ErrSyntax
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= n {
				return Token{}, ErrSyntax
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// line continuation; swallow an optional LF
				if s.pos < n && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && s.pos < n; k++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v<<3 | int(d-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Pos: start, Bytes: out}, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return Token{}, ErrSyntax
}

func (s *Scanner) scanHexString(start int64) (Token, error) {
	s.pos++ // consume '<'
	var out []byte
	var hi byte
	havePair := false
	n := int64(len(s.data))
	for s.pos < n {
		if int64(len(out)) > s.cfg.MaxStringLength {
			return Token{}, ErrSyntax
		}
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if havePair {
				out = append(out, hi<<4) // odd count: final digit padded with 0
			}
			return Token{Type: TokenString, Pos: start, Bytes: out, Hex: true}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := fromHex(c)
		if !ok {
			return Token{}, ErrSyntax
		}
		if havePair {
			out = append(out, hi<<4|v)
			havePair = false
		} else {
			hi = v
			havePair = true
		}
	}
	return Token{}, ErrSyntax
}

func (s *Scanner) scanKeyword(start int64) (Token, error) {
	end := s.pos
	n := int64(len(s.data))
	for end < n && isRegular(s.data[end]) {
		end++
	}
	if end == s.pos {
		s.pos++
		return Token{}, ErrSyntax
	}
	word := string(s.data[s.pos:end])
	s.pos = end
	return Token{Type: TokenKeyword, Pos: start, Str: word}, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
