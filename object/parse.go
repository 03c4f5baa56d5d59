package object

import (
	"errors"
	"fmt"
	"io"

	"github.com/StrongheartedX/onyx/scanner"
)

// TokenReader layers a small pushback buffer over a Scanner so the composer
// can look ahead for "num gen R" reference triples.
type TokenReader struct {
	s      *scanner.Scanner
	unread []scanner.Token
}

// NewTokenReader wraps s.
func NewTokenReader(s *scanner.Scanner) *TokenReader { return &TokenReader{s: s} }

// Next returns the next token, honoring pushback order.
func (tr *TokenReader) Next() (scanner.Token, error) {
	if n := len(tr.unread); n > 0 {
		tok := tr.unread[n-1]
		tr.unread = tr.unread[:n-1]
		return tok, nil
	}
	return tr.s.Next()
}

// Unread pushes tok back; the next call to Next returns it.
func (tr *TokenReader) Unread(tok scanner.Token) { tr.unread = append(tr.unread, tok) }

// Scanner returns the underlying scanner.
func (tr *TokenReader) Scanner() *scanner.Scanner { return tr.s }

const maxComposeDepth = 100

// ErrUnexpected reports tokens that cannot start or continue an object.
var ErrUnexpected = errors.New("unexpected token")

// Parse composes one object from the token stream. Indirect references are
// recognized by lookahead; the closing tokens of the enclosing structure are
// never consumed.
func Parse(tr *TokenReader) (Object, error) {
	return parse(tr, 0)
}

func parse(tr *TokenReader, depth int) (Object, error) {
	if depth > maxComposeDepth {
		return nil, errors.New("object nesting too deep")
	}
	tok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.IsInt {
			return parseNumberOrRef(tr, tok)
		}
		return Real(tok.Real), nil
	case scanner.TokenName:
		return Name(tok.Str), nil
	case scanner.TokenString:
		return String{Data: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArrayOpen:
		return parseArray(tr, depth)
	case scanner.TokenDictOpen:
		return parseDict(tr, depth)
	case scanner.TokenKeyword:
		switch tok.Str {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		}
		return nil, fmt.Errorf("%w: keyword %q", ErrUnexpected, tok.Str)
	}
	return nil, fmt.Errorf("%w at offset %d", ErrUnexpected, tok.Pos)
}

// parseNumberOrRef disambiguates "5", "5 0 R", and "5 0 obj" prefixes. The
// first integer is already consumed.
func parseNumberOrRef(tr *TokenReader, first scanner.Token) (Object, error) {
	second, err := tr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Integer(first.Int), nil
		}
		return nil, err
	}
	if second.Type != scanner.TokenNumber || !second.IsInt || second.Int < 0 {
		tr.Unread(second)
		return Integer(first.Int), nil
	}
	third, err := tr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			tr.Unread(second)
			return Integer(first.Int), nil
		}
		return nil, err
	}
	if third.Type == scanner.TokenKeyword && third.Str == "R" {
		return Ref{Num: int(first.Int), Gen: int(second.Int)}, nil
	}
	tr.Unread(third)
	tr.Unread(second)
	return Integer(first.Int), nil
}

func parseArray(tr *TokenReader, depth int) (Object, error) {
	arr := &Array{}
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenArrayClose {
			return arr, nil
		}
		tr.Unread(tok)
		item, err := parse(tr, depth+1)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, item)
	}
}

func parseDict(tr *TokenReader, depth int) (Object, error) {
	dict := NewDict()
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenDictClose {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: dict key must be a name at offset %d", ErrUnexpected, tok.Pos)
		}
		value, err := parse(tr, depth+1)
		if err != nil {
			return nil, err
		}
		dict.Set(Name(tok.Str), value)
	}
}
