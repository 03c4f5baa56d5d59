package extractor

import (
	"bytes"
	"context"
	"strings"

	"github.com/StrongheartedX/onyx/object"
	"github.com/StrongheartedX/onyx/parser"
	"github.com/StrongheartedX/onyx/scanner"
)

// PageTexts returns one entry per page in reading order. A page whose
// content streams cannot be decoded contributes an empty string.
func (e *Extractor) PageTexts(ctx context.Context) []string {
	out := make([]string, len(e.doc.Pages))
	for i := range e.doc.Pages {
		out[i] = e.pageText(ctx, &e.doc.Pages[i])
	}
	return out
}

func (e *Extractor) pageText(ctx context.Context, page *parser.Page) string {
	contents, ok := page.Dict.Get("Contents")
	if !ok {
		return ""
	}
	blobs := e.collectContentStreams(ctx, contents)
	if len(blobs) == 0 {
		return ""
	}
	fonts := e.fontDecodersForPage(ctx, page)
	var b strings.Builder
	for _, data := range blobs {
		b.WriteString(textFromContentStream(data, fonts))
	}
	return strings.TrimSpace(b.String())
}

// textFromContentStream walks the operator stream collecting show-text
// operands. Positioning operators that move down a line emit newlines so
// paragraphs stay separated.
func textFromContentStream(data []byte, fonts map[string]*fontDecoder) string {
	s := scanner.New(data, scanner.Config{})
	tr := object.NewTokenReader(s)
	var operands []object.Object
	var out strings.Builder
	currentFont := ""

	for {
		tok, err := tr.Next()
		if err != nil {
			break
		}
		if tok.Type != scanner.TokenKeyword {
			tr.Unread(tok)
			operand, err := object.Parse(tr)
			if err != nil {
				break
			}
			operands = append(operands, operand)
			continue
		}
		switch tok.Str {
		case "BT":
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
		case "Tf":
			if len(operands) >= 2 {
				if name, ok := operands[len(operands)-2].(object.Name); ok {
					currentFont = string(name)
				}
			}
		case "Tj":
			appendShowText(&out, operands, currentFont, fonts, false)
		case "'", "\"":
			appendShowText(&out, operands, currentFont, fonts, true)
		case "TJ":
			appendShowTextArray(&out, operands, currentFont, fonts)
		case "T*":
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
		case "Td", "TD":
			if len(operands) >= 2 {
				if dy, ok := floatOperand(operands[len(operands)-1]); ok && dy != 0 {
					if out.Len() > 0 {
						out.WriteByte('\n')
					}
				}
			}
		case "BI":
			if !skipInlineImage(s) {
				return out.String()
			}
		}
		operands = operands[:0]
	}
	return out.String()
}

func appendShowText(out *strings.Builder, operands []object.Object, currentFont string, fonts map[string]*fontDecoder, newline bool) {
	if len(operands) == 0 {
		return
	}
	str, ok := operands[len(operands)-1].(object.String)
	if !ok || len(str.Data) == 0 {
		return
	}
	text := decodeShowBytes(str.Data, fonts[currentFont])
	if text == "" {
		return
	}
	if newline && out.Len() > 0 {
		out.WriteByte('\n')
	}
	out.WriteString(text)
}

func appendShowTextArray(out *strings.Builder, operands []object.Object, currentFont string, fonts map[string]*fontDecoder) {
	if len(operands) == 0 {
		return
	}
	arr, _ := operands[len(operands)-1].(*object.Array)
	if arr == nil {
		return
	}
	for _, item := range arr.Items {
		if str, ok := item.(object.String); ok && len(str.Data) > 0 {
			out.WriteString(decodeShowBytes(str.Data, fonts[currentFont]))
		}
	}
}

func decodeShowBytes(data []byte, decoder *fontDecoder) string {
	if decoder != nil && decoder.cmap != nil {
		return decoder.cmap.Decode(data)
	}
	return decodeTextString(data)
}

func floatOperand(o object.Object) (float64, bool) {
	switch v := o.(type) {
	case object.Integer:
		return float64(v), true
	case object.Real:
		return float64(v), true
	}
	return 0, false
}

// skipInlineImage advances past a BI ... ID <binary> EI sequence. The binary
// payload is opaque, so the only way out is searching for the EI delimiter.
func skipInlineImage(s *scanner.Scanner) bool {
	data := s.Data()
	pos := s.Pos()
	idIdx := bytes.Index(data[pos:], []byte("ID"))
	if idIdx < 0 {
		return false
	}
	search := pos + int64(idIdx) + 2
	for {
		eiIdx := bytes.Index(data[search:], []byte("EI"))
		if eiIdx < 0 {
			return false
		}
		at := search + int64(eiIdx)
		before := data[at-1]
		if before == ' ' || before == '\n' || before == '\r' || before == '\t' {
			return s.SeekTo(at+2) == nil
		}
		search = at + 2
	}
}

func (e *Extractor) fontDecodersForPage(ctx context.Context, page *parser.Page) map[string]*fontDecoder {
	if page.Resources == nil {
		return nil
	}
	fontsObj, ok := page.Resources.Get("Font")
	if !ok {
		return nil
	}
	fontsDict := e.resolveDict(ctx, fontsObj)
	if fontsDict == nil {
		return nil
	}
	decoders := make(map[string]*fontDecoder)
	for _, name := range fontsDict.Keys() {
		fontObj, _ := fontsDict.Get(name)
		if decoder := e.fontDecoder(ctx, fontObj); decoder != nil {
			decoders[string(name)] = decoder
		}
	}
	return decoders
}

type fontDecoder struct {
	cmap *CMap
}

func (e *Extractor) fontDecoder(ctx context.Context, obj object.Object) *fontDecoder {
	if ref, ok := obj.(object.Ref); ok {
		if e.fontCache == nil {
			e.fontCache = make(map[object.Ref]*fontDecoder)
		}
		if cached, ok := e.fontCache[ref]; ok {
			return cached
		}
		decoder := e.buildFontDecoder(ctx, obj)
		e.fontCache[ref] = decoder
		return decoder
	}
	return e.buildFontDecoder(ctx, obj)
}

func (e *Extractor) buildFontDecoder(ctx context.Context, obj object.Object) *fontDecoder {
	dict := e.resolveDict(ctx, obj)
	if dict == nil {
		return nil
	}
	cmapObj, ok := dict.Get("ToUnicode")
	if !ok {
		return &fontDecoder{}
	}
	data := e.streamBytes(ctx, cmapObj)
	if len(data) == 0 {
		return &fontDecoder{}
	}
	return &fontDecoder{cmap: ParseToUnicode(data)}
}
