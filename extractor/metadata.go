package extractor

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/StrongheartedX/onyx/object"
)

// listJoinSeparator flattens array-valued Info entries into a single string.
const listJoinSeparator = ", "

// Metadata flattens the document Info dictionary into a string map. Keys
// carry no leading solidus. Array values are joined with listJoinSeparator;
// scalar values are stringified. The map is never nil.
func (e *Extractor) Metadata(ctx context.Context) map[string]string {
	out := make(map[string]string)
	info := e.doc.Info
	if info == nil {
		return out
	}
	for _, key := range info.Keys() {
		v, _ := info.Get(key)
		s, ok := e.stringifyMetadata(ctx, v, 0)
		if !ok {
			continue
		}
		out[strings.TrimPrefix(string(key), "/")] = s
	}
	return out
}

func (e *Extractor) stringifyMetadata(ctx context.Context, v object.Object, depth int) (string, bool) {
	if depth > 4 {
		return "", false
	}
	switch t := v.(type) {
	case object.String:
		return decodeTextString(t.Data), true
	case object.Name:
		return string(t), true
	case object.Integer:
		return strconv.FormatInt(int64(t), 10), true
	case object.Real:
		return strconv.FormatFloat(float64(t), 'f', -1, 64), true
	case object.Bool:
		return strconv.FormatBool(bool(t)), true
	case *object.Array:
		parts := make([]string, 0, t.Len())
		for _, item := range t.Items {
			if s, ok := e.stringifyMetadata(ctx, item, depth+1); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, listJoinSeparator), true
	case object.Ref:
		return e.stringifyMetadata(ctx, e.resolve(ctx, t), depth+1)
	}
	return "", false
}

// decodeTextString interprets a PDF text string. A UTF-16 byte order mark
// selects Unicode decoding; everything else is treated as a Latin
// superset of PDFDocEncoding.
func decodeTextString(data []byte) string {
	if len(data) >= 2 && ((data[0] == 0xFE && data[1] == 0xFF) || (data[0] == 0xFF && data[1] == 0xFE)) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err == nil {
			return string(out)
		}
	}
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(out)
}
