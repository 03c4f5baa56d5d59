package filters

import (
	"errors"

	"github.com/StrongheartedX/onyx/object"
)

// lzwDecoder implements LZWDecode. The standard library's LZW reader cannot
// express the PDF EarlyChange behavior (code width grows one code early), so
// the decode loop is written out here.
type lzwDecoder struct{ limits Limits }

func (lzwDecoder) Name() string { return "LZWDecode" }

const (
	lzwClear = 256
	lzwEOD   = 257
)

func (d lzwDecoder) Decode(in []byte, parms *object.Dict) ([]byte, error) {
	early := int64(1)
	if parms != nil {
		if v, ok := parms.Int("EarlyChange"); ok {
			early = v
		}
	}

	var out []byte
	table := make([][]byte, 258, 4096)
	for i := 0; i < 256; i++ {
		table[i] = []byte{byte(i)}
	}
	width := 9
	var prev []byte

	bitPos := 0
	readCode := func() (int, bool) {
		if (bitPos+width+7)/8 > len(in) {
			return 0, false
		}
		code := 0
		for k := 0; k < width; k++ {
			byteIdx := (bitPos + k) / 8
			bitIdx := 7 - (bitPos+k)%8
			code = code<<1 | int(in[byteIdx]>>bitIdx&1)
		}
		bitPos += width
		return code, true
	}

	for {
		code, ok := readCode()
		if !ok {
			break
		}
		switch {
		case code == lzwEOD:
			return applyPredictor(out, parms)
		case code == lzwClear:
			table = table[:258]
			width = 9
			prev = nil
			continue
		}
		var entry []byte
		switch {
		case code < len(table) && table[code] != nil:
			entry = table[code]
		case code == len(table) && prev != nil:
			entry = append(append([]byte{}, prev...), prev[0])
		default:
			return nil, errors.New("invalid code")
		}
		out = append(out, entry...)
		if d.limits.MaxDecompressedSize > 0 && int64(len(out)) > d.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		if prev != nil && len(table) < 4096 {
			table = append(table, append(append([]byte{}, prev...), entry[0]))
		}
		prev = entry
		// EarlyChange widens the code one entry before the table fills.
		if len(table)+int(early) >= 1<<width && width < 12 {
			width++
		}
	}
	return applyPredictor(out, parms)
}
