package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/ascii85"
	"testing"

	"github.com/StrongheartedX/onyx/object"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	p := NewPipeline(Limits{})
	want := []byte("flate round trip payload")
	got, err := p.Decode(zlibCompress(t, want), []string{"FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFlateDecodeRawDeflateFallback(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	w.Write([]byte("no zlib wrapper"))
	w.Close()

	p := NewPipeline(Limits{})
	got, err := p.Decode(buf.Bytes(), []string{"FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "no zlib wrapper" {
		t.Fatalf("got %q", got)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	p := NewPipeline(Limits{})
	got, err := p.Decode([]byte("48 65 6C 6C 6F>"), []string{"ASCIIHexDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "Hello" {
		t.Fatalf("got %q", got)
	}
	// Odd digit count pads with zero.
	got, err = p.Decode([]byte("7>"), []string{"ASCIIHexDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x70}) {
		t.Fatalf("odd digits: got % X", got)
	}
}

func TestASCII85Decode(t *testing.T) {
	want := []byte("arbitrary binary \x00\x01\x02 payload")
	encoded := make([]byte, ascii85.MaxEncodedLen(len(want)))
	n := ascii85.Encode(encoded, want)
	input := append(encoded[:n], '~', '>')

	p := NewPipeline(Limits{})
	got, err := p.Decode(input, []string{"ASCII85Decode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// Literal run "ab", repeat 'c' three times, EOD.
	input := []byte{1, 'a', 'b', 254, 'c', 128}
	p := NewPipeline(Limits{})
	got, err := p.Decode(input, []string{"RunLengthDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "abccc" {
		t.Fatalf("got %q", got)
	}
}

func TestLZWDecode(t *testing.T) {
	// Encodes "-----A---B" (ISO 32000-1, 7.4.4.2 example).
	input := []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}
	p := NewPipeline(Limits{})
	got, err := p.Decode(input, []string{"LZWDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "-----A---B" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeChain(t *testing.T) {
	want := []byte("chained filters")
	compressed := zlibCompress(t, want)
	hexed := make([]byte, 0, len(compressed)*2+1)
	const digits = "0123456789ABCDEF"
	for _, b := range compressed {
		hexed = append(hexed, digits[b>>4], digits[b&0xF])
	}
	hexed = append(hexed, '>')

	p := NewPipeline(Limits{})
	got, err := p.Decode(hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeUnknownFilter(t *testing.T) {
	p := NewPipeline(Limits{})
	if _, err := p.Decode([]byte("x"), []string{"NoSuchFilter"}, nil); err == nil {
		t.Fatalf("expected unknown filter error")
	}
}

func TestImageCodecsPassThrough(t *testing.T) {
	p := NewPipeline(Limits{})
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	got, err := p.Decode(payload, []string{"DCTDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload altered: % X", got)
	}
}

func TestDecompressedSizeLimit(t *testing.T) {
	big := bytes.Repeat([]byte("A"), 4096)
	p := NewPipeline(Limits{MaxDecompressedSize: 100})
	if _, err := p.Decode(zlibCompress(t, big), []string{"FlateDecode"}, nil); err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestFilterNamesFromDict(t *testing.T) {
	dict := object.NewDict()
	dict.Set("Filter", object.Name("FlateDecode"))
	parms := object.NewDict()
	parms.Set("Predictor", object.Integer(12))
	dict.Set("DecodeParms", parms)

	names, pd := Names(dict, nil)
	if len(names) != 1 || names[0] != "FlateDecode" {
		t.Fatalf("names = %v", names)
	}
	if len(pd) != 1 || pd[0] == nil {
		t.Fatalf("parms = %v", pd)
	}
	if v, _ := pd[0].Int("Predictor"); v != 12 {
		t.Fatalf("Predictor = %d", v)
	}
}

func TestPNGPredictorUp(t *testing.T) {
	// Two rows, three columns, 8-bit gray, Up predictor (tag 2).
	raw := []byte{
		2, 10, 20, 30,
		2, 1, 1, 1,
	}
	parms := object.NewDict()
	parms.Set("Predictor", object.Integer(12))
	parms.Set("Colors", object.Integer(1))
	parms.Set("BitsPerComponent", object.Integer(8))
	parms.Set("Columns", object.Integer(3))

	got, err := applyPredictor(raw, parms)
	if err != nil {
		t.Fatalf("applyPredictor() error = %v", err)
	}
	want := []byte{10, 20, 30, 11, 21, 31}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % d, want % d", got, want)
	}
}

func TestTIFFPredictor(t *testing.T) {
	raw := []byte{10, 5, 5, 5}
	parms := object.NewDict()
	parms.Set("Predictor", object.Integer(2))
	parms.Set("Colors", object.Integer(1))
	parms.Set("BitsPerComponent", object.Integer(8))
	parms.Set("Columns", object.Integer(4))

	got, err := applyPredictor(raw, parms)
	if err != nil {
		t.Fatalf("applyPredictor() error = %v", err)
	}
	want := []byte{10, 15, 20, 25}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % d, want % d", got, want)
	}
}
