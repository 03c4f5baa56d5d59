// Package filters decodes PDF stream filters. Decoders are composed into a
// pipeline applied in the order the stream dictionary names them; image
// codecs (DCT, JPX) are passthrough terminals whose payload is handed to the
// caller still encoded.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/StrongheartedX/onyx/object"
)

// Decoder decodes one filter.
type Decoder interface {
	Name() string
	Decode(input []byte, parms *object.Dict) ([]byte, error)
}

// Limits bounds decode output on hostile input.
type Limits struct {
	MaxDecompressedSize int64
}

// Pipeline applies a filter chain.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline returns a pipeline with the standard decoders registered.
func NewPipeline(limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder), limits: limits}
	for _, d := range []Decoder{
		flateDecoder{limits},
		lzwDecoder{limits},
		asciiHexDecoder{},
		ascii85Decoder{},
		runLengthDecoder{limits},
		passthrough{"DCTDecode"},
		passthrough{"JPXDecode"},
		passthrough{"Crypt"},
	} {
		p.decoders[d.Name()] = d
	}
	return p
}

// Register adds or replaces a decoder.
func (p *Pipeline) Register(d Decoder) { p.decoders[d.Name()] = d }

// IsImageCodec reports filters whose output is an image file payload rather
// than decoded bytes.
func IsImageCodec(name string) bool {
	return name == "DCTDecode" || name == "JPXDecode" || name == "CCITTFaxDecode" || name == "JBIG2Decode"
}

// Decode applies the named filters in order.
func (p *Pipeline) Decode(input []byte, names []string, parms []*object.Dict) ([]byte, error) {
	data := input
	for i, name := range names {
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", name)
		}
		var pd *object.Dict
		if i < len(parms) {
			pd = parms[i]
		}
		out, err := dec.Decode(data, pd)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

// Names extracts the Filter and DecodeParms chains from a stream dictionary.
// The resolve callback maps indirect references to their targets; pass nil
// when everything is known to be direct.
func Names(dict *object.Dict, resolve func(object.Object) object.Object) ([]string, []*object.Dict) {
	if resolve == nil {
		resolve = func(o object.Object) object.Object { return o }
	}
	filterObj, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}
	var names []string
	switch f := resolve(filterObj).(type) {
	case object.Name:
		names = []string{string(f)}
	case *object.Array:
		for _, item := range f.Items {
			if n, ok := resolve(item).(object.Name); ok {
				names = append(names, string(n))
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	parms := make([]*object.Dict, len(names))
	parmsObj, ok := dict.Get("DecodeParms")
	if !ok {
		parmsObj, ok = dict.Get("DP")
	}
	if ok {
		switch pv := resolve(parmsObj).(type) {
		case *object.Dict:
			parms[0] = pv
		case *object.Array:
			for i := 0; i < len(names) && i < len(pv.Items); i++ {
				if d, ok := resolve(pv.Items[i]).(*object.Dict); ok {
					parms[i] = d
				}
			}
		}
	}
	return names, parms
}

type passthrough struct{ name string }

func (p passthrough) Name() string { return p.name }
func (p passthrough) Decode(in []byte, parms *object.Dict) ([]byte, error) {
	return in, nil
}

type flateDecoder struct{ limits Limits }

func (flateDecoder) Name() string { return "FlateDecode" }

func (d flateDecoder) Decode(in []byte, parms *object.Dict) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		// Some producers omit the zlib wrapper; retry as raw deflate.
		r = flate.NewReader(bytes.NewReader(in))
	} else {
		r = zr
	}
	defer r.Close()
	out, err := readBounded(r, d.limits)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	// A truncated tail is tolerated as long as some data decoded.
	return applyPredictor(out, parms)
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(in []byte, parms *object.Dict) ([]byte, error) {
	trimmed := make([]byte, 0, len(in))
	for _, c := range in {
		switch c {
		case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
			continue
		}
		if c == '>' {
			break
		}
		trimmed = append(trimmed, c)
	}
	if len(trimmed)%2 == 1 {
		trimmed = append(trimmed, '0')
	}
	out := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(out, trimmed)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(in []byte, parms *object.Dict) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{ limits Limits }

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (d runLengthDecoder) Decode(in []byte, parms *object.Dict) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(in) {
		l := int(in[i])
		i++
		if l == 128 {
			break // EOD
		}
		if l < 128 {
			if i+l+1 > len(in) {
				return nil, errors.New("truncated literal run")
			}
			out = append(out, in[i:i+l+1]...)
			i += l + 1
		} else {
			if i >= len(in) {
				return nil, errors.New("truncated repeat run")
			}
			count := 257 - l
			for k := 0; k < count; k++ {
				out = append(out, in[i])
			}
			i++
		}
		if d.limits.MaxDecompressedSize > 0 && int64(len(out)) > d.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
	}
	return out, nil
}

func readBounded(r io.Reader, limits Limits) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			if limits.MaxDecompressedSize > 0 && int64(out.Len()) > limits.MaxDecompressedSize {
				return nil, errors.New("decompressed size exceeds limit")
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out.Bytes(), nil
			}
			return out.Bytes(), err
		}
	}
}
