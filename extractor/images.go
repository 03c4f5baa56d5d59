package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/StrongheartedX/onyx/filters"
	"github.com/StrongheartedX/onyx/object"
)

// Image is an embedded image XObject, already converted to an interchange
// format. Format is the file extension without the dot.
type Image struct {
	ResourceName string
	Page         int
	Width        int
	Height       int
	ColorSpace   string
	Format       string
	Data         []byte
}

// Images collects embedded images from every page. Assets that cannot be
// converted are skipped.
func (e *Extractor) Images(ctx context.Context) []Image {
	var out []Image
	for i := range e.doc.Pages {
		imgs, err := e.PageImages(ctx, i)
		if err != nil {
			continue
		}
		out = append(out, imgs...)
	}
	return out
}

// PageImages returns the image XObjects reachable from one page's resources.
func (e *Extractor) PageImages(ctx context.Context, pageIdx int) ([]Image, error) {
	if pageIdx < 0 || pageIdx >= len(e.doc.Pages) {
		return nil, fmt.Errorf("%w: page %d out of range", ErrPageDecode, pageIdx)
	}
	page := &e.doc.Pages[pageIdx]
	if page.Resources == nil {
		return nil, nil
	}
	xobjObj, ok := page.Resources.Get("XObject")
	if !ok {
		return nil, nil
	}
	xobjects := e.resolveDict(ctx, xobjObj)
	if xobjects == nil {
		return nil, nil
	}
	var out []Image
	for _, name := range xobjects.Keys() {
		entry, _ := xobjects.Get(name)
		st, _ := e.resolve(ctx, entry).(*object.Stream)
		if st == nil {
			continue
		}
		if subtype, _ := st.Dict.Name("Subtype"); subtype != "Image" {
			continue
		}
		img, err := e.convertImageStream(ctx, st, pageIdx, string(name))
		if err != nil {
			continue
		}
		out = append(out, img)
	}
	return out, nil
}

// convertImageStream decodes the stream and picks an output format: JPEG
// and JPEG 2000 payloads pass through untouched, raw samples get wrapped
// in a PNG container.
func (e *Extractor) convertImageStream(ctx context.Context, st *object.Stream, pageIdx int, name string) (Image, error) {
	data, err := e.doc.StreamData(ctx, st)
	if err != nil {
		return Image{}, err
	}
	width, _ := st.Dict.Int("Width")
	height, _ := st.Dict.Int("Height")
	colorSpace, _ := st.Dict.Name("ColorSpace")
	img := Image{
		ResourceName: name,
		Page:         pageIdx,
		Width:        int(width),
		Height:       int(height),
		ColorSpace:   string(colorSpace),
		Data:         data,
	}
	names, _ := filters.Names(st.Dict, func(o object.Object) object.Object {
		return e.resolve(ctx, o)
	})
	for _, n := range names {
		switch n {
		case "DCTDecode":
			img.Format = "jpg"
			return img, nil
		case "JPXDecode":
			img.Format = "jp2"
			return img, nil
		}
	}
	encoded, err := wrapPNG(data, img.Width, img.Height, img.ColorSpace)
	if err != nil {
		return Image{}, err
	}
	img.Format = "png"
	img.Data = encoded
	return img, nil
}

// wrapPNG interprets raw component samples by data length and color space.
func wrapPNG(data []byte, width, height int, colorSpace string) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	pixels := width * height
	rect := image.Rect(0, 0, width, height)
	var img image.Image
	switch len(data) {
	case pixels * 4:
		if colorSpace == "DeviceCMYK" {
			img = &image.CMYK{Pix: data, Stride: width * 4, Rect: rect}
		} else {
			img = &image.RGBA{Pix: data, Stride: width * 4, Rect: rect}
		}
	case pixels * 3:
		img = &rgbImage{Pix: data, Stride: width * 3, Rect: rect}
	case pixels:
		img = &image.Gray{Pix: data, Stride: width, Rect: rect}
	default:
		return nil, fmt.Errorf("unsupported sample layout: %d bytes for %dx%d", len(data), width, height)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type rgbImage struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func (p *rgbImage) ColorModel() color.Model { return color.RGBAModel }
func (p *rgbImage) Bounds() image.Rectangle { return p.Rect }
func (p *rgbImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 255}
}
