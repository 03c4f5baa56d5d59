// Package tesseract provides the default OCR engine backed by the gosseract
// client. Importing it registers the engine process-wide.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/draw"

	"github.com/StrongheartedX/onyx/ocr"
)

func init() {
	ocr.SetDefaultEngine(NewEngine())
}

// minRecognitionWidth is the narrowest image Tesseract handles well; smaller
// inputs are upscaled first.
const minRecognitionWidth = 300

// Engine implements ocr.Engine using a local Tesseract installation.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	default:
	}
	data, err := prepareImage(in.Image)
	if err != nil {
		return ocr.Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()
	if err := c.SetImageFromBytes(data); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Result{
		InputID:   in.ID,
		PlainText: strings.TrimSpace(text),
		Language:  firstLanguage(in.Languages),
	}, nil
}

// prepareImage upscales undersized inputs with Catmull-Rom resampling and
// re-encodes them as PNG. Images already wide enough pass through.
func prepareImage(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Not decodable here (e.g. JPEG 2000); let Tesseract try as-is.
		return data, nil
	}
	bounds := src.Bounds()
	if bounds.Dx() >= minRecognitionWidth || bounds.Dx() == 0 {
		return data, nil
	}
	scale := minRecognitionWidth / bounds.Dx()
	if scale < 2 {
		scale = 2
	}
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx()*scale, bounds.Dy()*scale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode upscaled image: %w", err)
	}
	return buf.Bytes(), nil
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}
