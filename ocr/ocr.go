// Package ocr defines the provider contract used to recover text from
// image-only pages and a process-wide default engine registry.
package ocr

import (
	"context"
	"fmt"

	"github.com/StrongheartedX/onyx/extractor"
)

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Input is a single image submitted for recognition.
type Input struct {
	// ID is echoed back in the corresponding Result.
	ID string
	// Image is the encoded payload in the format declared by Format.
	Image  []byte
	Format ImageFormat
	// PageIndex links the input back to the zero-based page it came from.
	PageIndex int
	// Languages holds trained-data hints such as "eng".
	Languages []string
}

// Result captures recognition output for one input.
type Result struct {
	InputID   string
	PlainText string
	// Language is the dominant language, when the provider reports one.
	Language string
}

// Engine is the provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

var defaultEngine Engine = noopEngine{}

// DefaultEngine returns the process-wide engine. It is a no-op unless a
// provider package was imported.
func DefaultEngine() Engine { return defaultEngine }

// SetDefaultEngine replaces the process-wide engine. Provider packages call
// this from init.
func SetDefaultEngine(engine Engine) { defaultEngine = engine }

// InputFromImage converts an extracted page image into an OCR input.
func InputFromImage(img extractor.Image, langs ...string) Input {
	format := ImageFormatPNG
	if img.Format == "jpg" {
		format = ImageFormatJPEG
	}
	return Input{
		ID:        fmt.Sprintf("page-%d-%s", img.Page, img.ResourceName),
		Image:     img.Data,
		Format:    format,
		PageIndex: img.Page,
		Languages: langs,
	}
}

// RecognizeImages runs every extracted image through the engine. A failed
// recognition stops the batch.
func RecognizeImages(ctx context.Context, engine Engine, images []extractor.Image, langs ...string) ([]Result, error) {
	results := make([]Result, 0, len(images))
	for _, img := range images {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := engine.Recognize(ctx, InputFromImage(img, langs...))
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", img.ResourceName, err)
		}
		results = append(results, res)
	}
	return results, nil
}

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}
