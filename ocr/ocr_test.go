package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/StrongheartedX/onyx/extractor"
)

type fakeEngine struct {
	texts map[string]string
	err   error
	calls int
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	f.calls++
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{InputID: input.ID, PlainText: f.texts[input.ID], Language: "eng"}, nil
}

func TestInputFromImage(t *testing.T) {
	img := extractor.Image{ResourceName: "Im1", Page: 2, Format: "png", Data: []byte{1, 2, 3}}
	in := InputFromImage(img, "eng", "deu")
	if in.ID != "page-2-Im1" {
		t.Fatalf("ID = %q", in.ID)
	}
	if in.Format != ImageFormatPNG {
		t.Fatalf("Format = %q", in.Format)
	}
	if in.PageIndex != 2 {
		t.Fatalf("PageIndex = %d", in.PageIndex)
	}
	if len(in.Languages) != 2 || in.Languages[0] != "eng" {
		t.Fatalf("Languages = %v", in.Languages)
	}

	jpg := extractor.Image{ResourceName: "Im2", Format: "jpg"}
	if InputFromImage(jpg).Format != ImageFormatJPEG {
		t.Fatalf("jpg image mapped to %q", InputFromImage(jpg).Format)
	}
}

func TestRecognizeImages(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{
		"page-0-Im1": "scanned page",
		"page-1-Im2": "second scan",
	}}
	images := []extractor.Image{
		{ResourceName: "Im1", Page: 0},
		{ResourceName: "Im2", Page: 1},
	}
	results, err := RecognizeImages(context.Background(), engine, images)
	if err != nil {
		t.Fatalf("RecognizeImages() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].PlainText != "scanned page" || results[1].PlainText != "second scan" {
		t.Fatalf("results = %+v", results)
	}
}

func TestRecognizeImagesStopsOnError(t *testing.T) {
	wantErr := errors.New("model missing")
	engine := &fakeEngine{err: wantErr}
	images := []extractor.Image{{ResourceName: "Im1"}, {ResourceName: "Im2"}}
	_, err := RecognizeImages(context.Background(), engine, images)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v", err)
	}
	if engine.calls != 1 {
		t.Fatalf("calls = %d, want batch stopped after the first failure", engine.calls)
	}
}

func TestRecognizeImagesHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := &fakeEngine{}
	_, err := RecognizeImages(ctx, engine, []extractor.Image{{ResourceName: "Im1"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
	if engine.calls != 0 {
		t.Fatalf("engine called after cancellation")
	}
}

func TestDefaultEngineRegistry(t *testing.T) {
	orig := DefaultEngine()
	defer SetDefaultEngine(orig)

	engine := &fakeEngine{}
	SetDefaultEngine(engine)
	if DefaultEngine() != Engine(engine) {
		t.Fatalf("DefaultEngine did not return the registered engine")
	}
}

func TestNoopEngine(t *testing.T) {
	res, err := noopEngine{}.Recognize(context.Background(), Input{ID: "x"})
	if err != nil {
		t.Fatalf("noop error = %v", err)
	}
	if res.InputID != "x" || res.PlainText != "" {
		t.Fatalf("noop result = %+v", res)
	}
}
