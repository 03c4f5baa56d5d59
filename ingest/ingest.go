// Package ingest is the document intake surface. Read never fails: broken,
// encrypted, or unreadable input degrades to an empty Result so a pipeline
// processing mixed uploads keeps moving.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/StrongheartedX/onyx/extractor"
	"github.com/StrongheartedX/onyx/observability"
	"github.com/StrongheartedX/onyx/ocr"
	"github.com/StrongheartedX/onyx/parser"
	"github.com/StrongheartedX/onyx/recovery"
	"github.com/StrongheartedX/onyx/security"
)

// pageSeparator joins per-page text in the combined output.
const pageSeparator = "\n\n"

// Image is an extracted embedded image ready for storage.
type Image struct {
	// Name carries a file extension matching the payload format.
	Name string
	Data []byte
}

// Sink receives images as they are extracted. When a sink is installed the
// Result carries no images.
type Sink func(Image)

// Result is the outcome of one Read. Metadata is never nil.
type Result struct {
	Text     string
	Metadata map[string]string
	Images   []Image
	// PageCount is zero when the document could not be opened.
	PageCount int
	// Protected reports that the document declared encryption.
	Protected bool
	// Degraded reports that content could not be recovered and the result
	// fields are empty placeholders.
	Degraded bool
}

type config struct {
	password   string
	withImages bool
	sink       Sink
	logger     observability.Logger
	tracer     observability.Tracer
	ocrEngine  ocr.Engine
	ocrLangs   []string
	limits     security.Limits
}

// Option configures a Read call.
type Option func(*config)

// WithPassword supplies the password tried once against encrypted input.
func WithPassword(pw string) Option { return func(c *config) { c.password = pw } }

// WithImages enables embedded image extraction.
func WithImages() Option { return func(c *config) { c.withImages = true } }

// WithImageSink streams images to fn instead of collecting them on the
// Result. Implies WithImages.
func WithImageSink(fn Sink) Option {
	return func(c *config) {
		c.withImages = true
		c.sink = fn
	}
}

// WithLogger installs a structured logger.
func WithLogger(l observability.Logger) Option { return func(c *config) { c.logger = l } }

// WithTracer installs a tracer; one span covers each Read.
func WithTracer(t observability.Tracer) Option { return func(c *config) { c.tracer = t } }

// WithOCR enables text recovery on pages whose content streams yield
// nothing. A nil engine selects the registered default.
func WithOCR(engine ocr.Engine, langs ...string) Option {
	return func(c *config) {
		if engine == nil {
			engine = ocr.DefaultEngine()
		}
		c.ocrEngine = engine
		c.ocrLangs = langs
	}
}

// WithLimits overrides resource ceilings for hostile input.
func WithLimits(l security.Limits) Option { return func(c *config) { c.limits = l } }

// Read consumes r to the end and extracts what it can. It does not seek;
// the caller positions the stream.
func Read(ctx context.Context, r io.Reader, opts ...Option) Result {
	cfg := config{logger: observability.NopLogger{}, tracer: observability.NopTracer()}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, span := cfg.tracer.StartSpan(ctx, "ingest.Read")
	defer span.Finish()

	res := Result{Metadata: map[string]string{}}
	data, err := io.ReadAll(r)
	if err != nil {
		cfg.logger.Warn("read input", observability.Error("err", err))
		span.SetError(err)
		res.Degraded = true
		span.SetTag(observability.TagDegraded, true)
		return res
	}

	doc, err := parser.Open(ctx, data, parser.Config{
		Password: cfg.password,
		Limits:   cfg.limits,
		Recovery: &recovery.Lenient{},
		Logger:   cfg.logger,
	})
	if err != nil {
		cfg.logger.Warn("open document", observability.Error("err", err))
		span.SetError(err)
		res.Degraded = true
		span.SetTag(observability.TagDegraded, true)
		return res
	}

	if doc.Encryption != nil {
		res.Protected = true
		span.SetTag(observability.TagEncrypted, true)
		if !doc.Encryption.Opened {
			// Wrong or missing password. One attempt was made; degrade.
			cfg.logger.Info("document locked, returning empty result")
			res.Degraded = true
			span.SetTag(observability.TagDegraded, true)
			return res
		}
	}

	ext, err := extractor.New(doc)
	if err != nil {
		res.Degraded = true
		span.SetTag(observability.TagDegraded, true)
		return res
	}
	res.PageCount = ext.PageCount()
	span.SetTag(observability.TagPageCount, res.PageCount)

	texts := ext.PageTexts(ctx)
	res.Metadata = ext.Metadata(ctx)

	var images []extractor.Image
	if cfg.withImages || cfg.ocrEngine != nil {
		images = ext.Images(ctx)
	}
	if cfg.ocrEngine != nil {
		recoverPageTexts(ctx, &cfg, texts, images)
	}
	res.Text = joinPages(texts)
	span.SetTag(observability.TagTextBytes, len(res.Text))

	if cfg.withImages {
		span.SetTag(observability.TagImageCount, len(images))
		for _, img := range images {
			out := Image{Name: imageName(img), Data: img.Data}
			if cfg.sink != nil {
				cfg.sink(out)
			} else {
				res.Images = append(res.Images, out)
			}
		}
	}
	return res
}

// recoverPageTexts fills empty page slots with OCR output from that page's
// images. Recognition failures leave the slot empty.
func recoverPageTexts(ctx context.Context, cfg *config, texts []string, images []extractor.Image) {
	byPage := make(map[int][]extractor.Image)
	for _, img := range images {
		byPage[img.Page] = append(byPage[img.Page], img)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			continue
		}
		pageImages := byPage[i]
		if len(pageImages) == 0 {
			continue
		}
		results, err := ocr.RecognizeImages(ctx, cfg.ocrEngine, pageImages, cfg.ocrLangs...)
		if err != nil {
			cfg.logger.Warn("ocr page", observability.Int("page", i), observability.Error("err", err))
			continue
		}
		var parts []string
		for _, r := range results {
			if r.PlainText != "" {
				parts = append(parts, r.PlainText)
			}
		}
		texts[i] = strings.Join(parts, "\n")
	}
}

func joinPages(texts []string) string {
	var nonEmpty []string
	for _, t := range texts {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, pageSeparator)
}

// imageName builds a storage name from the resource name, falling back to a
// random identifier when the document did not provide one.
func imageName(img extractor.Image) string {
	base := img.ResourceName
	if base == "" {
		base = uuid.NewString()
	}
	return fmt.Sprintf("page%d-%s.%s", img.Page, base, img.Format)
}
