package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/StrongheartedX/onyx/extractor"
	"github.com/StrongheartedX/onyx/internal/pdftest"
)

func TestReadPlainDocument(t *testing.T) {
	data := pdftest.MultiPage([]string{
		"BT /F1 12 Tf (first page) Tj ET",
		"BT /F1 12 Tf (second page) Tj ET",
	}, "<< /Title (Quarterly Numbers) >>")

	res := Read(context.Background(), bytes.NewReader(data))
	if res.Degraded {
		t.Fatalf("Degraded = true")
	}
	if res.Protected {
		t.Fatalf("Protected = true for plain input")
	}
	if res.PageCount != 2 {
		t.Fatalf("PageCount = %d", res.PageCount)
	}
	want := "first page" + pageSeparator + "second page"
	if res.Text != want {
		t.Fatalf("Text = %q, want %q", res.Text, want)
	}
	if res.Metadata["Title"] != "Quarterly Numbers" {
		t.Fatalf("Title = %q", res.Metadata["Title"])
	}
}

func TestReadSkipsBlankPagesInJoin(t *testing.T) {
	data := pdftest.MultiPage([]string{
		"BT /F1 12 Tf (one) Tj ET",
		"",
		"BT /F1 12 Tf (three) Tj ET",
	}, "")
	res := Read(context.Background(), bytes.NewReader(data))
	if res.PageCount != 3 {
		t.Fatalf("PageCount = %d", res.PageCount)
	}
	want := "one" + pageSeparator + "three"
	if res.Text != want {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestReadGarbageDegrades(t *testing.T) {
	res := Read(context.Background(), strings.NewReader("not a document at all"))
	if !res.Degraded {
		t.Fatalf("Degraded = false for garbage input")
	}
	if res.Text != "" || res.PageCount != 0 || len(res.Images) != 0 {
		t.Fatalf("garbage produced content: %+v", res)
	}
	if res.Metadata == nil {
		t.Fatalf("Metadata is nil")
	}
}

func TestReadFailedReaderDegrades(t *testing.T) {
	res := Read(context.Background(), failingReader{})
	if !res.Degraded {
		t.Fatalf("Degraded = false for reader failure")
	}
	if res.Metadata == nil {
		t.Fatalf("Metadata is nil")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errReadBroken }

var errReadBroken = &readError{}

type readError struct{}

func (*readError) Error() string { return "broken pipe" }

func TestReadEncryptedWithPassword(t *testing.T) {
	data := pdftest.EncryptedSinglePage("hunter2", "admin",
		"BT /F1 12 Tf (classified text) Tj ET", "Internal Memo")
	res := Read(context.Background(), bytes.NewReader(data), WithPassword("hunter2"))
	if res.Degraded {
		t.Fatalf("Degraded = true with correct password")
	}
	if !res.Protected {
		t.Fatalf("Protected = false for encrypted input")
	}
	if !strings.Contains(res.Text, "classified text") {
		t.Fatalf("Text = %q", res.Text)
	}
	if res.Metadata["Title"] != "Internal Memo" {
		t.Fatalf("Title = %q", res.Metadata["Title"])
	}
}

func TestReadEncryptedWrongPassword(t *testing.T) {
	data := pdftest.EncryptedSinglePage("hunter2", "admin",
		"BT /F1 12 Tf (classified text) Tj ET", "Internal Memo")
	res := Read(context.Background(), bytes.NewReader(data), WithPassword("guess"))
	if !res.Protected {
		t.Fatalf("Protected = false")
	}
	if !res.Degraded {
		t.Fatalf("Degraded = false for a wrong password")
	}
	if res.Text != "" || len(res.Metadata) != 0 || len(res.Images) != 0 {
		t.Fatalf("locked document leaked content: %+v", res)
	}
	if res.Metadata == nil {
		t.Fatalf("Metadata is nil")
	}
}

func TestReadEncryptedNoPassword(t *testing.T) {
	data := pdftest.EncryptedSinglePage("hunter2", "admin", "BT (x) Tj ET", "T")
	res := Read(context.Background(), bytes.NewReader(data))
	if !res.Protected || !res.Degraded {
		t.Fatalf("Protected = %v, Degraded = %v", res.Protected, res.Degraded)
	}
}

// imageDoc builds a one-page document with a single 1x1 grayscale image
// XObject named Im1.
func imageDoc() []byte {
	b := pdftest.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(3, "<< /Type /Page /Parent 2 0 R /Resources << /XObject << /Im1 4 0 R >> >> >>")
	b.AddStream(4, "/Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray", []byte{0x7F})
	return b.Bytes()
}

func TestReadCollectsImages(t *testing.T) {
	res := Read(context.Background(), bytes.NewReader(imageDoc()), WithImages())
	if res.Degraded {
		t.Fatalf("Degraded = true")
	}
	if len(res.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(res.Images))
	}
	img := res.Images[0]
	if img.Name != "page0-Im1.png" {
		t.Fatalf("Name = %q", img.Name)
	}
	if len(img.Data) == 0 {
		t.Fatalf("image payload is empty")
	}
}

func TestReadWithoutImagesOption(t *testing.T) {
	res := Read(context.Background(), bytes.NewReader(imageDoc()))
	if len(res.Images) != 0 {
		t.Fatalf("images extracted without the option: %d", len(res.Images))
	}
}

func TestReadSinkExcludesResultImages(t *testing.T) {
	var delivered []Image
	res := Read(context.Background(), bytes.NewReader(imageDoc()),
		WithImageSink(func(img Image) { delivered = append(delivered, img) }))
	if res.Degraded {
		t.Fatalf("Degraded = true")
	}
	if len(delivered) != 1 {
		t.Fatalf("sink called %d times, want 1", len(delivered))
	}
	if delivered[0].Name != "page0-Im1.png" {
		t.Fatalf("sink image Name = %q", delivered[0].Name)
	}
	if len(res.Images) != 0 {
		t.Fatalf("sink installed but result carries %d images", len(res.Images))
	}
}

func TestImageNameFallback(t *testing.T) {
	got := imageName(extractor.Image{Page: 2, Format: "png"})
	if !strings.HasPrefix(got, "page2-") || !strings.HasSuffix(got, ".png") {
		t.Fatalf("imageName = %q", got)
	}
	if got == "page2-.png" {
		t.Fatalf("empty resource name did not get a generated identifier")
	}
}

func TestJoinPages(t *testing.T) {
	if got := joinPages([]string{"", "a", "", "b", ""}); got != "a"+pageSeparator+"b" {
		t.Fatalf("joinPages = %q", got)
	}
	if got := joinPages(nil); got != "" {
		t.Fatalf("joinPages(nil) = %q", got)
	}
}
