package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/StrongheartedX/onyx/internal/pdftest"
	"github.com/StrongheartedX/onyx/parser"
)

func openDoc(t *testing.T, data []byte) *Extractor {
	t.Helper()
	doc, err := parser.Open(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	e, err := New(doc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestPageTextSimple(t *testing.T) {
	e := openDoc(t, pdftest.SinglePage("BT /F1 12 Tf (Hello World) Tj ET"))
	texts := e.PageTexts(context.Background())
	if len(texts) != 1 {
		t.Fatalf("texts = %d pages", len(texts))
	}
	if got := strings.TrimSpace(texts[0]); got != "Hello World" {
		t.Fatalf("text = %q", got)
	}
}

func TestPageTextArrayOperator(t *testing.T) {
	e := openDoc(t, pdftest.SinglePage("BT /F1 12 Tf [(He) -20 (llo)] TJ ET"))
	got := strings.TrimSpace(e.PageTexts(context.Background())[0])
	if got != "Hello" {
		t.Fatalf("text = %q", got)
	}
}

func TestPageTextQuoteOperators(t *testing.T) {
	e := openDoc(t, pdftest.SinglePage("BT /F1 12 Tf (first) Tj (second) ' 1 2 (third) \" ET"))
	got := e.PageTexts(context.Background())[0]
	for _, want := range []string{"first", "second", "third"} {
		if !strings.Contains(got, want) {
			t.Fatalf("text %q missing %q", got, want)
		}
	}
	// The quote operators move to the next line before showing.
	if !strings.Contains(got, "first\nsecond") {
		t.Fatalf("quote operator did not break line: %q", got)
	}
}

func TestPageTextLineBreaks(t *testing.T) {
	e := openDoc(t, pdftest.SinglePage("BT /F1 12 Tf (one) Tj 0 -14 Td (two) Tj T* (three) Tj ET"))
	got := strings.TrimSpace(e.PageTexts(context.Background())[0])
	want := "one\ntwo\nthree"
	if got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}
}

func TestPageTextHorizontalTdKeepsLine(t *testing.T) {
	e := openDoc(t, pdftest.SinglePage("BT /F1 12 Tf (left) Tj 50 0 Td (right) Tj ET"))
	got := e.PageTexts(context.Background())[0]
	if strings.Contains(got, "left\nright") {
		t.Fatalf("horizontal move inserted a line break: %q", got)
	}
}

func TestPageTextSkipsInlineImages(t *testing.T) {
	content := "BT /F1 12 Tf (before) Tj ET BI /W 1 /H 1 ID \x00\x01(fake Tj)\x02 EI BT (after) Tj ET"
	e := openDoc(t, pdftest.SinglePage(content))
	got := e.PageTexts(context.Background())[0]
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Fatalf("text = %q", got)
	}
	if strings.Contains(got, "fake") {
		t.Fatalf("inline image data leaked into text: %q", got)
	}
}

func TestPageTextsBlankPages(t *testing.T) {
	e := openDoc(t, pdftest.MultiPage([]string{"", "", ""}, ""))
	texts := e.PageTexts(context.Background())
	if len(texts) != 3 {
		t.Fatalf("texts = %d pages, want 3", len(texts))
	}
	for i, s := range texts {
		if s != "" {
			t.Fatalf("page %d text = %q, want empty", i, s)
		}
	}
}

func TestPageTextsMixedPages(t *testing.T) {
	e := openDoc(t, pdftest.MultiPage([]string{
		"BT /F1 12 Tf (page one) Tj ET",
		"",
		"BT /F1 12 Tf (page three) Tj ET",
	}, ""))
	texts := e.PageTexts(context.Background())
	if len(texts) != 3 {
		t.Fatalf("texts = %d pages", len(texts))
	}
	if !strings.Contains(texts[0], "page one") || texts[1] != "" || !strings.Contains(texts[2], "page three") {
		t.Fatalf("texts = %q", texts)
	}
}

func TestMetadataFromInfo(t *testing.T) {
	e := openDoc(t, pdftest.MultiPage([]string{""},
		"<< /Title (Annual Report) /Author (Smith) /Keywords [(tax) (audit)] >>"))
	meta := e.Metadata(context.Background())
	if meta["Title"] != "Annual Report" {
		t.Fatalf("Title = %q", meta["Title"])
	}
	if meta["Author"] != "Smith" {
		t.Fatalf("Author = %q", meta["Author"])
	}
	if meta["Keywords"] != "tax, audit" {
		t.Fatalf("Keywords = %q", meta["Keywords"])
	}
	for k := range meta {
		if strings.HasPrefix(k, "/") {
			t.Fatalf("key %q kept its name prefix", k)
		}
	}
}

func TestMetadataUTF16Title(t *testing.T) {
	// "Café" as UTF-16BE with a byte order mark.
	title := "\xfe\xff\x00C\x00a\x00f\x00\xe9"
	e := openDoc(t, pdftest.MultiPage([]string{""}, "<< /Title <"+hexOf(title)+"> >>"))
	meta := e.Metadata(context.Background())
	if meta["Title"] != "Café" {
		t.Fatalf("Title = %q", meta["Title"])
	}
}

func TestMetadataLatin1Fallback(t *testing.T) {
	// No byte order mark, so bytes decode as Latin-1.
	e := openDoc(t, pdftest.MultiPage([]string{""}, "<< /Producer <"+hexOf("caf\xe9")+"> >>"))
	meta := e.Metadata(context.Background())
	if meta["Producer"] != "café" {
		t.Fatalf("Producer = %q", meta["Producer"])
	}
}

func TestMetadataMissingInfo(t *testing.T) {
	e := openDoc(t, pdftest.SinglePage(""))
	meta := e.Metadata(context.Background())
	if meta == nil {
		t.Fatalf("Metadata() returned nil")
	}
	if len(meta) != 0 {
		t.Fatalf("meta = %v, want empty", meta)
	}
}

func hexOf(s string) string {
	const digits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteByte(digits[s[i]>>4])
		b.WriteByte(digits[s[i]&0x0F])
	}
	return b.String()
}
