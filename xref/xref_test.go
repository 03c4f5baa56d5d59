package xref

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"

	"github.com/StrongheartedX/onyx/internal/pdftest"
	"github.com/StrongheartedX/onyx/recovery"
)

func TestResolveClassicTable(t *testing.T) {
	data := pdftest.SinglePage("BT (x) Tj ET")
	table, err := Resolve(data, Config{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if table.Trailer() == nil {
		t.Fatalf("trailer missing")
	}
	for num := 1; num <= 5; num++ {
		entry, ok := table.Lookup(num)
		if !ok {
			t.Fatalf("object %d missing", num)
		}
		if entry.Type != EntryInFile {
			t.Fatalf("object %d type = %v", num, entry.Type)
		}
		if !bytes.HasPrefix(data[entry.Offset:], []byte(fmt.Sprintf("%d 0 obj", num))) {
			t.Fatalf("object %d offset %d does not point at its header", num, entry.Offset)
		}
	}
	if _, ok := table.Lookup(0); ok {
		entry, _ := table.Lookup(0)
		if entry.Type != EntryFree {
			t.Fatalf("object 0 should be free")
		}
	}
}

func TestResolvePrevChain(t *testing.T) {
	// First revision: objects 1..2. Update appends object 2 again and a new
	// xref section pointing back via Prev.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n(old)\nendobj\n")
	xref1 := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", off1, off2, xref1)

	off2b := buf.Len()
	buf.WriteString("2 0 obj\n(new)\nendobj\n")
	xref2 := buf.Len()
	fmt.Fprintf(&buf, "xref\n2 1\n%010d 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", off2b, xref1, xref2)

	table, err := Resolve(buf.Bytes(), Config{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	entry, ok := table.Lookup(2)
	if !ok {
		t.Fatalf("object 2 missing")
	}
	if entry.Offset != int64(off2b) {
		t.Fatalf("object 2 offset = %d, want updated %d", entry.Offset, off2b)
	}
	entry, _ = table.Lookup(1)
	if entry.Offset != int64(off1) {
		t.Fatalf("object 1 offset = %d, want %d from previous section", entry.Offset, off1)
	}
}

func TestResolveCrossReferenceStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n(x)\nendobj\n")
	xrefOff := buf.Len()

	// W [1 2 1]: type, offset, gen. Entries for objects 0..3.
	var entries bytes.Buffer
	writeEntry := func(typ byte, field2 int, field3 byte) {
		entries.WriteByte(typ)
		entries.WriteByte(byte(field2 >> 8))
		entries.WriteByte(byte(field2))
		entries.WriteByte(field3)
	}
	writeEntry(0, 0, 0xFF) // free
	writeEntry(1, off1, 0) // in file
	writeEntry(1, off2, 0) // in file
	writeEntry(2, 5, 1)    // in object stream 5, index 1
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(entries.Bytes())
	zw.Close()

	fmt.Fprintf(&buf, "3 0 obj\n<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n", compressed.Len())
	buf.Write(compressed.Bytes())
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	table, err := Resolve(buf.Bytes(), Config{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	entry, ok := table.Lookup(1)
	if !ok || entry.Type != EntryInFile || entry.Offset != int64(off1) {
		t.Fatalf("object 1 entry = %+v", entry)
	}
	entry, ok = table.Lookup(3)
	if !ok || entry.Type != EntryInStream {
		t.Fatalf("object 3 entry = %+v", entry)
	}
	if entry.StreamNum != 5 || entry.StreamIdx != 1 {
		t.Fatalf("object 3 container = %d idx %d", entry.StreamNum, entry.StreamIdx)
	}
	if table.Trailer() == nil {
		t.Fatalf("xref stream dict should serve as trailer")
	}
}

func TestResolveFallsBackToRepair(t *testing.T) {
	data := pdftest.SinglePage("BT (x) Tj ET")
	// Corrupt the startxref operand so offset-based resolution fails.
	broken := bytes.Replace(data, []byte("startxref"), []byte("startxrEF"), 1)

	rec := &recovery.Lenient{}
	table, err := Resolve(broken, Config{Recovery: rec})
	if err != nil {
		t.Fatalf("Resolve() with repair error = %v", err)
	}
	entry, ok := table.Lookup(3)
	if !ok || entry.Type != EntryInFile {
		t.Fatalf("repaired table missing object 3: %+v", entry)
	}
	if !bytes.HasPrefix(data[entry.Offset:], []byte("3 0 obj")) {
		t.Fatalf("repaired offset %d wrong", entry.Offset)
	}
}

func TestResolveGarbageFails(t *testing.T) {
	if _, err := Resolve([]byte("not a pdf at all"), Config{Recovery: &recovery.Lenient{}}); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestRepairLaterDefinitionWins(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj\n(first)\nendobj\n")
	second := buf.Len()
	buf.WriteString("1 0 obj\n(second)\nendobj\n")
	buf.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")

	table, err := Repair(buf.Bytes())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	entry, ok := table.Lookup(1)
	if !ok || entry.Offset != int64(second) {
		t.Fatalf("entry = %+v, want offset %d", entry, second)
	}
	if table.Trailer() == nil {
		t.Fatalf("trailer dict not captured")
	}
}

func TestRepairSkipsStreamPayloads(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj\n<< /Length 20 >>\nstream\n9 0 obj fake header\nendstream\nendobj\n")
	real2 := buf.Len()
	buf.WriteString("2 0 obj\n(real)\nendobj\n")

	table, err := Repair(buf.Bytes())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if _, ok := table.Lookup(9); ok {
		t.Fatalf("fake header inside stream payload was indexed")
	}
	entry, ok := table.Lookup(2)
	if !ok || entry.Offset != int64(real2) {
		t.Fatalf("object 2 entry = %+v", entry)
	}
}
